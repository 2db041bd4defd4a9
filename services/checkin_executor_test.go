package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"checkin-keeper/internal/repository"
	"checkin-keeper/models"
	"checkin-keeper/utils"
)

type stubAccountRepo struct {
	mu       sync.Mutex
	accounts map[string]*models.Account
	saves    int
}

func newStubAccountRepo(accounts ...*models.Account) *stubAccountRepo {
	repo := &stubAccountRepo{accounts: make(map[string]*models.Account)}
	for _, a := range accounts {
		repo.accounts[a.ID] = a
	}
	return repo
}

func (r *stubAccountRepo) Save(ctx context.Context, account *models.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[account.ID] = account
	r.saves++
	return nil
}

func (r *stubAccountRepo) FindByID(ctx context.Context, id string) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.accounts[id]; ok {
		return a, nil
	}
	return nil, utils.NewDomainError(utils.KindAccountNotFound, "account not found")
}

func (r *stubAccountRepo) FindAll(ctx context.Context) ([]*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := make([]*models.Account, 0, len(r.accounts))
	for _, a := range r.accounts {
		all = append(all, a)
	}
	return all, nil
}

func (r *stubAccountRepo) FindEnabled(ctx context.Context) ([]*models.Account, error) {
	all, _ := r.FindAll(ctx)
	enabled := all[:0]
	for _, a := range all {
		if a.Enabled {
			enabled = append(enabled, a)
		}
	}
	return enabled, nil
}

func (r *stubAccountRepo) Delete(ctx context.Context, id string) error { return nil }

func (r *stubAccountRepo) RawCredentialDocs(ctx context.Context) ([]repository.RawCredentialDoc, error) {
	return nil, nil
}

func (r *stubAccountRepo) UpdateRawCredentials(ctx context.Context, accountID string, cookies map[string]string, apiUser string) error {
	return nil
}

type stubSessionRepo struct {
	mu      sync.Mutex
	saved   map[string]*models.Session
	deletes []string
}

func (r *stubSessionRepo) Save(ctx context.Context, session *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saved == nil {
		r.saved = make(map[string]*models.Session)
	}
	r.saved[session.AccountID] = session
	return nil
}

func (r *stubSessionRepo) FindByAccountID(ctx context.Context, accountID string) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.saved[accountID]; ok {
		return s, nil
	}
	return nil, utils.NewDomainError(utils.KindAccountNotFound, "no session")
}

func (r *stubSessionRepo) Delete(ctx context.Context, accountID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.saved, accountID)
	r.deletes = append(r.deletes, accountID)
	return nil
}

type stubProviderRepo struct {
	providers map[string]*models.Provider
}

func (r *stubProviderRepo) Save(ctx context.Context, p *models.Provider) error { return nil }
func (r *stubProviderRepo) FindByID(ctx context.Context, id string) (*models.Provider, error) {
	if p, ok := r.providers[id]; ok {
		return p, nil
	}
	return nil, utils.NewDomainError(utils.KindProviderNotFound, "provider not found")
}
func (r *stubProviderRepo) FindAll(ctx context.Context) ([]*models.Provider, error) { return nil, nil }
func (r *stubProviderRepo) Delete(ctx context.Context, id string) error             { return nil }

type stubJobRepo struct {
	mu   sync.Mutex
	jobs []*models.CheckInJob
}

func (r *stubJobRepo) Save(ctx context.Context, job *models.CheckInJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *job
	r.jobs = append(r.jobs, &copied)
	return nil
}

func (r *stubJobRepo) FindByID(ctx context.Context, id string) (*models.CheckInJob, error) {
	return nil, utils.NewDomainError(utils.KindValidation, "not implemented")
}

func (r *stubJobRepo) FindByAccountID(ctx context.Context, accountID string, limit int) ([]*models.CheckInJob, error) {
	return nil, nil
}

func (r *stubJobRepo) lastStatus() models.CheckInStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.jobs) == 0 {
		return ""
	}
	return r.jobs[len(r.jobs)-1].Status
}

// scriptedClient returns queued errors per method before succeeding.
type scriptedClient struct {
	mu            sync.Mutex
	checkInErrs   []error
	userInfoErrs  []error
	checkInCalls  int
	userInfoCalls int
	balance       models.Balance
	onCheckIn     func()
}

func (c *scriptedClient) CheckIn(ctx context.Context, provider *models.Provider, creds models.Credentials) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checkInCalls++
	if c.onCheckIn != nil {
		c.onCheckIn()
	}
	if len(c.checkInErrs) > 0 {
		err := c.checkInErrs[0]
		c.checkInErrs = c.checkInErrs[1:]
		return "", err
	}
	return "checked in", nil
}

func (c *scriptedClient) FetchUserInfo(ctx context.Context, provider *models.Provider, creds models.Credentials) (models.Balance, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userInfoCalls++
	if len(c.userInfoErrs) > 0 {
		err := c.userInfoErrs[0]
		c.userInfoErrs = c.userInfoErrs[1:]
		return models.Balance{}, err
	}
	return c.balance, nil
}

type stubSolver struct {
	mu      sync.Mutex
	calls   int
	cookies map[string]string
	err     error
}

func (s *stubSolver) FetchWafCookies(ctx context.Context, loginURL string, existing map[string]string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.cookies, nil
}

type recordingNotifier struct {
	mu       sync.Mutex
	successes int
	failures int
}

func (n *recordingNotifier) NotifyCheckIn(ctx context.Context, account *models.Account, result *models.CheckInResult, checkInErr error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if checkInErr != nil {
		n.failures++
		return
	}
	n.successes++
}

type executorFixture struct {
	executor   *CheckInExecutor
	accounts   *stubAccountRepo
	jobs       *stubJobRepo
	sessions   *stubSessionRepo
	client     *scriptedClient
	solver     *stubSolver
	notifier   *recordingNotifier
	encryption *EncryptionService
	account    *models.Account
	provider   *models.Provider
}

func newExecutorFixture(t *testing.T, client *scriptedClient, solver *stubSolver) *executorFixture {
	t.Helper()

	encryption, err := NewEncryptionService("pw", t.TempDir())
	if err != nil {
		t.Fatalf("encryption: %v", err)
	}

	provider := testProvider("https://provider.test")
	account, err := models.NewAccount("acct", provider.ID, models.NewCredentials(map[string]string{"session": "plain"}, "77"))
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	sealed, err := encryption.EncryptCredentials(account.Credentials)
	if err != nil {
		t.Fatalf("encrypt credentials: %v", err)
	}
	account.Credentials = sealed

	accounts := newStubAccountRepo(account)
	jobs := &stubJobRepo{}
	sessions := &stubSessionRepo{}
	notifier := &recordingNotifier{}

	executor := NewCheckInExecutor(
		accounts,
		&stubProviderRepo{providers: map[string]*models.Provider{provider.ID: provider}},
		jobs,
		sessions,
		encryption,
		client,
		solver,
		nil,
		notifier,
		1,
	)

	return &executorFixture{
		executor:   executor,
		accounts:   accounts,
		jobs:       jobs,
		sessions:   sessions,
		client:     client,
		solver:     solver,
		notifier:   notifier,
		encryption: encryption,
		account:    account,
		provider:   provider,
	}
}

func TestExecuteSuccess(t *testing.T) {
	client := &scriptedClient{balance: models.NewBalance(40, 60)}
	fx := newExecutorFixture(t, client, &stubSolver{})

	result, err := fx.executor.Execute(context.Background(), fx.account.ID)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.Success || result.Message != "checked in" {
		t.Errorf("unexpected result %+v", result)
	}
	if result.Balance == nil || result.Balance.Remaining != 100 {
		t.Errorf("unexpected balance %+v", result.Balance)
	}
	if client.checkInCalls != 1 || client.userInfoCalls != 1 {
		t.Errorf("want one call each, got checkin=%d userinfo=%d", client.checkInCalls, client.userInfoCalls)
	}
	if fx.jobs.lastStatus() != models.CheckInCompleted {
		t.Errorf("job should end completed, got %s", fx.jobs.lastStatus())
	}
	if fx.notifier.successes != 1 || fx.notifier.failures != 0 {
		t.Errorf("notifier: success=%d failures=%d", fx.notifier.successes, fx.notifier.failures)
	}
	if fx.account.LastCheckIn == nil {
		t.Error("check-in time should be stamped")
	}
	if fx.account.CurrentBalance == nil || *fx.account.CurrentBalance != 40 {
		t.Error("balance snapshot should be cached on the account")
	}
}

func TestExecuteDisabledAccountMakesNoCalls(t *testing.T) {
	client := &scriptedClient{}
	fx := newExecutorFixture(t, client, &stubSolver{})
	fx.account.Toggle(false)

	_, err := fx.executor.Execute(context.Background(), fx.account.ID)
	if !utils.IsKind(err, utils.KindValidation) {
		t.Fatalf("want validation error, got %v", err)
	}
	if client.checkInCalls != 0 || client.userInfoCalls != 0 {
		t.Error("disabled account must not reach the provider")
	}
}

func TestExecuteUnknownAccount(t *testing.T) {
	fx := newExecutorFixture(t, &scriptedClient{}, &stubSolver{})

	_, err := fx.executor.Execute(context.Background(), "missing")
	if !utils.IsKind(err, utils.KindAccountNotFound) {
		t.Fatalf("want account not found, got %v", err)
	}
}

func TestExecuteSkipsCheckInForBuggedProvider(t *testing.T) {
	client := &scriptedClient{balance: models.NewBalance(1, 1)}
	fx := newExecutorFixture(t, client, &stubSolver{})
	fx.provider.CheckInBugged = true

	result, err := fx.executor.Execute(context.Background(), fx.account.ID)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if client.checkInCalls != 0 {
		t.Error("bugged provider should skip the sign-in call")
	}
	if client.userInfoCalls != 1 {
		t.Error("balance should still be fetched")
	}
	if result.Message != "check-in completed" {
		t.Errorf("unexpected message %q", result.Message)
	}
}

func TestWafChallengeRetriedExactlyOnce(t *testing.T) {
	wafErr := utils.NewDomainError(utils.KindWafChallenge, "challenge")
	client := &scriptedClient{
		checkInErrs: []error{wafErr},
		balance:     models.NewBalance(10, 0),
	}
	solver := &stubSolver{cookies: map[string]string{"acw_sc__v2": "solved"}}
	fx := newExecutorFixture(t, client, solver)

	result, err := fx.executor.Execute(context.Background(), fx.account.ID)
	if err != nil {
		t.Fatalf("execute after bypass: %v", err)
	}
	if !result.Success {
		t.Error("retry should succeed")
	}
	if solver.calls != 1 {
		t.Errorf("solver should run once, ran %d times", solver.calls)
	}
	if client.checkInCalls != 2 {
		t.Errorf("check-in should be retried once, got %d calls", client.checkInCalls)
	}

	// Harvested cookies are persisted encrypted alongside the originals.
	stored, err := fx.encryption.DecryptCookies(fx.account.Credentials.Cookies)
	if err != nil {
		t.Fatalf("stored cookies should decrypt: %v", err)
	}
	if stored["acw_sc__v2"] != "solved" || stored["session"] != "plain" {
		t.Errorf("unexpected persisted cookies %v", stored)
	}
}

func TestSecondWafChallengeFails(t *testing.T) {
	wafErr := utils.NewDomainError(utils.KindWafChallenge, "challenge")
	client := &scriptedClient{checkInErrs: []error{wafErr, wafErr}}
	solver := &stubSolver{cookies: map[string]string{"acw_sc__v2": "x"}}
	fx := newExecutorFixture(t, client, solver)

	_, err := fx.executor.Execute(context.Background(), fx.account.ID)
	if !utils.IsKind(err, utils.KindWafChallenge) {
		t.Fatalf("want WAF challenge error, got %v", err)
	}
	if solver.calls != 1 {
		t.Errorf("solver must not loop, ran %d times", solver.calls)
	}
	if fx.jobs.lastStatus() != models.CheckInFailed {
		t.Errorf("job should end failed, got %s", fx.jobs.lastStatus())
	}
	if fx.notifier.failures != 1 {
		t.Errorf("failure should be notified, got %d", fx.notifier.failures)
	}
}

func TestNonWafErrorsSkipSolver(t *testing.T) {
	client := &scriptedClient{
		checkInErrs: []error{utils.NewDomainError(utils.KindSessionExpired, "expired")},
	}
	solver := &stubSolver{}
	fx := newExecutorFixture(t, client, solver)

	_, err := fx.executor.Execute(context.Background(), fx.account.ID)
	if !utils.IsKind(err, utils.KindSessionExpired) {
		t.Fatalf("want session expired, got %v", err)
	}
	if solver.calls != 0 {
		t.Error("solver must not run for non-challenge errors")
	}
}

func TestExecuteBatchCollectsFailures(t *testing.T) {
	client := &scriptedClient{balance: models.NewBalance(5, 5)}
	fx := newExecutorFixture(t, client, &stubSolver{})

	second, _ := models.NewAccount("broken", "no-such-provider", models.NewCredentials(map[string]string{"a": "b"}, ""))
	fx.accounts.Save(context.Background(), second)

	summary, err := fx.executor.ExecuteBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if summary.Total != 2 || summary.Succeeded != 1 || summary.Failed != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if len(summary.Results) != 2 {
		t.Fatalf("want one result entry per account, got %v", summary.Results)
	}
	for _, item := range summary.Results {
		if item.AccountID == "" || item.Name == "" {
			t.Errorf("result entry missing identity: %+v", item)
		}
		if !item.Success && item.Error == "" {
			t.Errorf("failed entry should carry an error message: %+v", item)
		}
	}
}

func TestExecuteBatchExplicitAccounts(t *testing.T) {
	client := &scriptedClient{balance: models.NewBalance(5, 5)}
	fx := newExecutorFixture(t, client, &stubSolver{})

	// A second enabled account that must NOT run.
	second, _ := models.NewAccount("bystander", fx.provider.ID, models.NewCredentials(map[string]string{"a": "b"}, ""))
	sealed, _ := fx.encryption.EncryptCredentials(second.Credentials)
	second.Credentials = sealed
	fx.accounts.Save(context.Background(), second)

	summary, err := fx.executor.ExecuteBatch(context.Background(), []string{fx.account.ID, "no-such-account"})
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if summary.Total != 2 || summary.Succeeded != 1 || summary.Failed != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if client.checkInCalls != 1 {
		t.Errorf("only the requested account should run, got %d check-ins", client.checkInCalls)
	}
	if len(summary.Results) != 2 {
		t.Fatalf("want a result entry per requested id, got %v", summary.Results)
	}
	var unknown *BatchItemResult
	for i := range summary.Results {
		if summary.Results[i].AccountID == "no-such-account" {
			unknown = &summary.Results[i]
		}
	}
	if unknown == nil || unknown.Success || unknown.Error == "" {
		t.Errorf("unknown id should surface as a failed entry, got %+v", unknown)
	}
}

func TestExecuteBatchStopBetweenAccounts(t *testing.T) {
	client := &scriptedClient{balance: models.NewBalance(1, 0)}
	fx := newExecutorFixture(t, client, &stubSolver{})

	second, _ := models.NewAccount("second", fx.provider.ID, models.NewCredentials(map[string]string{"a": "b"}, ""))
	sealed, _ := fx.encryption.EncryptCredentials(second.Credentials)
	second.Credentials = sealed
	fx.accounts.Save(context.Background(), second)

	// Stop after the first account finishes.
	client.onCheckIn = func() { fx.executor.RequestStop() }

	summary, err := fx.executor.ExecuteBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if !summary.Stopped {
		t.Error("summary should be marked stopped")
	}
	if summary.Succeeded+summary.Failed != 1 {
		t.Errorf("only the first account should run, got %+v", summary)
	}
}

func TestOnlyOneBatchAtATime(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	client := &scriptedClient{balance: models.NewBalance(1, 0)}
	fx := newExecutorFixture(t, client, &stubSolver{})
	client.onCheckIn = func() {
		close(started)
		<-release
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		fx.executor.ExecuteBatch(context.Background(), nil)
	}()

	<-started
	if !fx.executor.BatchRunning() {
		t.Error("batch should report running")
	}
	_, err := fx.executor.ExecuteBatch(context.Background(), nil)
	if !utils.IsKind(err, utils.KindValidation) {
		t.Errorf("concurrent batch should be rejected, got %v", err)
	}

	close(release)
	<-done
	if fx.executor.BatchRunning() {
		t.Error("batch flag should clear when the run ends")
	}
}

func TestFetchBalanceServesFreshSnapshot(t *testing.T) {
	client := &scriptedClient{balance: models.NewBalance(99, 1)}
	fx := newExecutorFixture(t, client, &stubSolver{})
	fx.account.UpdateBalance(models.NewBalance(40, 60))

	balance, err := fx.executor.FetchBalance(context.Background(), fx.account.ID, false)
	if err != nil {
		t.Fatalf("fetch balance: %v", err)
	}
	if client.userInfoCalls != 0 {
		t.Error("fresh snapshot should not reach the provider")
	}
	if balance.Quota != 40 || balance.Used != 60 || balance.Remaining != 100 {
		t.Errorf("unexpected cached balance %+v", balance)
	}
}

func TestFetchBalanceRefreshesStaleSnapshot(t *testing.T) {
	client := &scriptedClient{balance: models.NewBalance(99, 1)}
	fx := newExecutorFixture(t, client, &stubSolver{})
	fx.account.UpdateBalance(models.NewBalance(40, 60))
	old := time.Now().UTC().Add(-2 * time.Hour)
	fx.account.LastBalanceCheckAt = &old

	balance, err := fx.executor.FetchBalance(context.Background(), fx.account.ID, false)
	if err != nil {
		t.Fatalf("fetch balance: %v", err)
	}
	if client.userInfoCalls != 1 {
		t.Errorf("stale snapshot should be refetched, got %d calls", client.userInfoCalls)
	}
	if balance.Quota != 99 {
		t.Errorf("unexpected refreshed balance %+v", balance)
	}
	if fx.account.CurrentBalance == nil || *fx.account.CurrentBalance != 99 {
		t.Error("refreshed snapshot should be cached on the account")
	}
}

func TestFetchBalanceForceRefreshIgnoresCache(t *testing.T) {
	client := &scriptedClient{balance: models.NewBalance(99, 1)}
	fx := newExecutorFixture(t, client, &stubSolver{})
	fx.account.UpdateBalance(models.NewBalance(40, 60))

	balance, err := fx.executor.FetchBalance(context.Background(), fx.account.ID, true)
	if err != nil {
		t.Fatalf("fetch balance: %v", err)
	}
	if client.userInfoCalls != 1 {
		t.Errorf("force refresh must hit the provider, got %d calls", client.userInfoCalls)
	}
	if balance.Quota != 99 {
		t.Errorf("unexpected balance %+v", balance)
	}
	if client.checkInCalls != 0 {
		t.Error("balance fetch must not trigger a check-in")
	}
}

func TestExecuteRecordsSessionOnSuccess(t *testing.T) {
	client := &scriptedClient{balance: models.NewBalance(10, 0)}
	fx := newExecutorFixture(t, client, &stubSolver{})

	if _, err := fx.executor.Execute(context.Background(), fx.account.ID); err != nil {
		t.Fatalf("execute: %v", err)
	}

	session, err := fx.sessions.FindByAccountID(context.Background(), fx.account.ID)
	if err != nil {
		t.Fatalf("session should be recorded: %v", err)
	}
	want := models.NewCredentials(map[string]string{"session": "plain"}, "77").Fingerprint()
	if session.Token != want {
		t.Errorf("session should carry the credential fingerprint, got %q", session.Token)
	}
	if !session.ExpiresAt.After(time.Now().UTC()) {
		t.Error("session should expire in the future")
	}
}

func TestExpiredSessionIsDropped(t *testing.T) {
	client := &scriptedClient{
		checkInErrs: []error{utils.NewDomainError(utils.KindSessionExpired, "expired")},
	}
	fx := newExecutorFixture(t, client, &stubSolver{})
	fx.sessions.Save(context.Background(), models.NewSession(fx.account.ID, "stale", time.Now().Add(time.Hour)))

	_, err := fx.executor.Execute(context.Background(), fx.account.ID)
	if !utils.IsKind(err, utils.KindSessionExpired) {
		t.Fatalf("want session expired, got %v", err)
	}
	if _, err := fx.sessions.FindByAccountID(context.Background(), fx.account.ID); err == nil {
		t.Error("stale session row should be deleted")
	}
	if len(fx.sessions.deletes) != 1 {
		t.Errorf("want one delete, got %v", fx.sessions.deletes)
	}
}
