package services

import (
	"context"
	"sync/atomic"
	"time"

	"checkin-keeper/internal/logger"
	"checkin-keeper/internal/repository"
	"checkin-keeper/models"
	"checkin-keeper/utils"
)

// ProviderClient is the slice of TokenClient the executor needs.
type ProviderClient interface {
	CheckIn(ctx context.Context, provider *models.Provider, creds models.Credentials) (string, error)
	FetchUserInfo(ctx context.Context, provider *models.Provider, creds models.Credentials) (models.Balance, error)
}

// ChallengeSolver turns an anti-bot challenge into fresh cookies.
type ChallengeSolver interface {
	FetchWafCookies(ctx context.Context, loginURL string, existingCookies map[string]string) (map[string]string, error)
}

// ResultNotifier receives the outcome of each check-in.
type ResultNotifier interface {
	NotifyCheckIn(ctx context.Context, account *models.Account, result *models.CheckInResult, checkInErr error)
}

// BatchItemResult is the outcome of one account within a batch run.
type BatchItemResult struct {
	AccountID string `json:"account_id"`
	Name      string `json:"name"`
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
}

// BatchSummary is the outcome of a batch run, one result entry per account.
type BatchSummary struct {
	Total     int               `json:"total"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Stopped   bool              `json:"stopped"`
	Results   []BatchItemResult `json:"results"`
}

// CheckInExecutor runs the check-in pipeline for one account or a batch.
// A WAF challenge during the pipeline triggers the browser bypass and one
// retry; a second challenge fails the run.
type CheckInExecutor struct {
	accounts   repository.AccountRepository
	providers  repository.ProviderRepository
	jobs       repository.CheckInJobRepository
	sessions   repository.SessionRepository
	encryption *EncryptionService
	client     ProviderClient
	solver     ChallengeSolver
	history    *BalanceHistoryService
	notifier   ResultNotifier

	// balanceCacheHours bounds how old a cached balance snapshot may be
	// before FetchBalance goes back to the provider.
	balanceCacheHours int

	stopRequested atomic.Bool
	batchRunning  atomic.Bool
}

const sessionValidity = 24 * time.Hour

func NewCheckInExecutor(
	accounts repository.AccountRepository,
	providers repository.ProviderRepository,
	jobs repository.CheckInJobRepository,
	sessions repository.SessionRepository,
	encryption *EncryptionService,
	client ProviderClient,
	solver ChallengeSolver,
	history *BalanceHistoryService,
	notifier ResultNotifier,
	balanceCacheHours int,
) *CheckInExecutor {
	if balanceCacheHours <= 0 {
		balanceCacheHours = 1
	}
	return &CheckInExecutor{
		accounts:          accounts,
		providers:         providers,
		jobs:              jobs,
		sessions:          sessions,
		encryption:        encryption,
		client:            client,
		solver:            solver,
		history:           history,
		notifier:          notifier,
		balanceCacheHours: balanceCacheHours,
	}
}

// Execute runs the full pipeline for one account and records a job row for
// the attempt.
func (e *CheckInExecutor) Execute(ctx context.Context, accountID string) (*models.CheckInResult, error) {
	account, err := e.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !account.Enabled {
		return nil, utils.NewDomainError(utils.KindValidation, "account is disabled: "+account.Name)
	}

	provider, err := e.providers.FindByID(ctx, account.ProviderID)
	if err != nil {
		return nil, err
	}

	job := models.NewCheckInJob(account.ID, provider.ID, time.Now().UTC())
	if err := job.Start(); err != nil {
		return nil, err
	}
	e.saveJob(ctx, job)

	result, runErr := e.run(ctx, account, provider)
	if runErr != nil {
		if failErr := job.Fail(utils.UserMessage(runErr)); failErr == nil {
			e.saveJob(ctx, job)
		}
		if utils.IsKind(runErr, utils.KindSessionExpired) {
			e.dropSession(ctx, account.ID)
		}
		if e.notifier != nil {
			e.notifier.NotifyCheckIn(ctx, account, nil, runErr)
		}
		return nil, runErr
	}

	if err := job.Complete(*result); err == nil {
		e.saveJob(ctx, job)
	}
	if e.notifier != nil {
		e.notifier.NotifyCheckIn(ctx, account, result, nil)
	}
	return result, nil
}

// run performs the provider calls with decrypted credentials. Cookie
// mutations from a WAF bypass are persisted back to the account encrypted.
func (e *CheckInExecutor) run(ctx context.Context, account *models.Account, provider *models.Provider) (*models.CheckInResult, error) {
	creds, err := e.encryption.DecryptCredentials(account.Credentials)
	if err != nil {
		return nil, err
	}

	message := ""
	if provider.SupportsCheckIn && !provider.CheckInBugged && provider.SignInURL() != "" {
		message, creds, err = e.withWafRetry(ctx, account, provider, creds, e.client.CheckIn)
		if err != nil {
			return nil, err
		}
		account.RecordCheckIn()
	}

	var balance models.Balance
	balanceFetch := func(ctx context.Context, p *models.Provider, c models.Credentials) (string, error) {
		var fetchErr error
		balance, fetchErr = e.client.FetchUserInfo(ctx, p, c)
		return "", fetchErr
	}
	if _, creds, err = e.withWafRetry(ctx, account, provider, creds, balanceFetch); err != nil {
		return nil, err
	}

	account.UpdateBalance(balance)
	if err := e.accounts.Save(ctx, account); err != nil {
		return nil, err
	}

	if e.history != nil {
		if err := e.history.RecordSnapshot(ctx, account.ID, balance); err != nil {
			logger.Warn("failed to record balance history", "account_id", account.ID, "error", err.Error())
		}
	}
	e.recordSession(ctx, account.ID, creds)

	if message == "" {
		message = "check-in completed"
	}
	return &models.CheckInResult{Success: true, Balance: &balance, Message: message}, nil
}

// recordSession upserts the account's login session after a successful run.
// The row carries a credential fingerprint, never the cookies themselves.
func (e *CheckInExecutor) recordSession(ctx context.Context, accountID string, creds models.Credentials) {
	if e.sessions == nil {
		return
	}
	session := models.NewSession(accountID, creds.Fingerprint(), time.Now().UTC().Add(sessionValidity))
	if err := e.sessions.Save(ctx, session); err != nil {
		logger.Warn("failed to persist session", "account_id", accountID, "error", err.Error())
	}
}

func (e *CheckInExecutor) dropSession(ctx context.Context, accountID string) {
	if e.sessions == nil {
		return
	}
	if err := e.sessions.Delete(ctx, accountID); err != nil {
		logger.Warn("failed to drop expired session", "account_id", accountID, "error", err.Error())
	}
}

// FetchBalance returns the account's balance without triggering a check-in.
// The cached snapshot is served while it is fresh enough; forceRefresh
// always goes to the provider. A fresh fetch updates the snapshot and the
// daily history row.
func (e *CheckInExecutor) FetchBalance(ctx context.Context, accountID string, forceRefresh bool) (*models.Balance, error) {
	account, err := e.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if !forceRefresh && !account.IsBalanceStale(e.balanceCacheHours) {
		if cached, ok := account.CachedBalance(); ok {
			return &cached, nil
		}
	}

	provider, err := e.providers.FindByID(ctx, account.ProviderID)
	if err != nil {
		return nil, err
	}
	creds, err := e.encryption.DecryptCredentials(account.Credentials)
	if err != nil {
		return nil, err
	}

	var balance models.Balance
	fetch := func(ctx context.Context, p *models.Provider, c models.Credentials) (string, error) {
		var fetchErr error
		balance, fetchErr = e.client.FetchUserInfo(ctx, p, c)
		return "", fetchErr
	}
	if _, _, err := e.withWafRetry(ctx, account, provider, creds, fetch); err != nil {
		return nil, err
	}

	account.UpdateBalance(balance)
	if err := e.accounts.Save(ctx, account); err != nil {
		return nil, err
	}
	if e.history != nil {
		if err := e.history.RecordSnapshot(ctx, account.ID, balance); err != nil {
			logger.Warn("failed to record balance history", "account_id", account.ID, "error", err.Error())
		}
	}
	return &balance, nil
}

type providerCall func(ctx context.Context, provider *models.Provider, creds models.Credentials) (string, error)

// withWafRetry invokes call and, on a WAF challenge, solves it in the
// browser, merges the harvested cookies into the account, persists them, and
// retries exactly once. Any other error passes through untouched.
func (e *CheckInExecutor) withWafRetry(ctx context.Context, account *models.Account, provider *models.Provider, creds models.Credentials, call providerCall) (string, models.Credentials, error) {
	message, err := call(ctx, provider, creds)
	if err == nil {
		return message, creds, nil
	}
	if !utils.IsKind(err, utils.KindWafChallenge) || !provider.NeedsWafBypass() || e.solver == nil {
		return "", creds, err
	}

	logger.Info("solving WAF challenge", "account", account.Name, "provider", provider.Name)
	fresh, solveErr := e.solver.FetchWafCookies(ctx, provider.LoginURL(), creds.Cookies)
	if solveErr != nil {
		return "", creds, solveErr
	}

	creds.MergeCookies(fresh)
	if saveErr := e.persistCookies(ctx, account, creds.Cookies); saveErr != nil {
		return "", creds, saveErr
	}

	message, err = call(ctx, provider, creds)
	if err != nil {
		return "", creds, err
	}
	return message, creds, nil
}

// persistCookies re-encrypts the full cookie set onto the account.
func (e *CheckInExecutor) persistCookies(ctx context.Context, account *models.Account, cookies map[string]string) error {
	encrypted, err := e.encryption.EncryptCookies(cookies)
	if err != nil {
		return err
	}
	account.Credentials.Cookies = encrypted
	return e.accounts.Save(ctx, account)
}

// ExecuteBatch runs check-in sequentially for the given accounts, or for
// every enabled account when accountIDs is empty. One account failing does
// not stop the rest; RequestStop does, between accounts. Only one batch runs
// at a time.
func (e *CheckInExecutor) ExecuteBatch(ctx context.Context, accountIDs []string) (*BatchSummary, error) {
	if !e.batchRunning.CompareAndSwap(false, true) {
		return nil, utils.NewDomainError(utils.KindValidation, "a batch check-in is already running")
	}
	defer e.batchRunning.Store(false)
	e.stopRequested.Store(false)

	targets, err := e.batchTargets(ctx, accountIDs)
	if err != nil {
		return nil, err
	}

	summary := &BatchSummary{Total: len(targets), Results: make([]BatchItemResult, 0, len(targets))}
	for _, target := range targets {
		if e.stopRequested.Load() {
			summary.Stopped = true
			logger.Info("batch check-in stopped", "completed", summary.Succeeded+summary.Failed, "total", summary.Total)
			break
		}
		if ctx.Err() != nil {
			summary.Stopped = true
			break
		}

		result, err := e.Execute(ctx, target.id)
		if err != nil {
			summary.Failed++
			summary.Results = append(summary.Results, BatchItemResult{
				AccountID: target.id,
				Name:      target.name,
				Error:     utils.UserMessage(err),
			})
			logger.Error("check-in failed", "account", target.name, "error", err.Error())
			continue
		}
		summary.Succeeded++
		summary.Results = append(summary.Results, BatchItemResult{
			AccountID: target.id,
			Name:      target.name,
			Success:   true,
			Message:   result.Message,
		})
	}

	return summary, nil
}

type batchTarget struct {
	id   string
	name string
}

// batchTargets resolves the accounts a batch run covers. Unknown explicit
// ids stay in the list so the summary reports them as failures instead of
// silently skipping them.
func (e *CheckInExecutor) batchTargets(ctx context.Context, accountIDs []string) ([]batchTarget, error) {
	if len(accountIDs) == 0 {
		accounts, err := e.accounts.FindEnabled(ctx)
		if err != nil {
			return nil, err
		}
		targets := make([]batchTarget, 0, len(accounts))
		for _, account := range accounts {
			targets = append(targets, batchTarget{id: account.ID, name: account.Name})
		}
		return targets, nil
	}

	targets := make([]batchTarget, 0, len(accountIDs))
	for _, id := range accountIDs {
		name := id
		if account, err := e.accounts.FindByID(ctx, id); err == nil {
			name = account.Name
		}
		targets = append(targets, batchTarget{id: id, name: name})
	}
	return targets, nil
}

// RequestStop asks a running batch to stop after the current account.
func (e *CheckInExecutor) RequestStop() {
	e.stopRequested.Store(true)
}

// BatchRunning reports whether a batch is in flight.
func (e *CheckInExecutor) BatchRunning() bool {
	return e.batchRunning.Load()
}

func (e *CheckInExecutor) saveJob(ctx context.Context, job *models.CheckInJob) {
	if e.jobs == nil {
		return
	}
	if err := e.jobs.Save(ctx, job); err != nil {
		logger.Warn("failed to persist check-in job", "job_id", job.ID, "error", err.Error())
	}
}
