package services

import (
	"context"
	"testing"

	"checkin-keeper/internal/repository"
	"checkin-keeper/models"
	"checkin-keeper/utils"
)

func newTestEncryption(t *testing.T) *EncryptionService {
	t.Helper()
	svc, err := NewEncryptionService("test-password", t.TempDir())
	if err != nil {
		t.Fatalf("NewEncryptionService: %v", err)
	}
	return svc
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	svc := newTestEncryption(t)

	for _, plaintext := range []string{"", "short", "a-long-session-cookie-value-1234567890", "值 with unicode"} {
		sealed, err := svc.Encrypt(plaintext)
		if err != nil {
			t.Fatalf("encrypt %q: %v", plaintext, err)
		}
		if sealed == plaintext && plaintext != "" {
			t.Errorf("ciphertext should differ from plaintext for %q", plaintext)
		}
		got, err := svc.Decrypt(sealed)
		if err != nil {
			t.Fatalf("decrypt %q: %v", plaintext, err)
		}
		if got != plaintext {
			t.Errorf("round trip mismatch: want %q, got %q", plaintext, got)
		}
	}
}

func TestEncryptProducesFreshNonces(t *testing.T) {
	svc := newTestEncryption(t)

	first, _ := svc.Encrypt("same value")
	second, _ := svc.Encrypt("same value")
	if first == second {
		t.Error("two encryptions of the same value should differ")
	}
}

func TestDecryptRejectsPlaintext(t *testing.T) {
	svc := newTestEncryption(t)

	for _, bogus := range []string{"plain-cookie-value", "not base64!!", "aGVsbG8="} {
		_, err := svc.Decrypt(bogus)
		if !utils.IsKind(err, utils.KindDataIntegrity) {
			t.Errorf("Decrypt(%q) should return a data integrity error, got %v", bogus, err)
		}
	}
}

func TestKeyIsStableAcrossRestarts(t *testing.T) {
	dir := t.TempDir()

	first, err := NewEncryptionService("pw", dir)
	if err != nil {
		t.Fatalf("first init: %v", err)
	}
	sealed, err := first.Encrypt("survives restart")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	// Same password and data dir must rebuild the same key.
	second, err := NewEncryptionService("pw", dir)
	if err != nil {
		t.Fatalf("second init: %v", err)
	}
	got, err := second.Decrypt(sealed)
	if err != nil {
		t.Fatalf("decrypt after restart: %v", err)
	}
	if got != "survives restart" {
		t.Errorf("want original plaintext, got %q", got)
	}
}

type rawUpdate struct {
	cookies map[string]string
	apiUser string
}

type fakeAccountRepo struct {
	docs       []repository.RawCredentialDoc
	updates    map[string]rawUpdate
	failUpdate map[string]bool
}

func (f *fakeAccountRepo) Save(ctx context.Context, a *models.Account) error { return nil }
func (f *fakeAccountRepo) FindByID(ctx context.Context, id string) (*models.Account, error) {
	return nil, utils.NewDomainError(utils.KindAccountNotFound, "not found")
}
func (f *fakeAccountRepo) FindAll(ctx context.Context) ([]*models.Account, error)     { return nil, nil }
func (f *fakeAccountRepo) FindEnabled(ctx context.Context) ([]*models.Account, error) { return nil, nil }
func (f *fakeAccountRepo) Delete(ctx context.Context, id string) error                { return nil }
func (f *fakeAccountRepo) RawCredentialDocs(ctx context.Context) ([]repository.RawCredentialDoc, error) {
	return f.docs, nil
}
func (f *fakeAccountRepo) UpdateRawCredentials(ctx context.Context, accountID string, cookies map[string]string, apiUser string) error {
	if f.failUpdate[accountID] {
		return utils.NewDomainError(utils.KindRepository, "write rejected")
	}
	if f.updates == nil {
		f.updates = make(map[string]rawUpdate)
	}
	f.updates[accountID] = rawUpdate{cookies: cookies, apiUser: apiUser}
	return nil
}

func TestEncryptCredentialsSealsAPIUser(t *testing.T) {
	svc := newTestEncryption(t)

	creds := models.NewCredentials(map[string]string{"session": "plain"}, "api-user-secret")
	sealed, err := svc.EncryptCredentials(creds)
	if err != nil {
		t.Fatalf("encrypt credentials: %v", err)
	}
	if sealed.APIUser == "api-user-secret" {
		t.Error("api_user must be stored encrypted")
	}
	if sealed.Cookies["session"] == "plain" {
		t.Error("cookie values must be stored encrypted")
	}

	restored, err := svc.DecryptCredentials(sealed)
	if err != nil {
		t.Fatalf("decrypt credentials: %v", err)
	}
	if restored.APIUser != "api-user-secret" || restored.Cookies["session"] != "plain" {
		t.Errorf("round trip mismatch: %+v", restored)
	}

	// Empty api_user stays empty instead of becoming ciphertext.
	sealed, err = svc.EncryptCredentials(models.NewCredentials(map[string]string{"s": "v"}, ""))
	if err != nil {
		t.Fatalf("encrypt credentials: %v", err)
	}
	if sealed.APIUser != "" {
		t.Errorf("empty api_user should stay empty, got %q", sealed.APIUser)
	}
}

func TestMigrateUnencryptedAccounts(t *testing.T) {
	svc := newTestEncryption(t)
	ctx := context.Background()

	alreadySealed, _ := svc.Encrypt("already-safe")
	sealedUser, _ := svc.Encrypt("sealed-user")
	repo := &fakeAccountRepo{
		docs: []repository.RawCredentialDoc{
			{AccountID: "legacy", Cookies: map[string]string{"session": "plaintext-cookie"}, APIUser: "plain-user"},
			{AccountID: "sealed", Cookies: map[string]string{"session": alreadySealed}, APIUser: sealedUser},
			{AccountID: "mixed", Cookies: map[string]string{"old": "plain", "new": alreadySealed}},
		},
	}

	migrated, failed, err := svc.MigrateUnencryptedAccounts(ctx, repo)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if migrated != 2 || failed != 0 {
		t.Fatalf("want 2 migrated and 0 failed, got %d/%d", migrated, failed)
	}
	if _, touched := repo.updates["sealed"]; touched {
		t.Error("fully encrypted account should not be rewritten")
	}

	// Legacy values must now decrypt to the original plaintext.
	got, err := svc.Decrypt(repo.updates["legacy"].cookies["session"])
	if err != nil || got != "plaintext-cookie" {
		t.Fatalf("migrated cookie should decrypt to original, got %q (%v)", got, err)
	}
	gotUser, err := svc.Decrypt(repo.updates["legacy"].apiUser)
	if err != nil || gotUser != "plain-user" {
		t.Fatalf("migrated api_user should decrypt to original, got %q (%v)", gotUser, err)
	}

	// Already-sealed values inside a mixed doc are left byte-identical.
	if repo.updates["mixed"].cookies["new"] != alreadySealed {
		t.Error("encrypted value in a mixed doc should be untouched")
	}

	// Running again is a no-op.
	repo.docs = []repository.RawCredentialDoc{
		{AccountID: "legacy", Cookies: repo.updates["legacy"].cookies, APIUser: repo.updates["legacy"].apiUser},
	}
	repo.updates = nil
	migrated, failed, err = svc.MigrateUnencryptedAccounts(ctx, repo)
	if err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	if migrated != 0 || failed != 0 || len(repo.updates) != 0 {
		t.Errorf("second run should migrate nothing, got %d/%d", migrated, failed)
	}
}

func TestMigrateContinuesPastFailedRows(t *testing.T) {
	svc := newTestEncryption(t)

	repo := &fakeAccountRepo{
		docs: []repository.RawCredentialDoc{
			{AccountID: "broken", Cookies: map[string]string{"session": "plain-a"}},
			{AccountID: "fine", Cookies: map[string]string{"session": "plain-b"}},
		},
		failUpdate: map[string]bool{"broken": true},
	}

	migrated, failed, err := svc.MigrateUnencryptedAccounts(context.Background(), repo)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if migrated != 1 || failed != 1 {
		t.Fatalf("want 1 migrated and 1 failed, got %d/%d", migrated, failed)
	}
	got, err := svc.Decrypt(repo.updates["fine"].cookies["session"])
	if err != nil || got != "plain-b" {
		t.Errorf("row after the failure should still migrate, got %q (%v)", got, err)
	}
}

func TestEmptyPasswordRejected(t *testing.T) {
	_, err := NewEncryptionService("", t.TempDir())
	if !utils.IsKind(err, utils.KindValidation) {
		t.Fatalf("want validation error, got %v", err)
	}
}
