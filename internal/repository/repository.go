package repository

import (
	"context"

	"checkin-keeper/models"
)

// AccountRepository persists accounts. Save is an upsert keyed by id.
// RawCredentialDocs exposes the stored credential payloads untouched so the
// encryption migration can inspect them without decrypting through the
// normal read path.
type AccountRepository interface {
	Save(ctx context.Context, account *models.Account) error
	FindByID(ctx context.Context, id string) (*models.Account, error)
	FindAll(ctx context.Context) ([]*models.Account, error)
	FindEnabled(ctx context.Context) ([]*models.Account, error)
	Delete(ctx context.Context, id string) error
	RawCredentialDocs(ctx context.Context) ([]RawCredentialDoc, error)
	UpdateRawCredentials(ctx context.Context, accountID string, cookies map[string]string, apiUser string) error
}

// RawCredentialDoc is an account id plus its stored credential values,
// exactly as they sit in the database.
type RawCredentialDoc struct {
	AccountID string
	Cookies   map[string]string
	APIUser   string
}

type ProviderRepository interface {
	Save(ctx context.Context, provider *models.Provider) error
	FindByID(ctx context.Context, id string) (*models.Provider, error)
	FindAll(ctx context.Context) ([]*models.Provider, error)
	Delete(ctx context.Context, id string) error
}

// SessionRepository holds at most one session per account.
type SessionRepository interface {
	Save(ctx context.Context, session *models.Session) error
	FindByAccountID(ctx context.Context, accountID string) (*models.Session, error)
	Delete(ctx context.Context, accountID string) error
}

type BalanceHistoryRepository interface {
	Save(ctx context.Context, record *models.BalanceHistoryRecord) error
	FindByAccountID(ctx context.Context, accountID string, limit int) ([]*models.BalanceHistoryRecord, error)
	FindByAccountIDOnDate(ctx context.Context, accountID, date string) (*models.BalanceHistoryRecord, error)
	FindLatestByAccountID(ctx context.Context, accountID string) (*models.BalanceHistoryRecord, error)
}

type CheckInJobRepository interface {
	Save(ctx context.Context, job *models.CheckInJob) error
	FindByID(ctx context.Context, id string) (*models.CheckInJob, error)
	FindByAccountID(ctx context.Context, accountID string, limit int) ([]*models.CheckInJob, error)
}

type NotificationChannelRepository interface {
	Save(ctx context.Context, channel *models.NotificationChannel) error
	FindByID(ctx context.Context, id string) (*models.NotificationChannel, error)
	FindAll(ctx context.Context) ([]*models.NotificationChannel, error)
	FindEnabled(ctx context.Context) ([]*models.NotificationChannel, error)
	Delete(ctx context.Context, id string) error
}
