package services

import (
	"context"

	"checkin-keeper/internal/repository"
	"checkin-keeper/models"
	"checkin-keeper/utils"
)

// AccountService owns account writes: cookies are encrypted before they
// reach the repository, and every mutation is published on the event bus so
// the scheduler stays current without polling.
type AccountService struct {
	accounts   repository.AccountRepository
	providers  repository.ProviderRepository
	encryption *EncryptionService
	bus        *EventBus
}

func NewAccountService(
	accounts repository.AccountRepository,
	providers repository.ProviderRepository,
	encryption *EncryptionService,
	bus *EventBus,
) *AccountService {
	return &AccountService{
		accounts:   accounts,
		providers:  providers,
		encryption: encryption,
		bus:        bus,
	}
}

func (s *AccountService) Create(ctx context.Context, name, providerID string, cookies map[string]string, apiUser string) (*models.Account, error) {
	if _, err := s.providers.FindByID(ctx, providerID); err != nil {
		return nil, err
	}

	account, err := models.NewAccount(name, providerID, models.NewCredentials(cookies, apiUser))
	if err != nil {
		return nil, err
	}

	sealed, err := s.encryption.EncryptCredentials(account.Credentials)
	if err != nil {
		return nil, err
	}
	account.Credentials = sealed

	if err := s.accounts.Save(ctx, account); err != nil {
		return nil, err
	}
	s.bus.Publish(models.NewAccountCreated(account))
	return account, nil
}

func (s *AccountService) Get(ctx context.Context, id string) (*models.Account, error) {
	return s.accounts.FindByID(ctx, id)
}

func (s *AccountService) List(ctx context.Context) ([]*models.Account, error) {
	return s.accounts.FindAll(ctx)
}

// UpdateRequest carries the optional account mutations; nil fields are left
// untouched.
type UpdateRequest struct {
	Name    *string
	Cookies map[string]string
	APIUser *string
}

func (s *AccountService) Update(ctx context.Context, id string, req UpdateRequest) (*models.Account, error) {
	account, err := s.accounts.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		if err := account.UpdateName(*req.Name); err != nil {
			return nil, err
		}
	}
	if req.Cookies != nil {
		creds := models.NewCredentials(req.Cookies, "")
		if req.APIUser != nil {
			creds.APIUser = *req.APIUser
		}
		if !creds.IsValid() {
			return nil, utils.NewDomainError(utils.KindInvalidCredentials, "cookies are required")
		}
		sealed, err := s.encryption.EncryptCredentials(creds)
		if err != nil {
			return nil, err
		}
		if req.APIUser == nil {
			// Keep the stored api_user, which is already sealed.
			sealed.APIUser = account.Credentials.APIUser
		}
		account.Credentials = sealed
		// Fresh credentials invalidate any cached login session.
		account.ClearSession()
	} else if req.APIUser != nil {
		sealed := ""
		if *req.APIUser != "" {
			var err error
			if sealed, err = s.encryption.Encrypt(*req.APIUser); err != nil {
				return nil, err
			}
		}
		account.Credentials.APIUser = sealed
	}

	if err := s.accounts.Save(ctx, account); err != nil {
		return nil, err
	}
	s.bus.Publish(models.NewAccountUpdated(account))
	return account, nil
}

func (s *AccountService) Toggle(ctx context.Context, id string, enabled bool) (*models.Account, error) {
	account, err := s.accounts.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	account.Toggle(enabled)
	if err := s.accounts.Save(ctx, account); err != nil {
		return nil, err
	}
	s.bus.Publish(models.NewAccountToggled(account, enabled))
	return account, nil
}

func (s *AccountService) UpdateAutoCheckIn(ctx context.Context, id string, enabled bool, hour, minute int) (*models.Account, error) {
	account, err := s.accounts.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := account.UpdateAutoCheckIn(enabled, hour, minute); err != nil {
		return nil, err
	}
	if err := s.accounts.Save(ctx, account); err != nil {
		return nil, err
	}
	s.bus.Publish(models.NewAccountUpdated(account))
	return account, nil
}

func (s *AccountService) Delete(ctx context.Context, id string) error {
	if err := s.accounts.Delete(ctx, id); err != nil {
		return err
	}
	s.bus.Publish(models.NewAccountDeleted(id))
	return nil
}

// DecryptedCredentials returns the account's live credential values. Only
// the check-in pipeline and token fetches should need this.
func (s *AccountService) DecryptedCredentials(ctx context.Context, id string) (models.Credentials, error) {
	account, err := s.accounts.FindByID(ctx, id)
	if err != nil {
		return models.Credentials{}, err
	}
	return s.encryption.DecryptCredentials(account.Credentials)
}
