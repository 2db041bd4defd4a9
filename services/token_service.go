package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"checkin-keeper/internal/logger"
	"checkin-keeper/internal/repository"
	"checkin-keeper/models"
)

// TokenLister is the slice of TokenClient the token service needs.
type TokenLister interface {
	FetchTokens(ctx context.Context, provider *models.Provider, creds models.Credentials, accountID string, page int) (*models.TokenPage, error)
	FetchModels(ctx context.Context, provider *models.Provider, creds models.Credentials) ([]string, error)
}

// TokenService lists an account's API tokens and available models, caching
// results in Redis so the UI can refresh without hammering the provider.
type TokenService struct {
	accounts  *AccountService
	providers repository.ProviderRepository
	client    TokenLister
	rdb       *redis.Client
	cacheTTL  time.Duration

	// invalidate is swappable so the event watcher can be tested without
	// a live Redis.
	invalidate func(ctx context.Context, accountID string)
}

func NewTokenService(accounts *AccountService, providers repository.ProviderRepository, client TokenLister, rdb *redis.Client, cacheTTL time.Duration) *TokenService {
	if cacheTTL <= 0 {
		cacheTTL = time.Hour
	}
	s := &TokenService{
		accounts:  accounts,
		providers: providers,
		client:    client,
		rdb:       rdb,
		cacheTTL:  cacheTTL,
	}
	s.invalidate = s.InvalidateAccount
	return s
}

// WatchAccounts drops an account's cached tokens and models whenever its
// credentials change or the account is deleted. The returned func stops the
// watcher.
func (s *TokenService) WatchAccounts(bus *EventBus) func() {
	events, cancel := bus.Subscribe()
	go func() {
		for event := range events {
			switch e := event.(type) {
			case *models.AccountUpdated:
				s.invalidate(context.Background(), e.Account.ID)
			case *models.AccountDeleted:
				s.invalidate(context.Background(), e.AccountID)
			}
		}
	}()
	return cancel
}

func tokenCacheKey(accountID string, page int) string {
	return fmt.Sprintf("tokens:%s:%d", accountID, page)
}

func modelCacheKey(accountID string) string {
	return fmt.Sprintf("models:%s", accountID)
}

// ListTokens returns one page of the account's tokens, from cache when
// fresh.
func (s *TokenService) ListTokens(ctx context.Context, accountID string, page int, forceRefresh bool) (*models.TokenPage, error) {
	if page < 1 {
		page = 1
	}
	key := tokenCacheKey(accountID, page)

	if !forceRefresh && s.rdb != nil {
		if cached, err := s.rdb.Get(ctx, key).Bytes(); err == nil {
			var tokenPage models.TokenPage
			if err := json.Unmarshal(cached, &tokenPage); err == nil {
				return &tokenPage, nil
			}
		}
	}

	account, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	provider, err := s.providers.FindByID(ctx, account.ProviderID)
	if err != nil {
		return nil, err
	}
	creds, err := s.accounts.DecryptedCredentials(ctx, accountID)
	if err != nil {
		return nil, err
	}

	tokenPage, err := s.client.FetchTokens(ctx, provider, creds, accountID, page)
	if err != nil {
		return nil, err
	}

	s.cache(ctx, key, tokenPage)
	return tokenPage, nil
}

// ListModels returns the models the account can call, from cache when fresh.
func (s *TokenService) ListModels(ctx context.Context, accountID string, forceRefresh bool) ([]string, error) {
	key := modelCacheKey(accountID)

	if !forceRefresh && s.rdb != nil {
		if cached, err := s.rdb.Get(ctx, key).Bytes(); err == nil {
			var names []string
			if err := json.Unmarshal(cached, &names); err == nil {
				return names, nil
			}
		}
	}

	account, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	provider, err := s.providers.FindByID(ctx, account.ProviderID)
	if err != nil {
		return nil, err
	}
	creds, err := s.accounts.DecryptedCredentials(ctx, accountID)
	if err != nil {
		return nil, err
	}

	names, err := s.client.FetchModels(ctx, provider, creds)
	if err != nil {
		return nil, err
	}

	s.cache(ctx, key, names)
	return names, nil
}

// InvalidateAccount drops the account's cached pages, for after credential
// changes.
func (s *TokenService) InvalidateAccount(ctx context.Context, accountID string) {
	if s.rdb == nil {
		return
	}
	iter := s.rdb.Scan(ctx, 0, fmt.Sprintf("tokens:%s:*", accountID), 0).Iterator()
	for iter.Next(ctx) {
		s.rdb.Del(ctx, iter.Val())
	}
	s.rdb.Del(ctx, modelCacheKey(accountID))
}

func (s *TokenService) cache(ctx context.Context, key string, value any) {
	if s.rdb == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, key, data, s.cacheTTL).Err(); err != nil {
		logger.Debug("failed to cache token data", "key", key, "error", err.Error())
	}
}
