package models

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"checkin-keeper/utils"
)

// Credentials holds the provider session cookies plus the api_user value the
// provider expects back as a header. Cookies are required; api_user may be
// empty for providers that do not use it.
type Credentials struct {
	Cookies map[string]string `bson:"cookies" json:"cookies"`
	APIUser string            `bson:"api_user" json:"api_user"`
}

func NewCredentials(cookies map[string]string, apiUser string) Credentials {
	return Credentials{Cookies: cookies, APIUser: apiUser}
}

// IsValid reports whether the credentials can authenticate at all.
func (c Credentials) IsValid() bool {
	return len(c.Cookies) > 0
}

// CookieString renders the cookie map as a Cookie header value. Keys are
// sorted so the output is stable across calls.
func (c Credentials) CookieString() string {
	names := make([]string, 0, len(c.Cookies))
	for name := range c.Cookies {
		names = append(names, name)
	}
	sort.Strings(names)

	pairs := make([]string, 0, len(names))
	for _, name := range names {
		pairs = append(pairs, name+"="+c.Cookies[name])
	}
	return strings.Join(pairs, "; ")
}

// Fingerprint identifies a credential set without exposing it. Session rows
// carry it so a stored session can be matched against the cookies that
// produced it.
func (c Credentials) Fingerprint() string {
	sum := sha256.Sum256([]byte(c.CookieString()))
	return hex.EncodeToString(sum[:])
}

// MergeCookies overlays fresh cookies onto the existing set. Same-named
// cookies are replaced, everything else is preserved.
func (c *Credentials) MergeCookies(fresh map[string]string) {
	if c.Cookies == nil {
		c.Cookies = make(map[string]string, len(fresh))
	}
	for name, value := range fresh {
		c.Cookies[name] = value
	}
}

// AutoCheckIn is the per-account schedule for automatic check-in.
type AutoCheckIn struct {
	Enabled bool `bson:"enabled" json:"enabled"`
	Hour    int  `bson:"hour" json:"hour"`
	Minute  int  `bson:"minute" json:"minute"`
}

// Account is an AI-proxy account whose free quota is kept alive by periodic
// check-in. The balance snapshot fields cache the last successful fetch;
// SessionToken is a separate, shorter-lived login cache.
type Account struct {
	ID                 string      `bson:"_id" json:"id"`
	Name               string      `bson:"name" json:"name"`
	ProviderID         string      `bson:"provider_id" json:"provider_id"`
	Credentials        Credentials `bson:"credentials" json:"credentials"`
	Enabled            bool        `bson:"enabled" json:"enabled"`
	AutoCheckIn        AutoCheckIn `bson:"auto_checkin" json:"auto_checkin"`
	LastCheckIn        *time.Time  `bson:"last_check_in,omitempty" json:"last_check_in,omitempty"`
	CurrentBalance     *float64    `bson:"current_balance,omitempty" json:"current_balance,omitempty"`
	TotalConsumed      *float64    `bson:"total_consumed,omitempty" json:"total_consumed,omitempty"`
	TotalIncome        *float64    `bson:"total_income,omitempty" json:"total_income,omitempty"`
	LastBalanceCheckAt *time.Time  `bson:"last_balance_check_at,omitempty" json:"last_balance_check_at,omitempty"`
	SessionToken       string      `bson:"session_token,omitempty" json:"session_token,omitempty"`
	SessionExpiresAt   *time.Time  `bson:"session_expires_at,omitempty" json:"session_expires_at,omitempty"`
	LastLoginAt        *time.Time  `bson:"last_login_at,omitempty" json:"last_login_at,omitempty"`
	CreatedAt          time.Time   `bson:"created_at" json:"created_at"`
}

// NewAccount validates the domain invariants and builds an enabled account
// with auto check-in off.
func NewAccount(name, providerID string, credentials Credentials) (*Account, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, utils.NewDomainError(utils.KindValidation, "account name cannot be empty")
	}
	if !credentials.IsValid() {
		return nil, utils.NewDomainError(utils.KindInvalidCredentials, "cookies are required")
	}

	return &Account{
		ID:          uuid.NewString(),
		Name:        name,
		ProviderID:  providerID,
		Credentials: credentials,
		Enabled:     true,
		AutoCheckIn: AutoCheckIn{Enabled: false, Hour: 9, Minute: 0},
		CreatedAt:   time.Now().UTC(),
	}, nil
}

func (a *Account) UpdateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return utils.NewDomainError(utils.KindValidation, "account name cannot be empty")
	}
	a.Name = name
	return nil
}

func (a *Account) UpdateCredentials(credentials Credentials) error {
	if !credentials.IsValid() {
		return utils.NewDomainError(utils.KindInvalidCredentials, "cookies are required")
	}
	a.Credentials = credentials
	return nil
}

func (a *Account) Toggle(enabled bool) {
	a.Enabled = enabled
}

func (a *Account) UpdateAutoCheckIn(enabled bool, hour, minute int) error {
	if hour < 0 || hour > 23 {
		return utils.NewDomainError(utils.KindValidation, "hour must be between 0 and 23")
	}
	if minute < 0 || minute > 59 {
		return utils.NewDomainError(utils.KindValidation, "minute must be between 0 and 59")
	}
	a.AutoCheckIn = AutoCheckIn{Enabled: enabled, Hour: hour, Minute: minute}
	return nil
}

func (a *Account) RecordCheckIn() {
	now := time.Now().UTC()
	a.LastCheckIn = &now
}

// UpdateBalance refreshes the cached snapshot from a fetched Balance and
// stamps the check time.
func (a *Account) UpdateBalance(b Balance) {
	now := time.Now().UTC()
	a.CurrentBalance = &b.Quota
	a.TotalConsumed = &b.Used
	a.TotalIncome = &b.Remaining
	a.LastBalanceCheckAt = &now
}

// IsBalanceStale reports whether the cached snapshot is older than
// maxAgeHours, or has never been fetched.
func (a *Account) IsBalanceStale(maxAgeHours int) bool {
	if a.LastBalanceCheckAt == nil {
		return true
	}
	return time.Since(*a.LastBalanceCheckAt) > time.Duration(maxAgeHours)*time.Hour
}

// CachedBalance returns the snapshot if one has been fetched.
func (a *Account) CachedBalance() (Balance, bool) {
	if a.CurrentBalance == nil || a.TotalConsumed == nil {
		return Balance{}, false
	}
	return NewBalance(*a.CurrentBalance, *a.TotalConsumed), true
}

func (a *Account) UpdateSession(token string, expiresAt time.Time) {
	now := time.Now().UTC()
	a.SessionToken = token
	a.SessionExpiresAt = &expiresAt
	a.LastLoginAt = &now
}

func (a *Account) ClearSession() {
	a.SessionToken = ""
	a.SessionExpiresAt = nil
}

func (a *Account) IsSessionValid() bool {
	if a.SessionExpiresAt == nil {
		return false
	}
	return time.Now().Before(*a.SessionExpiresAt)
}
