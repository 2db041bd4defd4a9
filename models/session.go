package models

import "time"

// Session is the login cache for one account. There is at most one session
// per account; saving is an upsert keyed by account id.
type Session struct {
	AccountID   string    `bson:"_id" json:"account_id"`
	Token       string    `bson:"token" json:"token"`
	ExpiresAt   time.Time `bson:"expires_at" json:"expires_at"`
	LastLoginAt time.Time `bson:"last_login_at" json:"last_login_at"`
}

func NewSession(accountID, token string, expiresAt time.Time) *Session {
	return &Session{
		AccountID:   accountID,
		Token:       token,
		ExpiresAt:   expiresAt,
		LastLoginAt: time.Now().UTC(),
	}
}

func (s *Session) IsValid() bool {
	return time.Now().Before(s.ExpiresAt)
}
