package models

import "time"

// TokenStatus mirrors the upstream token status codes.
type TokenStatus int

const (
	TokenEnabled   TokenStatus = 1
	TokenDisabled  TokenStatus = 2
	TokenExpired   TokenStatus = 3
	TokenExhausted TokenStatus = 4
)

// ModelLimits is the normalized allow-list of models a token may call.
// Denied is always empty since the upstream API provides no deny list, but
// the field is kept so the shape survives if one ever appears.
type ModelLimits struct {
	Allowed []string `json:"allowed"`
	Denied  []string `json:"denied"`
}

// APIToken is a provider-issued API key belonging to an account, as listed
// by the token API. Cached with a short TTL; never persisted long-term.
type APIToken struct {
	ID             int64        `json:"id"`
	AccountID      string       `json:"account_id"`
	Name           string       `json:"name"`
	Key            string       `json:"key"`
	Status         TokenStatus  `json:"status"`
	UsedQuota      int64        `json:"used_quota"`
	RemainQuota    int64        `json:"remain_quota"`
	UnlimitedQuota bool         `json:"unlimited_quota"`
	ExpiresAt      *time.Time   `json:"expires_at,omitempty"`
	ModelLimits    *ModelLimits `json:"model_limits,omitempty"`
}

// TokenPage is a normalized page of tokens regardless of which provider
// response shape produced it.
type TokenPage struct {
	Items []APIToken `json:"items"`
	Page  int        `json:"page"`
	Total int        `json:"total"`
}
