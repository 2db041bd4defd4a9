package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// BypassWafCookies marks providers whose anti-bot layer requires the
// headless-browser cookie pass before API calls succeed.
const BypassWafCookies = "waf_cookies"

// DefaultAPIUserHeader is sent when a provider does not configure its own
// api_user header name.
const DefaultAPIUserHeader = "New-API-User"

// Provider is a configured upstream service: a domain plus the API path
// templates accounts authenticate against. Builtin providers are seeded from
// bundled configuration and keep fixed ids across reseeds.
type Provider struct {
	ID              string    `bson:"_id" json:"id"`
	Name            string    `bson:"name" json:"name"`
	Domain          string    `bson:"domain" json:"domain"`
	LoginPath       string    `bson:"login_path" json:"login_path"`
	SignInPath      string    `bson:"sign_in_path,omitempty" json:"sign_in_path,omitempty"`
	UserInfoPath    string    `bson:"user_info_path" json:"user_info_path"`
	TokenAPIPath    string    `bson:"token_api_path,omitempty" json:"token_api_path,omitempty"`
	ModelsPath      string    `bson:"models_path,omitempty" json:"models_path,omitempty"`
	APIUserKey      string    `bson:"api_user_key" json:"api_user_key"`
	BypassMethod    string    `bson:"bypass_method,omitempty" json:"bypass_method,omitempty"`
	SupportsCheckIn bool      `bson:"supports_check_in" json:"supports_check_in"`
	CheckInBugged   bool      `bson:"check_in_bugged" json:"check_in_bugged"`
	IsBuiltin       bool      `bson:"is_builtin" json:"is_builtin"`
	CreatedAt       time.Time `bson:"created_at" json:"created_at"`
}

func normalizeDomain(domain string) string {
	return strings.TrimRight(strings.TrimSpace(domain), "/")
}

// NewProvider builds a user-defined provider.
func NewProvider(name, domain, loginPath, signInPath, userInfoPath, tokenAPIPath, modelsPath, apiUserKey, bypassMethod string, supportsCheckIn, checkInBugged bool) *Provider {
	return &Provider{
		ID:              uuid.NewString(),
		Name:            name,
		Domain:          normalizeDomain(domain),
		LoginPath:       loginPath,
		SignInPath:      signInPath,
		UserInfoPath:    userInfoPath,
		TokenAPIPath:    tokenAPIPath,
		ModelsPath:      modelsPath,
		APIUserKey:      apiUserKey,
		BypassMethod:    bypassMethod,
		SupportsCheckIn: supportsCheckIn,
		CheckInBugged:   checkInBugged,
		CreatedAt:       time.Now().UTC(),
	}
}

// NewBuiltinProvider builds a seeded provider with a fixed id.
func NewBuiltinProvider(id, name, domain, loginPath, signInPath, userInfoPath, tokenAPIPath, modelsPath, apiUserKey, bypassMethod string, supportsCheckIn, checkInBugged bool) *Provider {
	p := NewProvider(name, domain, loginPath, signInPath, userInfoPath, tokenAPIPath, modelsPath, apiUserKey, bypassMethod, supportsCheckIn, checkInBugged)
	p.ID = id
	p.IsBuiltin = true
	return p
}

func (p *Provider) LoginURL() string {
	return p.Domain + p.LoginPath
}

func (p *Provider) SignInURL() string {
	if p.SignInPath == "" {
		return ""
	}
	return p.Domain + p.SignInPath
}

func (p *Provider) UserInfoURL() string {
	return p.Domain + p.UserInfoPath
}

func (p *Provider) TokenAPIURL() string {
	if p.TokenAPIPath == "" {
		return ""
	}
	return p.Domain + p.TokenAPIPath
}

func (p *Provider) ModelsURL() string {
	if p.ModelsPath == "" {
		return ""
	}
	return p.Domain + p.ModelsPath
}

func (p *Provider) NeedsWafBypass() bool {
	return p.BypassMethod == BypassWafCookies
}

// APIUserHeader returns the header name the account's api_user value is sent
// under, falling back to the default when unconfigured.
func (p *Provider) APIUserHeader() string {
	if p.APIUserKey == "" {
		return DefaultAPIUserHeader
	}
	return p.APIUserKey
}
