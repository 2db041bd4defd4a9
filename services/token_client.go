package services

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/brotli"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"checkin-keeper/internal/logger"
	"checkin-keeper/models"
	"checkin-keeper/utils"
)

const (
	wafScriptMarker  = "acw_sc__v2"
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// TokenClient talks to provider APIs with an account's cookies. Outbound
// calls share a rate limiter; each provider domain gets its own circuit
// breaker so one failing upstream does not block the rest.
type TokenClient struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	breakers   *breakerSet
}

func NewTokenClient(timeout time.Duration, requestsPerSec float64) *TokenClient {
	return &TokenClient{
		httpClient: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// WAF challenges sometimes redirect to the challenge page;
				// we need the original response to classify it.
				return http.ErrUseLastResponse
			},
		},
		limiter:  rate.NewLimiter(rate.Limit(requestsPerSec), 1),
		breakers: newBreakerSet(),
	}
}

type breakerSet struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

func newBreakerSet() *breakerSet {
	return &breakerSet{breakers: make(map[string]*gobreaker.CircuitBreaker)}
}

func (s *breakerSet) get(domain string) *gobreaker.CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cb, ok := s.breakers[domain]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        domain,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "domain", name, "from", from.String(), "to", to.String())
		},
	})
	s.breakers[domain] = cb
	return cb
}

// userInfoResponse is the provider's account summary envelope.
type userInfoResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    struct {
		Quota     float64 `json:"quota"`
		UsedQuota float64 `json:"used_quota"`
	} `json:"data"`
}

type signInResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// FetchUserInfo loads the account's quota summary.
func (c *TokenClient) FetchUserInfo(ctx context.Context, provider *models.Provider, creds models.Credentials) (models.Balance, error) {
	body, err := c.doRequest(ctx, http.MethodGet, provider.UserInfoURL(), provider, creds)
	if err != nil {
		return models.Balance{}, err
	}

	var resp userInfoResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return models.Balance{}, utils.WrapDomainError(utils.KindDeserialization, "failed to parse user info response", err)
	}
	if !resp.Success {
		if isSessionExpiredMessage(resp.Message) {
			return models.Balance{}, utils.NewDomainError(utils.KindSessionExpired, resp.Message)
		}
		return models.Balance{}, utils.NewDomainError(utils.KindInfrastructure, "user info request rejected: "+resp.Message)
	}

	return models.NewBalance(resp.Data.Quota, resp.Data.UsedQuota), nil
}

// CheckIn performs the daily sign-in call. Providers without a sign-in path
// do not support check-in.
func (c *TokenClient) CheckIn(ctx context.Context, provider *models.Provider, creds models.Credentials) (string, error) {
	url := provider.SignInURL()
	if url == "" {
		return "", utils.NewDomainError(utils.KindValidation, "provider does not support check-in: "+provider.Name)
	}

	body, err := c.doRequest(ctx, http.MethodPost, url, provider, creds)
	if err != nil {
		return "", err
	}

	var resp signInResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", utils.WrapDomainError(utils.KindDeserialization, "failed to parse sign-in response", err)
	}
	if !resp.Success {
		if isSessionExpiredMessage(resp.Message) {
			return "", utils.NewDomainError(utils.KindSessionExpired, resp.Message)
		}
		// "already checked in" style rejections still count as success for
		// the day; the provider just refuses the duplicate.
		if isAlreadyCheckedInMessage(resp.Message) {
			return resp.Message, nil
		}
		return "", utils.NewDomainError(utils.KindInfrastructure, "sign-in rejected: "+resp.Message)
	}
	return resp.Message, nil
}

// rawToken is a token row as the provider sends it; model_limits arrives
// either as a comma-separated string or as a {model: {allow: bool}} object.
type rawToken struct {
	ID             int64           `json:"id"`
	Name           string          `json:"name"`
	Key            string          `json:"key"`
	Status         int             `json:"status"`
	UsedQuota      int64           `json:"used_quota"`
	RemainQuota    int64           `json:"remain_quota"`
	UnlimitedQuota bool            `json:"unlimited_quota"`
	ExpiredTime    int64           `json:"expired_time"`
	ModelLimits    json.RawMessage `json:"model_limits"`
}

// FetchTokens lists the account's API tokens. Providers disagree on the
// envelope: newer ones return a paginated object, older ones a bare array.
func (c *TokenClient) FetchTokens(ctx context.Context, provider *models.Provider, creds models.Credentials, accountID string, page int) (*models.TokenPage, error) {
	url := provider.TokenAPIURL()
	if url == "" {
		return nil, utils.NewDomainError(utils.KindValidation, "provider has no token API: "+provider.Name)
	}
	url = fmt.Sprintf("%s?p=%d&size=10", url, page)

	body, err := c.doRequest(ctx, http.MethodGet, url, provider, creds)
	if err != nil {
		return nil, err
	}

	return parseTokenPage(body, accountID, page)
}

func parseTokenPage(body []byte, accountID string, page int) (*models.TokenPage, error) {
	// Paginated shape: {"data": {"items": [...], "page": n, "total": n}}
	var paginated struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		Data    struct {
			Items []rawToken `json:"items"`
			Page  int        `json:"page"`
			Total int        `json:"total"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &paginated); err == nil && paginated.Data.Items != nil {
		return &models.TokenPage{
			Items: normalizeTokens(paginated.Data.Items, accountID),
			Page:  paginated.Data.Page,
			Total: paginated.Data.Total,
		}, nil
	}

	// Flat shape: {"data": [...]}
	var flat struct {
		Success bool       `json:"success"`
		Message string     `json:"message"`
		Data    []rawToken `json:"data"`
	}
	if err := json.Unmarshal(body, &flat); err == nil && flat.Data != nil {
		return &models.TokenPage{
			Items: normalizeTokens(flat.Data, accountID),
			Page:  page,
			Total: len(flat.Data),
		}, nil
	}

	return nil, utils.NewDomainError(utils.KindDeserialization, "unrecognized token list response shape")
}

func normalizeTokens(raw []rawToken, accountID string) []models.APIToken {
	tokens := make([]models.APIToken, 0, len(raw))
	for _, rt := range raw {
		token := models.APIToken{
			ID:             rt.ID,
			AccountID:      accountID,
			Name:           rt.Name,
			Key:            rt.Key,
			Status:         models.TokenStatus(rt.Status),
			UsedQuota:      rt.UsedQuota,
			RemainQuota:    rt.RemainQuota,
			UnlimitedQuota: rt.UnlimitedQuota,
			ModelLimits:    parseModelLimits(rt.ModelLimits),
		}
		if rt.ExpiredTime > 0 {
			t := time.Unix(rt.ExpiredTime, 0)
			token.ExpiresAt = &t
		}
		tokens = append(tokens, token)
	}
	return tokens
}

// parseModelLimits normalizes the two upstream encodings into an allow-list.
func parseModelLimits(raw json.RawMessage) *models.ModelLimits {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	// Comma-separated string: "gpt-4o,claude-3"
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		if asString == "" {
			return nil
		}
		limits := &models.ModelLimits{Denied: []string{}}
		for _, model := range strings.Split(asString, ",") {
			if model = strings.TrimSpace(model); model != "" {
				limits.Allowed = append(limits.Allowed, model)
			}
		}
		return limits
	}

	// Object form: {"gpt-4o": {"allow": true}}
	var asObject map[string]struct {
		Allow bool `json:"allow"`
	}
	if err := json.Unmarshal(raw, &asObject); err == nil {
		limits := &models.ModelLimits{Denied: []string{}}
		for model, entry := range asObject {
			if entry.Allow {
				limits.Allowed = append(limits.Allowed, model)
			}
		}
		return limits
	}

	return nil
}

// FetchModels lists the model names available to the account.
func (c *TokenClient) FetchModels(ctx context.Context, provider *models.Provider, creds models.Credentials) ([]string, error) {
	url := provider.ModelsURL()
	if url == "" {
		return nil, utils.NewDomainError(utils.KindValidation, "provider has no models API: "+provider.Name)
	}

	body, err := c.doRequest(ctx, http.MethodGet, url, provider, creds)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Success bool     `json:"success"`
		Data    []string `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, utils.WrapDomainError(utils.KindDeserialization, "failed to parse models response", err)
	}
	return resp.Data, nil
}

// doRequest performs one provider call: rate-limited, breaker-guarded, with
// the account's cookies and api_user header attached, and classifies WAF
// challenge pages before JSON parsing is attempted.
func (c *TokenClient) doRequest(ctx context.Context, method, url string, provider *models.Provider, creds models.Credentials) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, utils.WrapDomainError(utils.KindInfrastructure, "rate limiter interrupted", err)
	}

	breaker := c.breakers.get(provider.Domain)
	result, err := breaker.Execute(func() (interface{}, error) {
		return c.execute(ctx, method, url, provider, creds)
	})
	if err != nil {
		var de *utils.DomainError
		if errors.As(err, &de) {
			return nil, err
		}
		return nil, utils.WrapDomainError(utils.KindInfrastructure, "provider request failed", err)
	}
	return result.([]byte), nil
}

func (c *TokenClient) execute(ctx context.Context, method, url string, provider *models.Provider, creds models.Credentials) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, utils.WrapDomainError(utils.KindValidation, "failed to build request", err)
	}

	req.Header.Set("User-Agent", defaultUserAgent)
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Accept-Encoding", "gzip, br")
	req.Header.Set("Cookie", creds.CookieString())
	if creds.APIUser != "" {
		req.Header.Set(provider.APIUserHeader(), creds.APIUser)
	}
	req.Header.Set("Referer", provider.Domain+"/")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, utils.WrapDomainError(utils.KindInfrastructure, "request failed", err)
	}
	defer resp.Body.Close()

	body, err := decodeBody(resp)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, utils.NewDomainError(utils.KindSessionExpired,
			fmt.Sprintf("provider rejected credentials (HTTP %d)", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return nil, utils.NewDomainError(utils.KindInfrastructure,
			fmt.Sprintf("provider returned HTTP %d", resp.StatusCode))
	}

	// The challenge page is served with a success status; the marker scan
	// only runs on bodies that passed the status checks.
	if isWafChallenge(body) {
		logger.Debug("WAF challenge page detected", "url", url, "status", resp.StatusCode)
		return nil, utils.NewDomainError(utils.KindWafChallenge, "provider returned an anti-bot challenge page")
	}

	return body, nil
}

// decodeBody handles the content encodings providers actually send.
func decodeBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body

	switch resp.Header.Get("Content-Encoding") {
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, utils.WrapDomainError(utils.KindDeserialization, "bad gzip body", err)
		}
		defer gz.Close()
		reader = gz
	}

	body, err := io.ReadAll(io.LimitReader(reader, 10<<20))
	if err != nil {
		return nil, utils.WrapDomainError(utils.KindInfrastructure, "failed to read response body", err)
	}
	return body, nil
}

// isWafChallenge classifies a response body as the provider's anti-bot
// challenge page: an HTML document carrying the challenge script.
func isWafChallenge(body []byte) bool {
	if !bytes.Contains(body, []byte("<html")) {
		return false
	}
	if !bytes.Contains(body, []byte(wafScriptMarker)) {
		return false
	}

	// Confirm it parses as a real document rather than JSON that happens to
	// embed the marker in a string value.
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return true
	}
	return doc.Find("script").Length() > 0 || doc.Find("html").Length() > 0
}

func isSessionExpiredMessage(message string) bool {
	lower := strings.ToLower(message)
	return strings.Contains(lower, "unauthorized") ||
		strings.Contains(lower, "not logged in") ||
		strings.Contains(lower, "无权") ||
		strings.Contains(lower, "登录")
}

func isAlreadyCheckedInMessage(message string) bool {
	lower := strings.ToLower(message)
	return strings.Contains(lower, "already") ||
		strings.Contains(lower, "已签到") ||
		strings.Contains(lower, "已经签到")
}
