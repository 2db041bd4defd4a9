package browser

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"checkin-keeper/internal/logger"
	"checkin-keeper/utils"
)

// wafCookieNames are the cookies the provider's anti-bot layer issues after
// its JavaScript challenge runs. Any of them counts as challenge progress;
// acw_sc__v2 is the one the API actually validates.
var wafCookieNames = map[string]bool{
	"acw_tc":     true,
	"acw_sc__v2": true,
	"acw_sc__v3": true,
	"cdn_sec_tc": true,
}

const requiredWafCookie = "acw_sc__v2"

// WafBypasser drives a headless browser through the provider's anti-bot
// challenge and harvests the cookies it sets. Browser launches are
// serialized: one challenge at a time keeps memory bounded and avoids
// chromedp allocator races.
type WafBypasser struct {
	mu           sync.Mutex
	headless     bool
	waitTimeout  time.Duration
	pollInterval time.Duration
}

func NewWafBypasser(headless bool, waitTimeout, pollInterval time.Duration) *WafBypasser {
	if waitTimeout <= 0 {
		waitTimeout = 15 * time.Second
	}
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &WafBypasser{
		headless:     headless,
		waitTimeout:  waitTimeout,
		pollInterval: pollInterval,
	}
}

// FetchWafCookies loads the login page with the account's existing cookies
// attached and polls the browser cookie jar until the challenge cookies
// appear or the timeout expires.
func (b *WafBypasser) FetchWafCookies(ctx context.Context, loginURL string, existingCookies map[string]string) (map[string]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	parsed, err := url.Parse(loginURL)
	if err != nil {
		return nil, utils.WrapDomainError(utils.KindValidation, "invalid login URL", err)
	}
	domain := parsed.Hostname()

	ctx, cancel := context.WithTimeout(ctx, b.waitTimeout+30*time.Second)
	defer cancel()

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx,
		chromedp.Flag("headless", b.headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.UserAgent("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"),
	)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	// Seed the jar with the account's cookies so the challenge page sees an
	// authenticated visitor.
	if err := chromedp.Run(browserCtx, setCookies(domain, existingCookies)); err != nil {
		return nil, utils.WrapDomainError(utils.KindInfrastructure, "failed to seed browser cookies", err)
	}

	start := time.Now()
	if err := chromedp.Run(browserCtx, chromedp.Navigate(loginURL)); err != nil {
		return nil, utils.WrapDomainError(utils.KindInfrastructure, "failed to open login page", err)
	}

	// Soft readiness check; the challenge script runs before body settles.
	stepCtx, cancelStep := context.WithTimeout(browserCtx, 10*time.Second)
	defer cancelStep()
	_ = chromedp.Run(stepCtx, chromedp.WaitReady("body", chromedp.ByQuery))

	harvested, err := b.awaitChallenge(ctx, func() (map[string]string, error) {
		return readWafCookies(browserCtx)
	})
	if err != nil {
		return nil, err
	}
	logger.Info("WAF cookie harvest finished",
		"domain", domain,
		"cookies", len(harvested),
		"complete", harvested[requiredWafCookie] != "",
		"elapsed", time.Since(start).Round(time.Millisecond).String(),
	)
	return harvested, nil
}

// awaitChallenge polls the cookie jar until the required challenge cookie
// appears or the wait timeout passes. At the deadline the partial harvest is
// returned without error; the caller's retry decides whether the yield is
// enough.
func (b *WafBypasser) awaitChallenge(ctx context.Context, read func() (map[string]string, error)) (map[string]string, error) {
	deadline := time.Now().Add(b.waitTimeout)
	for {
		harvested, err := read()
		if err != nil {
			return nil, err
		}
		if harvested[requiredWafCookie] != "" {
			return harvested, nil
		}

		if time.Now().After(deadline) {
			logger.Warn("challenge wait timed out, returning partial cookies",
				"cookies", len(harvested), "waited", b.waitTimeout.String())
			return harvested, nil
		}

		select {
		case <-ctx.Done():
			return nil, utils.WrapDomainError(utils.KindWafChallenge, "challenge wait interrupted", ctx.Err())
		case <-time.After(b.pollInterval):
		}
	}
}

func setCookies(domain string, cookies map[string]string) chromedp.ActionFunc {
	return func(ctx context.Context) error {
		for name, value := range cookies {
			err := network.SetCookie(name, value).
				WithDomain(domain).
				WithPath("/").
				Do(ctx)
			if err != nil {
				return err
			}
		}
		return nil
	}
}

// readWafCookies pulls the current jar and keeps only the challenge cookies.
func readWafCookies(ctx context.Context) (map[string]string, error) {
	var cookies []*network.Cookie
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, utils.WrapDomainError(utils.KindInfrastructure, "failed to read browser cookies", err)
	}

	harvested := make(map[string]string)
	for _, cookie := range cookies {
		if wafCookieNames[strings.ToLower(cookie.Name)] {
			harvested[cookie.Name] = cookie.Value
		}
	}
	return harvested, nil
}
