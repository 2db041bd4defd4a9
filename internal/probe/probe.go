package probe

import (
	"bytes"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	colly "github.com/gocolly/colly/v2"
	"golang.org/x/net/html/charset"

	"checkin-keeper/models"
	"checkin-keeper/utils"
)

var httpTransport = &http.Transport{
	DisableCompression: false,
}

// Result describes what a browser-less visit to a provider's login page
// found. WafProtected means the page served the anti-bot challenge instead
// of the app, which is what accounts on that provider should expect.
type Result struct {
	URL          string        `json:"url"`
	Reachable    bool          `json:"reachable"`
	StatusCode   int           `json:"status_code"`
	WafProtected bool          `json:"waf_protected"`
	Title        string        `json:"title"`
	Elapsed      time.Duration `json:"elapsed_ms"`
}

// Prober checks provider login pages without a headless browser. Useful for
// validating a provider config before accounts are attached to it.
type Prober struct {
	timeout time.Duration
}

func NewProber(timeout time.Duration) *Prober {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Prober{timeout: timeout}
}

// ProbeLoginPage fetches the provider's login page and classifies it.
func (p *Prober) ProbeLoginPage(provider *models.Provider) (*Result, error) {
	loginURL := provider.LoginURL()
	if loginURL == "" || provider.Domain == "" {
		return nil, utils.NewDomainError(utils.KindValidation, "provider has no login URL")
	}

	result := &Result{URL: loginURL}
	start := time.Now()

	c := colly.NewCollector()
	c.WithTransport(httpTransport)
	c.SetRequestTimeout(p.timeout)
	c.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
	})

	c.OnResponse(func(r *colly.Response) {
		result.Reachable = true
		result.StatusCode = r.StatusCode
		classifyBody(result, r.Body, r.Headers.Get("Content-Type"))
	})

	c.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode > 0 {
			// A 4xx/5xx still proves the host answers; classify what it sent.
			result.Reachable = true
			result.StatusCode = r.StatusCode
			classifyBody(result, r.Body, "")
		}
	})

	if err := c.Visit(loginURL); err != nil && !result.Reachable {
		return nil, utils.WrapDomainError(utils.KindInfrastructure, "login page unreachable", err)
	}
	c.Wait()

	result.Elapsed = time.Since(start)
	return result, nil
}

func classifyBody(result *Result, body []byte, contentType string) {
	if bytes.Contains(body, []byte("<html")) && bytes.Contains(body, []byte("acw_sc__v2")) {
		result.WafProtected = true
	}

	// Decode whatever charset the provider declares before parsing.
	reader, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return
	}
	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return
	}
	result.Title = strings.TrimSpace(doc.Find("title").First().Text())
}
