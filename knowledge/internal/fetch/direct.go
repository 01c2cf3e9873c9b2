// CLAUDE:SUMMARY Tier 1: plain HTTP GET with browser-like Accept, source credentials, SSRF-checked redirects.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hazyhaar/kbase/horosafe"
)

// AcceptHeader is sent by the direct tier.
const AcceptHeader = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"

// Config configures the HTTP tiers.
type Config struct {
	Timeout  time.Duration // HTTP client timeout. Default: 30s.
	MaxBytes int64         // Max response body size. Default: 10MB.
	// UserAgent sent with requests.
	UserAgent string
	// URLValidator validates target URLs and redirects (SSRF prevention).
	// Default: horosafe.ValidateURL.
	URLValidator func(string) error
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = horosafe.MaxResponseBody
	}
	if c.UserAgent == "" {
		c.UserAgent = "Mozilla/5.0 (compatible; kbase/1.0; +https://github.com/hazyhaar/kbase)"
	}
	if c.URLValidator == nil {
		c.URLValidator = horosafe.ValidateURL
	}
}

func newClient(cfg Config) *http.Client {
	validate := cfg.URLValidator
	return &http.Client{
		Timeout: cfg.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("too many redirects (%d)", len(via))
			}
			if err := validate(req.URL.String()); err != nil {
				return fmt.Errorf("redirect blocked (SSRF): %w", err)
			}
			return nil
		},
	}
}

// Direct fetches the source URL itself.
type Direct struct {
	client *http.Client
	config Config
}

// NewDirect creates the direct tier.
func NewDirect(cfg Config) *Direct {
	cfg.defaults()
	return &Direct{client: newClient(cfg), config: cfg}
}

// Name implements Strategy.
func (d *Direct) Name() string { return "direct" }

// Fetch implements Strategy.
func (d *Direct) Fetch(ctx context.Context, req *Request) (*Result, error) {
	if err := d.config.URLValidator(req.URL); err != nil {
		return nil, fmt.Errorf("URL blocked (SSRF): %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("User-Agent", d.config.UserAgent)
	httpReq.Header.Set("Accept", AcceptHeader)
	req.Auth.Apply(httpReq)

	return do(ctx, d.client, httpReq, req.URL, req.Auth != nil, d.config.MaxBytes)
}

func do(ctx context.Context, client *http.Client, httpReq *http.Request, target string, authSent bool, maxBytes int64) (*Result, error) {
	resp, err := client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, horosafe.ErrSSRF) || errors.Is(err, horosafe.ErrUnsafeScheme) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrBlocked, err)
	}
	defer resp.Body.Close()

	if err := classify(resp.StatusCode, target, authSent); err != nil {
		return nil, err
	}

	body, err := horosafe.LimitedReadAll(resp.Body, maxBytes)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return &Result{
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
		StatusCode:  resp.StatusCode,
	}, nil
}
