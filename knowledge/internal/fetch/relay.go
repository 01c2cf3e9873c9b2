package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/hazyhaar/kbase/horosafe"
)

// Relay asks a server-side relay to fetch the target on our behalf:
// GET <endpoint>?url=<escaped target>. The relay answers with the raw body.
// Source credentials are never sent to the relay.
type Relay struct {
	endpoint *url.URL
	client   *http.Client
	config   Config
}

// NewRelay creates the relay tier. The endpoint is operator configuration, so
// it is only checked for an http(s) scheme; targets still pass URLValidator.
func NewRelay(endpoint string, cfg Config) (*Relay, error) {
	if err := horosafe.ValidateScheme(endpoint); err != nil {
		return nil, fmt.Errorf("fetch: relay endpoint: %w", err)
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("fetch: relay endpoint: %w", err)
	}
	cfg.defaults()
	return &Relay{endpoint: u, client: newClient(cfg), config: cfg}, nil
}

// Name implements Strategy.
func (r *Relay) Name() string { return "relay" }

// URLFor returns the relay URL that fetches target.
func (r *Relay) URLFor(target string) string {
	u := *r.endpoint
	q := u.Query()
	q.Set("url", target)
	u.RawQuery = q.Encode()
	return u.String()
}

// Fetch implements Strategy.
func (r *Relay) Fetch(ctx context.Context, req *Request) (*Result, error) {
	if err := r.config.URLValidator(req.URL); err != nil {
		return nil, fmt.Errorf("URL blocked (SSRF): %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URLFor(req.URL), nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("User-Agent", r.config.UserAgent)
	return do(ctx, r.client, httpReq, req.URL, false, r.config.MaxBytes)
}
