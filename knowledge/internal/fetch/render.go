// CLAUDE:SUMMARY Tier 3: headless Chrome render through go-rod with stealth, returning the live DOM.
package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"
)

// RenderConfig configures the headless tier.
type RenderConfig struct {
	// RemoteURL is a DevTools websocket URL. Empty = launch a local Chrome.
	RemoteURL string
	// NavTimeout bounds navigation plus load. Default: 20s.
	NavTimeout time.Duration
	// URLValidator checks targets before navigation. Default: horosafe.ValidateURL.
	URLValidator func(string) error
	Logger       *slog.Logger
}

// Render loads pages in a stealth-patched headless browser. The browser is
// started on first use and shared by later fetches.
type Render struct {
	cfg RenderConfig

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
}

// NewRender creates the render tier. No browser is started until Fetch.
func NewRender(cfg RenderConfig) *Render {
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 20 * time.Second
	}
	if cfg.URLValidator == nil {
		c := Config{}
		c.defaults()
		cfg.URLValidator = c.URLValidator
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Render{cfg: cfg}
}

// Name implements Strategy.
func (r *Render) Name() string { return "render" }

// Fetch implements Strategy.
func (r *Render) Fetch(ctx context.Context, req *Request) (*Result, error) {
	if err := r.cfg.URLValidator(req.URL); err != nil {
		return nil, fmt.Errorf("URL blocked (SSRF): %w", err)
	}
	b, err := r.ensureBrowser()
	if err != nil {
		return nil, err
	}

	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("render: create tab: %w", err)
	}
	defer page.Close()

	navCtx, cancel := context.WithTimeout(ctx, r.cfg.NavTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(req.URL); err != nil {
		return nil, fmt.Errorf("render: navigate %s: %w", req.URL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		r.cfg.Logger.Warn("render: wait load timeout", "url", req.URL, "error", err)
	}
	html, err := page.Context(navCtx).HTML()
	if err != nil {
		return nil, fmt.Errorf("render: get DOM: %w", err)
	}
	return &Result{
		Body:        []byte(html),
		ContentType: "text/html; charset=utf-8",
		StatusCode:  200,
	}, nil
}

// Close shuts the browser down if it was started.
func (r *Render) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var err error
	if r.browser != nil {
		err = r.browser.Close()
		r.browser = nil
	}
	if r.lnch != nil {
		r.lnch.Cleanup()
		r.lnch = nil
	}
	return err
}

func (r *Render) ensureBrowser() (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser != nil {
		return r.browser, nil
	}

	wsURL := r.cfg.RemoteURL
	if wsURL == "" {
		l := launcher.New().Headless(true).
			Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("render: launch: %w", err)
		}
		wsURL = u
		r.lnch = l
		r.cfg.Logger.Info("render: launched local chrome", "url", wsURL)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("render: connect: %w", err)
	}
	r.browser = b
	return b, nil
}
