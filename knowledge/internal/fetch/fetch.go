// CLAUDE:SUMMARY Strategy interface, tier chain with fall-through on ErrBlocked, and fetch result types.
// Package fetch retrieves raw source bodies through an ordered chain of
// strategies. The chain moves to the next tier only when a tier reports
// ErrBlocked; every other failure ends the fetch.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
)

// ErrBlocked marks a tier failure that a later tier may get around: the
// network refused us, or the remote answered with an access-policy status.
var ErrBlocked = errors.New("fetch: blocked")

// ErrNoStrategy is returned by a chain with no tiers.
var ErrNoStrategy = errors.New("fetch: no strategy configured")

// StatusError is a non-2xx answer from the remote.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Code, http.StatusText(e.Code))
}

// Request is one fetch target.
type Request struct {
	URL  string
	Auth *Auth
}

// Result is a retrieved body.
type Result struct {
	Body        []byte
	ContentType string
	StatusCode  int
	Tier        string
}

// Strategy is one retrieval tier.
type Strategy interface {
	Name() string
	Fetch(ctx context.Context, req *Request) (*Result, error)
}

// Chain tries strategies in order.
type Chain struct {
	tiers  []Strategy
	logger *slog.Logger
}

// NewChain builds a chain. A nil logger falls back to slog.Default().
func NewChain(logger *slog.Logger, tiers ...Strategy) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{tiers: tiers, logger: logger}
}

// Tiers returns the tier names in order.
func (c *Chain) Tiers() []string {
	names := make([]string, len(c.tiers))
	for i, s := range c.tiers {
		names[i] = s.Name()
	}
	return names
}

// Fetch returns the first successful tier result. When every tier is
// blocked the last tier's error is returned (still matching ErrBlocked).
func (c *Chain) Fetch(ctx context.Context, req *Request) (*Result, error) {
	if len(c.tiers) == 0 {
		return nil, ErrNoStrategy
	}
	var lastErr error
	for i, s := range c.tiers {
		res, err := s.Fetch(ctx, req)
		if err == nil {
			res.Tier = s.Name()
			return res, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("fetch: %s: %w", s.Name(), ctx.Err())
		}
		if !errors.Is(err, ErrBlocked) {
			return nil, err
		}
		lastErr = err
		if i < len(c.tiers)-1 {
			c.logger.WarnContext(ctx, "fetch: tier blocked, falling back",
				"tier", s.Name(), "next", c.tiers[i+1].Name(), "url", req.URL, "error", err)
		}
	}
	return nil, lastErr
}

// classify turns a response status into nil (2xx), ErrBlocked (access
// policy) or a terminal StatusError.
func classify(code int, url string, authSent bool) error {
	if code >= 200 && code < 300 {
		return nil
	}
	se := &StatusError{Code: code, URL: url}
	switch code {
	case http.StatusForbidden, http.StatusProxyAuthRequired, http.StatusUnavailableForLegalReasons:
		return fmt.Errorf("%w: %w", ErrBlocked, se)
	case http.StatusUnauthorized:
		if !authSent {
			return fmt.Errorf("%w: %w", ErrBlocked, se)
		}
	}
	return se
}
