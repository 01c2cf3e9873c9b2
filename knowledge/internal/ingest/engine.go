// CLAUDE:SUMMARY Single-source fetch: tier chain, normalize, truncate, hash, one registry update and one history append.
// Package ingest runs a fetch for one registered source and records the
// outcome on the source and in the fetch history.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/kbase/knowledge/internal/fetch"
	"github.com/hazyhaar/kbase/knowledge/internal/kerr"
	"github.com/hazyhaar/kbase/knowledge/internal/ledger"
	"github.com/hazyhaar/kbase/knowledge/internal/normalize"
	"github.com/hazyhaar/kbase/knowledge/internal/store"
)

// DefaultTimeout bounds one fetch across every tier.
const DefaultTimeout = 30 * time.Second

// recordTimeout bounds the registry update and history append that follow a
// fetch. They run detached from the caller's context.
const recordTimeout = 10 * time.Second

// Outcome describes one completed fetch attempt.
type Outcome struct {
	SourceID      string `json:"source_id"`
	Status        string `json:"status"`
	// ContentLength is the fetched body length in characters, before
	// normalization and truncation.
	ContentLength    int `json:"content_length"`
	NormalizedLength int `json:"normalized_length"`
	StoredLength     int `json:"stored_length"`
	Truncated     bool   `json:"truncated"`
	ContentHash   string `json:"content_hash,omitempty"`
	Tier          string `json:"tier,omitempty"`
	DurationMs    int64  `json:"duration_ms"`
	FetchedAt     int64  `json:"fetched_at"`
	Error         string `json:"error,omitempty"`
}

// Engine fetches sources.
type Engine struct {
	store    *store.Store
	ledger   *ledger.Ledger
	fetcher  Fetcher
	norm     *normalize.Normalizer
	timeout  time.Duration
	onChange func()
	logger   *slog.Logger
}

// Fetcher is the retrieval chain; *fetch.Chain satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, req *fetch.Request) (*fetch.Result, error)
}

// Options configures an Engine.
type Options struct {
	Timeout time.Duration
	// OnChange runs after every recorded outcome (cache invalidation).
	OnChange func()
	Logger   *slog.Logger
}

// NewEngine creates an Engine.
func NewEngine(st *store.Store, l *ledger.Ledger, f Fetcher, n *normalize.Normalizer, opts Options) *Engine {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.OnChange == nil {
		opts.OnChange = func() {}
	}
	return &Engine{
		store:    st,
		ledger:   l,
		fetcher:  f,
		norm:     n,
		timeout:  opts.Timeout,
		onChange: opts.OnChange,
		logger:   opts.Logger,
	}
}

// Fetch retrieves the source's URL and records the result. Unknown ids
// return ErrNotFound and internal or URL-less sources ErrInvalidSource,
// both without recording anything. Any other failure is recorded on the
// source and in the history, and returned wrapped in ErrFetchFailed along
// with a non-nil Outcome.
func (e *Engine) Fetch(ctx context.Context, sourceID string) (*Outcome, error) {
	src, err := e.store.GetSource(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if src == nil {
		return nil, fmt.Errorf("%w: %s", kerr.ErrNotFound, sourceID)
	}
	if src.IsInternal() || src.SourceURL == "" {
		return nil, fmt.Errorf("%w: %s has no external URL", kerr.ErrInvalidSource, sourceID)
	}

	start := time.Now()
	got, fetchErr := e.retrieve(ctx, src)
	duration := time.Since(start).Milliseconds()

	// The outcome is recorded even when the caller has gone away.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	if fetchErr != nil {
		return e.recordFailure(rctx, src, fetchErr, duration)
	}
	return e.recordSuccess(rctx, src, got, duration)
}

// retrieved is a normalized fetch result.
type retrieved struct {
	text      string
	status    string
	tier      string
	rawLength int
}

func (e *Engine) retrieve(ctx context.Context, src *store.Source) (*retrieved, error) {
	req := &fetch.Request{URL: src.SourceURL}
	if src.RequiresAuth {
		auth, err := fetch.ParseAuth(src.AuthConfig)
		if err != nil {
			return nil, err
		}
		if auth == nil {
			return nil, errors.New("source requires auth but has no auth_config")
		}
		req.Auth = auth
	}

	fctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	res, err := e.fetcher.Fetch(fctx, req)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return nil, fmt.Errorf("aborted by caller: %w", err)
		case errors.Is(fctx.Err(), context.DeadlineExceeded):
			return nil, fmt.Errorf("timed out after %s: %w", e.timeout, err)
		}
		return nil, err
	}

	out, err := e.norm.Normalize(normalize.Input{
		Body:        res.Body,
		ContentType: res.ContentType,
		Selector:    src.ContentSelector,
		SourceURL:   src.SourceURL,
	})
	if err != nil {
		return nil, err
	}
	got := &retrieved{
		text:      out.Text,
		status:    store.HistorySuccess,
		tier:      res.Tier,
		rawLength: RuneCount(string(res.Body)),
	}
	if out.SelectorMissed {
		got.status = store.HistoryPartial
		e.logger.InfoContext(ctx, "ingest: content selector matched nothing, kept whole document",
			"source_id", src.ID, "selector", src.ContentSelector)
	}
	return got, nil
}

func (e *Engine) recordSuccess(ctx context.Context, src *store.Source, got *retrieved, duration int64) (*Outcome, error) {
	length := got.rawLength
	stored, truncated := Clip(got.text, length, src.MaxContentLength)
	hash := ContentHash(stored)

	fetchedAt, err := e.store.RecordFetchSuccess(ctx, src.ID, stored)
	if err != nil {
		e.logger.ErrorContext(ctx, "ingest: store content failed", "source_id", src.ID, "error", err)
		msg := err.Error()
		e.ledger.Append(ctx, &store.FetchHistoryEntry{
			SourceID:        src.ID,
			FetchedAt:       e.store.Now().UnixMilli(),
			Status:          store.HistoryFailed,
			ErrorMessage:    &msg,
			FetchDurationMs: &duration,
		})
		return nil, err
	}

	e.ledger.Append(ctx, &store.FetchHistoryEntry{
		SourceID:        src.ID,
		FetchedAt:       fetchedAt,
		Status:          got.status,
		ContentLength:   &length,
		FetchDurationMs: &duration,
		ContentHash:     &hash,
	})
	e.onChange()

	e.logger.InfoContext(ctx, "ingest: fetched",
		"source_id", src.ID, "url", src.SourceURL, "tier", got.tier,
		"content_length", length, "truncated", truncated, "duration_ms", duration)

	return &Outcome{
		SourceID:         src.ID,
		Status:           got.status,
		ContentLength:    length,
		NormalizedLength: RuneCount(got.text),
		StoredLength:     RuneCount(stored),
		Truncated:        truncated,
		ContentHash:      hash,
		Tier:             got.tier,
		DurationMs:       duration,
		FetchedAt:        fetchedAt,
	}, nil
}

func (e *Engine) recordFailure(ctx context.Context, src *store.Source, fetchErr error, duration int64) (*Outcome, error) {
	msg := fetchErr.Error()
	now := e.store.Now().UnixMilli()

	e.logger.WarnContext(ctx, "ingest: fetch failed",
		"source_id", src.ID, "url", src.SourceURL, "duration_ms", duration, "error", fetchErr)

	storeErr := e.store.RecordFetchFailure(ctx, src.ID, msg)
	if storeErr != nil {
		e.logger.ErrorContext(ctx, "ingest: record failure", "source_id", src.ID, "error", storeErr)
	}
	e.ledger.Append(ctx, &store.FetchHistoryEntry{
		SourceID:        src.ID,
		FetchedAt:       now,
		Status:          store.HistoryFailed,
		ErrorMessage:    &msg,
		FetchDurationMs: &duration,
	})
	e.onChange()

	out := &Outcome{
		SourceID:   src.ID,
		Status:     store.HistoryFailed,
		DurationMs: duration,
		FetchedAt:  now,
		Error:      msg,
	}
	if storeErr != nil {
		return out, fmt.Errorf("%w: %s: %w", kerr.ErrFetchFailed, msg, storeErr)
	}
	return out, fmt.Errorf("%w: %w", kerr.ErrFetchFailed, fetchErr)
}
