// Package scheduler selects the sources due for a refresh and fetches them
// in bulk, reporting progress to an optional observer.
package scheduler

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/kbase/knowledge/internal/ingest"
	"github.com/hazyhaar/kbase/knowledge/internal/store"
)

// ErrRunInProgress is returned when a bulk run is already going.
var ErrRunInProgress = errors.New("scheduler: bulk fetch already running")

// Refresh intervals per fetch frequency.
var intervals = map[string]time.Duration{
	store.FrequencyDaily:   24 * time.Hour,
	store.FrequencyWeekly:  7 * 24 * time.Hour,
	store.FrequencyMonthly: 30 * 24 * time.Hour,
}

// Interval returns the refresh interval for a frequency. Manual and unknown
// frequencies report false.
func Interval(frequency string) (time.Duration, bool) {
	d, ok := intervals[frequency]
	return d, ok
}

// IsDue reports whether src should be fetched at now. Only the frequency and
// last_fetched are considered; eligibility filters live in the store query.
func IsDue(src *store.Source, now time.Time) bool {
	d, ok := Interval(src.FetchFrequency)
	if !ok {
		return false
	}
	if src.LastFetched == nil {
		return true
	}
	return now.Sub(time.UnixMilli(*src.LastFetched)) >= d
}

// Lister supplies auto-fetch candidates.
type Lister interface {
	ListAutoFetchSources(ctx context.Context) ([]*store.Source, error)
}

// Fetcher runs one source fetch.
type Fetcher interface {
	Fetch(ctx context.Context, sourceID string) (*ingest.Outcome, error)
}

// Config configures the scheduler.
type Config struct {
	// Parallelism is the number of concurrent fetches. Default: 1 (sequential).
	Parallelism int
	// OnProgress, when set, receives a snapshot after every change. With
	// Parallelism > 1 it is called from several goroutines.
	OnProgress func(Progress)
	// Now supplies the clock for Due. Default: time.Now.
	Now func() time.Time
}

func (c *Config) defaults() {
	if c.Parallelism <= 0 {
		c.Parallelism = 1
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Progress is the state of the current or last bulk run.
type Progress struct {
	Running   bool   `json:"running"`
	Total     int    `json:"total"`
	Done      int    `json:"done"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Current   string `json:"current,omitempty"`
}

// Result is the outcome for one source of a bulk run.
type Result struct {
	SourceID string          `json:"source_id"`
	Name     string          `json:"name"`
	Success  bool            `json:"success"`
	Outcome  *ingest.Outcome `json:"outcome,omitempty"`
	Err      error           `json:"-"`
	Error    string          `json:"error,omitempty"`
}

// Report summarises a bulk run. Results follow the order of the input.
type Report struct {
	Results    []Result `json:"results"`
	Succeeded  int      `json:"succeeded"`
	Failed     int      `json:"failed"`
	StartedAt  int64    `json:"started_at"`
	FinishedAt int64    `json:"finished_at"`
}

// Scheduler runs bulk fetches.
type Scheduler struct {
	list    Lister
	fetcher Fetcher
	config  Config
	logger  *slog.Logger

	running  atomic.Bool
	mu       sync.Mutex
	progress Progress
}

// New creates a Scheduler.
func New(list Lister, fetcher Fetcher, cfg Config, logger *slog.Logger) *Scheduler {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{list: list, fetcher: fetcher, config: cfg, logger: logger}
}

// Due returns the auto-fetch sources whose interval has elapsed at now,
// never-fetched first, then oldest fetch first.
func (s *Scheduler) Due(ctx context.Context, now time.Time) ([]*store.Source, error) {
	candidates, err := s.list.ListAutoFetchSources(ctx)
	if err != nil {
		return nil, err
	}
	due := make([]*store.Source, 0, len(candidates))
	for _, src := range candidates {
		if IsDue(src, now) {
			due = append(due, src)
		}
	}
	slices.SortStableFunc(due, func(a, b *store.Source) int {
		switch {
		case a.LastFetched == nil && b.LastFetched == nil:
			return 0
		case a.LastFetched == nil:
			return -1
		case b.LastFetched == nil:
			return 1
		}
		return cmp.Compare(*a.LastFetched, *b.LastFetched)
	})
	return due, nil
}

// FetchAllPending fetches every due source. Per-source failures are
// reported in the Report, never returned.
func (s *Scheduler) FetchAllPending(ctx context.Context) (*Report, error) {
	due, err := s.Due(ctx, s.config.Now())
	if err != nil {
		return nil, err
	}
	return s.FetchAll(ctx, due)
}

// FetchAll fetches the given sources.
func (s *Scheduler) FetchAll(ctx context.Context, sources []*store.Source) (*Report, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer s.running.Store(false)

	report := &Report{
		Results:   make([]Result, len(sources)),
		StartedAt: time.Now().UnixMilli(),
	}
	s.update(func(p *Progress) { *p = Progress{Running: true, Total: len(sources)} })
	s.logger.InfoContext(ctx, "scheduler: bulk fetch started",
		"sources", len(sources), "parallelism", s.config.Parallelism)

	g := new(errgroup.Group)
	g.SetLimit(s.config.Parallelism)
	for i, src := range sources {
		g.Go(func() error {
			report.Results[i] = s.fetchOne(ctx, src)
			return nil
		})
	}
	g.Wait()

	for _, r := range report.Results {
		if r.Success {
			report.Succeeded++
		} else {
			report.Failed++
		}
	}
	report.FinishedAt = time.Now().UnixMilli()
	s.update(func(p *Progress) { p.Running = false; p.Current = "" })

	s.logger.InfoContext(ctx, "scheduler: bulk fetch finished",
		"succeeded", report.Succeeded, "failed", report.Failed,
		"duration_ms", report.FinishedAt-report.StartedAt)
	return report, nil
}

func (s *Scheduler) fetchOne(ctx context.Context, src *store.Source) Result {
	res := Result{SourceID: src.ID, Name: src.Name}
	if err := ctx.Err(); err != nil {
		res.Err, res.Error = err, err.Error()
		s.update(func(p *Progress) { p.Done++; p.Failed++ })
		return res
	}

	s.update(func(p *Progress) { p.Current = src.Name })
	out, err := s.fetcher.Fetch(ctx, src.ID)
	res.Outcome = out
	if err != nil {
		res.Err, res.Error = err, err.Error()
		s.logger.WarnContext(ctx, "scheduler: source failed", "source_id", src.ID, "error", err)
	} else {
		res.Success = true
	}
	s.update(func(p *Progress) {
		p.Done++
		if res.Success {
			p.Succeeded++
		} else {
			p.Failed++
		}
	})
	return res
}

// Progress returns a snapshot of the current or last run.
func (s *Scheduler) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

func (s *Scheduler) update(fn func(*Progress)) {
	s.mu.Lock()
	fn(&s.progress)
	snap := s.progress
	s.mu.Unlock()
	if s.config.OnProgress != nil {
		s.config.OnProgress(snap)
	}
}

// Run calls FetchAllPending every interval until ctx is cancelled. A run
// still in progress when the ticker fires is not overlapped.
func (s *Scheduler) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	s.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if _, err := s.FetchAllPending(ctx); err != nil && !errors.Is(err, ErrRunInProgress) {
		s.logger.ErrorContext(ctx, "scheduler: bulk fetch", "error", err)
	}
}
