// CLAUDE:SUMMARY Service orchestrator: registry CRUD, fetch engine, bulk scheduler, history, cached corpus compilation.
// Package knowledge manages the external knowledge sources behind a chat
// assistant: it keeps the source registry, fetches and normalizes remote
// content, records fetch history, and compiles the knowledge corpus that is
// injected into prompts.
package knowledge

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/kbase/horosafe"
	"github.com/hazyhaar/kbase/idgen"
	"github.com/hazyhaar/kbase/kit"
	"github.com/hazyhaar/kbase/knowledge/internal/cache"
	"github.com/hazyhaar/kbase/knowledge/internal/compile"
	"github.com/hazyhaar/kbase/knowledge/internal/fetch"
	"github.com/hazyhaar/kbase/knowledge/internal/ingest"
	"github.com/hazyhaar/kbase/knowledge/internal/ledger"
	"github.com/hazyhaar/kbase/knowledge/internal/normalize"
	"github.com/hazyhaar/kbase/knowledge/internal/scheduler"
	"github.com/hazyhaar/kbase/knowledge/internal/store"
)

// Service is the knowledge orchestrator.
type Service struct {
	store     *store.Store
	ledger    *ledger.Ledger
	chain     *fetch.Chain
	render    *fetch.Render
	engine    *ingest.Engine
	scheduler *scheduler.Scheduler
	cache     *cache.Cache
	config    *Config
	logger    *slog.Logger

	newID        idgen.Generator
	urlValidator func(string) error
	strategies   []fetch.Strategy
	now          func() time.Time
	onProgress   func(Progress)
}

// ServiceOption configures a Service during creation.
type ServiceOption func(*Service)

// WithURLValidator overrides the URL validation function (default: horosafe.ValidateURL).
// Use in tests with httptest servers that listen on loopback addresses.
func WithURLValidator(fn func(string) error) ServiceOption {
	return func(svc *Service) { svc.urlValidator = fn }
}

// WithStrategies replaces the fetch tiers built from the config.
func WithStrategies(tiers ...Strategy) ServiceOption {
	return func(svc *Service) { svc.strategies = tiers }
}

// WithClock sets the time source for registry timestamps, due checks and
// cache expiry.
func WithClock(now func() time.Time) ServiceOption {
	return func(svc *Service) { svc.now = now }
}

// WithIDGenerator sets the source id generator (default: UUIDv7).
func WithIDGenerator(gen idgen.Generator) ServiceOption {
	return func(svc *Service) { svc.newID = gen }
}

// WithProgress registers an observer for bulk fetch progress.
func WithProgress(fn func(Progress)) ServiceOption {
	return func(svc *Service) { svc.onProgress = fn }
}

// New creates a Service over an opened database and applies the schema.
func New(db *sql.DB, cfg *Config, logger *slog.Logger, opts ...ServiceOption) (*Service, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}

	svc := &Service{
		config:       cfg,
		logger:       logger,
		newID:        idgen.New,
		urlValidator: horosafe.ValidateURL,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}

	if err := store.ApplySchema(context.Background(), db); err != nil {
		return nil, fmt.Errorf("knowledge: apply schema: %w", err)
	}
	svc.store = store.NewStore(db)
	svc.store.Now = svc.now
	svc.ledger = ledger.New(svc.store, logger)
	svc.cache = cache.New(cfg.Cache.TTL, svc.now)

	tiers := svc.strategies
	if len(tiers) == 0 {
		var err error
		if tiers, err = svc.buildTiers(); err != nil {
			return nil, err
		}
	}
	svc.chain = fetch.NewChain(logger, tiers...)

	svc.engine = ingest.NewEngine(svc.store, svc.ledger, svc.chain,
		normalize.New(!cfg.Normalize.KeepRawHTML), ingest.Options{
			Timeout:  cfg.Fetch.Timeout,
			OnChange: svc.cache.Invalidate,
			Logger:   logger,
		})
	svc.scheduler = scheduler.New(svc.store, svc.engine, scheduler.Config{
		Parallelism: cfg.Scheduler.Parallelism,
		OnProgress:  svc.onProgress,
		Now:         svc.now,
	}, logger)

	logger.Info("knowledge: ready", "tiers", strings.Join(svc.chain.Tiers(), ","))
	return svc, nil
}

func (svc *Service) buildTiers() ([]fetch.Strategy, error) {
	fc := fetch.Config{
		MaxBytes:     svc.config.Fetch.MaxBytes,
		UserAgent:    svc.config.Fetch.UserAgent,
		URLValidator: svc.urlValidator,
	}
	tiers := []fetch.Strategy{fetch.NewDirect(fc)}
	if svc.config.Fetch.RelayURL != "" {
		relay, err := fetch.NewRelay(svc.config.Fetch.RelayURL, fc)
		if err != nil {
			return nil, err
		}
		tiers = append(tiers, relay)
	}
	if svc.config.Fetch.Render.Enabled {
		svc.render = fetch.NewRender(fetch.RenderConfig{
			RemoteURL:    svc.config.Fetch.Render.RemoteURL,
			NavTimeout:   svc.config.Fetch.Render.NavTimeout,
			URLValidator: svc.urlValidator,
			Logger:       svc.logger,
		})
		tiers = append(tiers, svc.render)
	}
	return tiers, nil
}

// Start runs bulk fetches every interval in the background until ctx ends.
// Non-blocking. A zero interval does nothing.
func (svc *Service) Start(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}
	go svc.scheduler.Run(ctx, every)
	svc.logger.Info("knowledge: scheduler started", "every", every)
}

// Config returns the effective configuration, defaults applied.
func (svc *Service) Config() *Config { return svc.config }

// Close releases the headless browser if one was started.
func (svc *Service) Close() error {
	if svc.render != nil {
		return svc.render.Close()
	}
	return nil
}

// --- Sources ---

// CreateSource validates and registers a new source. The id, timestamps and
// creator are assigned here; the stored record is returned.
func (svc *Service) CreateSource(ctx context.Context, s *Source) (*Source, error) {
	src := *s
	applyDefaults(&src)
	if err := validateSourceInput(&src, svc.urlValidator); err != nil {
		return nil, err
	}
	src.ID = svc.newID()
	src.CreatedAt, src.UpdatedAt = 0, 0
	src.FetchStatus = StatusPending
	src.LastFetched, src.FetchError, src.LastTrained = nil, nil, nil
	if src.CreatedBy == "" {
		src.CreatedBy = kit.GetActor(ctx)
	}

	if err := svc.store.InsertSource(ctx, &src); err != nil {
		return nil, err
	}
	svc.cache.Invalidate()
	svc.logger.InfoContext(ctx, "knowledge: source created",
		"source_id", src.ID, "type", src.SourceType, "actor", src.CreatedBy)
	return &src, nil
}

// GetSource returns a source, or nil when the id is unknown.
func (svc *Service) GetSource(ctx context.Context, id string) (*Source, error) {
	return svc.store.GetSource(ctx, id)
}

// ListSources returns every source ordered by priority ascending, then
// creation time.
func (svc *Service) ListSources(ctx context.Context) ([]*Source, error) {
	return svc.store.ListSources(ctx)
}

// ListExternalSources returns the fetchable (non-internal) sources.
func (svc *Service) ListExternalSources(ctx context.Context) ([]*Source, error) {
	return svc.store.ListExternalSources(ctx)
}

// UpdateSource applies a partial update. The merged record is validated as a
// whole; updated_at is always refreshed.
func (svc *Service) UpdateSource(ctx context.Context, id string, patch SourcePatch) (*Source, error) {
	existing, err := svc.store.GetSource(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if patch.FetchStatus != nil && *patch.FetchStatus != existing.FetchStatus &&
		!settableStatuses[*patch.FetchStatus] {
		return nil, fmt.Errorf("%w: fetch_status can only be set to pending or disabled", ErrValidation)
	}
	merged := *existing
	patch.apply(&merged)
	applyDefaults(&merged)
	if err := validateSourceInput(&merged, svc.urlValidator); err != nil {
		return nil, err
	}

	ok, err := svc.store.UpdateSource(ctx, &merged)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if merged.FetchStatus != existing.FetchStatus {
		if _, err := svc.store.SetFetchStatus(ctx, id, merged.FetchStatus); err != nil {
			return nil, err
		}
	}
	svc.cache.Invalidate()
	svc.logger.InfoContext(ctx, "knowledge: source updated", "source_id", id, "actor", kit.GetActor(ctx))
	return svc.store.GetSource(ctx, id)
}

// DeleteSource removes a source and its fetch history. Deleting an unknown
// id succeeds.
func (svc *Service) DeleteSource(ctx context.Context, id string) error {
	removed, err := svc.store.DeleteSource(ctx, id)
	if err != nil {
		return err
	}
	svc.cache.Invalidate()
	if removed {
		svc.logger.InfoContext(ctx, "knowledge: source deleted", "source_id", id, "actor", kit.GetActor(ctx))
	}
	return nil
}

// UpsertSources imports sources by id in one transaction. Sources without an
// id get a new one. Fetched content of existing non-internal sources is kept
// when the import carries none.
func (svc *Service) UpsertSources(ctx context.Context, sources []*Source) error {
	batch := make([]*Source, 0, len(sources))
	for i, s := range sources {
		src := *s
		applyDefaults(&src)
		if err := validateSourceInput(&src, svc.urlValidator); err != nil {
			return fmt.Errorf("source %d (%s): %w", i, src.Name, err)
		}
		if src.ID == "" {
			src.ID = svc.newID()
		} else if existing, err := svc.store.GetSource(ctx, src.ID); err != nil {
			return err
		} else if existing != nil && src.Content == "" && src.SourceType != SourceTypeInternal {
			src.Content = existing.Content
		}
		if src.CreatedBy == "" {
			src.CreatedBy = kit.GetActor(ctx)
		}
		src.CreatedAt, src.UpdatedAt = 0, 0
		batch = append(batch, &src)
	}
	if err := svc.store.UpsertSources(ctx, batch); err != nil {
		return err
	}
	svc.cache.Invalidate()
	svc.logger.InfoContext(ctx, "knowledge: sources imported", "count", len(batch))
	return nil
}

// ResetSource puts a failed or disabled source back to pending.
func (svc *Service) ResetSource(ctx context.Context, id string) (*Source, error) {
	ok, err := svc.store.ResetFetchState(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return svc.store.GetSource(ctx, id)
}

// Stats returns registry counters.
func (svc *Service) Stats(ctx context.Context) (*Stats, error) {
	return svc.store.Stats(ctx)
}

// --- Fetching ---

// FetchSource fetches one source now.
func (svc *Service) FetchSource(ctx context.Context, id string) (*Outcome, error) {
	return svc.engine.Fetch(ctx, id)
}

// DueSources returns the sources a bulk run would fetch now.
func (svc *Service) DueSources(ctx context.Context) ([]*Source, error) {
	return svc.scheduler.Due(ctx, svc.now())
}

// FetchAllPending fetches every due source and reports per-source results.
func (svc *Service) FetchAllPending(ctx context.Context) (*Report, error) {
	return svc.scheduler.FetchAllPending(ctx)
}

// Progress returns the state of the current or last bulk run.
func (svc *Service) Progress() Progress {
	return svc.scheduler.Progress()
}

// FetchHistory returns the newest history entries for a source (default 10).
func (svc *Service) FetchHistory(ctx context.Context, sourceID string, limit int) ([]*FetchHistoryEntry, error) {
	return svc.ledger.ListForSource(ctx, sourceID, limit)
}

// --- Corpus ---

// Corpus returns the compiled knowledge for a language ("sv", "en" or
// "both"; empty means both). When the registry cannot be read the built-in
// default corpus is returned without error and without being cached.
func (svc *Service) Corpus(ctx context.Context, language string) (string, error) {
	lang, err := checkLanguage(language)
	if err != nil {
		return "", err
	}
	text, err := svc.cache.GetOrCompute(ctx, lang, func(ctx context.Context) (string, error) {
		sources, err := svc.store.ListActiveSources(ctx)
		if err != nil {
			return "", err
		}
		return compile.Compile(sources, lang), nil
	})
	if err != nil {
		svc.logger.WarnContext(ctx, "knowledge: registry unavailable, serving default corpus",
			"language", lang, "error", err)
		return compile.DefaultCorpus, nil
	}
	return text, nil
}

// Train compiles the corpus for a language and stamps last_trained on every
// source it includes.
func (svc *Service) Train(ctx context.Context, language string) (*TrainResult, error) {
	lang, err := checkLanguage(language)
	if err != nil {
		return nil, err
	}
	sources, err := svc.store.ListActiveSources(ctx)
	if err != nil {
		return nil, err
	}
	selected := compile.Select(sources, lang)
	ids := make([]string, len(selected))
	for i, s := range selected {
		ids[i] = s.ID
	}
	at, err := svc.store.MarkTrained(ctx, ids)
	if err != nil {
		return nil, err
	}
	svc.logger.InfoContext(ctx, "knowledge: trained", "language", lang, "sources", len(ids))
	return &TrainResult{
		Language:  lang,
		Corpus:    compile.Compile(selected, lang),
		SourceIDs: ids,
		TrainedAt: at,
	}, nil
}

func checkLanguage(lang string) (string, error) {
	if lang == "" {
		return LanguageBoth, nil
	}
	if !allowedLanguages[lang] {
		return "", fmt.Errorf("%w: unknown language %q", ErrValidation, lang)
	}
	return lang, nil
}
