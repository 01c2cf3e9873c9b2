// CLAUDE:SUMMARY Store data types: Source (registry row), FetchHistoryEntry, Stats, and their enum values.
package store

import "encoding/json"

// Source types. Everything except SourceTypeInternal is fetched from SourceURL.
const (
	SourceTypeInternal = "internal"
	SourceTypeExternal = "external"
	SourceTypeForum    = "forum"
	SourceTypeWebpage  = "webpage"
	SourceTypeAPI      = "api"
)

// Languages. LanguageBoth matches every compile request.
const (
	LanguageSwedish = "sv"
	LanguageEnglish = "en"
	LanguageBoth    = "both"
)

// Fetch frequencies. FrequencyManual sources are never due automatically.
const (
	FrequencyManual  = "manual"
	FrequencyDaily   = "daily"
	FrequencyWeekly  = "weekly"
	FrequencyMonthly = "monthly"
)

// Source fetch statuses.
const (
	StatusPending  = "pending"
	StatusSuccess  = "success"
	StatusFailed   = "failed"
	StatusDisabled = "disabled"
)

// History entry statuses. HistoryPartial means content was stored but the
// content selector matched nothing, so the whole document was kept.
const (
	HistorySuccess = "success"
	HistoryFailed  = "failed"
	HistoryPartial = "partial"
)

// DefaultMaxContentLength bounds stored content, in characters.
const DefaultMaxContentLength = 10000

// Source is one registered knowledge source. Timestamps are unix milliseconds.
type Source struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description" yaml:"description"`
	Content     string   `json:"content" yaml:"content"`
	Keywords    []string `json:"keywords" yaml:"keywords"`
	Category    string   `json:"category" yaml:"category"`
	Priority    int      `json:"priority" yaml:"priority"`
	Language    string   `json:"language" yaml:"language"`
	IsActive    bool     `json:"is_active" yaml:"is_active"`
	LastTrained *int64   `json:"last_trained,omitempty" yaml:"-"`
	CreatedAt   int64    `json:"created_at" yaml:"-"`
	UpdatedAt   int64    `json:"updated_at" yaml:"-"`
	CreatedBy   string   `json:"created_by" yaml:"created_by"`

	SourceType       string          `json:"source_type" yaml:"source_type"`
	SourceURL        string          `json:"source_url" yaml:"source_url"`
	FetchFrequency   string          `json:"fetch_frequency" yaml:"fetch_frequency"`
	LastFetched      *int64          `json:"last_fetched,omitempty" yaml:"-"`
	FetchStatus      string          `json:"fetch_status" yaml:"-"`
	FetchError       *string         `json:"fetch_error,omitempty" yaml:"-"`
	AutoFetch        bool            `json:"auto_fetch" yaml:"auto_fetch"`
	ContentSelector  string          `json:"content_selector" yaml:"content_selector"`
	MaxContentLength int             `json:"max_content_length" yaml:"max_content_length"`
	RequiresAuth     bool            `json:"requires_auth" yaml:"requires_auth"`
	AuthConfig       json.RawMessage `json:"auth_config,omitempty" yaml:"-"`
}

// IsInternal reports whether the source is hand-authored (never fetched).
func (s *Source) IsInternal() bool {
	return s.SourceType == SourceTypeInternal
}

// Redacted returns a shallow copy safe to hand to API clients: credentials in
// AuthConfig are replaced by a marker.
func (s *Source) Redacted() *Source {
	c := *s
	if len(c.AuthConfig) > 0 {
		c.AuthConfig = json.RawMessage(`{"redacted":true}`)
	}
	return &c
}

// FetchHistoryEntry is one immutable fetch attempt record.
type FetchHistoryEntry struct {
	ID              string  `json:"id"`
	SourceID        string  `json:"source_id"`
	FetchedAt       int64   `json:"fetched_at"`
	Status          string  `json:"status"`
	ContentLength   *int    `json:"content_length,omitempty"`
	ErrorMessage    *string `json:"error_message,omitempty"`
	FetchDurationMs *int64  `json:"fetch_duration_ms,omitempty"`
	ContentHash     *string `json:"content_hash,omitempty"`
}

// Stats holds registry counters for status display.
type Stats struct {
	Sources       int            `json:"sources"`
	Active        int            `json:"active"`
	External      int            `json:"external"`
	ByFetchStatus map[string]int `json:"by_fetch_status"`
	HistoryRows   int            `json:"history_rows"`
}
