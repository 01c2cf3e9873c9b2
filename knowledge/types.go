package knowledge

import (
	"encoding/json"

	"github.com/hazyhaar/kbase/knowledge/internal/fetch"
	"github.com/hazyhaar/kbase/knowledge/internal/ingest"
	"github.com/hazyhaar/kbase/knowledge/internal/scheduler"
	"github.com/hazyhaar/kbase/knowledge/internal/store"
)

// Type aliases re-exported from internal packages.
type (
	Source            = store.Source
	FetchHistoryEntry = store.FetchHistoryEntry
	Stats             = store.Stats
	Outcome           = ingest.Outcome
	Report            = scheduler.Report
	BulkResult        = scheduler.Result
	Progress          = scheduler.Progress
	Strategy          = fetch.Strategy
)

// Enum values re-exported from the store.
const (
	SourceTypeInternal = store.SourceTypeInternal
	SourceTypeExternal = store.SourceTypeExternal
	SourceTypeForum    = store.SourceTypeForum
	SourceTypeWebpage  = store.SourceTypeWebpage
	SourceTypeAPI      = store.SourceTypeAPI

	LanguageSwedish = store.LanguageSwedish
	LanguageEnglish = store.LanguageEnglish
	LanguageBoth    = store.LanguageBoth

	FrequencyManual  = store.FrequencyManual
	FrequencyDaily   = store.FrequencyDaily
	FrequencyWeekly  = store.FrequencyWeekly
	FrequencyMonthly = store.FrequencyMonthly

	StatusPending  = store.StatusPending
	StatusSuccess  = store.StatusSuccess
	StatusFailed   = store.StatusFailed
	StatusDisabled = store.StatusDisabled

	TruncationMarker = ingest.TruncationMarker
)

// SourcePatch is a partial update. Nil fields are left unchanged.
type SourcePatch struct {
	Name             *string          `json:"name,omitempty"`
	Description      *string          `json:"description,omitempty"`
	Content          *string          `json:"content,omitempty"`
	Keywords         *[]string        `json:"keywords,omitempty"`
	Category         *string          `json:"category,omitempty"`
	Priority         *int             `json:"priority,omitempty"`
	Language         *string          `json:"language,omitempty"`
	IsActive         *bool            `json:"is_active,omitempty"`
	SourceType       *string          `json:"source_type,omitempty"`
	SourceURL        *string          `json:"source_url,omitempty"`
	FetchFrequency   *string          `json:"fetch_frequency,omitempty"`
	FetchStatus      *string          `json:"fetch_status,omitempty"`
	AutoFetch        *bool            `json:"auto_fetch,omitempty"`
	ContentSelector  *string          `json:"content_selector,omitempty"`
	MaxContentLength *int             `json:"max_content_length,omitempty"`
	RequiresAuth     *bool            `json:"requires_auth,omitempty"`
	AuthConfig       *json.RawMessage `json:"auth_config,omitempty"`
}

func (p *SourcePatch) apply(s *Source) {
	setIf(&s.Name, p.Name)
	setIf(&s.Description, p.Description)
	setIf(&s.Content, p.Content)
	setIf(&s.Keywords, p.Keywords)
	setIf(&s.Category, p.Category)
	setIf(&s.Priority, p.Priority)
	setIf(&s.Language, p.Language)
	setIf(&s.IsActive, p.IsActive)
	setIf(&s.SourceType, p.SourceType)
	setIf(&s.SourceURL, p.SourceURL)
	setIf(&s.FetchFrequency, p.FetchFrequency)
	setIf(&s.FetchStatus, p.FetchStatus)
	setIf(&s.AutoFetch, p.AutoFetch)
	setIf(&s.ContentSelector, p.ContentSelector)
	setIf(&s.MaxContentLength, p.MaxContentLength)
	setIf(&s.RequiresAuth, p.RequiresAuth)
	setIf(&s.AuthConfig, p.AuthConfig)
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// TrainResult is the outcome of a training pass.
type TrainResult struct {
	Language  string   `json:"language"`
	Corpus    string   `json:"corpus"`
	SourceIDs []string `json:"source_ids"`
	TrainedAt int64    `json:"trained_at"`
}
