// CLAUDE:SUMMARY Input validation for source fields: required name/URL, enums, lengths, auth_config shape, SSRF.
package knowledge

import (
	"fmt"
	"unicode/utf8"

	"github.com/hazyhaar/kbase/knowledge/internal/fetch"
)

const (
	maxNameLen          = 512
	maxURLLen           = 4096
	maxSelectorLen      = 512
	maxKeywords         = 50
	maxKeywordLen       = 100
	maxContentLengthCap = 1_000_000
)

var (
	allowedSourceTypes = map[string]bool{
		SourceTypeInternal: true,
		SourceTypeExternal: true,
		SourceTypeForum:    true,
		SourceTypeWebpage:  true,
		SourceTypeAPI:      true,
	}
	allowedLanguages = map[string]bool{
		LanguageSwedish: true,
		LanguageEnglish: true,
		LanguageBoth:    true,
	}
	allowedFrequencies = map[string]bool{
		FrequencyManual:  true,
		FrequencyDaily:   true,
		FrequencyWeekly:  true,
		FrequencyMonthly: true,
	}
	// Statuses an operator may set; success and failed come from fetches.
	settableStatuses = map[string]bool{
		StatusPending:  true,
		StatusDisabled: true,
	}
)

// applyDefaults fills zero values the way the registry stores them.
func applyDefaults(s *Source) {
	if s.SourceType == "" {
		s.SourceType = SourceTypeInternal
	}
	if s.Language == "" {
		s.Language = LanguageBoth
	}
	if s.FetchFrequency == "" {
		s.FetchFrequency = FrequencyManual
	}
	if s.FetchStatus == "" {
		s.FetchStatus = StatusPending
	}
	if s.MaxContentLength <= 0 {
		s.MaxContentLength = 10000
	}
	if s.Keywords == nil {
		s.Keywords = []string{}
	}
}

// validateSourceInput checks a source after defaults are applied. validateURL
// guards non-internal URLs (SSRF).
func validateSourceInput(s *Source, validateURL func(string) error) error {
	if s.Name == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if utf8.RuneCountInString(s.Name) > maxNameLen {
		return fmt.Errorf("%w: name exceeds %d characters", ErrValidation, maxNameLen)
	}
	if !allowedSourceTypes[s.SourceType] {
		return fmt.Errorf("%w: unknown source_type %q", ErrValidation, s.SourceType)
	}
	if !allowedLanguages[s.Language] {
		return fmt.Errorf("%w: unknown language %q", ErrValidation, s.Language)
	}
	if !allowedFrequencies[s.FetchFrequency] {
		return fmt.Errorf("%w: unknown fetch_frequency %q", ErrValidation, s.FetchFrequency)
	}
	if s.MaxContentLength > maxContentLengthCap {
		return fmt.Errorf("%w: max_content_length exceeds %d", ErrValidation, maxContentLengthCap)
	}
	if len(s.Keywords) > maxKeywords {
		return fmt.Errorf("%w: more than %d keywords", ErrValidation, maxKeywords)
	}
	for _, k := range s.Keywords {
		if utf8.RuneCountInString(k) > maxKeywordLen {
			return fmt.Errorf("%w: keyword exceeds %d characters", ErrValidation, maxKeywordLen)
		}
	}
	if len(s.ContentSelector) > maxSelectorLen {
		return fmt.Errorf("%w: content_selector exceeds %d bytes", ErrValidation, maxSelectorLen)
	}
	if len(s.SourceURL) > maxURLLen {
		return fmt.Errorf("%w: source_url exceeds %d characters", ErrValidation, maxURLLen)
	}

	if s.SourceType != SourceTypeInternal {
		if s.SourceURL == "" {
			return fmt.Errorf("%w: source_url is required for %s sources", ErrValidation, s.SourceType)
		}
		if err := validateURL(s.SourceURL); err != nil {
			return fmt.Errorf("%w: source_url: %w", ErrValidation, err)
		}
	}

	if len(s.AuthConfig) > 0 {
		if _, err := fetch.ParseAuth(s.AuthConfig); err != nil {
			return fmt.Errorf("%w: %w", ErrValidation, err)
		}
	}
	return nil
}
