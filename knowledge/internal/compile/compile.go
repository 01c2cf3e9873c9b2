// Package compile turns registry sources into the knowledge corpus text
// handed to prompt assembly.
package compile

import (
	"cmp"
	"slices"
	"strings"

	"github.com/hazyhaar/kbase/knowledge/internal/store"
)

// Included reports whether src belongs in a corpus for language. Requesting
// "both" takes every language; otherwise a source must match the language or
// be tagged "both".
func Included(src *store.Source, language string) bool {
	if !src.IsActive {
		return false
	}
	if language == store.LanguageBoth || language == "" {
		return true
	}
	return src.Language == language || src.Language == store.LanguageBoth
}

// Select returns the sources included for language, highest priority first.
// Equal priorities keep creation order, then id order. The input is not
// modified.
func Select(sources []*store.Source, language string) []*store.Source {
	out := make([]*store.Source, 0, len(sources))
	for _, src := range sources {
		if Included(src, language) {
			out = append(out, src)
		}
	}
	slices.SortStableFunc(out, func(a, b *store.Source) int {
		if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
			return c
		}
		if c := cmp.Compare(a.CreatedAt, b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// Compile renders the included sources as blocks:
//
//	### <name>
//	<description>
//	<content>
//	Keywords: <k1>, <k2>
//
// Empty lines are left out and blocks are separated by a blank line. No
// sources yields "".
func Compile(sources []*store.Source, language string) string {
	selected := Select(sources, language)
	blocks := make([]string, 0, len(selected))
	for _, src := range selected {
		blocks = append(blocks, Block(src))
	}
	return strings.Join(blocks, "\n\n")
}

// Block renders one source.
func Block(src *store.Source) string {
	lines := []string{"### " + src.Name}
	if d := strings.TrimSpace(src.Description); d != "" {
		lines = append(lines, d)
	}
	if c := strings.TrimSpace(src.Content); c != "" {
		lines = append(lines, c)
	}
	var kw []string
	for _, k := range src.Keywords {
		if k = strings.TrimSpace(k); k != "" {
			kw = append(kw, k)
		}
	}
	if len(kw) > 0 {
		lines = append(lines, "Keywords: "+strings.Join(kw, ", "))
	}
	return strings.Join(lines, "\n")
}
