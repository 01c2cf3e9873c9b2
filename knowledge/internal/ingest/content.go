package ingest

import (
	"fmt"
	"hash/fnv"
	"unicode/utf8"
)

// TruncationMarker is appended to content cut at max_content_length.
const TruncationMarker = "... [Content truncated]"

// RuneCount is the character length used for content_length.
func RuneCount(s string) int {
	return utf8.RuneCountInString(s)
}

// Truncate keeps the first max characters of s and appends the marker when
// s was longer. max <= 0 leaves s unchanged.
func Truncate(s string, max int) (string, bool) {
	return Clip(s, RuneCount(s), max)
}

// Clip bounds normalized text to max characters. rawLength is the length of
// the fetched body the text came from; the marker is appended exactly when
// rawLength exceeds max. max <= 0 leaves text unchanged.
func Clip(text string, rawLength, max int) (string, bool) {
	if max <= 0 {
		return text, false
	}
	text = cutRunes(text, max)
	if rawLength > max {
		return text + TruncationMarker, true
	}
	return text, false
}

func cutRunes(s string, max int) string {
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}

// ContentHash fingerprints stored content (FNV-1a 64, hex). It detects
// change between fetches and is not a security hash.
func ContentHash(s string) string {
	h := fnv.New64a()
	h.Write([]byte(s))
	return fmt.Sprintf("%016x", h.Sum64())
}
