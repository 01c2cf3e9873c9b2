// Package idgen provides pluggable ID generation for kbase.
//
// Sources get UUIDv7 identifiers. Fetch history rows get ULIDs, which are
// monotonic within a millisecond so rows recorded in the same instant still
// sort in insertion order.
package idgen

import (
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator that produces RFC 9562 UUID v7 strings.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// ULID returns a Generator that produces monotonic, lexically sortable ULIDs.
// ulid.Make is safe for concurrent use.
func ULID() Generator {
	return func() string {
		return ulid.Make().String()
	}
}

// Prefixed wraps a Generator and prepends a fixed prefix to every ID. MCP
// calls get "mcp_"-prefixed ULID trace ids this way.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Default is the generator used for source identifiers.
var Default Generator = UUIDv7()

// New produces an ID using the Default generator.
func New() string {
	return Default()
}

