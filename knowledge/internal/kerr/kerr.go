// Package kerr holds the error taxonomy shared by the knowledge packages.
// The knowledge package re-exports these so callers never import internals.
package kerr

import "errors"

var (
	// ErrValidation marks malformed or missing input to a create/update call.
	ErrValidation = errors.New("knowledge: validation failed")

	// ErrNotFound marks an operation on an unknown source id.
	ErrNotFound = errors.New("knowledge: source not found")

	// ErrInvalidSource marks a source that cannot be fetched (internal, or no URL).
	ErrInvalidSource = errors.New("knowledge: source is not fetchable")

	// ErrFetchFailed marks a network or remote failure while retrieving content.
	ErrFetchFailed = errors.New("knowledge: fetch failed")

	// ErrStorageUnavailable marks a failing persistence layer.
	ErrStorageUnavailable = errors.New("knowledge: storage unavailable")
)
