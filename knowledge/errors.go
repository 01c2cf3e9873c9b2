// CLAUDE:SUMMARY Sentinel errors for the knowledge service, shared with the internal packages.
package knowledge

import (
	"github.com/hazyhaar/kbase/knowledge/internal/kerr"
	"github.com/hazyhaar/kbase/knowledge/internal/scheduler"
)

var (
	// ErrValidation is returned when source input fails validation.
	ErrValidation = kerr.ErrValidation

	// ErrNotFound is returned for an unknown source id.
	ErrNotFound = kerr.ErrNotFound

	// ErrInvalidSource is returned when fetching an internal or URL-less source.
	ErrInvalidSource = kerr.ErrInvalidSource

	// ErrFetchFailed wraps network and remote failures of a fetch.
	ErrFetchFailed = kerr.ErrFetchFailed

	// ErrStorageUnavailable wraps database failures.
	ErrStorageUnavailable = kerr.ErrStorageUnavailable

	// ErrRunInProgress is returned when a bulk fetch is already running.
	ErrRunInProgress = scheduler.ErrRunInProgress
)
