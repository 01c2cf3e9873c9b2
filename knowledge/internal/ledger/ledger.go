// Package ledger records fetch attempts. Appends never fail the caller:
// a lost history row is logged and dropped.
package ledger

import (
	"context"
	"log/slog"

	"github.com/hazyhaar/kbase/idgen"
	"github.com/hazyhaar/kbase/knowledge/internal/store"
)

// DefaultLimit is the number of entries returned when no limit is given.
const DefaultLimit = 10

// Ledger is the append-only fetch history.
type Ledger struct {
	store  *store.Store
	newID  idgen.Generator
	logger *slog.Logger
}

// New creates a Ledger. History ids are ULIDs so same-millisecond entries
// keep their insertion order.
func New(st *store.Store, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{store: st, newID: idgen.ULID(), logger: logger}
}

// Append records e, assigning an id when empty. Storage errors are logged
// and swallowed. Reports whether the row was written.
func (l *Ledger) Append(ctx context.Context, e *store.FetchHistoryEntry) bool {
	if e.ID == "" {
		e.ID = l.newID()
	}
	if err := l.store.InsertHistory(ctx, e); err != nil {
		l.logger.WarnContext(ctx, "ledger: append failed",
			"source_id", e.SourceID, "status", e.Status, "error", err)
		return false
	}
	return true
}

// ListForSource returns the newest entries for a source. limit <= 0 uses
// DefaultLimit.
func (l *Ledger) ListForSource(ctx context.Context, sourceID string, limit int) ([]*store.FetchHistoryEntry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return l.store.ListHistory(ctx, sourceID, limit)
}
