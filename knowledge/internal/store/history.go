package store

import (
	"context"
	"fmt"

	"github.com/hazyhaar/kbase/dbopen"
)

// InsertHistory records one fetch attempt.
func (s *Store) InsertHistory(ctx context.Context, e *FetchHistoryEntry) error {
	_, err := dbopen.Exec(ctx, s.DB,
		`INSERT INTO fetch_history (id, source_id, fetched_at, status, content_length,
		error_message, fetch_duration_ms, content_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SourceID, e.FetchedAt, e.Status, e.ContentLength,
		e.ErrorMessage, e.FetchDurationMs, e.ContentHash,
	)
	if err != nil {
		return storageErr("insert history", err)
	}
	return nil
}

// ListHistory returns history entries for a source, newest first. Entries
// recorded in the same millisecond are ordered by id, which is monotonic.
func (s *Store) ListHistory(ctx context.Context, sourceID string, limit int) ([]*FetchHistoryEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, source_id, fetched_at, status, content_length,
		error_message, fetch_duration_ms, content_hash
		FROM fetch_history WHERE source_id = ?
		ORDER BY fetched_at DESC, id DESC LIMIT ?`, sourceID, limit)
	if err != nil {
		return nil, storageErr("list history", err)
	}
	defer rows.Close()

	result := []*FetchHistoryEntry{}
	for rows.Next() {
		var e FetchHistoryEntry
		if err := rows.Scan(&e.ID, &e.SourceID, &e.FetchedAt, &e.Status, &e.ContentLength,
			&e.ErrorMessage, &e.FetchDurationMs, &e.ContentHash); err != nil {
			return nil, storageErr("list history", fmt.Errorf("scan: %w", err))
		}
		result = append(result, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list history", err)
	}
	return result, nil
}

// CountHistory returns the number of history entries for a source.
func (s *Store) CountHistory(ctx context.Context, sourceID string) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM fetch_history WHERE source_id = ?`, sourceID).Scan(&n)
	if err != nil {
		return 0, storageErr("count history", err)
	}
	return n, nil
}
