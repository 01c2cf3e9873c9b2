// CLAUDE:SUMMARY Source CRUD, fetch outcome recording, training stamps and registry stats.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hazyhaar/kbase/dbopen"
)

const sourceColumns = `id, name, description, content, keywords, category, priority,
	language, is_active, last_trained, created_at, updated_at, created_by,
	source_type, source_url, fetch_frequency, last_fetched, fetch_status, fetch_error,
	auto_fetch, content_selector, max_content_length, requires_auth, auth_config`

// orderRegistry is the listing order: priority ascending, then creation.
const orderRegistry = ` ORDER BY priority ASC, created_at ASC, id ASC`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// InsertSource adds a new source. Zero-valued defaults are filled in place.
func (s *Store) InsertSource(ctx context.Context, src *Source) error {
	s.fillDefaults(src)
	if err := insertSource(ctx, s.DB, src); err != nil {
		return storageErr("insert source", err)
	}
	return nil
}

// UpsertSources inserts or fully replaces every source in one transaction.
// Fetch state (last_fetched, fetch_status, fetch_error) of existing rows is
// preserved; everything else is overwritten.
func (s *Store) UpsertSources(ctx context.Context, srcs []*Source) error {
	for _, src := range srcs {
		s.fillDefaults(src)
	}
	err := dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		for _, src := range srcs {
			var exists int
			err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM sources WHERE id = ?`, src.ID).Scan(&exists)
			if err != nil {
				return err
			}
			if exists == 0 {
				if err := insertSource(ctx, tx, src); err != nil {
					return fmt.Errorf("insert %s: %w", src.ID, err)
				}
				continue
			}
			if err := updateSource(ctx, tx, src); err != nil {
				return fmt.Errorf("update %s: %w", src.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return storageErr("upsert sources", err)
	}
	return nil
}

// GetSource retrieves a source by ID. Returns nil, nil when absent.
func (s *Store) GetSource(ctx context.Context, id string) (*Source, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE id = ?`, id)
	src, err := scanSource(row)
	if err != nil {
		return nil, storageErr("get source", err)
	}
	return src, nil
}

// ListSources returns every source in registry order.
func (s *Store) ListSources(ctx context.Context) ([]*Source, error) {
	return s.querySources(ctx, "list sources",
		`SELECT `+sourceColumns+` FROM sources`+orderRegistry)
}

// ListExternalSources returns every non-internal source in registry order.
func (s *Store) ListExternalSources(ctx context.Context) ([]*Source, error) {
	return s.querySources(ctx, "list external sources",
		`SELECT `+sourceColumns+` FROM sources WHERE source_type != 'internal'`+orderRegistry)
}

// ListAutoFetchSources returns the candidates for scheduled fetching: external,
// auto_fetch enabled, with a URL, not disabled. Interval filtering is left to
// the caller.
func (s *Store) ListAutoFetchSources(ctx context.Context) ([]*Source, error) {
	return s.querySources(ctx, "list auto-fetch sources",
		`SELECT `+sourceColumns+` FROM sources
		WHERE source_type != 'internal'
		  AND auto_fetch = 1
		  AND source_url != ''
		  AND fetch_status != 'disabled'`+orderRegistry)
}

// ListActiveSources returns active sources for compilation.
func (s *Store) ListActiveSources(ctx context.Context) ([]*Source, error) {
	return s.querySources(ctx, "list active sources",
		`SELECT `+sourceColumns+` FROM sources WHERE is_active = 1`+orderRegistry)
}

// UpdateSource writes every mutable field of src and refreshes updated_at.
// Returns false when no row carries src.ID.
func (s *Store) UpdateSource(ctx context.Context, src *Source) (bool, error) {
	src.UpdatedAt = s.nowMilli()
	res, err := updateSourceResult(ctx, s.DB, src)
	if err != nil {
		return false, storageErr("update source", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// DeleteSource removes a source; its fetch history cascades. Deleting an
// unknown id is not an error.
func (s *Store) DeleteSource(ctx context.Context, id string) (bool, error) {
	res, err := dbopen.Exec(ctx, s.DB, `DELETE FROM sources WHERE id = ?`, id)
	if err != nil {
		return false, storageErr("delete source", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// RecordFetchSuccess stores fetched content and marks the source successful.
// Returns the last_fetched timestamp written.
func (s *Store) RecordFetchSuccess(ctx context.Context, id, content string) (int64, error) {
	now := s.nowMilli()
	_, err := dbopen.Exec(ctx, s.DB,
		`UPDATE sources SET content = ?, last_fetched = ?, fetch_status = 'success',
		fetch_error = NULL, updated_at = ?
		WHERE id = ?`, content, now, now, id)
	if err != nil {
		return 0, storageErr("record fetch success", err)
	}
	return now, nil
}

// RecordFetchFailure marks a fetch as failed. Content and last_fetched are
// left untouched so the last good copy keeps serving.
func (s *Store) RecordFetchFailure(ctx context.Context, id, errMsg string) error {
	_, err := dbopen.Exec(ctx, s.DB,
		`UPDATE sources SET fetch_status = 'failed', fetch_error = ?, updated_at = ?
		WHERE id = ?`, errMsg, s.nowMilli(), id)
	if err != nil {
		return storageErr("record fetch failure", err)
	}
	return nil
}

// ResetFetchState returns a failed or disabled source to pending.
func (s *Store) ResetFetchState(ctx context.Context, id string) (bool, error) {
	return s.SetFetchStatus(ctx, id, StatusPending)
}

// SetFetchStatus sets fetch_status and clears fetch_error. Used by operators
// to disable a source or put it back in rotation.
func (s *Store) SetFetchStatus(ctx context.Context, id, status string) (bool, error) {
	res, err := dbopen.Exec(ctx, s.DB,
		`UPDATE sources SET fetch_status = ?, fetch_error = NULL, updated_at = ?
		WHERE id = ?`, status, s.nowMilli(), id)
	if err != nil {
		return false, storageErr("set fetch status", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// MarkTrained stamps last_trained on the given sources. Returns the stamp.
func (s *Store) MarkTrained(ctx context.Context, ids []string) (int64, error) {
	now := s.nowMilli()
	err := dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		for _, id := range ids {
			if _, err := tx.ExecContext(ctx,
				`UPDATE sources SET last_trained = ? WHERE id = ?`, now, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, storageErr("mark trained", err)
	}
	return now, nil
}

// Stats returns registry counters.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{ByFetchStatus: make(map[string]int)}
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*),
			COALESCE(SUM(is_active), 0),
			COALESCE(SUM(CASE WHEN source_type != 'internal' THEN 1 ELSE 0 END), 0)
		FROM sources`).Scan(&st.Sources, &st.Active, &st.External)
	if err != nil {
		return nil, storageErr("stats", err)
	}

	rows, err := s.DB.QueryContext(ctx,
		`SELECT fetch_status, COUNT(*) FROM sources
		WHERE source_type != 'internal' GROUP BY fetch_status`)
	if err != nil {
		return nil, storageErr("stats", err)
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return nil, storageErr("stats", err)
		}
		st.ByFetchStatus[status] = n
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, storageErr("stats", err)
	}
	rows.Close()

	if err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM fetch_history`).Scan(&st.HistoryRows); err != nil {
		return nil, storageErr("stats", err)
	}
	return st, nil
}

func (s *Store) fillDefaults(src *Source) {
	now := s.nowMilli()
	if src.CreatedAt == 0 {
		src.CreatedAt = now
	}
	if src.UpdatedAt == 0 {
		src.UpdatedAt = now
	}
	if src.SourceType == "" {
		src.SourceType = SourceTypeInternal
	}
	if src.Language == "" {
		src.Language = LanguageBoth
	}
	if src.FetchFrequency == "" {
		src.FetchFrequency = FrequencyManual
	}
	if src.FetchStatus == "" {
		src.FetchStatus = StatusPending
	}
	if src.MaxContentLength <= 0 {
		src.MaxContentLength = DefaultMaxContentLength
	}
	if src.Keywords == nil {
		src.Keywords = []string{}
	}
}

func insertSource(ctx context.Context, db execer, src *Source) error {
	kw, err := json.Marshal(src.Keywords)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO sources (`+sourceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		src.ID, src.Name, src.Description, src.Content, string(kw), src.Category, src.Priority,
		src.Language, src.IsActive, src.LastTrained, src.CreatedAt, src.UpdatedAt, src.CreatedBy,
		src.SourceType, src.SourceURL, src.FetchFrequency, src.LastFetched, src.FetchStatus, src.FetchError,
		src.AutoFetch, src.ContentSelector, src.MaxContentLength, src.RequiresAuth, nullJSON(src.AuthConfig),
	)
	return err
}

func updateSource(ctx context.Context, db execer, src *Source) error {
	_, err := updateSourceResult(ctx, db, src)
	return err
}

func updateSourceResult(ctx context.Context, db execer, src *Source) (sql.Result, error) {
	kw, err := json.Marshal(src.Keywords)
	if err != nil {
		return nil, err
	}
	if src.Keywords == nil {
		kw = []byte("[]")
	}
	return db.ExecContext(ctx,
		`UPDATE sources SET name=?, description=?, content=?, keywords=?, category=?,
		priority=?, language=?, is_active=?, source_type=?, source_url=?,
		fetch_frequency=?, auto_fetch=?, content_selector=?, max_content_length=?,
		requires_auth=?, auth_config=?, updated_at=?
		WHERE id=?`,
		src.Name, src.Description, src.Content, string(kw), src.Category,
		src.Priority, src.Language, src.IsActive, src.SourceType, src.SourceURL,
		src.FetchFrequency, src.AutoFetch, src.ContentSelector, src.MaxContentLength,
		src.RequiresAuth, nullJSON(src.AuthConfig), src.UpdatedAt,
		src.ID,
	)
}

func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func (s *Store) querySources(ctx context.Context, op, query string, args ...any) ([]*Source, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr(op, err)
	}
	defer rows.Close()

	var sources []*Source
	for rows.Next() {
		src, err := scanSourceRows(rows)
		if err != nil {
			return nil, storageErr(op, err)
		}
		sources = append(sources, src)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(op, err)
	}
	return sources, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSource(row *sql.Row) (*Source, error) {
	src, err := scanInto(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return src, err
}

func scanSourceRows(rows *sql.Rows) (*Source, error) {
	return scanInto(rows)
}

func scanInto(sc scanner) (*Source, error) {
	var src Source
	var keywords string
	var isActive, autoFetch, requiresAuth int
	var authConfig sql.NullString
	err := sc.Scan(&src.ID, &src.Name, &src.Description, &src.Content, &keywords, &src.Category,
		&src.Priority, &src.Language, &isActive, &src.LastTrained, &src.CreatedAt, &src.UpdatedAt,
		&src.CreatedBy, &src.SourceType, &src.SourceURL, &src.FetchFrequency, &src.LastFetched,
		&src.FetchStatus, &src.FetchError, &autoFetch, &src.ContentSelector, &src.MaxContentLength,
		&requiresAuth, &authConfig)
	if err != nil {
		return nil, err
	}
	src.IsActive = isActive != 0
	src.AutoFetch = autoFetch != 0
	src.RequiresAuth = requiresAuth != 0
	if authConfig.Valid && authConfig.String != "" {
		src.AuthConfig = json.RawMessage(authConfig.String)
	}
	src.Keywords = []string{}
	if keywords != "" {
		if err := json.Unmarshal([]byte(keywords), &src.Keywords); err != nil {
			return nil, fmt.Errorf("decode keywords for %s: %w", src.ID, err)
		}
	}
	return &src, nil
}
