// Package store is the SQLite data access layer for the knowledge registry
// and its fetch history. It receives an already-opened *sql.DB.
package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/hazyhaar/kbase/knowledge/internal/kerr"
)

// Store wraps the knowledge database.
type Store struct {
	DB *sql.DB

	// Now supplies timestamps for created_at/updated_at/last_fetched.
	Now func() time.Time
}

// NewStore creates a Store from an already-opened database connection.
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db, Now: time.Now}
}

func (s *Store) nowMilli() int64 {
	return s.Now().UnixMilli()
}

// storageErr tags a database failure so callers can match ErrStorageUnavailable.
func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", kerr.ErrStorageUnavailable, op, err)
}
