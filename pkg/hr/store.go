package hr

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/platinummonkey/scorecard/pkg/storage"
)

// Store persists departments, positions and employees. Reads never return
// soft-deleted rows.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a new HR store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// exists reports whether a live row of table matches scope
func (s *Store) exists(ctx context.Context, table string, scope *storage.Scope) (bool, error) {
	where, args := scope.SQL()
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table+where, args...).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to query %s: %w", table, err)
	}
	return n > 0, nil
}

// softDelete stamps deleted_at on a live row, or returns storage.ErrNotFound
func (s *Store) softDelete(ctx context.Context, table string, id int64) error {
	where, args := storage.Live().Where("id = ?", id).SQLFrom(3)
	res, err := s.db.ExecContext(ctx,
		"UPDATE "+table+" SET deleted_at = $1, updated_at = $2"+where,
		append([]interface{}{s.now(), s.now()}, args...)...)
	if err != nil {
		return fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// update applies changes to a live row
func (s *Store) update(ctx context.Context, table string, id int64, changes *storage.Changes) error {
	changes.Set("updated_at", s.now())
	set, args := changes.SQL()
	where, whereArgs := storage.Live().Where("id = ?", id).SQLFrom(len(args) + 1)
	if _, err := s.db.ExecContext(ctx, "UPDATE "+table+set+where, append(args, whereArgs...)...); err != nil {
		return fmt.Errorf("failed to update %s: %w", table, err)
	}
	return nil
}

func creator(id int64) *int64 {
	if id <= 0 {
		return nil
	}
	return &id
}
