package review

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/scorecard/pkg/storage"
)

const periodColumns = "id, period_name, period_type, start_date, end_date, financial_period, description," +
	" status, is_active, created_by, updated_by, created_at, updated_at"

// Store persists review periods. Reads never return soft-deleted rows.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a new review period store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPeriod(row rowScanner) (*Period, error) {
	p := &Period{}
	var start, end time.Time
	var financial, description sql.NullString
	err := row.Scan(&p.ID, &p.Name, &p.Type, &start, &end, &financial, &description,
		&p.Status, &p.IsActive, &p.CreatedBy, &p.UpdatedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.StartDate = start.Format(DateLayout)
	p.EndDate = end.Format(DateLayout)
	if financial.Valid {
		p.FinancialPeriod = &financial.String
	}
	if description.Valid {
		p.Description = &description.String
	}
	return p, nil
}

func parseDate(field, s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, storage.Invalidf("%s must be YYYY-MM-DD", field)
	}
	return t, nil
}

func validType(t string) error {
	for _, allowed := range PeriodTypes {
		if t == allowed {
			return nil
		}
	}
	return storage.Invalidf("Period type must be one of: %s", strings.Join(PeriodTypes, ", "))
}

func validStatus(s string) error {
	if s != StatusOpen && s != StatusClosed {
		return storage.Invalidf("Status must be one of: %s, %s", StatusOpen, StatusClosed)
	}
	return nil
}

func creator(id int64) *int64 {
	if id <= 0 {
		return nil
	}
	return &id
}

func (s *Store) query(ctx context.Context, scope *storage.Scope) ([]*Period, error) {
	where, args := scope.SQL()
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+periodColumns+" FROM review_periods"+where+" ORDER BY start_date DESC, id DESC", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list review periods: %w", err)
	}
	defer rows.Close()

	out := []*Period{}
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan review period: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// List returns live periods, latest start first
func (s *Store) List(ctx context.Context) ([]*Period, error) {
	return s.query(ctx, storage.Live())
}

// Active returns the live periods that are open
func (s *Store) Active(ctx context.Context) ([]*Period, error) {
	return s.query(ctx, storage.Live().Where("is_active = ?", true))
}

// Get returns a live period
func (s *Store) Get(ctx context.Context, id int64) (*Period, error) {
	where, args := storage.Live().Where("id = ?", id).SQL()
	p, err := scanPeriod(s.db.QueryRowContext(ctx, "SELECT "+periodColumns+" FROM review_periods"+where, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get review period: %w", err)
	}
	return p, nil
}

func (s *Store) nameTaken(ctx context.Context, name string, exceptID int64) (bool, error) {
	where, args := storage.Live().
		Where("LOWER(period_name) = LOWER(?)", name).
		WhereIf(exceptID > 0, "id <> ?", exceptID).
		SQL()
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM review_periods"+where, args...).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to query review periods: %w", err)
	}
	return n > 0, nil
}

// Create inserts a period. The status defaults to Closed; creating an open
// period closes the one currently open.
func (s *Store) Create(ctx context.Context, in PeriodInput, createdBy int64) (*Period, error) {
	name := strings.TrimSpace(str(in.Name))
	var missing []string
	for _, f := range []struct {
		name  string
		value string
	}{
		{"period_name", name},
		{"period_type", str(in.Type)},
		{"start_date", str(in.StartDate)},
		{"end_date", str(in.EndDate)},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return nil, storage.Invalidf("Missing required fields: %s", strings.Join(missing, ", "))
	}

	start, err := parseDate("start_date", *in.StartDate)
	if err != nil {
		return nil, err
	}
	end, err := parseDate("end_date", *in.EndDate)
	if err != nil {
		return nil, err
	}
	if !end.After(start) {
		return nil, storage.Invalidf("End date must be after start date")
	}
	if err := validType(*in.Type); err != nil {
		return nil, err
	}
	status := StatusClosed
	if in.Status != nil {
		status = *in.Status
	}
	if err := validStatus(status); err != nil {
		return nil, err
	}
	if taken, err := s.nameTaken(ctx, name, 0); err != nil {
		return nil, err
	} else if taken {
		return nil, storage.Conflictf("Period name '%s' already exists", name)
	}

	var id int64
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		now := s.now()
		if status == StatusOpen {
			if err := closeOthers(ctx, tx, 0, createdBy, now); err != nil {
				return err
			}
		}
		err := tx.QueryRowContext(ctx,
			"INSERT INTO review_periods (period_name, period_type, start_date, end_date, financial_period, description,"+
				" status, is_active, created_by, created_at, updated_at)"+
				" VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10) RETURNING id",
			name, *in.Type, start, end, in.FinancialPeriod, in.Description,
			status, status == StatusOpen, creator(createdBy), now).Scan(&id)
		if err != nil {
			return fmt.Errorf("failed to create review period: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Update applies the non-nil fields of in. A status change goes through the
// same rules as Open and Close.
func (s *Store) Update(ctx context.Context, id int64, in PeriodInput, updatedBy int64) (*Period, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	changes := &storage.Changes{}
	if name := strings.TrimSpace(str(in.Name)); name != "" && name != current.Name {
		if taken, err := s.nameTaken(ctx, name, id); err != nil {
			return nil, err
		} else if taken {
			return nil, storage.Conflictf("Period name '%s' already exists", name)
		}
		changes.Set("period_name", name)
	}
	if in.Type != nil {
		if err := validType(*in.Type); err != nil {
			return nil, err
		}
		changes.Set("period_type", *in.Type)
	}

	start, err := parseDate("start_date", current.StartDate)
	if err != nil {
		return nil, err
	}
	end, err := parseDate("end_date", current.EndDate)
	if err != nil {
		return nil, err
	}
	if in.StartDate != nil {
		if start, err = parseDate("start_date", *in.StartDate); err != nil {
			return nil, err
		}
		changes.Set("start_date", start)
	}
	if in.EndDate != nil {
		if end, err = parseDate("end_date", *in.EndDate); err != nil {
			return nil, err
		}
		changes.Set("end_date", end)
	}
	if !end.After(start) {
		return nil, storage.Invalidf("End date must be after start date")
	}
	changes.SetIf(in.FinancialPeriod != nil, "financial_period", in.FinancialPeriod)
	changes.SetIf(in.Description != nil, "description", in.Description)

	if in.Status != nil {
		if err := validStatus(*in.Status); err != nil {
			return nil, err
		}
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		now := s.now()
		if changes.Len() > 0 {
			changes.Set("updated_by", creator(updatedBy)).Set("updated_at", now)
			set, args := changes.SQL()
			where, whereArgs := storage.Live().Where("id = ?", id).SQLFrom(len(args) + 1)
			if _, err := tx.ExecContext(ctx, "UPDATE review_periods"+set+where, append(args, whereArgs...)...); err != nil {
				return fmt.Errorf("failed to update review period: %w", err)
			}
		}
		if in.Status != nil {
			return setStatus(ctx, tx, id, *in.Status, updatedBy, now)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Delete soft-deletes a period
func (s *Store) Delete(ctx context.Context, id int64) error {
	now := s.now()
	where, args := storage.Live().Where("id = ?", id).SQLFrom(3)
	res, err := s.db.ExecContext(ctx,
		"UPDATE review_periods SET deleted_at = $1, updated_at = $2"+where,
		append([]interface{}{now, now}, args...)...)
	if err != nil {
		return fmt.Errorf("failed to delete review period: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete review period: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Open marks the period open and closes every other open period
func (s *Store) Open(ctx context.Context, id, by int64) (*Period, error) {
	return s.transition(ctx, id, StatusOpen, by)
}

// Close marks the period closed
func (s *Store) Close(ctx context.Context, id, by int64) (*Period, error) {
	return s.transition(ctx, id, StatusClosed, by)
}

func (s *Store) transition(ctx context.Context, id int64, status string, by int64) (*Period, error) {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		return setStatus(ctx, tx, id, status, by, s.now())
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit review period change: %w", err)
	}
	return nil
}

// closeOthers closes every live open period except exceptID
func closeOthers(ctx context.Context, tx *sql.Tx, exceptID, by int64, now time.Time) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE review_periods SET status = $1, is_active = $2, updated_by = $3, updated_at = $4"+
			" WHERE id <> $5 AND status = $6 AND deleted_at IS NULL",
		StatusClosed, false, creator(by), now, exceptID, StatusOpen)
	if err != nil {
		return fmt.Errorf("failed to close open review periods: %w", err)
	}
	return nil
}

// setStatus moves a live period to status, keeping is_active in step
func setStatus(ctx context.Context, tx *sql.Tx, id int64, status string, by int64, now time.Time) error {
	if status == StatusOpen {
		if err := closeOthers(ctx, tx, id, by, now); err != nil {
			return err
		}
	}
	res, err := tx.ExecContext(ctx,
		"UPDATE review_periods SET status = $1, is_active = $2, updated_by = $3, updated_at = $4"+
			" WHERE id = $5 AND deleted_at IS NULL",
		status, status == StatusOpen, creator(by), now, id)
	if err != nil {
		return fmt.Errorf("failed to update review period status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update review period status: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}
