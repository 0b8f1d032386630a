package orgs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/scorecard/pkg/storage"
)

// SQLService implements Service over PostgreSQL or SQLite
type SQLService struct {
	db *sql.DB
}

// NewSQLService creates a new SQLService
func NewSQLService(db *sql.DB) *SQLService {
	return &SQLService{db: db}
}

const orgColumns = "id, name, code, description, is_active, created_by, created_at, updated_at"

func scanOrganization(row interface{ Scan(...interface{}) error }) (*Organization, error) {
	org := &Organization{}
	var description sql.NullString
	var createdBy sql.NullInt64
	err := row.Scan(&org.ID, &org.Name, &org.Code, &description, &org.IsActive, &createdBy, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		return nil, err
	}
	org.Description = description.String
	if createdBy.Valid {
		org.CreatedBy = &createdBy.Int64
	}
	return org, nil
}

// codeTaken reports whether a live organization other than exceptID uses
// code, ignoring case
func (s *SQLService) codeTaken(ctx context.Context, code string, exceptID int64) (bool, error) {
	where, args := storage.Live().
		Where("LOWER(code) = LOWER(?)", code).
		WhereIf(exceptID > 0, "id <> ?", exceptID).
		SQL()
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM organizations"+where, args...).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check organization code: %w", err)
	}
	return n > 0, nil
}

// CreateOrganization creates a new organization
func (s *SQLService) CreateOrganization(ctx context.Context, req *CreateOrgRequest, createdBy int64) (*Organization, error) {
	name := strings.TrimSpace(req.Name)
	code := strings.TrimSpace(req.Code)
	if name == "" || code == "" {
		return nil, storage.Invalidf("name and code are required")
	}
	taken, err := s.codeTaken(ctx, code, 0)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, storage.Conflictf("Organization code '%s' already exists", code)
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	now := time.Now().UTC()
	var creator sql.NullInt64
	if createdBy > 0 {
		creator = sql.NullInt64{Int64: createdBy, Valid: true}
	}

	var id int64
	err = s.db.QueryRowContext(ctx,
		"INSERT INTO organizations (name, code, description, is_active, created_by, created_at, updated_at)"+
			" VALUES ($1, $2, $3, $4, $5, $6, $6) RETURNING id",
		name, code, req.Description, active, creator, now).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("failed to create organization: %w", err)
	}
	return s.GetOrganization(ctx, id)
}

// GetOrganization retrieves a live organization by ID
func (s *SQLService) GetOrganization(ctx context.Context, id int64) (*Organization, error) {
	where, args := storage.Live().Where("id = ?", id).SQL()
	return s.getOne(ctx, where, args)
}

// GetOrganizationByCode retrieves a live organization by code, ignoring case
func (s *SQLService) GetOrganizationByCode(ctx context.Context, code string) (*Organization, error) {
	where, args := storage.Live().Where("LOWER(code) = LOWER(?)", code).SQL()
	return s.getOne(ctx, where, args)
}

func (s *SQLService) getOne(ctx context.Context, where string, args []interface{}) (*Organization, error) {
	org, err := scanOrganization(s.db.QueryRowContext(ctx, "SELECT "+orgColumns+" FROM organizations"+where, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return org, nil
}

// ListOrganizations returns live organizations ordered by name
func (s *SQLService) ListOrganizations(ctx context.Context, includeInactive bool) ([]*Organization, error) {
	where, args := storage.Live().WhereIf(!includeInactive, "is_active = ?", true).SQL()
	rows, err := s.db.QueryContext(ctx, "SELECT "+orgColumns+" FROM organizations"+where+" ORDER BY name", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	orgs := []*Organization{}
	for rows.Next() {
		org, err := scanOrganization(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		orgs = append(orgs, org)
	}
	return orgs, rows.Err()
}

// UpdateOrganization applies the non-nil fields of req
func (s *SQLService) UpdateOrganization(ctx context.Context, id int64, req *UpdateOrgRequest) (*Organization, error) {
	current, err := s.GetOrganization(ctx, id)
	if err != nil {
		return nil, err
	}

	changes := &storage.Changes{}
	if req.Code != nil {
		code := strings.TrimSpace(*req.Code)
		if code != "" && code != current.Code {
			taken, err := s.codeTaken(ctx, code, id)
			if err != nil {
				return nil, err
			}
			if taken {
				return nil, storage.Conflictf("Organization code '%s' already exists", code)
			}
			changes.Set("code", code)
		}
	}
	changes.SetIf(req.Name != nil && strings.TrimSpace(deref(req.Name)) != "", "name", strings.TrimSpace(deref(req.Name)))
	changes.SetIf(req.Description != nil, "description", deref(req.Description))
	if req.IsActive != nil {
		changes.Set("is_active", *req.IsActive)
	}
	changes.Set("updated_at", time.Now().UTC())

	set, args := changes.SQL()
	where, whereArgs := storage.Live().Where("id = ?", id).SQLFrom(len(args) + 1)
	if _, err := s.db.ExecContext(ctx, "UPDATE organizations"+set+where, append(args, whereArgs...)...); err != nil {
		return nil, fmt.Errorf("failed to update organization: %w", err)
	}
	return s.GetOrganization(ctx, id)
}

// DeleteOrganization soft-deletes and deactivates an organization
func (s *SQLService) DeleteOrganization(ctx context.Context, id int64) error {
	now := time.Now().UTC()
	where, args := storage.Live().Where("id = ?", id).SQLFrom(3)
	res, err := s.db.ExecContext(ctx,
		"UPDATE organizations SET deleted_at = $1, is_active = $2"+where,
		append([]interface{}{now, false}, args...)...)
	if err != nil {
		return fmt.Errorf("failed to delete organization: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete organization: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
