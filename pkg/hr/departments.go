package hr

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/platinummonkey/scorecard/pkg/storage"
)

const departmentColumns = "id, name, description, head_of_department_id, org_id, created_by, created_at, updated_at"

func scanDepartment(row rowScanner) (*Department, error) {
	d := &Department{}
	var description sql.NullString
	err := row.Scan(&d.ID, &d.Name, &description, &d.HeadOfDepartmentID, &d.OrgID, &d.CreatedBy, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	d.Description = description.String
	return d, nil
}

// departmentNameTaken checks case-insensitive uniqueness within orgID, or
// across every organization when orgID is nil
func (s *Store) departmentNameTaken(ctx context.Context, name string, orgID *int64, exceptID int64) (bool, error) {
	scope := storage.Live().
		Where("LOWER(name) = LOWER(?)", name).
		WhereIf(orgID != nil, "org_id = ?", orgID).
		WhereIf(exceptID > 0, "id <> ?", exceptID)
	return s.exists(ctx, "departments", scope)
}

// ListDepartments returns live departments ordered by name, limited to
// orgID when it is set
func (s *Store) ListDepartments(ctx context.Context, orgID *int64) ([]*Department, error) {
	where, args := storage.Live().WhereIf(orgID != nil, "org_id = ?", orgID).SQL()
	rows, err := s.db.QueryContext(ctx, "SELECT "+departmentColumns+" FROM departments"+where+" ORDER BY name", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list departments: %w", err)
	}
	defer rows.Close()

	out := []*Department{}
	for rows.Next() {
		d, err := scanDepartment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan department: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// GetDepartment returns a live department
func (s *Store) GetDepartment(ctx context.Context, id int64) (*Department, error) {
	where, args := storage.Live().Where("id = ?", id).SQL()
	d, err := scanDepartment(s.db.QueryRowContext(ctx, "SELECT "+departmentColumns+" FROM departments"+where, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get department: %w", err)
	}
	return d, nil
}

// CreateDepartment inserts a department. in.OrgID must already be resolved.
func (s *Store) CreateDepartment(ctx context.Context, in DepartmentInput, createdBy int64) (*Department, error) {
	name := strings.TrimSpace(str(in.Name))
	if name == "" {
		return nil, storage.Invalidf("name is required")
	}
	taken, err := s.departmentNameTaken(ctx, name, in.OrgID, 0)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, storage.Conflictf("Department '%s' already exists", name)
	}

	now := s.now()
	var id int64
	err = s.db.QueryRowContext(ctx,
		"INSERT INTO departments (name, description, head_of_department_id, org_id, created_by, created_at, updated_at)"+
			" VALUES ($1, $2, $3, $4, $5, $6, $6) RETURNING id",
		name, str(in.Description), in.HeadOfDepartmentID, in.OrgID, creator(createdBy), now).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("failed to create department: %w", err)
	}
	return s.GetDepartment(ctx, id)
}

// UpdateDepartment applies the non-nil fields of in
func (s *Store) UpdateDepartment(ctx context.Context, id int64, in DepartmentInput) (*Department, error) {
	current, err := s.GetDepartment(ctx, id)
	if err != nil {
		return nil, err
	}

	changes := &storage.Changes{}
	if name := strings.TrimSpace(str(in.Name)); name != "" && name != current.Name {
		taken, err := s.departmentNameTaken(ctx, name, current.OrgID, id)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, storage.Conflictf("Department '%s' already exists", name)
		}
		changes.Set("name", name)
	}
	changes.SetIf(in.Description != nil, "description", str(in.Description))
	changes.SetIf(in.HeadOfDepartmentID != nil, "head_of_department_id", in.HeadOfDepartmentID)
	changes.SetIf(in.OrgID != nil, "org_id", in.OrgID)

	if err := s.update(ctx, "departments", id, changes); err != nil {
		return nil, err
	}
	return s.GetDepartment(ctx, id)
}

// DeleteDepartment soft-deletes a department
func (s *Store) DeleteDepartment(ctx context.Context, id int64) error {
	return s.softDelete(ctx, "departments", id)
}
