package hr

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/platinummonkey/scorecard/pkg/storage"
)

const positionColumns = "id, title, department_id, org_id, grade_level, description, created_by, created_at, updated_at"

func scanPosition(row rowScanner) (*Position, error) {
	p := &Position{}
	var grade, description sql.NullString
	err := row.Scan(&p.ID, &p.Title, &p.DepartmentID, &p.OrgID, &grade, &description, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.GradeLevel = grade.String
	p.Description = description.String
	return p, nil
}

// positionTitleTaken checks case-insensitive title uniqueness within the
// same organization and department
func (s *Store) positionTitleTaken(ctx context.Context, title string, orgID, departmentID *int64, exceptID int64) (bool, error) {
	scope := storage.Live().
		Where("LOWER(title) = LOWER(?)", title).
		WhereIf(orgID != nil, "org_id = ?", orgID).
		WhereIf(departmentID != nil, "department_id = ?", departmentID).
		WhereIf(exceptID > 0, "id <> ?", exceptID)
	return s.exists(ctx, "positions", scope)
}

// ListPositions returns live positions ordered by title, optionally limited
// to an organization and a department
func (s *Store) ListPositions(ctx context.Context, orgID, departmentID *int64) ([]*Position, error) {
	where, args := storage.Live().
		WhereIf(orgID != nil, "org_id = ?", orgID).
		WhereIf(departmentID != nil, "department_id = ?", departmentID).
		SQL()
	rows, err := s.db.QueryContext(ctx, "SELECT "+positionColumns+" FROM positions"+where+" ORDER BY title", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list positions: %w", err)
	}
	defer rows.Close()

	out := []*Position{}
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetPosition returns a live position
func (s *Store) GetPosition(ctx context.Context, id int64) (*Position, error) {
	where, args := storage.Live().Where("id = ?", id).SQL()
	p, err := scanPosition(s.db.QueryRowContext(ctx, "SELECT "+positionColumns+" FROM positions"+where, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get position: %w", err)
	}
	return p, nil
}

// CreatePosition inserts a position. in.OrgID must already be resolved.
func (s *Store) CreatePosition(ctx context.Context, in PositionInput, createdBy int64) (*Position, error) {
	title := strings.TrimSpace(str(in.Title))
	if title == "" {
		return nil, storage.Invalidf("title is required")
	}
	taken, err := s.positionTitleTaken(ctx, title, in.OrgID, in.DepartmentID, 0)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, storage.Conflictf("Position '%s' already exists in this department/organization", title)
	}

	now := s.now()
	var id int64
	err = s.db.QueryRowContext(ctx,
		"INSERT INTO positions (title, department_id, org_id, grade_level, description, created_by, created_at, updated_at)"+
			" VALUES ($1, $2, $3, $4, $5, $6, $7, $7) RETURNING id",
		title, in.DepartmentID, in.OrgID, str(in.GradeLevel), str(in.Description), creator(createdBy), now).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("failed to create position: %w", err)
	}
	return s.GetPosition(ctx, id)
}

// UpdatePosition applies the non-nil fields of in
func (s *Store) UpdatePosition(ctx context.Context, id int64, in PositionInput) (*Position, error) {
	current, err := s.GetPosition(ctx, id)
	if err != nil {
		return nil, err
	}

	changes := &storage.Changes{}
	if title := strings.TrimSpace(str(in.Title)); title != "" && title != current.Title {
		department := current.DepartmentID
		if in.DepartmentID != nil {
			department = in.DepartmentID
		}
		taken, err := s.positionTitleTaken(ctx, title, current.OrgID, department, id)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, storage.Conflictf("Position '%s' already exists in this department/organization", title)
		}
		changes.Set("title", title)
	}
	changes.SetIf(in.DepartmentID != nil, "department_id", in.DepartmentID)
	changes.SetIf(in.GradeLevel != nil, "grade_level", str(in.GradeLevel))
	changes.SetIf(in.Description != nil, "description", str(in.Description))
	changes.SetIf(in.OrgID != nil, "org_id", in.OrgID)

	if err := s.update(ctx, "positions", id, changes); err != nil {
		return nil, err
	}
	return s.GetPosition(ctx, id)
}

// DeletePosition soft-deletes a position
func (s *Store) DeletePosition(ctx context.Context, id int64) error {
	return s.softDelete(ctx, "positions", id)
}
