package hr

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/scorecard/pkg/storage"
)

const employeeColumns = "id, employee_id, full_name, email, phone, joining_date, position_id, department_id," +
	" reporting_manager_id, org_id, employment_status, is_active, created_by, created_at, updated_at"

// employeeCodePrefix prefixes generated employee codes
const employeeCodePrefix = "EMP"

func scanEmployee(row rowScanner) (*Employee, error) {
	e := &Employee{}
	var phone sql.NullString
	var joined time.Time
	err := row.Scan(&e.ID, &e.EmployeeID, &e.FullName, &e.Email, &phone, &joined,
		&e.PositionID, &e.DepartmentID, &e.ReportingManagerID, &e.OrgID,
		&e.EmploymentStatus, &e.IsActive, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.Phone = phone.String
	e.JoiningDate = joined.Format(DateLayout)
	return e, nil
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, storage.Invalidf("joining_date must be YYYY-MM-DD")
	}
	return t, nil
}

// NextEmployeeCode returns the next free EMPnnn code. Numbering follows the
// highest existing code in orgID, or across all employees when orgID is nil.
func (s *Store) NextEmployeeCode(ctx context.Context, orgID *int64) (string, error) {
	where, args := storage.Live().
		Where("employee_id LIKE ?", employeeCodePrefix+"%").
		WhereIf(orgID != nil, "org_id = ?", orgID).
		SQL()
	rows, err := s.db.QueryContext(ctx, "SELECT employee_id FROM employees"+where, args...)
	if err != nil {
		return "", fmt.Errorf("failed to read employee codes: %w", err)
	}
	highest := 0
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			rows.Close()
			return "", fmt.Errorf("failed to scan employee code: %w", err)
		}
		n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(code, employeeCodePrefix)))
		if err == nil && n > highest {
			highest = n
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return "", fmt.Errorf("failed to read employee codes: %w", err)
	}
	rows.Close()

	for next := highest + 1; ; next++ {
		code := fmt.Sprintf("%s%03d", employeeCodePrefix, next)
		taken, err := s.exists(ctx, "employees", storage.Live().Where("employee_id = ?", code))
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
}

// ListEmployees returns live employees ordered by name
func (s *Store) ListEmployees(ctx context.Context, filter EmployeeFilter) ([]*Employee, error) {
	where, args := storage.Live().
		WhereIf(filter.OrgID != nil, "org_id = ?", filter.OrgID).
		WhereIf(filter.ManagerID != nil, "reporting_manager_id = ?", filter.ManagerID).
		WhereIf(!filter.IncludeInactive, "is_active = ?", true).
		SQL()
	rows, err := s.db.QueryContext(ctx, "SELECT "+employeeColumns+" FROM employees"+where+" ORDER BY full_name", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list employees: %w", err)
	}
	defer rows.Close()

	out := []*Employee{}
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan employee: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetEmployee returns a live employee by row id
func (s *Store) GetEmployee(ctx context.Context, id int64) (*Employee, error) {
	where, args := storage.Live().Where("id = ?", id).SQL()
	e, err := scanEmployee(s.db.QueryRowContext(ctx, "SELECT "+employeeColumns+" FROM employees"+where, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get employee: %w", err)
	}
	return e, nil
}

func (s *Store) emailTaken(ctx context.Context, email string, exceptID int64) (bool, error) {
	return s.exists(ctx, "employees", storage.Live().
		Where("LOWER(email) = LOWER(?)", email).
		WhereIf(exceptID > 0, "id <> ?", exceptID))
}

func (s *Store) codeTaken(ctx context.Context, code string, exceptID int64) (bool, error) {
	return s.exists(ctx, "employees", storage.Live().
		Where("employee_id = ?", code).
		WhereIf(exceptID > 0, "id <> ?", exceptID))
}

// CreateEmployee inserts an employee, generating its code when none is
// given. in.OrgID must already be resolved.
func (s *Store) CreateEmployee(ctx context.Context, in EmployeeInput, createdBy int64) (*Employee, error) {
	fullName := strings.TrimSpace(str(in.FullName))
	email := strings.TrimSpace(str(in.Email))
	switch {
	case fullName == "":
		return nil, storage.Invalidf("full_name is required")
	case email == "":
		return nil, storage.Invalidf("email is required")
	case strings.TrimSpace(str(in.JoiningDate)) == "":
		return nil, storage.Invalidf("joining_date is required")
	}
	joined, err := parseDate(str(in.JoiningDate))
	if err != nil {
		return nil, err
	}

	taken, err := s.emailTaken(ctx, email, 0)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, storage.Conflictf("Employee with email '%s' already exists", email)
	}

	code := strings.TrimSpace(str(in.EmployeeID))
	if code == "" {
		if code, err = s.NextEmployeeCode(ctx, in.OrgID); err != nil {
			return nil, err
		}
	} else {
		taken, err := s.codeTaken(ctx, code, 0)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, storage.Conflictf("Employee with employee_id '%s' already exists", code)
		}
	}

	status := "Active"
	if in.EmploymentStatus != nil && *in.EmploymentStatus != "" {
		status = *in.EmploymentStatus
	}
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}

	now := s.now()
	var id int64
	err = s.db.QueryRowContext(ctx,
		"INSERT INTO employees (employee_id, full_name, email, phone, joining_date, position_id, department_id,"+
			" reporting_manager_id, org_id, employment_status, is_active, created_by, created_at, updated_at)"+
			" VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13) RETURNING id",
		code, fullName, email, str(in.Phone), joined, in.PositionID, in.DepartmentID,
		in.ReportingManagerID, in.OrgID, status, active, creator(createdBy), now).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("failed to create employee: %w", err)
	}
	return s.GetEmployee(ctx, id)
}

// UpdateEmployee applies the non-nil fields of in
func (s *Store) UpdateEmployee(ctx context.Context, id int64, in EmployeeInput) (*Employee, error) {
	current, err := s.GetEmployee(ctx, id)
	if err != nil {
		return nil, err
	}

	changes := &storage.Changes{}
	if email := strings.TrimSpace(str(in.Email)); email != "" && email != current.Email {
		taken, err := s.emailTaken(ctx, email, id)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, storage.Conflictf("Employee with email '%s' already exists", email)
		}
		changes.Set("email", email)
	}
	if code := strings.TrimSpace(str(in.EmployeeID)); code != "" && code != current.EmployeeID {
		taken, err := s.codeTaken(ctx, code, id)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, storage.Conflictf("Employee with employee_id '%s' already exists", code)
		}
		changes.Set("employee_id", code)
	}
	if in.ReportingManagerID != nil && *in.ReportingManagerID == id {
		return nil, storage.Invalidf("an employee cannot report to themselves")
	}
	if in.JoiningDate != nil {
		joined, err := parseDate(*in.JoiningDate)
		if err != nil {
			return nil, err
		}
		changes.Set("joining_date", joined)
	}
	changes.SetIf(in.FullName != nil && strings.TrimSpace(str(in.FullName)) != "", "full_name", strings.TrimSpace(str(in.FullName)))
	changes.SetIf(in.Phone != nil, "phone", str(in.Phone))
	changes.SetIf(in.PositionID != nil, "position_id", in.PositionID)
	changes.SetIf(in.DepartmentID != nil, "department_id", in.DepartmentID)
	changes.SetIf(in.ReportingManagerID != nil, "reporting_manager_id", in.ReportingManagerID)
	changes.SetIf(in.OrgID != nil, "org_id", in.OrgID)
	changes.SetIf(in.EmploymentStatus != nil && *in.EmploymentStatus != "", "employment_status", str(in.EmploymentStatus))
	if in.IsActive != nil {
		changes.Set("is_active", *in.IsActive)
	}

	if err := s.update(ctx, "employees", id, changes); err != nil {
		return nil, err
	}
	return s.GetEmployee(ctx, id)
}

// DeleteEmployee soft-deletes and deactivates an employee
func (s *Store) DeleteEmployee(ctx context.Context, id int64) error {
	if err := s.update(ctx, "employees", id, (&storage.Changes{}).Set("is_active", false)); err != nil {
		return err
	}
	return s.softDelete(ctx, "employees", id)
}
