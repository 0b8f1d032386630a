package hr

import (
	"time"
)

// Permission codes guarding HR master data
const (
	PermissionManageDepartments = "manage_departments"
	PermissionManagePositions   = "manage_positions"
	PermissionViewAllEmployees  = "view_all_employees"
	PermissionViewTeamEmployees = "view_team_employees"
	PermissionCreateEmployee    = "create_employee"
	PermissionEditEmployee      = "edit_employee_profile"
	PermissionDeleteEmployee    = "delete_employee"
)

// DateLayout is the wire format of employee dates
const DateLayout = "2006-01-02"

// Department groups positions and employees within an organization
type Department struct {
	ID                 int64     `json:"id"`
	Name               string    `json:"name"`
	Description        string    `json:"description,omitempty"`
	HeadOfDepartmentID *int64    `json:"head_of_department_id"`
	OrgID              *int64    `json:"org_id"`
	CreatedBy          *int64    `json:"created_by,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// DepartmentInput carries the writable department fields. On update nil
// fields are left unchanged.
type DepartmentInput struct {
	Name               *string `json:"name"`
	Description        *string `json:"description"`
	HeadOfDepartmentID *int64  `json:"head_of_department_id"`
	OrgID              *int64  `json:"org_id"`
}

// Position is a job title, optionally bound to a department
type Position struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	DepartmentID *int64    `json:"department_id"`
	OrgID        *int64    `json:"org_id"`
	GradeLevel   string    `json:"grade_level,omitempty"`
	Description  string    `json:"description,omitempty"`
	CreatedBy    *int64    `json:"created_by,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// PositionInput carries the writable position fields
type PositionInput struct {
	Title        *string `json:"title"`
	DepartmentID *int64  `json:"department_id"`
	OrgID        *int64  `json:"org_id"`
	GradeLevel   *string `json:"grade_level"`
	Description  *string `json:"description"`
}

// Employee is a staffed person. ID is the row id; EmployeeID is the
// human-facing code such as EMP007.
type Employee struct {
	ID                 int64     `json:"id"`
	EmployeeID         string    `json:"employee_id"`
	FullName           string    `json:"full_name"`
	Email              string    `json:"email"`
	Phone              string    `json:"phone,omitempty"`
	JoiningDate        string    `json:"joining_date"`
	PositionID         *int64    `json:"position_id"`
	DepartmentID       *int64    `json:"department_id"`
	ReportingManagerID *int64    `json:"reporting_manager_id"`
	OrgID              *int64    `json:"org_id"`
	EmploymentStatus   string    `json:"employment_status"`
	IsActive           bool      `json:"is_active"`
	CreatedBy          *int64    `json:"created_by,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// EmployeeInput carries the writable employee fields
type EmployeeInput struct {
	EmployeeID         *string `json:"employee_id"`
	FullName           *string `json:"full_name"`
	Email              *string `json:"email"`
	Phone              *string `json:"phone"`
	JoiningDate        *string `json:"joining_date"`
	PositionID         *int64  `json:"position_id"`
	DepartmentID       *int64  `json:"department_id"`
	ReportingManagerID *int64  `json:"reporting_manager_id"`
	OrgID              *int64  `json:"org_id"`
	EmploymentStatus   *string `json:"employment_status"`
	IsActive           *bool   `json:"is_active"`
}

// EmployeeFilter narrows an employee listing. Nil fields do not filter.
type EmployeeFilter struct {
	OrgID           *int64
	ManagerID       *int64
	IncludeInactive bool
}

func str(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
