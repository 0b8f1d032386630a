package users

import (
	"github.com/platinummonkey/scorecard/pkg/auth"
)

// CreateUserInput carries a new account. The role is given either by id or
// by name; RoleID must be resolved before it reaches the store.
type CreateUserInput struct {
	Username   string  `json:"username"`
	Email      string  `json:"email"`
	Password   string  `json:"password"`
	RoleID     *int64  `json:"role_id"`
	RoleName   *string `json:"role_name"`
	EmployeeID *int64  `json:"employee_id"`
	OrgID      *int64  `json:"org_id"`
	IsActive   *bool   `json:"is_active"`
}

// UpdateUserInput carries account changes. Nil fields are left unchanged.
type UpdateUserInput struct {
	Username   *string `json:"username"`
	Email      *string `json:"email"`
	Password   *string `json:"password"`
	RoleID     *int64  `json:"role_id"`
	RoleName   *string `json:"role_name"`
	EmployeeID *int64  `json:"employee_id"`
	OrgID      *int64  `json:"org_id"`
	IsActive   *bool   `json:"is_active"`
}

// UserView is an account together with the permission codes of its role
type UserView struct {
	*auth.User
	Permissions []string `json:"permissions"`
}
