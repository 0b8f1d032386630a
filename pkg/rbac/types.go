package rbac

import (
	"context"
	"strconv"
	"time"

	"github.com/platinummonkey/scorecard/pkg/auth"
)

// Built-in role names
const (
	RoleUserAdmin    = "User Admin"
	RoleHRAdmin      = "HR Admin"
	RoleManager      = "Manager"
	RoleEmployee     = "Employee"
	RoleExternalUser = "External User"
)

// PermissionManage is required to read and change role grants
const PermissionManage = "manage_permissions"

// Gate failures raised by this package
var ErrInsufficientRole = auth.ErrInsufficientRole

// InsufficientPermissionError lists the codes a caller lacked
type InsufficientPermissionError = auth.InsufficientPermissionError

// Role is a named bundle of permissions assigned to users
type Role struct {
	ID          int64      `json:"id"`
	Name        string     `json:"role_name"`
	Description string     `json:"description,omitempty"`
	IsActive    bool       `json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

// Permission is a single capability identified by its code
type Permission struct {
	ID          int64     `json:"id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RoleRef names a role either by name or by id
type RoleRef struct {
	name string
	id   int64
	byID bool
}

// RoleName refers to a role by name
func RoleName(name string) RoleRef {
	return RoleRef{name: name}
}

// RoleID refers to a role by id
func RoleID(id int64) RoleRef {
	return RoleRef{id: id, byID: true}
}

// ByID reports whether the reference carries an id
func (r RoleRef) ByID() bool { return r.byID }

// Name returns the referenced name; empty for id references
func (r RoleRef) Name() string { return r.name }

// ID returns the referenced id; zero for name references
func (r RoleRef) ID() int64 { return r.id }

func (r RoleRef) String() string {
	if r.byID {
		return "#" + strconv.FormatInt(r.id, 10)
	}
	return r.name
}

// RoleSource loads the active, non-deleted roles
type RoleSource interface {
	ActiveRoles(ctx context.Context) ([]Role, error)
}

// PermissionSource loads permissions and role grants. Grants only ever
// include active, non-deleted permissions.
type PermissionSource interface {
	ActivePermissions(ctx context.Context) ([]Permission, error)

	// RoleGrants maps every non-deleted role to its granted codes
	RoleGrants(ctx context.Context) (map[int64][]string, error)

	// RoleGrantCodes returns the codes granted to one role. It returns
	// storage.ErrNotFound when the role is missing or soft-deleted.
	RoleGrantCodes(ctx context.Context, roleID int64) ([]string, error)

	// PermissionByCode returns the active, non-deleted permission with
	// code, or storage.ErrNotFound
	PermissionByCode(ctx context.Context, code string) (Permission, error)

	// ReplaceRolePermissions makes permissionIDs the complete grant set
	ReplaceRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error

	// RemoveRolePermissions revokes only permissionIDs
	RemoveRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error
}

// UserRoleLookup resolves a live user's role. It returns storage.ErrNotFound
// when the user is missing or soft-deleted.
type UserRoleLookup interface {
	UserRoleID(ctx context.Context, userID int64) (int64, error)
}
