package auth

import (
	"context"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// User is an account that can log in. Accounts created before organizations
// existed have no OrgID, and not every account maps to an employee.
type User struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	RoleID       int64      `json:"role_id"`
	RoleName     string     `json:"role_name,omitempty"`
	EmployeeID   *int64     `json:"employee_id"`
	OrgID        *int64     `json:"org_id"`
	IsActive     bool       `json:"is_active"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
	CreatedBy    *int64     `json:"created_by,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// UserFinder is the user-record provider consulted at login
type UserFinder interface {
	// FindByEmail returns the live user with email, or storage.ErrNotFound
	FindByEmail(ctx context.Context, email string) (*User, error)
	// TouchLastLogin records a successful login
	TouchLastLogin(ctx context.Context, userID int64, at time.Time) error
}

// RoleLookup resolves a role id against the role table itself, bypassing
// any cache, so a freshly issued token never carries a stale role name
type RoleLookup interface {
	RoleNameByID(ctx context.Context, roleID int64) (string, error)
}

// Identity is what a token asserts about its bearer
type Identity struct {
	UserID     int64
	Username   string
	RoleID     int64
	RoleName   string
	OrgID      *int64
	EmployeeID *int64
}

// IdentityOf builds the token identity for user holding roleName
func IdentityOf(user *User, roleName string) Identity {
	return Identity{
		UserID:     user.ID,
		Username:   user.Username,
		RoleID:     user.RoleID,
		RoleName:   roleName,
		OrgID:      user.OrgID,
		EmployeeID: user.EmployeeID,
	}
}

// Claims is the verified payload of an access token
type Claims struct {
	UserID     int64  `json:"user_id"`
	Username   string `json:"username"`
	RoleID     int64  `json:"role_id"`
	Role       string `json:"role"`
	OrgID      *int64 `json:"org_id,omitempty"`
	EmployeeID *int64 `json:"employee_id,omitempty"`

	// LegacyID is the user id field used by older tokens. Verify folds it
	// into UserID.
	LegacyID *int64 `json:"id,omitempty"`

	jwt.RegisteredClaims
}

// UserIDString returns the user id in decimal, for logging and audit
func (c *Claims) UserIDString() string {
	return strconv.FormatInt(c.UserID, 10)
}
