package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/scorecard/pkg/auth"
	"github.com/platinummonkey/scorecard/pkg/storage"
)

// Store persists accounts. Reads never return soft-deleted rows.
type Store struct {
	db *sql.DB
}

// NewStore creates a new user store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

var _ auth.UserFinder = (*Store)(nil)

const userSelect = "SELECT u.id, u.username, u.email, u.password, u.role_id, r.role_name, u.employee_id, u.org_id," +
	" u.is_active, u.last_login, u.created_by, u.created_at, u.updated_at" +
	" FROM users u LEFT JOIN roles r ON r.id = u.role_id AND r.deleted_at IS NULL"

func scanUser(row interface{ Scan(...interface{}) error }) (*auth.User, error) {
	u := &auth.User{}
	var roleName sql.NullString
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.RoleID, &roleName, &u.EmployeeID, &u.OrgID,
		&u.IsActive, &u.LastLogin, &u.CreatedBy, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.RoleName = roleName.String
	return u, nil
}

func (s *Store) getOne(ctx context.Context, scope *storage.Scope) (*auth.User, error) {
	where, args := scope.SQL()
	u, err := scanUser(s.db.QueryRowContext(ctx, userSelect+where, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// GetUser returns a live account
func (s *Store) GetUser(ctx context.Context, id int64) (*auth.User, error) {
	return s.getOne(ctx, storage.LiveOn("u").Where("u.id = ?", id))
}

// FindByEmail returns the live account with email
func (s *Store) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	return s.getOne(ctx, storage.LiveOn("u").Where("u.email = ?", email))
}

// TouchLastLogin records a successful login
func (s *Store) TouchLastLogin(ctx context.Context, userID int64, at time.Time) error {
	if _, err := s.db.ExecContext(ctx, "UPDATE users SET last_login = $1 WHERE id = $2", at, userID); err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}

// ListUsers returns live accounts ordered by username, limited to orgID
// when it is set
func (s *Store) ListUsers(ctx context.Context, orgID *int64, includeInactive bool) ([]*auth.User, error) {
	where, args := storage.LiveOn("u").
		WhereIf(orgID != nil, "u.org_id = ?", orgID).
		WhereIf(!includeInactive, "u.is_active = ?", true).
		SQL()
	rows, err := s.db.QueryContext(ctx, userSelect+where+" ORDER BY u.username", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	out := []*auth.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) taken(ctx context.Context, column, value string, exceptID int64) (bool, error) {
	where, args := storage.Live().
		Where(column+" = ?", value).
		WhereIf(exceptID > 0, "id <> ?", exceptID).
		SQL()
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users"+where, args...).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check %s: %w", column, err)
	}
	return n > 0, nil
}

// CreateUser inserts an account with a bcrypt-hashed password. in.RoleID
// and in.OrgID must already be resolved.
func (s *Store) CreateUser(ctx context.Context, in CreateUserInput, createdBy int64) (*auth.User, error) {
	username := strings.TrimSpace(in.Username)
	email := strings.TrimSpace(in.Email)
	switch {
	case username == "" || email == "" || in.Password == "":
		return nil, storage.Invalidf("username, email and password are required")
	case in.RoleID == nil:
		return nil, storage.Invalidf("Either role_id or role_name must be provided")
	}

	if taken, err := s.taken(ctx, "email", email, 0); err != nil {
		return nil, err
	} else if taken {
		return nil, storage.Conflictf("User with this email already exists")
	}
	if taken, err := s.taken(ctx, "username", username, 0); err != nil {
		return nil, err
	} else if taken {
		return nil, storage.Conflictf("User with this username already exists")
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	var creator *int64
	if createdBy > 0 {
		creator = &createdBy
	}

	now := time.Now().UTC()
	var id int64
	err = s.db.QueryRowContext(ctx,
		"INSERT INTO users (username, email, password, role_id, employee_id, org_id, is_active, created_by, created_at, updated_at)"+
			" VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9) RETURNING id",
		username, email, hash, *in.RoleID, in.EmployeeID, in.OrgID, active, creator, now).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return s.GetUser(ctx, id)
}

// UpdateUser applies the non-nil fields of in. in.RoleID must already be
// resolved when a role change was requested.
func (s *Store) UpdateUser(ctx context.Context, id int64, in UpdateUserInput) (*auth.User, error) {
	current, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}

	changes := &storage.Changes{}
	if email := strings.TrimSpace(deref(in.Email)); email != "" && email != current.Email {
		if taken, err := s.taken(ctx, "email", email, id); err != nil {
			return nil, err
		} else if taken {
			return nil, storage.Conflictf("User with email '%s' already exists", email)
		}
		changes.Set("email", email)
	}
	if username := strings.TrimSpace(deref(in.Username)); username != "" && username != current.Username {
		if taken, err := s.taken(ctx, "username", username, id); err != nil {
			return nil, err
		} else if taken {
			return nil, storage.Conflictf("User with username '%s' already exists", username)
		}
		changes.Set("username", username)
	}
	if password := deref(in.Password); password != "" {
		hash, err := auth.HashPassword(password)
		if err != nil {
			return nil, err
		}
		changes.Set("password", hash)
	}
	changes.SetIf(in.RoleID != nil, "role_id", in.RoleID)
	changes.SetIf(in.EmployeeID != nil, "employee_id", in.EmployeeID)
	changes.SetIf(in.OrgID != nil, "org_id", in.OrgID)
	if in.IsActive != nil {
		changes.Set("is_active", *in.IsActive)
	}
	changes.Set("updated_at", time.Now().UTC())

	set, args := changes.SQL()
	where, whereArgs := storage.Live().Where("id = ?", id).SQLFrom(len(args) + 1)
	if _, err := s.db.ExecContext(ctx, "UPDATE users"+set+where, append(args, whereArgs...)...); err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return s.GetUser(ctx, id)
}

// DeleteUser soft-deletes and deactivates an account
func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	now := time.Now().UTC()
	where, args := storage.Live().Where("id = ?", id).SQLFrom(4)
	res, err := s.db.ExecContext(ctx, "UPDATE users SET deleted_at = $1, is_active = $2, updated_at = $3"+where,
		append([]interface{}{now, false, now}, args...)...)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
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
