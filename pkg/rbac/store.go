package rbac

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/scorecard/pkg/storage"
)

// Store handles role and permission persistence. Every read goes through a
// live scope so soft-deleted rows are never returned.
type Store struct {
	db *sql.DB
}

// NewStore creates a new RBAC store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const roleColumns = "id, role_name, description, is_active, created_at, updated_at"

func scanRole(row interface{ Scan(...interface{}) error }) (Role, error) {
	var role Role
	var description sql.NullString
	err := row.Scan(&role.ID, &role.Name, &description, &role.IsActive, &role.CreatedAt, &role.UpdatedAt)
	role.Description = description.String
	return role, err
}

// ActiveRoles returns the active, non-deleted roles ordered by id
func (s *Store) ActiveRoles(ctx context.Context) ([]Role, error) {
	where, args := storage.Live().Where("is_active = ?", true).SQL()
	rows, err := s.db.QueryContext(ctx, "SELECT "+roleColumns+" FROM roles"+where+" ORDER BY id", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// GetRole returns a non-deleted role
func (s *Store) GetRole(ctx context.Context, roleID int64) (*Role, error) {
	where, args := storage.Live().Where("id = ?", roleID).SQL()
	role, err := scanRole(s.db.QueryRowContext(ctx, "SELECT "+roleColumns+" FROM roles"+where, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return &role, nil
}

// RoleNameByID returns the current name of a non-deleted role
func (s *Store) RoleNameByID(ctx context.Context, roleID int64) (string, error) {
	role, err := s.GetRole(ctx, roleID)
	if err != nil {
		return "", err
	}
	return role.Name, nil
}

const permissionColumns = "id, code, name, description, category, is_active, created_at, updated_at"

func scanPermission(row interface{ Scan(...interface{}) error }) (Permission, error) {
	var p Permission
	var description, category sql.NullString
	err := row.Scan(&p.ID, &p.Code, &p.Name, &description, &category, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	p.Description = description.String
	p.Category = category.String
	return p, err
}

func (s *Store) queryPermissions(ctx context.Context, query string, args ...interface{}) ([]Permission, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	defer rows.Close()

	var permissions []Permission
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		permissions = append(permissions, p)
	}
	return permissions, rows.Err()
}

// ActivePermissions returns the active, non-deleted permissions
func (s *Store) ActivePermissions(ctx context.Context) ([]Permission, error) {
	return s.ListPermissions(ctx, false)
}

// PermissionByCode returns the active, non-deleted permission with code
func (s *Store) PermissionByCode(ctx context.Context, code string) (Permission, error) {
	where, args := storage.Live().Where("code = ?", code).Where("is_active = ?", true).SQL()
	p, err := scanPermission(s.db.QueryRowContext(ctx, "SELECT "+permissionColumns+" FROM permissions"+where, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return Permission{}, storage.ErrNotFound
	}
	if err != nil {
		return Permission{}, fmt.Errorf("failed to get permission %q: %w", code, err)
	}
	return p, nil
}

// ListPermissions returns non-deleted permissions ordered by category and
// code, optionally including inactive ones
func (s *Store) ListPermissions(ctx context.Context, includeInactive bool) ([]Permission, error) {
	where, args := storage.Live().WhereIf(!includeInactive, "is_active = ?", true).SQL()
	return s.queryPermissions(ctx,
		"SELECT "+permissionColumns+" FROM permissions"+where+" ORDER BY category, code", args...)
}

// RolePermissions returns the active permissions granted to a non-deleted role
func (s *Store) RolePermissions(ctx context.Context, roleID int64) ([]Permission, error) {
	if _, err := s.GetRole(ctx, roleID); err != nil {
		return nil, err
	}
	where, args := storage.LiveOn("p").
		Where("p.is_active = ?", true).
		Where("rp.role_id = ?", roleID).
		SQL()
	return s.queryPermissions(ctx,
		"SELECT p.id, p.code, p.name, p.description, p.category, p.is_active, p.created_at, p.updated_at"+
			" FROM permissions p JOIN role_permissions rp ON rp.permission_id = p.id"+where+
			" ORDER BY p.category, p.code", args...)
}

// RoleGrants maps every non-deleted role to the codes of its active,
// non-deleted permissions. Roles without grants map to an empty slice.
func (s *Store) RoleGrants(ctx context.Context) (map[int64][]string, error) {
	where, args := storage.Live().SQL()
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM roles"+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	grants := make(map[int64][]string)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		grants[id] = []string{}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	where, args = storage.LiveOn("p").Where("p.is_active = ?", true).SQL()
	rows, err = s.db.QueryContext(ctx,
		"SELECT rp.role_id, p.code FROM role_permissions rp JOIN permissions p ON p.id = rp.permission_id"+where,
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list role grants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var roleID int64
		var code string
		if err := rows.Scan(&roleID, &code); err != nil {
			return nil, fmt.Errorf("failed to scan role grant: %w", err)
		}
		if _, ok := grants[roleID]; ok {
			grants[roleID] = append(grants[roleID], code)
		}
	}
	return grants, rows.Err()
}

// RoleGrantCodes returns the active permission codes granted to a
// non-deleted role
func (s *Store) RoleGrantCodes(ctx context.Context, roleID int64) ([]string, error) {
	permissions, err := s.RolePermissions(ctx, roleID)
	if err != nil {
		return nil, err
	}
	codes := make([]string, len(permissions))
	for i, p := range permissions {
		codes[i] = p.Code
	}
	return codes, nil
}

func (s *Store) requireRole(ctx context.Context, tx *sql.Tx, roleID int64) error {
	where, args := storage.Live().Where("id = ?", roleID).SQL()
	var id int64
	err := tx.QueryRowContext(ctx, "SELECT id FROM roles"+where, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get role: %w", err)
	}
	return nil
}

func int64Args(ids []int64) []interface{} {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// ReplaceRolePermissions replaces the grants of a non-deleted role with
// permissionIDs, ignoring ids of inactive or deleted permissions
func (s *Store) ReplaceRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = s.requireRole(ctx, tx, roleID); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM role_permissions WHERE role_id = $1", roleID); err != nil {
		return fmt.Errorf("failed to clear role permissions: %w", err)
	}

	if len(permissionIDs) > 0 {
		query := "INSERT INTO role_permissions (role_id, permission_id)" +
			" SELECT CAST($1 AS BIGINT), id FROM permissions" +
			" WHERE deleted_at IS NULL AND is_active = $2 AND id IN (" + storage.Placeholders(3, len(permissionIDs)) + ")"
		args := append([]interface{}{roleID, true}, int64Args(permissionIDs)...)
		if _, err = tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to grant role permissions: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit role permissions: %w", err)
	}
	return nil
}

// RemoveRolePermissions revokes permissionIDs from a non-deleted role
func (s *Store) RemoveRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = s.requireRole(ctx, tx, roleID); err != nil {
		return err
	}
	if len(permissionIDs) > 0 {
		query := "DELETE FROM role_permissions WHERE role_id = $1 AND permission_id IN (" +
			storage.Placeholders(2, len(permissionIDs)) + ")"
		args := append([]interface{}{roleID}, int64Args(permissionIDs)...)
		if _, err = tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to revoke role permissions: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit role permissions: %w", err)
	}
	return nil
}

// UserRoleID returns the role of a non-deleted user
func (s *Store) UserRoleID(ctx context.Context, userID int64) (int64, error) {
	where, args := storage.Live().Where("id = ?", userID).SQL()
	var roleID sql.NullInt64
	err := s.db.QueryRowContext(ctx, "SELECT role_id FROM users"+where, args...).Scan(&roleID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, storage.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get user role: %w", err)
	}
	return roleID.Int64, nil
}

// UpsertRole creates the role with an explicit id, or updates its name and
// description if it exists
func (s *Store) UpsertRole(ctx context.Context, id int64, name, description string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		"UPDATE roles SET role_name = $1, description = $2, is_active = $3, updated_at = $4 WHERE id = $5 AND deleted_at IS NULL",
		name, description, true, now, id)
	if err != nil {
		return fmt.Errorf("failed to update role %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update role %q: %w", name, err)
	}
	if n > 0 {
		return nil
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO roles (id, role_name, description, is_active, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $5)",
		id, name, description, true, now)
	if err != nil {
		return fmt.Errorf("failed to insert role %q: %w", name, err)
	}
	return nil
}

// UpsertPermission creates the permission or refreshes the name,
// description and category of the live permission with the same code. It
// returns the permission id.
func (s *Store) UpsertPermission(ctx context.Context, p Permission) (int64, error) {
	now := time.Now().UTC()
	where, args := storage.Live().Where("code = ?", p.Code).SQL()
	var id int64
	err := s.db.QueryRowContext(ctx, "SELECT id FROM permissions"+where, args...).Scan(&id)
	switch {
	case err == nil:
		_, err = s.db.ExecContext(ctx,
			"UPDATE permissions SET name = $1, description = $2, category = $3, updated_at = $4 WHERE id = $5",
			p.Name, p.Description, p.Category, now, id)
		if err != nil {
			return 0, fmt.Errorf("failed to update permission %q: %w", p.Code, err)
		}
		return id, nil
	case errors.Is(err, sql.ErrNoRows):
		err = s.db.QueryRowContext(ctx,
			"INSERT INTO permissions (code, name, description, category, is_active, created_at, updated_at)"+
				" VALUES ($1, $2, $3, $4, $5, $6, $6) RETURNING id",
			p.Code, p.Name, p.Description, p.Category, true, now).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("failed to insert permission %q: %w", p.Code, err)
		}
		return id, nil
	default:
		return 0, fmt.Errorf("failed to look up permission %q: %w", p.Code, err)
	}
}

// GrantPermission adds one grant if it is not present yet and reports
// whether a row was inserted
func (s *Store) GrantPermission(ctx context.Context, roleID, permissionID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO role_permissions (role_id, permission_id) SELECT CAST($1 AS BIGINT), CAST($2 AS BIGINT)"+
			" WHERE NOT EXISTS (SELECT 1 FROM role_permissions WHERE role_id = $1 AND permission_id = $2)",
		roleID, permissionID)
	if err != nil {
		return false, fmt.Errorf("failed to grant permission %d to role %d: %w", permissionID, roleID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to grant permission %d to role %d: %w", permissionID, roleID, err)
	}
	return n > 0, nil
}

// UserRole is a user's identity as far as permissions are concerned
type UserRole struct {
	UserID   int64
	Username string
	RoleID   int64
	RoleName *string
}

// GetUserRole returns the username and role of a non-deleted user. The role
// name is nil when the role itself was deleted.
func (s *Store) GetUserRole(ctx context.Context, userID int64) (*UserRole, error) {
	where, args := storage.LiveOn("u").Where("u.id = ?", userID).SQL()
	var ur UserRole
	var roleName sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT u.id, u.username, u.role_id, r.role_name FROM users u"+
			" LEFT JOIN roles r ON r.id = u.role_id AND r.deleted_at IS NULL"+where,
		args...).Scan(&ur.UserID, &ur.Username, &ur.RoleID, &roleName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user role: %w", err)
	}
	if roleName.Valid {
		ur.RoleName = &roleName.String
	}
	return &ur, nil
}
