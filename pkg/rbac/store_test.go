package rbac

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/scorecard/pkg/storage"
)

func TestStore_Roles(t *testing.T) {
	store, db := setupSeededStore(t)
	ctx := context.Background()

	roles, err := store.ActiveRoles(ctx)
	require.NoError(t, err)
	require.Len(t, roles, 5)
	assert.Equal(t, RoleUserAdmin, roles[0].Name)
	assert.Equal(t, int64(1), roles[0].ID)
	assert.Equal(t, RoleExternalUser, roles[4].Name)

	name, err := store.RoleNameByID(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, RoleManager, name)

	_, err = db.ExecContext(ctx, "UPDATE roles SET deleted_at = $1 WHERE id = 5", time.Now().UTC())
	require.NoError(t, err)

	_, err = store.GetRole(ctx, 5)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	roles, err = store.ActiveRoles(ctx)
	require.NoError(t, err)
	assert.Len(t, roles, 4)
}

func TestStore_RolePermissionsFiltersInactiveAndDeleted(t *testing.T) {
	store, db := setupSeededStore(t)
	ctx := context.Background()

	codes, err := store.RoleGrantCodes(ctx, 4)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"view_employee_dashboard", "view_employee_scorecards", "view_self_evaluation", "view_employee_ratings",
	}, codes)

	_, err = db.ExecContext(ctx, "UPDATE permissions SET is_active = $1 WHERE code = 'view_self_evaluation'", false)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, "UPDATE permissions SET deleted_at = $1 WHERE code = 'view_employee_ratings'", time.Now().UTC())
	require.NoError(t, err)

	codes, err = store.RoleGrantCodes(ctx, 4)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"view_employee_dashboard", "view_employee_scorecards"}, codes)

	grants, err := store.RoleGrants(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, codes, grants[4])
	assert.Empty(t, grants[5])
	_, ok := grants[5]
	assert.True(t, ok, "roles without grants are still listed")

	_, err = store.RoleGrantCodes(ctx, 99)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_ReplaceRolePermissions(t *testing.T) {
	store, db := setupSeededStore(t)
	ctx := context.Background()

	a := permissionID(t, db, "create_goal")
	b := permissionID(t, db, "edit_goal")

	require.NoError(t, store.ReplaceRolePermissions(ctx, 5, []int64{a}))
	codes, err := store.RoleGrantCodes(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"create_goal"}, codes)

	require.NoError(t, store.ReplaceRolePermissions(ctx, 5, []int64{b}))
	codes, err = store.RoleGrantCodes(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"edit_goal"}, codes)

	require.NoError(t, store.ReplaceRolePermissions(ctx, 5, nil))
	codes, err = store.RoleGrantCodes(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, codes)

	err = store.ReplaceRolePermissions(ctx, 42, []int64{a})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_ReplaceSkipsInactivePermissions(t *testing.T) {
	store, db := setupSeededStore(t)
	ctx := context.Background()

	active := permissionID(t, db, "create_goal")
	inactive := permissionID(t, db, "edit_goal")
	_, err := db.ExecContext(ctx, "UPDATE permissions SET is_active = $1 WHERE id = $2", false, inactive)
	require.NoError(t, err)

	require.NoError(t, store.ReplaceRolePermissions(ctx, 5, []int64{active, inactive, 9999}))

	var n int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM role_permissions WHERE role_id = 5").Scan(&n))
	assert.Equal(t, 1, n)
}

func TestStore_RemoveRolePermissions(t *testing.T) {
	store, db := setupSeededStore(t)
	ctx := context.Background()

	require.NoError(t, store.RemoveRolePermissions(ctx, 4, []int64{permissionID(t, db, "view_employee_ratings")}))
	codes, err := store.RoleGrantCodes(ctx, 4)
	require.NoError(t, err)
	assert.Len(t, codes, 3)
	assert.NotContains(t, codes, "view_employee_ratings")

	assert.ErrorIs(t, store.RemoveRolePermissions(ctx, 77, []int64{1}), storage.ErrNotFound)
}

func TestStore_UserRole(t *testing.T) {
	store, db := setupSeededStore(t)
	ctx := context.Background()

	id := insertUser(t, db, "mgr", 3)
	roleID, err := store.UserRoleID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(3), roleID)

	ur, err := store.GetUserRole(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "mgr", ur.Username)
	require.NotNil(t, ur.RoleName)
	assert.Equal(t, RoleManager, *ur.RoleName)

	_, err = db.ExecContext(ctx, "UPDATE users SET deleted_at = $1 WHERE id = $2", time.Now().UTC(), id)
	require.NoError(t, err)
	_, err = store.UserRoleID(ctx, id)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = store.GetUserRole(ctx, id)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_ReplaceRollsBackOnInsertFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM roles").WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
	mock.ExpectExec("DELETE FROM role_permissions").WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec("INSERT INTO role_permissions").
		WillReturnError(errors.New("constraint failed"))
	mock.ExpectRollback()

	err = NewStore(db).ReplaceRolePermissions(context.Background(), 3, []int64{1, 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to grant role permissions")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ActiveRolesQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT id, role_name").WillReturnError(errors.New("connection reset"))

	_, err = NewStore(db).ActiveRoles(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list roles")
}

func TestStore_RoleGrantsRowError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT id FROM roles").WillReturnRows(
		sqlmock.NewRows([]string{"id"}).AddRow(1).AddRow(2).RowError(1, errors.New("connection reset")))

	_, err = NewStore(db).RoleGrants(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list roles")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_UpsertRoleRowsAffectedError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE roles").WillReturnResult(sqlmock.NewErrorResult(errors.New("driver does not report rows")))

	err = NewStore(db).UpsertRole(context.Background(), 1, RoleUserAdmin, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to update role")
	assert.NoError(t, mock.ExpectationsWereMet())
}
