package rbac

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/scorecard/pkg/storage"
)

func TestPermissionDirectory_UserCodesMatchRoleGrants(t *testing.T) {
	store, db := setupSeededStore(t)
	ctx := context.Background()
	dir := NewPermissionDirectory(store, store, testLogger(), nil)
	require.NoError(t, dir.Reload(ctx))

	roles, err := store.ActiveRoles(ctx)
	require.NoError(t, err)
	for _, role := range roles {
		userID := insertUser(t, db, "user-"+role.Name, role.ID)

		want, err := store.RoleGrantCodes(ctx, role.ID)
		require.NoError(t, err)
		got, err := dir.UserPermissionCodes(ctx, userID)
		require.NoError(t, err)
		assert.ElementsMatch(t, want, got, role.Name)
	}
}

func TestPermissionDirectory_ManagerScenario(t *testing.T) {
	store, db := setupSeededStore(t)
	ctx := context.Background()
	dir := NewPermissionDirectory(store, store, testLogger(), nil)
	require.NoError(t, dir.Reload(ctx))

	require.NoError(t, dir.AssignPermissions(ctx, 3, []int64{
		permissionID(t, db, "send_score_card_acceptance"),
		permissionID(t, db, "view_team_score_cards"),
	}))
	manager := insertUser(t, db, "manager", 3)

	ok, err := dir.UserHasAny(ctx, manager, "manage_permissions", "view_team_score_cards")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = dir.UserHasAll(ctx, manager, "manage_permissions", "view_team_score_cards")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = dir.UserHasPermission(ctx, manager, "send_score_card_acceptance")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = dir.UserHasAll(ctx, manager)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = dir.UserHasAny(ctx, manager)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPermissionDirectory_AssignReplacesAndIsIdempotent(t *testing.T) {
	store, db := setupSeededStore(t)
	ctx := context.Background()
	dir := NewPermissionDirectory(store, store, testLogger(), nil)
	require.NoError(t, dir.Reload(ctx))

	a := permissionID(t, db, "create_goal")
	b := permissionID(t, db, "edit_goal")

	require.NoError(t, dir.AssignPermissions(ctx, 3, []int64{a}))
	require.NoError(t, dir.AssignPermissions(ctx, 3, []int64{b}))
	codes, err := dir.PermissionsForRole(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"edit_goal"}, codes)

	require.NoError(t, dir.AssignPermissions(ctx, 3, []int64{a, b}))
	once, err := dir.PermissionsForRole(ctx, 3)
	require.NoError(t, err)
	require.NoError(t, dir.AssignPermissions(ctx, 3, []int64{a, b}))
	twice, err := dir.PermissionsForRole(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, once, twice)
	assert.Equal(t, []string{"create_goal", "edit_goal"}, twice)

	fresh := NewPermissionDirectory(store, store, testLogger(), nil)
	require.NoError(t, fresh.Reload(ctx))
	persisted, err := fresh.PermissionsForRole(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, twice, persisted)
}

func TestPermissionDirectory_RemovePermissions(t *testing.T) {
	store, db := setupSeededStore(t)
	ctx := context.Background()
	dir := NewPermissionDirectory(store, store, testLogger(), nil)
	require.NoError(t, dir.Reload(ctx))

	require.NoError(t, dir.RemovePermissions(ctx, 4, []int64{permissionID(t, db, "view_employee_ratings")}))
	codes, err := dir.PermissionsForRole(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, []string{"view_employee_dashboard", "view_employee_scorecards", "view_self_evaluation"}, codes)
}

func TestPermissionDirectory_MissingRoleAndUser(t *testing.T) {
	store, db := setupSeededStore(t)
	ctx := context.Background()
	dir := NewPermissionDirectory(store, store, testLogger(), nil)
	require.NoError(t, dir.Reload(ctx))

	err := dir.AssignPermissions(ctx, 404, []int64{1})
	require.Error(t, err)

	codes, err := dir.UserPermissionCodes(ctx, 12345)
	require.NoError(t, err)
	assert.Empty(t, codes)

	userID := insertUser(t, db, "gone", 2)
	_, err = db.ExecContext(ctx, "UPDATE users SET deleted_at = $1 WHERE id = $2", time.Now().UTC(), userID)
	require.NoError(t, err)
	ok, err := dir.UserHasAny(ctx, userID, PermissionManage)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPermissionDirectory_ColdMissLoadsEverything(t *testing.T) {
	store, _ := setupSeededStore(t)
	ctx := context.Background()
	dir := NewPermissionDirectory(store, store, testLogger(), nil)

	assert.ErrorIs(t, dir.Ready(ctx), ErrDirectoryNotLoaded)
	codes, err := dir.PermissionsForRole(ctx, 4)
	require.NoError(t, err)
	assert.Len(t, codes, 4)
	assert.NoError(t, dir.Ready(ctx))

	p, err := dir.Permission(ctx, PermissionManage)
	require.NoError(t, err)
	assert.Equal(t, "actions", p.Category)
}

func TestPermissionDirectory_PermissionFillsOnMiss(t *testing.T) {
	store, db := setupSeededStore(t)
	ctx := context.Background()
	dir := NewPermissionDirectory(store, store, testLogger(), nil)
	require.NoError(t, dir.Reload(ctx))

	_, err := db.ExecContext(ctx,
		"INSERT INTO permissions (code, name, category, is_active, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $5)",
		"export_reports", "Export Reports", "reports", true, time.Now().UTC())
	require.NoError(t, err)

	p, err := dir.Permission(ctx, "export_reports")
	require.NoError(t, err)
	assert.Equal(t, "Export Reports", p.Name)

	_, err = dir.Permission(ctx, "no_such_permission")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

type failingPermissionSource struct {
	*Store
	mu   sync.Mutex
	fail bool
}

func (f *failingPermissionSource) setFail(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = fail
}

func (f *failingPermissionSource) failing() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fail
}

func (f *failingPermissionSource) ActivePermissions(ctx context.Context) ([]Permission, error) {
	if f.failing() {
		return nil, errors.New("connection refused")
	}
	return f.Store.ActivePermissions(ctx)
}

func (f *failingPermissionSource) RoleGrants(ctx context.Context) (map[int64][]string, error) {
	if f.failing() {
		return nil, errors.New("query canceled")
	}
	return f.Store.RoleGrants(ctx)
}

func TestPermissionDirectory_FailedReloadKeepsCache(t *testing.T) {
	store, db := setupSeededStore(t)
	ctx := context.Background()
	source := &failingPermissionSource{Store: store}
	dir := NewPermissionDirectory(source, store, testLogger(), nil)
	require.NoError(t, dir.Reload(ctx))

	source.setFail(true)
	require.Error(t, dir.Reload(ctx))

	hr := insertUser(t, db, "hr", 2)
	ok, err := dir.UserHasPermission(ctx, hr, PermissionManage)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, dir.Ready(ctx))
}

func TestPermissionDirectory_RecoversAfterFailedStartup(t *testing.T) {
	store, db := setupSeededStore(t)
	ctx := context.Background()
	source := &failingPermissionSource{Store: store, fail: true}
	dir := NewPermissionDirectory(source, store, testLogger(), nil)

	require.Error(t, dir.Reload(ctx))
	assert.ErrorIs(t, dir.Ready(ctx), ErrDirectoryNotLoaded)

	source.setFail(false)
	hr := insertUser(t, db, "hr", 2)
	ok, err := dir.UserHasPermission(ctx, hr, PermissionManage)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.NoError(t, dir.Ready(ctx))
	p, err := dir.Permission(ctx, PermissionManage)
	require.NoError(t, err)
	assert.Equal(t, PermissionManage, p.Code)
}

func TestPermissionDirectory_ConcurrentReloadsAndGrantChanges(t *testing.T) {
	store, db := setupSeededStore(t)
	ctx := context.Background()
	dir := NewPermissionDirectory(store, store, testLogger(), nil)
	require.NoError(t, dir.Reload(ctx))

	employee := insertUser(t, db, "employee", 4)
	ratings := permissionID(t, db, "view_employee_ratings")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				switch i % 4 {
				case 0:
					assert.NoError(t, dir.Reload(ctx))
				case 1:
					assert.NoError(t, dir.RemovePermissions(ctx, 4, []int64{ratings}))
				case 2:
					_, err := dir.Permission(ctx, PermissionManage)
					assert.NoError(t, err)
				default:
					ok, err := dir.UserHasAny(ctx, employee, "view_employee_dashboard")
					assert.NoError(t, err)
					assert.True(t, ok)
				}
			}
		}(i)
	}
	wg.Wait()

	codes, err := dir.PermissionsForRole(ctx, 4)
	require.NoError(t, err)
	assert.NotContains(t, codes, "view_employee_ratings")
	assert.Contains(t, codes, "view_employee_dashboard")
}
