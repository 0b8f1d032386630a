package rbac

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/scorecard/pkg/auth"
	"github.com/platinummonkey/scorecard/pkg/middleware"
)

type staticRoles map[string]int64

func (s staticRoles) IDByName(ctx context.Context, name string) (int64, bool) {
	id, ok := s[name]
	return id, ok
}

type staticChecker struct {
	codes map[int64][]string
	err   error
}

func (c staticChecker) UserHasAny(ctx context.Context, userID int64, codes ...string) (bool, error) {
	if c.err != nil {
		return false, c.err
	}
	for _, held := range c.codes[userID] {
		for _, want := range codes {
			if held == want {
				return true, nil
			}
		}
	}
	return false, nil
}

func TestRequireRole(t *testing.T) {
	roles := staticRoles{RoleUserAdmin: 1, RoleHRAdmin: 2, RoleManager: 3}
	req := httptest.NewRequest("GET", "/", nil)

	tests := []struct {
		name    string
		roleID  int64
		refs    []RoleRef
		allowed bool
	}{
		{"name match", 3, []RoleRef{RoleName(RoleManager)}, true},
		{"any of names", 2, []RoleRef{RoleName(RoleUserAdmin), RoleName(RoleHRAdmin)}, true},
		{"id match", 4, []RoleRef{RoleID(4)}, true},
		{"unknown name", 4, []RoleRef{RoleName("Auditor")}, false},
		{"mismatch", 4, []RoleRef{RoleName(RoleManager), RoleID(1)}, false},
		{"no refs", 1, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			guard := RequireRole(roles, tt.refs...)
			assert.Equal(t, middleware.StageRole, guard.Stage())
			err := guard.Check(req, &auth.Claims{UserID: 7, RoleID: tt.roleID})
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInsufficientRole)
			}
		})
	}
}

func TestRequireRole_IgnoresTokenRoleName(t *testing.T) {
	guard := RequireRole(staticRoles{RoleUserAdmin: 1}, RoleName(RoleUserAdmin))
	err := guard.Check(httptest.NewRequest("GET", "/", nil), &auth.Claims{RoleID: 4, Role: RoleUserAdmin})
	assert.ErrorIs(t, err, ErrInsufficientRole)
}

func TestRequirePermission(t *testing.T) {
	checker := staticChecker{codes: map[int64][]string{5: {"view_team_score_cards"}}}
	req := httptest.NewRequest("GET", "/", nil)

	guard := RequirePermission(checker, PermissionManage, "view_team_score_cards")
	assert.Equal(t, middleware.StagePermission, guard.Stage())
	assert.NoError(t, guard.Check(req, &auth.Claims{UserID: 5}))

	err := guard.Check(req, &auth.Claims{UserID: 6})
	var permErr *InsufficientPermissionError
	require.ErrorAs(t, err, &permErr)
	assert.Equal(t, []string{PermissionManage, "view_team_score_cards"}, permErr.Required)
	assert.True(t, auth.IsAuthError(err))
}

func TestRequirePermission_CheckFailureIsNotADenial(t *testing.T) {
	guard := RequirePermission(staticChecker{err: errors.New("database is closed")}, PermissionManage)
	err := guard.Check(httptest.NewRequest("GET", "/", nil), &auth.Claims{UserID: 5})
	require.Error(t, err)
	assert.False(t, auth.IsAuthError(err))
}

func TestRequirePermission_AgainstDirectory(t *testing.T) {
	store, db := setupSeededStore(t)
	ctx := context.Background()
	dir := NewPermissionDirectory(store, store, testLogger(), nil)
	require.NoError(t, dir.Reload(ctx))

	hr := insertUser(t, db, "hr", 2)
	employee := insertUser(t, db, "employee", 4)
	guard := RequirePermission(dir, PermissionManage)
	req := httptest.NewRequest("GET", "/", nil)

	assert.NoError(t, guard.Check(req, &auth.Claims{UserID: hr, RoleID: 2}))
	assert.ErrorIs(t, guard.Check(req, &auth.Claims{UserID: employee, RoleID: 4}), auth.ErrInsufficientPermission)

	require.NoError(t, dir.AssignPermissions(ctx, 4, []int64{permissionID(t, db, PermissionManage)}))
	assert.NoError(t, guard.Check(req, &auth.Claims{UserID: employee, RoleID: 4}))
}
