package rbac

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/scorecard/pkg/audit"
	"github.com/platinummonkey/scorecard/pkg/auth"
	"github.com/platinummonkey/scorecard/pkg/middleware"
	"github.com/platinummonkey/scorecard/pkg/observability"
	tu "github.com/platinummonkey/scorecard/pkg/testutil"
)

type handlerFixture struct {
	db          *sql.DB
	router      http.Handler
	tokens      *tu.Tokens
	audit       *tu.AuditRecorder
	metrics     *observability.Metrics
	permissions *PermissionDirectory
	roles       *RoleDirectory
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	ctx := context.Background()
	store, db := setupSeededStore(t)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	roles := NewRoleDirectory(store, testLogger(), metrics)
	require.NoError(t, roles.Load(ctx))
	permissions := NewPermissionDirectory(store, store, testLogger(), metrics)
	require.NoError(t, permissions.Reload(ctx))

	tokens := tu.NewTokens(t)
	gate := middleware.NewGate(tokens.Verifier, metrics)
	router := mux.NewRouter()
	NewHandlers(store, roles, permissions, gate).RegisterRoutes(router)

	recorder := &tu.AuditRecorder{}
	withAudit := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		router.ServeHTTP(w, r.WithContext(audit.WithLogger(r.Context(), recorder)))
	})

	return &handlerFixture{
		db:          db,
		router:      withAudit,
		tokens:      tokens,
		audit:       recorder,
		metrics:     metrics,
		permissions: permissions,
		roles:       roles,
	}
}

// user creates a user with roleID and returns its id and bearer header
func (f *handlerFixture) user(t *testing.T, username string, roleID int64) (int64, string) {
	t.Helper()
	id := insertUser(t, f.db, username, roleID)
	return id, f.tokens.Bearer(t, auth.Identity{UserID: id, Username: username, RoleID: roleID})
}

func (f *handlerFixture) do(t *testing.T, method, path, bearer, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", bearer)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var decoded map[string]interface{}
	if strings.HasPrefix(strings.TrimSpace(rec.Body.String()), "{") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func TestHandlers_ListPermissions(t *testing.T) {
	f := newHandlerFixture(t)
	_, admin := f.user(t, "admin", 1)
	_, employee := f.user(t, "employee", 4)

	rec, body := f.do(t, "GET", "/api/permissions", admin, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["permissions"], 40)
	grouped := body["grouped_by_category"].(map[string]interface{})
	assert.Contains(t, grouped, "pages")
	assert.Contains(t, grouped, "actions")

	rec, body = f.do(t, "GET", "/api/permissions", employee, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Insufficient permissions", body["error"])
	assert.Equal(t, []interface{}{PermissionManage}, body["required_permissions"])

	denied := f.audit.OfType(audit.EventTypeAuthzAccessDenied)
	require.Len(t, denied, 1)
	assert.Equal(t, audit.EventStatusDenied, denied[0].Status)

	rec, body = f.do(t, "GET", "/api/permissions", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Missing authentication token", body["error"])

	rec, body = f.do(t, "GET", "/api/permissions", "Token abc", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid token format", body["error"])
}

func TestHandlers_ListRoles(t *testing.T) {
	f := newHandlerFixture(t)
	_, external := f.user(t, "external", 5)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/roles", nil)
	req.Header.Set("Authorization", external)
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var roles []Role
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &roles))
	require.Len(t, roles, 5)
	assert.Equal(t, "User Admin", roles[0].Name)
}

func TestHandlers_RolePermissionsLifecycle(t *testing.T) {
	f := newHandlerFixture(t)
	_, hr := f.user(t, "hr", 2)
	managerID, _ := f.user(t, "manager", 3)

	acceptance := permissionID(t, f.db, "send_score_card_acceptance")
	team := permissionID(t, f.db, "view_team_score_cards")

	rec, body := f.do(t, "PUT", "/api/roles/3/permissions", hr,
		`{"permission_ids": [`+strconv.FormatInt(acceptance, 10)+`, `+strconv.FormatInt(team, 10)+`]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Role permissions updated successfully", body["message"])
	assert.Equal(t, "Manager", body["role_name"])
	assert.ElementsMatch(t, []interface{}{"send_score_card_acceptance", "view_team_score_cards"}, body["permission_codes"])

	codes, err := f.permissions.UserPermissionCodes(context.Background(), managerID)
	require.NoError(t, err)
	assert.Equal(t, []string{"send_score_card_acceptance", "view_team_score_cards"}, codes)

	grants := f.audit.OfType(audit.EventTypeAuthzPermissionGrant)
	require.Len(t, grants, 1)
	assert.Equal(t, "3", grants[0].ResourceID)
	assert.Equal(t, audit.ResourceTypeRole, grants[0].ResourceType)

	rec, body = f.do(t, "DELETE", "/api/roles/3/permissions", hr,
		`{"permission_ids": [`+strconv.FormatInt(team, 10)+`]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Role permissions removed successfully", body["message"])
	assert.Equal(t, []interface{}{"send_score_card_acceptance"}, body["permission_codes"])
	assert.Len(t, f.audit.OfType(audit.EventTypeAuthzPermissionRevoke), 1)

	rec, body = f.do(t, "GET", "/api/roles/3/permissions", hr, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(3), body["role_id"])
	assert.Len(t, body["permissions"], 1)

	rec, body = f.do(t, "PUT", "/api/roles/3/permissions", hr, `{}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, body["permission_codes"])
}

func TestHandlers_RolePermissionsErrors(t *testing.T) {
	f := newHandlerFixture(t)
	_, hr := f.user(t, "hr", 2)

	rec, body := f.do(t, "GET", "/api/roles/99/permissions", hr, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Role not found", body["error"])

	rec, _ = f.do(t, "PUT", "/api/roles/99/permissions", hr, `{"permission_ids": [1]}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body = f.do(t, "PUT", "/api/roles/3/permissions", hr, `{"permission_ids": "all"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "permission_ids must be a list", body["error"])
	assert.Empty(t, f.audit.OfType(audit.EventTypeAuthzPermissionGrant))
}

func TestHandlers_ReloadDirectories(t *testing.T) {
	f := newHandlerFixture(t)
	_, admin := f.user(t, "admin", 1)
	_, hr := f.user(t, "hr", 2)

	rec, body := f.do(t, "POST", "/api/roles/reload", hr, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Insufficient permissions", body["error"])
	assert.Equal(t, float64(1), testutil.ToFloat64(
		f.metrics.GateDecisionsTotal.WithLabelValues("role", observability.OutcomeDenied)))

	_, err := f.db.Exec("INSERT INTO roles (id, role_name, description, is_active, created_at, updated_at) VALUES (6, 'Auditor', '', TRUE, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)")
	require.NoError(t, err)

	rec, body = f.do(t, "POST", "/api/roles/reload", admin, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Role and permission caches reloaded", body["message"])
	assert.Contains(t, body["roles"], "Auditor")
	assert.Contains(t, f.roles.Names(), "Auditor")
	assert.Len(t, f.audit.OfType(audit.EventTypeAuthzDirectoryReload), 1)
}

func TestHandlers_GetUserPermissions(t *testing.T) {
	f := newHandlerFixture(t)
	_, hr := f.user(t, "hr", 2)
	employeeID, employee := f.user(t, "employee", 4)
	otherID, _ := f.user(t, "other", 4)

	path := "/api/users/" + strconv.FormatInt(employeeID, 10) + "/permissions"
	rec, body := f.do(t, "GET", path, employee, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "employee", body["username"])
	assert.Equal(t, "Employee", body["role_name"])
	assert.Len(t, body["permission_codes"], 4)
	require.Len(t, body["permissions"], 4)
	first := body["permissions"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "view_employee_dashboard", first["code"])

	rec, _ = f.do(t, "GET", path, hr, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, body = f.do(t, "GET", "/api/users/"+strconv.FormatInt(otherID, 10)+"/permissions", employee, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Insufficient permissions", body["error"])

	rec, body = f.do(t, "GET", "/api/users/9999/permissions", employee, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, body = f.do(t, "GET", "/api/users/9999/permissions", hr, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "User not found", body["error"])
}
