package rbac

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/scorecard/pkg/audit"
	"github.com/platinummonkey/scorecard/pkg/auth"
	"github.com/platinummonkey/scorecard/pkg/httputil"
	"github.com/platinummonkey/scorecard/pkg/middleware"
	"github.com/platinummonkey/scorecard/pkg/observability"
	"github.com/platinummonkey/scorecard/pkg/storage"
)

// Handlers serves role and permission management
type Handlers struct {
	store       *Store
	roles       *RoleDirectory
	permissions *PermissionDirectory
	gate        *middleware.Gate
}

// NewHandlers creates new RBAC handlers
func NewHandlers(store *Store, roles *RoleDirectory, permissions *PermissionDirectory, gate *middleware.Gate) *Handlers {
	return &Handlers{
		store:       store,
		roles:       roles,
		permissions: permissions,
		gate:        gate,
	}
}

// RegisterRoutes registers all RBAC routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	manage := RequirePermission(h.permissions, PermissionManage)

	router.Handle("/api/permissions", h.gate.ProtectFunc(h.ListPermissions, manage)).Methods("GET")
	router.Handle("/api/roles", h.gate.ProtectFunc(h.ListRoles)).Methods("GET")
	router.Handle("/api/roles/reload", h.gate.ProtectFunc(h.ReloadDirectories,
		RequireRole(h.roles, RoleName(RoleUserAdmin)),
	)).Methods("POST")
	router.Handle("/api/roles/{id:[0-9]+}/permissions", h.gate.ProtectFunc(h.GetRolePermissions, manage)).Methods("GET")
	router.Handle("/api/roles/{id:[0-9]+}/permissions", h.gate.ProtectFunc(h.UpdateRolePermissions, manage)).Methods("PUT")
	router.Handle("/api/roles/{id:[0-9]+}/permissions", h.gate.ProtectFunc(h.RemoveRolePermissions, manage)).Methods("DELETE")
	router.Handle("/api/users/{id:[0-9]+}/permissions", h.gate.ProtectFunc(h.GetUserPermissions,
		h.selfOrManage(),
	)).Methods("GET")
}

// ListPermissions returns every active permission, also grouped by category
func (h *Handlers) ListPermissions(w http.ResponseWriter, r *http.Request) {
	permissions, err := h.store.ListPermissions(r.Context(), false)
	if err != nil {
		httputil.WriteServiceError(w, r, err, "", "Failed to list permissions")
		return
	}

	grouped := make(map[string][]Permission)
	for _, p := range permissions {
		category := p.Category
		if category == "" {
			category = "other"
		}
		grouped[category] = append(grouped[category], p)
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"permissions":         nonNil(permissions),
		"grouped_by_category": grouped,
	})
}

// ListRoles returns the active roles
func (h *Handlers) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.store.ActiveRoles(r.Context())
	if err != nil {
		httputil.WriteServiceError(w, r, err, "", "Failed to list roles")
		return
	}
	if roles == nil {
		roles = []Role{}
	}
	httputil.WriteSuccess(w, roles)
}

// ReloadDirectories force-reloads the role and permission directories
func (h *Handlers) ReloadDirectories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.roles.ForceReload(ctx); err != nil {
		httputil.WriteServiceError(w, r, err, "", "Failed to reload roles")
		return
	}
	if err := h.permissions.Reload(ctx); err != nil {
		httputil.WriteServiceError(w, r, err, "", "Failed to reload permissions")
		return
	}

	h.record(r, audit.NewEvent(ctx, r, audit.EventTypeAuthzDirectoryReload, audit.EventStatusSuccess).
		WithMessage("role and permission directories reloaded"))
	httputil.WriteSuccess(w, map[string]interface{}{
		"message": "Role and permission caches reloaded",
		"roles":   h.roles.Names(),
	})
}

func (h *Handlers) rolePermissionsBody(r *http.Request, roleID int64) (map[string]interface{}, error) {
	role, err := h.store.GetRole(r.Context(), roleID)
	if err != nil {
		return nil, err
	}
	permissions, err := h.store.RolePermissions(r.Context(), roleID)
	if err != nil {
		return nil, err
	}
	codes := make([]string, len(permissions))
	for i, p := range permissions {
		codes[i] = p.Code
	}
	return map[string]interface{}{
		"role_id":          roleID,
		"role_name":        role.Name,
		"permissions":      nonNil(permissions),
		"permission_codes": codes,
	}, nil
}

// GetRolePermissions returns the permissions granted to a role
func (h *Handlers) GetRolePermissions(w http.ResponseWriter, r *http.Request) {
	roleID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	body, err := h.rolePermissionsBody(r, roleID)
	if err != nil {
		httputil.WriteServiceError(w, r, err, "Role not found", "Failed to get role permissions")
		return
	}
	httputil.WriteSuccess(w, body)
}

// parsePermissionIDs reads {"permission_ids": [...]}. A missing key is an
// empty list.
func parsePermissionIDs(w http.ResponseWriter, r *http.Request) ([]int64, bool) {
	var req struct {
		PermissionIDs json.RawMessage `json:"permission_ids"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return nil, false
	}
	if len(req.PermissionIDs) == 0 || string(req.PermissionIDs) == "null" {
		return []int64{}, true
	}
	var ids []int64
	if err := json.Unmarshal(req.PermissionIDs, &ids); err != nil {
		httputil.WriteBadRequest(w, "permission_ids must be a list")
		return nil, false
	}
	return ids, true
}

// UpdateRolePermissions replaces the grants of a role
func (h *Handlers) UpdateRolePermissions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	roleID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if _, err := h.store.GetRole(ctx, roleID); err != nil {
		httputil.WriteServiceError(w, r, err, "Role not found", "Failed to update role permissions")
		return
	}
	ids, ok := parsePermissionIDs(w, r)
	if !ok {
		return
	}

	if err := h.permissions.AssignPermissions(ctx, roleID, ids); err != nil {
		httputil.WriteServiceError(w, r, err, "Role not found", "Failed to update role permissions")
		return
	}
	h.record(r, audit.NewEvent(ctx, r, audit.EventTypeAuthzPermissionGrant, audit.EventStatusSuccess).
		WithResource(audit.ResourceTypeRole, roleID).
		WithMessage("role permissions replaced").
		WithMetadata("permission_ids", ids))

	body, err := h.rolePermissionsBody(r, roleID)
	if err != nil {
		httputil.WriteServiceError(w, r, err, "Role not found", "Failed to update role permissions")
		return
	}
	body["message"] = "Role permissions updated successfully"
	httputil.WriteSuccess(w, body)
}

// RemoveRolePermissions revokes the given grants from a role
func (h *Handlers) RemoveRolePermissions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	roleID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if _, err := h.store.GetRole(ctx, roleID); err != nil {
		httputil.WriteServiceError(w, r, err, "Role not found", "Failed to remove role permissions")
		return
	}
	ids, ok := parsePermissionIDs(w, r)
	if !ok {
		return
	}

	if err := h.permissions.RemovePermissions(ctx, roleID, ids); err != nil {
		httputil.WriteServiceError(w, r, err, "Role not found", "Failed to remove role permissions")
		return
	}
	h.record(r, audit.NewEvent(ctx, r, audit.EventTypeAuthzPermissionRevoke, audit.EventStatusSuccess).
		WithResource(audit.ResourceTypeRole, roleID).
		WithMessage("role permissions revoked").
		WithMetadata("permission_ids", ids))

	body, err := h.rolePermissionsBody(r, roleID)
	if err != nil {
		httputil.WriteServiceError(w, r, err, "Role not found", "Failed to remove role permissions")
		return
	}
	body["message"] = "Role permissions removed successfully"
	httputil.WriteSuccess(w, body)
}

// selfOrManage admits callers reading their own record, or holding
// manage_permissions for anyone else's
func (h *Handlers) selfOrManage() middleware.Guard {
	return middleware.NewGuard(middleware.StageResource, func(r *http.Request, claims *auth.Claims) error {
		if mux.Vars(r)["id"] == strconv.FormatInt(claims.UserID, 10) {
			return nil
		}
		ok, err := h.permissions.UserHasPermission(r.Context(), claims.UserID, PermissionManage)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInsufficientRole
		}
		return nil
	})
}

// GetUserPermissions returns the permissions a user holds through their role
func (h *Handlers) GetUserPermissions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	user, err := h.store.GetUserRole(ctx, userID)
	if err != nil {
		httputil.WriteServiceError(w, r, err, "User not found", "Failed to get user permissions")
		return
	}

	codes, err := h.permissions.UserPermissionCodes(ctx, userID)
	if err != nil {
		httputil.WriteServiceError(w, r, err, "User not found", "Failed to get user permissions")
		return
	}
	permissions := make([]Permission, 0, len(codes))
	for _, code := range codes {
		p, err := h.permissions.Permission(ctx, code)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			httputil.WriteServiceError(w, r, err, "", "Failed to get user permissions")
			return
		}
		permissions = append(permissions, p)
	}
	sort.Slice(permissions, func(i, j int) bool {
		if permissions[i].Category != permissions[j].Category {
			return permissions[i].Category < permissions[j].Category
		}
		return permissions[i].Code < permissions[j].Code
	})

	httputil.WriteSuccess(w, map[string]interface{}{
		"user_id":          user.UserID,
		"username":         user.Username,
		"role_id":          user.RoleID,
		"role_name":        user.RoleName,
		"permissions":      permissions,
		"permission_codes": codes,
	})
}

func (h *Handlers) record(r *http.Request, event *audit.AuditEvent) {
	if err := audit.Record(r.Context(), event); err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to record audit event")
	}
}

func nonNil(permissions []Permission) []Permission {
	if permissions == nil {
		return []Permission{}
	}
	return permissions
}
