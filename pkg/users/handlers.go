package users

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/scorecard/pkg/auth"
	"github.com/platinummonkey/scorecard/pkg/httputil"
	"github.com/platinummonkey/scorecard/pkg/middleware"
	"github.com/platinummonkey/scorecard/pkg/orgs"
	"github.com/platinummonkey/scorecard/pkg/rbac"
	"github.com/platinummonkey/scorecard/pkg/storage"
)

// Roles resolves role references given in account bodies
type Roles interface {
	rbac.RoleResolver
	NameByID(ctx context.Context, id int64) (string, bool)
}

// PermissionLister returns the codes a user holds
type PermissionLister interface {
	UserPermissionCodes(ctx context.Context, userID int64) ([]string, error)
}

// Handlers serves account management and the current-user lookup
type Handlers struct {
	store       *Store
	gate        *middleware.Gate
	roles       Roles
	permissions PermissionLister
	managers    middleware.Guard
}

// NewHandlers creates user handlers. Account management is restricted to
// the User Admin and HR Admin roles.
func NewHandlers(store *Store, gate *middleware.Gate, roles Roles, permissions PermissionLister) *Handlers {
	return &Handlers{
		store:       store,
		gate:        gate,
		roles:       roles,
		permissions: permissions,
		managers:    rbac.RequireRole(roles, rbac.RoleName(rbac.RoleUserAdmin), rbac.RoleName(rbac.RoleHRAdmin)),
	}
}

// RegisterRoutes registers user routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.Handle("/api/current-user", h.gate.ProtectFunc(h.currentUser)).Methods("GET")
	router.Handle("/api/users", h.gate.ProtectFunc(h.listUsers, h.managers)).Methods("GET")
	router.Handle("/api/users", h.gate.ProtectFunc(h.createUser, h.managers)).Methods("POST")
	router.Handle("/api/users/{id:[0-9]+}", h.gate.ProtectFunc(h.getUser, h.managers)).Methods("GET")
	router.Handle("/api/users/{id:[0-9]+}", h.gate.ProtectFunc(h.updateUser, h.managers)).Methods("PUT")
	router.Handle("/api/users/{id:[0-9]+}", h.gate.ProtectFunc(h.deleteUser, h.managers)).Methods("DELETE")
}

func claimsOf(r *http.Request) *auth.Claims {
	claims, _ := middleware.ClaimsFromContext(r.Context())
	return claims
}

// View attaches the permission codes of the user's role
func (h *Handlers) View(ctx context.Context, user *auth.User) (*UserView, error) {
	codes, err := h.permissions.UserPermissionCodes(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if codes == nil {
		codes = []string{}
	}
	return &UserView{User: user, Permissions: codes}, nil
}

func (h *Handlers) writeView(w http.ResponseWriter, r *http.Request, status int, user *auth.User) {
	view, err := h.View(r.Context(), user)
	if err != nil {
		httputil.WriteServiceError(w, r, err, "", "Failed to load user permissions")
		return
	}
	httputil.WriteJSON(w, status, view)
}

// resolveRole turns a role id or name into a live role id. It returns nil
// when neither is given.
func (h *Handlers) resolveRole(ctx context.Context, roleID *int64, roleName *string) (*int64, error) {
	if roleID != nil {
		if _, ok := h.roles.NameByID(ctx, *roleID); !ok {
			return nil, storage.Invalidf("Role %d not found", *roleID)
		}
		return roleID, nil
	}
	if roleName != nil && *roleName != "" {
		id, ok := h.roles.IDByName(ctx, *roleName)
		if !ok {
			return nil, storage.Invalidf("Role '%s' not found", *roleName)
		}
		return &id, nil
	}
	return nil, nil
}

func (h *Handlers) currentUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.store.GetUser(r.Context(), claimsOf(r).UserID)
	if err != nil {
		httputil.WriteServiceError(w, r, err, "User not found", "Failed to get user")
		return
	}
	h.writeView(w, r, http.StatusOK, user)
}

func (h *Handlers) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(r.Context(), orgs.ListScope(claimsOf(r)), r.URL.Query().Get("include_inactive") == "true")
	if err != nil {
		httputil.WriteServiceError(w, r, err, "", "Failed to list users")
		return
	}
	views := make([]*UserView, 0, len(users))
	for _, user := range users {
		view, err := h.View(r.Context(), user)
		if err != nil {
			httputil.WriteServiceError(w, r, err, "", "Failed to load user permissions")
			return
		}
		views = append(views, view)
	}
	httputil.WriteSuccess(w, views)
}

// load fetches the account named in the path, answering 404 before any
// organization check
func (h *Handlers) load(w http.ResponseWriter, r *http.Request) (*auth.User, bool) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return nil, false
	}
	user, err := h.store.GetUser(r.Context(), id)
	if err != nil {
		httputil.WriteServiceError(w, r, err, "User not found", "Failed to get user")
		return nil, false
	}
	return user, h.scoped(w, r, user.OrgID)
}

func (h *Handlers) scoped(w http.ResponseWriter, r *http.Request, orgID *int64) bool {
	if err := orgs.CheckAccess(claimsOf(r), orgID); err != nil {
		h.gate.Deny(w, r, middleware.StageResource, err)
		return false
	}
	return true
}

func (h *Handlers) getUser(w http.ResponseWriter, r *http.Request) {
	if user, ok := h.load(w, r); ok {
		h.writeView(w, r, http.StatusOK, user)
	}
}

func (h *Handlers) createUser(w http.ResponseWriter, r *http.Request) {
	var in CreateUserInput
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}
	roleID, err := h.resolveRole(r.Context(), in.RoleID, in.RoleName)
	if err != nil {
		httputil.WriteServiceError(w, r, err, "", "Failed to resolve role")
		return
	}
	in.RoleID = roleID

	claims := claimsOf(r)
	in.OrgID = orgs.DefaultOrg(claims, in.OrgID)
	if !h.scoped(w, r, in.OrgID) {
		return
	}
	user, err := h.store.CreateUser(r.Context(), in, claims.UserID)
	if err != nil {
		httputil.WriteServiceError(w, r, err, "", "Failed to create user")
		return
	}
	h.writeView(w, r, http.StatusCreated, user)
}

func (h *Handlers) updateUser(w http.ResponseWriter, r *http.Request) {
	user, ok := h.load(w, r)
	if !ok {
		return
	}
	var in UpdateUserInput
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}
	if in.OrgID != nil && !h.scoped(w, r, in.OrgID) {
		return
	}
	roleID, err := h.resolveRole(r.Context(), in.RoleID, in.RoleName)
	if err != nil {
		httputil.WriteServiceError(w, r, err, "", "Failed to resolve role")
		return
	}
	in.RoleID = roleID

	updated, err := h.store.UpdateUser(r.Context(), user.ID, in)
	if err != nil {
		httputil.WriteServiceError(w, r, err, "User not found", "Failed to update user")
		return
	}
	h.writeView(w, r, http.StatusOK, updated)
}

func (h *Handlers) deleteUser(w http.ResponseWriter, r *http.Request) {
	user, ok := h.load(w, r)
	if !ok {
		return
	}
	if err := h.store.DeleteUser(r.Context(), user.ID); err != nil {
		httputil.WriteServiceError(w, r, err, "User not found", "Failed to delete user")
		return
	}
	httputil.WriteMessage(w, "User deleted successfully")
}
