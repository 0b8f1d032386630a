package review

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/scorecard/pkg/httputil"
	"github.com/platinummonkey/scorecard/pkg/middleware"
	"github.com/platinummonkey/scorecard/pkg/rbac"
)

// Handlers serves review periods
type Handlers struct {
	store       *Store
	gate        *middleware.Gate
	roles       rbac.RoleResolver
	permissions rbac.PermissionChecker
}

// NewHandlers creates review period handlers
func NewHandlers(store *Store, gate *middleware.Gate, roles rbac.RoleResolver, permissions rbac.PermissionChecker) *Handlers {
	return &Handlers{store: store, gate: gate, roles: roles, permissions: permissions}
}

// RegisterRoutes registers the review period routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.Handle("/api/review-periods", h.gate.ProtectFunc(h.list)).Methods("GET")
	router.Handle("/api/review-periods", h.gate.ProtectFunc(h.create,
		rbac.RequireRole(h.roles, rbac.RoleName(rbac.RoleHRAdmin)),
		rbac.RequirePermission(h.permissions, PermissionCreate),
	)).Methods("POST")
	router.Handle("/api/review-periods/active", h.gate.ProtectFunc(h.active)).Methods("GET")
	router.Handle("/api/review-periods/{id:[0-9]+}", h.gate.ProtectFunc(h.get)).Methods("GET")
	router.Handle("/api/review-periods/{id:[0-9]+}", h.gate.ProtectFunc(h.update,
		rbac.RequirePermission(h.permissions, PermissionEdit),
	)).Methods("PUT")
	router.Handle("/api/review-periods/{id:[0-9]+}", h.gate.ProtectFunc(h.remove,
		rbac.RequirePermission(h.permissions, PermissionDelete),
	)).Methods("DELETE")
	router.Handle("/api/review-periods/{id:[0-9]+}/open", h.gate.ProtectFunc(h.openPeriod,
		rbac.RequirePermission(h.permissions, PermissionOpen),
	)).Methods("POST")
	router.Handle("/api/review-periods/{id:[0-9]+}/close", h.gate.ProtectFunc(h.closePeriod,
		rbac.RequirePermission(h.permissions, PermissionClose),
	)).Methods("POST")
}

func callerID(r *http.Request) int64 {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		return 0
	}
	return claims.UserID
}

func (h *Handlers) list(w http.ResponseWriter, r *http.Request) {
	periods, err := h.store.List(r.Context())
	if err != nil {
		httputil.WriteServiceError(w, r, err, "", "Failed to list review periods")
		return
	}
	httputil.WriteSuccess(w, periods)
}

func (h *Handlers) active(w http.ResponseWriter, r *http.Request) {
	periods, err := h.store.Active(r.Context())
	if err != nil {
		httputil.WriteServiceError(w, r, err, "", "Failed to list active review periods")
		return
	}
	httputil.WriteSuccess(w, periods)
}

func (h *Handlers) get(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	period, err := h.store.Get(r.Context(), id)
	if err != nil {
		httputil.WriteServiceError(w, r, err, "Review period not found", "Failed to get review period")
		return
	}
	httputil.WriteSuccess(w, period)
}

func (h *Handlers) create(w http.ResponseWriter, r *http.Request) {
	var in PeriodInput
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}
	period, err := h.store.Create(r.Context(), in, callerID(r))
	if err != nil {
		httputil.WriteServiceError(w, r, err, "", "Failed to create review period")
		return
	}
	httputil.WriteCreated(w, period)
}

func (h *Handlers) update(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var in PeriodInput
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}
	period, err := h.store.Update(r.Context(), id, in, callerID(r))
	if err != nil {
		httputil.WriteServiceError(w, r, err, "Review period not found", "Failed to update review period")
		return
	}
	httputil.WriteSuccess(w, period)
}

func (h *Handlers) remove(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if err := h.store.Delete(r.Context(), id); err != nil {
		httputil.WriteServiceError(w, r, err, "Review period not found", "Failed to delete review period")
		return
	}
	httputil.WriteMessage(w, "Review period deleted successfully")
}

func (h *Handlers) openPeriod(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.store.Open)
}

func (h *Handlers) closePeriod(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.store.Close)
}

func (h *Handlers) transition(w http.ResponseWriter, r *http.Request, fn func(context.Context, int64, int64) (*Period, error)) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	period, err := fn(r.Context(), id, callerID(r))
	if err != nil {
		httputil.WriteServiceError(w, r, err, "Review period not found", "Failed to update review period status")
		return
	}
	httputil.WriteSuccess(w, period)
}
