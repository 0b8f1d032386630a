package orgs

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/scorecard/pkg/httputil"
	"github.com/platinummonkey/scorecard/pkg/middleware"
	"github.com/platinummonkey/scorecard/pkg/rbac"
)

// Handlers serves organization management
type Handlers struct {
	service Service
	gate    *middleware.Gate
	admin   middleware.Guard
}

// NewHandlers creates organization handlers restricted to the User Admin role
func NewHandlers(service Service, gate *middleware.Gate, roles rbac.RoleResolver) *Handlers {
	return &Handlers{
		service: service,
		gate:    gate,
		admin:   rbac.RequireRole(roles, rbac.RoleName(rbac.RoleUserAdmin)),
	}
}

// RegisterRoutes registers organization routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.Handle("/api/organizations", h.gate.ProtectFunc(h.listOrganizations, h.admin)).Methods("GET")
	router.Handle("/api/organizations", h.gate.ProtectFunc(h.createOrganization, h.admin)).Methods("POST")
	router.Handle("/api/organizations/{id:[0-9]+}", h.gate.ProtectFunc(h.getOrganization, h.admin)).Methods("GET")
	router.Handle("/api/organizations/{id:[0-9]+}", h.gate.ProtectFunc(h.updateOrganization, h.admin)).Methods("PUT")
	router.Handle("/api/organizations/{id:[0-9]+}", h.gate.ProtectFunc(h.deleteOrganization, h.admin)).Methods("DELETE")
}

func (h *Handlers) listOrganizations(w http.ResponseWriter, r *http.Request) {
	orgs, err := h.service.ListOrganizations(r.Context(), r.URL.Query().Get("include_inactive") == "true")
	if err != nil {
		httputil.WriteServiceError(w, r, err, "", "Failed to list organizations")
		return
	}

	claims, _ := middleware.ClaimsFromContext(r.Context())
	if scope := ListScope(claims); scope != nil {
		visible := make([]*Organization, 0, 1)
		for _, org := range orgs {
			if org.ID == *scope {
				visible = append(visible, org)
			}
		}
		orgs = visible
	}
	httputil.WriteSuccess(w, orgs)
}

func (h *Handlers) createOrganization(w http.ResponseWriter, r *http.Request) {
	var req CreateOrgRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name == "" || req.Code == "" {
		httputil.WriteBadRequest(w, "name and code are required")
		return
	}

	claims, _ := middleware.ClaimsFromContext(r.Context())
	org, err := h.service.CreateOrganization(r.Context(), &req, claims.UserID)
	if err != nil {
		httputil.WriteServiceError(w, r, err, "", "Failed to create organization")
		return
	}
	httputil.WriteCreated(w, org)
}

// load fetches the organization named in the path, answering 404 for a
// missing one and 403 for one outside the caller's organization
func (h *Handlers) load(w http.ResponseWriter, r *http.Request) (*Organization, bool) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return nil, false
	}
	org, err := h.service.GetOrganization(r.Context(), id)
	if err != nil {
		httputil.WriteServiceError(w, r, err, "Organization not found", "Failed to get organization")
		return nil, false
	}
	claims, _ := middleware.ClaimsFromContext(r.Context())
	if err := CheckAccess(claims, &org.ID); err != nil {
		h.gate.Deny(w, r, middleware.StageResource, err)
		return nil, false
	}
	return org, true
}

func (h *Handlers) getOrganization(w http.ResponseWriter, r *http.Request) {
	org, ok := h.load(w, r)
	if !ok {
		return
	}
	httputil.WriteSuccess(w, org)
}

func (h *Handlers) updateOrganization(w http.ResponseWriter, r *http.Request) {
	org, ok := h.load(w, r)
	if !ok {
		return
	}
	var req UpdateOrgRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	updated, err := h.service.UpdateOrganization(r.Context(), org.ID, &req)
	if err != nil {
		httputil.WriteServiceError(w, r, err, "Organization not found", "Failed to update organization")
		return
	}
	httputil.WriteSuccess(w, updated)
}

func (h *Handlers) deleteOrganization(w http.ResponseWriter, r *http.Request) {
	org, ok := h.load(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteOrganization(r.Context(), org.ID); err != nil {
		httputil.WriteServiceError(w, r, err, "Organization not found", "Failed to delete organization")
		return
	}
	httputil.WriteMessage(w, "Organization deleted successfully")
}
