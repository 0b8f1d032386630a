package hr

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/scorecard/pkg/auth"
	"github.com/platinummonkey/scorecard/pkg/httputil"
	"github.com/platinummonkey/scorecard/pkg/middleware"
	"github.com/platinummonkey/scorecard/pkg/orgs"
	"github.com/platinummonkey/scorecard/pkg/rbac"
)

// Handlers serves departments, positions and employees
type Handlers struct {
	store       *Store
	gate        *middleware.Gate
	permissions rbac.PermissionChecker
}

// NewHandlers creates HR handlers
func NewHandlers(store *Store, gate *middleware.Gate, permissions rbac.PermissionChecker) *Handlers {
	return &Handlers{store: store, gate: gate, permissions: permissions}
}

// RegisterRoutes registers all HR routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	departments := rbac.RequirePermission(h.permissions, PermissionManageDepartments)
	router.Handle("/api/departments", h.gate.ProtectFunc(h.listDepartments)).Methods("GET")
	router.Handle("/api/departments", h.gate.ProtectFunc(h.createDepartment, departments)).Methods("POST")
	router.Handle("/api/departments/{id:[0-9]+}", h.gate.ProtectFunc(h.getDepartment)).Methods("GET")
	router.Handle("/api/departments/{id:[0-9]+}", h.gate.ProtectFunc(h.updateDepartment, departments)).Methods("PUT")
	router.Handle("/api/departments/{id:[0-9]+}", h.gate.ProtectFunc(h.deleteDepartment, departments)).Methods("DELETE")

	positions := rbac.RequirePermission(h.permissions, PermissionManagePositions)
	router.Handle("/api/positions", h.gate.ProtectFunc(h.listPositions)).Methods("GET")
	router.Handle("/api/positions", h.gate.ProtectFunc(h.createPosition, positions)).Methods("POST")
	router.Handle("/api/positions/{id:[0-9]+}", h.gate.ProtectFunc(h.getPosition)).Methods("GET")
	router.Handle("/api/positions/{id:[0-9]+}", h.gate.ProtectFunc(h.updatePosition, positions)).Methods("PUT")
	router.Handle("/api/positions/{id:[0-9]+}", h.gate.ProtectFunc(h.deletePosition, positions)).Methods("DELETE")

	router.Handle("/api/employees", h.gate.ProtectFunc(h.listEmployees,
		rbac.RequirePermission(h.permissions, PermissionViewAllEmployees, PermissionViewTeamEmployees),
	)).Methods("GET")
	router.Handle("/api/employees", h.gate.ProtectFunc(h.createEmployee,
		rbac.RequirePermission(h.permissions, PermissionCreateEmployee),
	)).Methods("POST")
	router.Handle("/api/employees/{id:[0-9]+}", h.gate.ProtectFunc(h.getEmployee)).Methods("GET")
	router.Handle("/api/employees/{id:[0-9]+}", h.gate.ProtectFunc(h.updateEmployee,
		rbac.RequirePermission(h.permissions, PermissionEditEmployee),
	)).Methods("PUT")
	router.Handle("/api/employees/{id:[0-9]+}", h.gate.ProtectFunc(h.deleteEmployee,
		rbac.RequirePermission(h.permissions, PermissionDeleteEmployee),
	)).Methods("DELETE")
}

func claimsOf(r *http.Request) *auth.Claims {
	claims, _ := middleware.ClaimsFromContext(r.Context())
	return claims
}

// scoped denies access to a resource in another organization. A target org
// in an update body is checked the same way.
func (h *Handlers) scoped(w http.ResponseWriter, r *http.Request, orgIDs ...*int64) bool {
	for _, orgID := range orgIDs {
		if err := orgs.CheckAccess(claimsOf(r), orgID); err != nil {
			h.gate.Deny(w, r, middleware.StageResource, err)
			return false
		}
	}
	return true
}

func (h *Handlers) listDepartments(w http.ResponseWriter, r *http.Request) {
	departments, err := h.store.ListDepartments(r.Context(), orgs.ListScope(claimsOf(r)))
	if err != nil {
		httputil.WriteServiceError(w, r, err, "", "Failed to list departments")
		return
	}
	httputil.WriteSuccess(w, departments)
}

func (h *Handlers) loadDepartment(w http.ResponseWriter, r *http.Request) (*Department, bool) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return nil, false
	}
	department, err := h.store.GetDepartment(r.Context(), id)
	if err != nil {
		httputil.WriteServiceError(w, r, err, "Department not found", "Failed to get department")
		return nil, false
	}
	return department, h.scoped(w, r, department.OrgID)
}

func (h *Handlers) getDepartment(w http.ResponseWriter, r *http.Request) {
	if department, ok := h.loadDepartment(w, r); ok {
		httputil.WriteSuccess(w, department)
	}
}

func (h *Handlers) createDepartment(w http.ResponseWriter, r *http.Request) {
	var in DepartmentInput
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}
	claims := claimsOf(r)
	in.OrgID = orgs.DefaultOrg(claims, in.OrgID)
	if !h.scoped(w, r, in.OrgID) {
		return
	}
	department, err := h.store.CreateDepartment(r.Context(), in, claims.UserID)
	if err != nil {
		httputil.WriteServiceError(w, r, err, "", "Failed to create department")
		return
	}
	httputil.WriteCreated(w, department)
}

func (h *Handlers) updateDepartment(w http.ResponseWriter, r *http.Request) {
	department, ok := h.loadDepartment(w, r)
	if !ok {
		return
	}
	var in DepartmentInput
	if !httputil.ParseJSONOrError(w, r, &in) || !h.scoped(w, r, in.OrgID) {
		return
	}
	updated, err := h.store.UpdateDepartment(r.Context(), department.ID, in)
	if err != nil {
		httputil.WriteServiceError(w, r, err, "Department not found", "Failed to update department")
		return
	}
	httputil.WriteSuccess(w, updated)
}

func (h *Handlers) deleteDepartment(w http.ResponseWriter, r *http.Request) {
	department, ok := h.loadDepartment(w, r)
	if !ok {
		return
	}
	if err := h.store.DeleteDepartment(r.Context(), department.ID); err != nil {
		httputil.WriteServiceError(w, r, err, "Department not found", "Failed to delete department")
		return
	}
	httputil.WriteMessage(w, "Department deleted successfully")
}

func (h *Handlers) listPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.store.ListPositions(r.Context(), orgs.ListScope(claimsOf(r)), httputil.QueryInt64(r, "department_id"))
	if err != nil {
		httputil.WriteServiceError(w, r, err, "", "Failed to list positions")
		return
	}
	httputil.WriteSuccess(w, positions)
}

func (h *Handlers) loadPosition(w http.ResponseWriter, r *http.Request) (*Position, bool) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return nil, false
	}
	position, err := h.store.GetPosition(r.Context(), id)
	if err != nil {
		httputil.WriteServiceError(w, r, err, "Position not found", "Failed to get position")
		return nil, false
	}
	return position, h.scoped(w, r, position.OrgID)
}

func (h *Handlers) getPosition(w http.ResponseWriter, r *http.Request) {
	if position, ok := h.loadPosition(w, r); ok {
		httputil.WriteSuccess(w, position)
	}
}

func (h *Handlers) createPosition(w http.ResponseWriter, r *http.Request) {
	var in PositionInput
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}
	claims := claimsOf(r)
	in.OrgID = orgs.DefaultOrg(claims, in.OrgID)
	if !h.scoped(w, r, in.OrgID) {
		return
	}
	position, err := h.store.CreatePosition(r.Context(), in, claims.UserID)
	if err != nil {
		httputil.WriteServiceError(w, r, err, "", "Failed to create position")
		return
	}
	httputil.WriteCreated(w, position)
}

func (h *Handlers) updatePosition(w http.ResponseWriter, r *http.Request) {
	position, ok := h.loadPosition(w, r)
	if !ok {
		return
	}
	var in PositionInput
	if !httputil.ParseJSONOrError(w, r, &in) || !h.scoped(w, r, in.OrgID) {
		return
	}
	updated, err := h.store.UpdatePosition(r.Context(), position.ID, in)
	if err != nil {
		httputil.WriteServiceError(w, r, err, "Position not found", "Failed to update position")
		return
	}
	httputil.WriteSuccess(w, updated)
}

func (h *Handlers) deletePosition(w http.ResponseWriter, r *http.Request) {
	position, ok := h.loadPosition(w, r)
	if !ok {
		return
	}
	if err := h.store.DeletePosition(r.Context(), position.ID); err != nil {
		httputil.WriteServiceError(w, r, err, "Position not found", "Failed to delete position")
		return
	}
	httputil.WriteMessage(w, "Position deleted successfully")
}

// listEmployees returns the caller's organization, or only their direct
// reports when they hold view_team_employees without view_all_employees
func (h *Handlers) listEmployees(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := claimsOf(r)
	all, err := h.permissions.UserHasAny(ctx, claims.UserID, PermissionViewAllEmployees)
	if err != nil {
		httputil.WriteServiceError(w, r, err, "", "Failed to list employees")
		return
	}

	filter := EmployeeFilter{
		OrgID:           orgs.ListScope(claims),
		IncludeInactive: r.URL.Query().Get("include_inactive") == "true",
	}
	if !all {
		if claims.EmployeeID == nil {
			httputil.WriteSuccess(w, []*Employee{})
			return
		}
		filter.ManagerID = claims.EmployeeID
	}

	employees, err := h.store.ListEmployees(ctx, filter)
	if err != nil {
		httputil.WriteServiceError(w, r, err, "", "Failed to list employees")
		return
	}
	httputil.WriteSuccess(w, employees)
}

func (h *Handlers) loadEmployee(w http.ResponseWriter, r *http.Request) (*Employee, bool) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return nil, false
	}
	employee, err := h.store.GetEmployee(r.Context(), id)
	if err != nil {
		httputil.WriteServiceError(w, r, err, "Employee not found", "Failed to get employee")
		return nil, false
	}
	return employee, true
}

// authorizeEmployeeRead lets callers read their own record unconditionally.
// Anyone else must share the employee's organization and be either its
// reporting manager or hold view_all_employees.
func (h *Handlers) authorizeEmployeeRead(r *http.Request, e *Employee) error {
	claims := claimsOf(r)
	if IsSelf(claims, e) {
		return nil
	}
	if err := orgs.CheckAccess(claims, e.OrgID); err != nil {
		return err
	}
	if IsManagerOf(claims, e) {
		return nil
	}
	ok, err := h.permissions.UserHasAny(r.Context(), claims.UserID, PermissionViewAllEmployees)
	if err != nil {
		return err
	}
	if !ok {
		return orgs.ErrAccessDenied
	}
	return nil
}

func (h *Handlers) getEmployee(w http.ResponseWriter, r *http.Request) {
	employee, ok := h.loadEmployee(w, r)
	if !ok {
		return
	}
	if err := h.authorizeEmployeeRead(r, employee); err != nil {
		h.gate.Deny(w, r, middleware.StageResource, err)
		return
	}
	httputil.WriteSuccess(w, employee)
}

func (h *Handlers) createEmployee(w http.ResponseWriter, r *http.Request) {
	var in EmployeeInput
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}
	claims := claimsOf(r)
	in.OrgID = orgs.DefaultOrg(claims, in.OrgID)
	if !h.scoped(w, r, in.OrgID) {
		return
	}
	employee, err := h.store.CreateEmployee(r.Context(), in, claims.UserID)
	if err != nil {
		httputil.WriteServiceError(w, r, err, "", "Failed to create employee")
		return
	}
	httputil.WriteCreated(w, employee)
}

func (h *Handlers) updateEmployee(w http.ResponseWriter, r *http.Request) {
	employee, ok := h.loadEmployee(w, r)
	if !ok || !h.scoped(w, r, employee.OrgID) {
		return
	}
	var in EmployeeInput
	if !httputil.ParseJSONOrError(w, r, &in) || !h.scoped(w, r, in.OrgID) {
		return
	}
	updated, err := h.store.UpdateEmployee(r.Context(), employee.ID, in)
	if err != nil {
		httputil.WriteServiceError(w, r, err, "Employee not found", "Failed to update employee")
		return
	}
	httputil.WriteSuccess(w, updated)
}

func (h *Handlers) deleteEmployee(w http.ResponseWriter, r *http.Request) {
	employee, ok := h.loadEmployee(w, r)
	if !ok || !h.scoped(w, r, employee.OrgID) {
		return
	}
	if err := h.store.DeleteEmployee(r.Context(), employee.ID); err != nil {
		httputil.WriteServiceError(w, r, err, "Employee not found", "Failed to delete employee")
		return
	}
	httputil.WriteMessage(w, "Employee deleted successfully")
}
