package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/scorecard/pkg/audit"
	"github.com/platinummonkey/scorecard/pkg/auth"
	"github.com/platinummonkey/scorecard/pkg/httputil"
	"github.com/platinummonkey/scorecard/pkg/observability"
	"github.com/platinummonkey/scorecard/pkg/users"
)

// LoginRequest is the body of POST /api/login
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the issued token and the account it belongs to
type LoginResponse struct {
	Token string          `json:"token"`
	User  *users.UserView `json:"user"`
}

// LoginHandlers exchanges credentials for access tokens
type LoginHandlers struct {
	service  *auth.Service
	views    *users.Handlers
	throttle func(http.Handler) http.Handler
}

// NewLoginHandlers creates login handlers. throttle may be nil.
func NewLoginHandlers(service *auth.Service, views *users.Handlers, throttle func(http.Handler) http.Handler) *LoginHandlers {
	return &LoginHandlers{service: service, views: views, throttle: throttle}
}

// RegisterRoutes registers POST /api/login
func (h *LoginHandlers) RegisterRoutes(router *mux.Router) {
	var handler http.Handler = http.HandlerFunc(h.Login)
	if h.throttle != nil {
		handler = h.throttle(handler)
	}
	router.Handle("/api/login", handler).Methods("POST")
}

// Login verifies email and password and returns a token
func (h *LoginHandlers) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req LoginRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	result, err := h.service.Login(ctx, req.Email, req.Password)
	switch {
	case errors.Is(err, auth.ErrMissingCredentials):
		httputil.WriteBadRequest(w, "Email and password are required")
		return
	case errors.Is(err, auth.ErrInvalidCredentials):
		record(r, audit.NewEvent(ctx, r, audit.EventTypeAuthLoginFailed, audit.EventStatusFailure).
			WithMessage("invalid credentials").
			WithMetadata("email", req.Email))
		httputil.WriteUnauthorized(w, "Invalid email or password")
		return
	case err != nil:
		observability.FromContext(ctx).WithError(err).Error("login failed")
		httputil.WriteInternalError(w, "Login failed")
		return
	}

	event := audit.NewEvent(ctx, r, audit.EventTypeAuthLogin, audit.EventStatusSuccess).
		WithResource(audit.ResourceTypeUser, result.User.ID).
		WithMessage("login succeeded")
	userID := result.User.ID
	event.UserID = &userID
	event.Username = result.User.Username
	event.OrganizationID = result.User.OrgID
	record(r, event)

	view, err := h.views.View(ctx, result.User)
	if err != nil {
		observability.FromContext(ctx).WithError(err).Error("failed to load permissions after login")
		httputil.WriteInternalError(w, "Login failed")
		return
	}
	httputil.WriteSuccess(w, LoginResponse{Token: result.Token, User: view})
}

func record(r *http.Request, event *audit.AuditEvent) {
	if err := audit.Record(r.Context(), event); err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to record audit event")
	}
}
