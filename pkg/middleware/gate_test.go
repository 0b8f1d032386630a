package middleware

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/scorecard/pkg/audit"
	"github.com/platinummonkey/scorecard/pkg/auth"
	"github.com/platinummonkey/scorecard/pkg/observability"
)

type fakeVerifier struct {
	claims map[string]*auth.Claims
}

func (f *fakeVerifier) Verify(raw string) (*auth.Claims, error) {
	switch raw {
	case "expired":
		return nil, auth.ErrTokenExpired
	case "garbage":
		return nil, auth.ErrTokenInvalid
	}
	if c, ok := f.claims[raw]; ok {
		return c, nil
	}
	return nil, auth.ErrTokenInvalid
}

type recordingAudit struct {
	events []*audit.AuditEvent
}

func (r *recordingAudit) Log(ctx context.Context, event *audit.AuditEvent) error {
	r.events = append(r.events, event)
	return nil
}

func (r *recordingAudit) Close() error { return nil }

func newTestGate(t *testing.T) (*Gate, *observability.Metrics) {
	t.Helper()
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	verifier := &fakeVerifier{claims: map[string]*auth.Claims{
		"manager":  {UserID: 5, Username: "mgr", RoleID: 3, Role: "Manager"},
		"employee": {UserID: 9, Username: "emp", RoleID: 4, Role: "Employee"},
	}}
	return NewGate(verifier, metrics), metrics
}

func okHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "no claims", http.StatusInternalServerError)
		return
	}
	w.Header().Set("X-User", claims.Username)
	w.WriteHeader(http.StatusOK)
}

func serve(h http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", "/api/thing", nil)
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestGate_Authenticate(t *testing.T) {
	gate, _ := newTestGate(t)
	h := gate.Authenticate(http.HandlerFunc(okHandler))

	tests := []struct {
		name    string
		header  string
		status  int
		message string
	}{
		{"missing header", "", http.StatusUnauthorized, "Missing authentication token"},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, "Invalid token format"},
		{"expired", "Bearer expired", http.StatusUnauthorized, "Token has expired"},
		{"invalid", "Bearer garbage", http.StatusUnauthorized, "Invalid token"},
		{"valid", "Bearer manager", http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(h, tt.header)
			assert.Equal(t, tt.status, rec.Code)
			if tt.message != "" {
				assert.Equal(t, tt.message, decodeError(t, rec)["error"])
			} else {
				assert.Equal(t, "mgr", rec.Header().Get("X-User"))
			}
		})
	}
}

func TestGate_ProtectRunsGuardsInStageOrder(t *testing.T) {
	gate, _ := newTestGate(t)

	var order []string
	record := func(stage Stage) Guard {
		return NewGuard(stage, func(r *http.Request, claims *auth.Claims) error {
			order = append(order, stage.String())
			return nil
		})
	}

	h := gate.Protect(record(StageResource), record(StagePermission), record(StageRole))(http.HandlerFunc(okHandler))
	rec := serve(h, "Bearer manager")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"role", "permission", "resource"}, order)
}

func TestGate_ProtectStopsAtFirstFailure(t *testing.T) {
	gate, metrics := newTestGate(t)

	permissionRan := false
	roleGuard := NewGuard(StageRole, func(r *http.Request, claims *auth.Claims) error {
		if claims.Role != "Manager" {
			return auth.ErrInsufficientRole
		}
		return nil
	})
	permissionGuard := NewGuard(StagePermission, func(r *http.Request, claims *auth.Claims) error {
		permissionRan = true
		return nil
	})

	h := gate.Protect(permissionGuard, roleGuard)(http.HandlerFunc(okHandler))

	t.Run("unauthenticated never reaches guards", func(t *testing.T) {
		rec := serve(h, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.False(t, permissionRan)
	})

	t.Run("role rejection", func(t *testing.T) {
		rec := serve(h, "Bearer employee")
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "Insufficient permissions", decodeError(t, rec)["error"])
		assert.False(t, permissionRan)
	})

	t.Run("allowed", func(t *testing.T) {
		rec := serve(h, "Bearer manager")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, permissionRan)
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.GateDecisionsTotal.WithLabelValues("role", "denied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.GateDecisionsTotal.WithLabelValues("authentication", "denied")))
}

func TestGate_PermissionRejectionBodyAndAudit(t *testing.T) {
	gate, _ := newTestGate(t)
	rec := &recordingAudit{}

	guard := NewGuard(StagePermission, func(r *http.Request, claims *auth.Claims) error {
		return &auth.InsufficientPermissionError{Required: []string{"view_all_employees", "view_team_employees"}}
	})
	h := gate.Protect(guard)(http.HandlerFunc(okHandler))

	req := httptest.NewRequest("GET", "/api/employees", nil)
	req.Header.Set("Authorization", "Bearer employee")
	req = req.WithContext(audit.WithLogger(req.Context(), rec))
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusForbidden, resp.Code)
	body := decodeError(t, resp)
	assert.Equal(t, "Insufficient permissions", body["error"])
	assert.Equal(t, []interface{}{"view_all_employees", "view_team_employees"}, body["required_permissions"])

	require.Len(t, rec.events, 1)
	event := rec.events[0]
	assert.Equal(t, audit.EventTypeAuthzAccessDenied, event.EventType)
	assert.Equal(t, audit.EventStatusDenied, event.Status)
	require.NotNil(t, event.UserID)
	assert.Equal(t, int64(9), *event.UserID)
	assert.Equal(t, "permission", event.Metadata["guard"])
}

func TestGate_DenyNonAuthErrorIsInternal(t *testing.T) {
	gate, _ := newTestGate(t)
	guard := NewGuard(StageResource, func(r *http.Request, claims *auth.Claims) error {
		return errors.New("db down")
	})
	rec := serve(gate.Protect(guard)(http.HandlerFunc(okHandler)), "Bearer manager")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGate_ResourceDenial(t *testing.T) {
	gate, _ := newTestGate(t)
	guard := NewGuard(StageResource, func(r *http.Request, claims *auth.Claims) error {
		return auth.ErrAccessDenied
	})
	rec := serve(gate.Protect(guard)(http.HandlerFunc(okHandler)), "Bearer manager")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Access denied", decodeError(t, rec)["error"])
}

func TestGate_WithRealTokens(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	issuer, err := auth.NewIssuer(priv)
	require.NoError(t, err)
	verifier, err := auth.NewVerifier(pub)
	require.NoError(t, err)

	token, err := issuer.Issue(auth.Identity{UserID: 11, Username: "hr", RoleID: 2, RoleName: "HR Admin"})
	require.NoError(t, err)

	gate := NewGate(verifier, nil)
	rec := serve(gate.Authenticate(http.HandlerFunc(okHandler)), "Bearer "+token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hr", rec.Header().Get("X-User"))

	_, otherPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	forger, err := auth.NewIssuer(otherPriv)
	require.NoError(t, err)
	forged, err := forger.Issue(auth.Identity{UserID: 11, Username: "hr", RoleID: 1, RoleName: "User Admin"})
	require.NoError(t, err)

	rec = serve(gate.Authenticate(http.HandlerFunc(okHandler)), "Bearer "+forged)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
