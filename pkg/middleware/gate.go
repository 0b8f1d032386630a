package middleware

import (
	"context"
	"errors"
	"net/http"
	"sort"

	"github.com/platinummonkey/scorecard/pkg/audit"
	"github.com/platinummonkey/scorecard/pkg/auth"
	"github.com/platinummonkey/scorecard/pkg/contextkeys"
	"github.com/platinummonkey/scorecard/pkg/httputil"
	"github.com/platinummonkey/scorecard/pkg/observability"
)

// Stage orders guards on a route. Guards always run authentication first,
// then role, then permission, then resource checks.
type Stage int

const (
	StageAuthentication Stage = iota
	StageRole
	StagePermission
	StageResource
)

func (s Stage) String() string {
	switch s {
	case StageAuthentication:
		return "authentication"
	case StageRole:
		return "role"
	case StagePermission:
		return "permission"
	case StageResource:
		return "resource"
	default:
		return "unknown"
	}
}

// Guard decides whether an authenticated request may proceed. A non-nil
// error ends the request.
type Guard interface {
	Stage() Stage
	Check(r *http.Request, claims *auth.Claims) error
}

// GuardFunc adapts a function into a Guard for the given stage
type GuardFunc struct {
	stage Stage
	check func(r *http.Request, claims *auth.Claims) error
}

// NewGuard creates a guard running check at stage
func NewGuard(stage Stage, check func(r *http.Request, claims *auth.Claims) error) GuardFunc {
	return GuardFunc{stage: stage, check: check}
}

// Stage implements Guard
func (g GuardFunc) Stage() Stage { return g.stage }

// Check implements Guard
func (g GuardFunc) Check(r *http.Request, claims *auth.Claims) error {
	return g.check(r, claims)
}

// TokenVerifier verifies a raw bearer token
type TokenVerifier interface {
	Verify(raw string) (*auth.Claims, error)
}

// Gate authenticates requests and runs guard chains
type Gate struct {
	verifier TokenVerifier
	metrics  *observability.Metrics
}

// NewGate creates a gate. metrics may be nil.
func NewGate(verifier TokenVerifier, metrics *observability.Metrics) *Gate {
	return &Gate{verifier: verifier, metrics: metrics}
}

// ClaimsFromContext returns the claims established by Authenticate
func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(contextkeys.ClaimsKey).(*auth.Claims)
	return claims, ok && claims != nil
}

// WithClaims stores claims in ctx the way Authenticate does
func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	ctx = contextkeys.WithClaims(ctx, claims)
	return contextkeys.WithUserID(ctx, claims.UserIDString())
}

// authenticate verifies the Authorization header of r
func (g *Gate) authenticate(r *http.Request) (*auth.Claims, error) {
	raw, err := auth.BearerToken(r.Header.Get("Authorization"))
	if err != nil {
		return nil, err
	}
	return g.verifier.Verify(raw)
}

// Authenticate rejects requests without a valid bearer token and stores the
// verified claims in the request context
func (g *Gate) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := ClaimsFromContext(r.Context()); ok {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := g.authenticate(r)
		if err != nil {
			g.Deny(w, r, StageAuthentication, err)
			return
		}
		g.metrics.RecordGateDecision(StageAuthentication.String(), observability.OutcomeAllowed)
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

// Protect authenticates the request and then runs guards in stage order.
// Guards sharing a stage keep the order they were given in.
func (g *Gate) Protect(guards ...Guard) func(http.Handler) http.Handler {
	ordered := append([]Guard(nil), guards...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Stage() < ordered[j].Stage()
	})

	return func(next http.Handler) http.Handler {
		checked := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, _ := ClaimsFromContext(r.Context())
			for _, guard := range ordered {
				if err := guard.Check(r, claims); err != nil {
					g.Deny(w, r, guard.Stage(), err)
					return
				}
				g.metrics.RecordGateDecision(guard.Stage().String(), observability.OutcomeAllowed)
			}
			next.ServeHTTP(w, r)
		})
		return g.Authenticate(checked)
	}
}

// ProtectFunc is Protect for a handler function
func (g *Gate) ProtectFunc(h http.HandlerFunc, guards ...Guard) http.Handler {
	return g.Protect(guards...)(h)
}

// Deny writes the rejection for err and records it. Errors outside the gate
// taxonomy are treated as internal failures. Handlers call Deny for
// resource-level decisions made after loading the resource.
func (g *Gate) Deny(w http.ResponseWriter, r *http.Request, stage Stage, err error) {
	ctx := r.Context()
	logger := observability.FromContext(ctx).WithFields(map[string]interface{}{
		"guard": stage.String(),
		"path":  r.URL.Path,
	})

	if !auth.IsAuthError(err) {
		g.metrics.RecordGateDecision(stage.String(), observability.OutcomeError)
		logger.WithError(err).Error("access check failed")
		httputil.WriteInternalError(w, "Internal server error")
		return
	}

	g.metrics.RecordGateDecision(stage.String(), observability.OutcomeDenied)
	httputil.WriteAuthError(w, err)

	if stage == StageAuthentication {
		logger.WithError(err).Debug("authentication rejected")
		return
	}

	logger.WithError(err).Warn("access denied")
	event := audit.NewEvent(ctx, r, audit.EventTypeAuthzAccessDenied, audit.EventStatusDenied).
		WithMessage(err.Error()).
		WithMetadata("guard", stage.String())
	var permErr *auth.InsufficientPermissionError
	if errors.As(err, &permErr) {
		event.WithMetadata("required_permissions", permErr.Required)
	}
	if auditErr := audit.Record(ctx, event); auditErr != nil {
		logger.WithError(auditErr).Error("failed to record audit event")
	}
}
