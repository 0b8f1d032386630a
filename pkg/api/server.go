package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/scorecard/pkg/audit"
	"github.com/platinummonkey/scorecard/pkg/auth"
	"github.com/platinummonkey/scorecard/pkg/hr"
	"github.com/platinummonkey/scorecard/pkg/httputil"
	"github.com/platinummonkey/scorecard/pkg/middleware"
	"github.com/platinummonkey/scorecard/pkg/observability"
	"github.com/platinummonkey/scorecard/pkg/orgs"
	"github.com/platinummonkey/scorecard/pkg/rbac"
	"github.com/platinummonkey/scorecard/pkg/review"
	"github.com/platinummonkey/scorecard/pkg/users"
)

// maxBodyBytes bounds every request body
const maxBodyBytes = 1 << 20

// Options carries the dependencies of a Server
type Options struct {
	DB       *sql.DB
	Logger   *observability.Logger
	Issuer   *auth.Issuer
	Verifier *auth.Verifier

	// Redis backs the shared login throttle. Nil keeps the throttle in memory.
	Redis *redis.Client
	// Registry receives the Prometheus collectors. Nil disables metrics.
	Registry *prometheus.Registry
	// Audit receives audit events. Nil drops them.
	Audit audit.Logger

	Throttle          middleware.RateLimitConfig
	ThrottleCacheSize int
	CORSOrigins       []string
	Version           string
}

// Server is the assembled HTTP API
type Server struct {
	logger      *observability.Logger
	metrics     *observability.Metrics
	router      *mux.Router
	handler     http.Handler
	health      *mux.Router
	roles       *rbac.RoleDirectory
	permissions *rbac.PermissionDirectory
}

// NewServer wires stores, directories and handlers over opts.DB. The
// directories start empty; call LoadDirectories before serving.
func NewServer(opts Options) (*Server, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("database is required")
	}
	if opts.Issuer == nil || opts.Verifier == nil {
		return nil, fmt.Errorf("token issuer and verifier are required")
	}
	if opts.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if opts.Audit == nil {
		opts.Audit = audit.Nop()
	}
	if opts.Throttle.RequestsPerWindow <= 0 {
		opts.Throttle = middleware.DefaultLoginRateLimitConfig()
	}
	if opts.ThrottleCacheSize <= 0 {
		opts.ThrottleCacheSize = 10000
	}

	var metrics *observability.Metrics
	if opts.Registry != nil {
		metrics = observability.NewMetrics(opts.Registry)
	}

	rbacStore := rbac.NewStore(opts.DB)
	roles := rbac.NewRoleDirectory(rbacStore, opts.Logger, metrics)
	permissions := rbac.NewPermissionDirectory(rbacStore, rbacStore, opts.Logger, metrics)
	gate := middleware.NewGate(opts.Verifier, metrics)

	userStore := users.NewStore(opts.DB)
	userHandlers := users.NewHandlers(userStore, gate, roles, permissions)
	login := NewLoginHandlers(
		auth.NewService(userStore, rbacStore, opts.Issuer, metrics),
		userHandlers,
		middleware.LoginThrottle(loginLimiter(opts), metrics),
	)

	s := &Server{
		logger:      opts.Logger,
		metrics:     metrics,
		router:      mux.NewRouter(),
		health:      mux.NewRouter(),
		roles:       roles,
		permissions: permissions,
	}

	if metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(metrics))
	}
	login.RegisterRoutes(s.router)
	userHandlers.RegisterRoutes(s.router)
	rbac.NewHandlers(rbacStore, roles, permissions, gate).RegisterRoutes(s.router)
	orgs.NewHandlers(orgs.NewSQLService(opts.DB), gate, roles).RegisterRoutes(s.router)
	hr.NewHandlers(hr.NewStore(opts.DB), gate, permissions).RegisterRoutes(s.router)
	review.NewHandlers(review.NewStore(opts.DB), gate, roles, permissions).RegisterRoutes(s.router)
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteNotFound(w, "Not found")
	})

	s.handler = otelhttp.NewHandler(httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(opts.Logger),
		httputil.RecoveryMiddleware,
		httputil.CORSMiddleware(opts.CORSOrigins),
		httputil.ContentTypeMiddleware,
		httputil.MaxBytesMiddleware(maxBodyBytes),
		withAudit(opts.Audit),
	)(s.router), "scorecard")

	checker := observability.NewHealthChecker(opts.DB, opts.Redis, opts.Version)
	checker.AddProbe("role_directory", roles.Ready)
	checker.AddProbe("permission_directory", permissions.Ready)
	observability.RegisterHealthRoutes(s.health, checker)
	if opts.Registry != nil {
		observability.RegisterMetricsEndpoint(s.health, opts.Registry)
	}

	return s, nil
}

// loginLimiter shares the login budget through Redis when it is configured
// and falls back to a per-process window when Redis fails
func loginLimiter(opts Options) middleware.Limiter {
	memory := middleware.NewMemoryLimiter(opts.Throttle, opts.ThrottleCacheSize)
	if opts.Redis == nil {
		return memory
	}
	logger := opts.Logger
	return middleware.NewFallbackLimiter(
		middleware.NewRedisLimiter(opts.Redis, opts.Throttle, "scorecard:login"),
		memory,
		func(err error) { logger.WithError(err).Warn("redis login throttle unavailable, using memory") },
	)
}

func withAudit(logger audit.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(audit.WithLogger(r.Context(), logger)))
		})
	}
}

// LoadDirectories fills the role and permission directories. A failure is
// logged and returned, and each directory retries lazily on first use.
func (s *Server) LoadDirectories(ctx context.Context) error {
	var errs []error
	if err := s.roles.Load(ctx); err != nil {
		s.logger.WithError(err).Warn("role directory not loaded at startup")
		errs = append(errs, fmt.Errorf("roles: %w", err))
	}
	if err := s.permissions.Reload(ctx); err != nil {
		s.logger.WithError(err).Warn("permission directory not loaded at startup")
		errs = append(errs, fmt.Errorf("permissions: %w", err))
	}
	return errors.Join(errs...)
}

// Roles returns the role directory
func (s *Server) Roles() *rbac.RoleDirectory {
	return s.roles
}

// Permissions returns the permission directory
func (s *Server) Permissions() *rbac.PermissionDirectory {
	return s.permissions
}

// Metrics returns the Prometheus collectors, or nil when metrics are disabled
func (s *Server) Metrics() *observability.Metrics {
	return s.metrics
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// HealthHandler serves the health probes and /metrics
func (s *Server) HealthHandler() http.Handler {
	return s.health
}
