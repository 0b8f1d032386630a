// Package middleware provides the access gate and request throttling.
//
// # Access Gate
//
// Gate.Authenticate verifies the bearer token and stores the claims in the
// request context. Gate.Protect additionally runs guards, always in stage
// order: role, then permission, then resource.
//
//	gate := middleware.NewGate(verifier, metrics)
//	router.Handle("/api/permissions", gate.ProtectFunc(h.ListPermissions,
//		rbac.RequirePermission(permissions, "manage_permissions"),
//	)).Methods("GET")
//
// Every rejection is written through httputil.WriteAuthError, counted in
// scorecard_gate_decisions_total and, past authentication, audited as
// authz.access_denied. Handlers that decide on a loaded resource call
// Gate.Deny with StageResource.
//
// # Throttling
//
// LoginThrottle counts attempts per client IP. Redis shares the window across
// instances; when Redis fails the FallbackLimiter switches to a local
// MemoryLimiter:
//
//	limiter := middleware.NewFallbackLimiter(
//		middleware.NewRedisLimiter(redisClient, cfg, "scorecard:login"),
//		middleware.NewMemoryLimiter(cfg, 10000),
//		nil,
//	)
//	router.Handle("/api/login", middleware.LoginThrottle(limiter, metrics)(loginHandler))
package middleware
