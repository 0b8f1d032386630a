// Package observability provides structured logging, Prometheus metrics,
// health probes, graceful shutdown and OpenTelemetry tracing.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("role_id", 3).Info("role permissions replaced")
//
// Request-scoped logging picks up the request id and authenticated user:
//
//	observability.FromContext(r.Context()).Warn("access denied")
//
// # Prometheus Metrics
//
//	metrics := observability.NewMetrics(registry)
//	metrics.RecordGateDecision("permission", observability.OutcomeDenied)
//	metrics.RecordDirectoryReload("roles", elapsed, 5, nil)
//
// A nil *Metrics accepts every Record call.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient, version)
//	checker.AddProbe("role_directory", roles.Ready)
//	observability.RegisterHealthRoutes(router, checker)
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, cfg.OTel, logger)
//	defer providers.Shutdown(ctx)
//	ctx, span := observability.StartSpan(ctx, "rbac.roles.reload")
//	defer func() { observability.EndSpan(span, err) }()
package observability
