package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/platinummonkey/scorecard/pkg/api"
	"github.com/platinummonkey/scorecard/pkg/audit"
	"github.com/platinummonkey/scorecard/pkg/auth"
	"github.com/platinummonkey/scorecard/pkg/config"
	"github.com/platinummonkey/scorecard/pkg/middleware"
	"github.com/platinummonkey/scorecard/pkg/observability"
	"github.com/platinummonkey/scorecard/pkg/storage"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		observability.NewLogger(observability.ErrorLevel, os.Stderr).WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.Level(), os.Stdout)
	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("Server exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx := context.Background()
	logger.Infof("Starting scorecard %s", cfg.Observability.OTelServiceVersion)

	providers, err := observability.InitOTel(ctx, cfg.Observability.OTel(), logger)
	if err != nil {
		return err
	}

	dbConfig := cfg.Database.Storage()
	db, err := storage.Connect(dbConfig)
	if err != nil {
		return err
	}
	if err := storage.Ping(ctx, db, dbConfig); err != nil {
		logger.WithError(err).Warn("Database unreachable at startup, directories will load on first use")
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = storage.NewRedisClient(ctx, cfg.Redis.Storage())
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, login throttle is per instance")
			redisClient = nil
		}
	}

	issuer, verifier, err := tokenPair(cfg.JWT)
	if err != nil {
		return err
	}

	dbAudit, err := audit.NewDBLogger(db)
	if err != nil {
		return err
	}
	auditLogger := audit.NewMultiLogger(audit.NewStructuredLogger(logger), dbAudit)

	var registry *prometheus.Registry
	if cfg.Observability.MetricsEnabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	srv, err := api.NewServer(api.Options{
		DB:       db,
		Logger:   logger,
		Issuer:   issuer,
		Verifier: verifier,
		Redis:    redisClient,
		Registry: registry,
		Audit:    auditLogger,
		Throttle: middleware.RateLimitConfig{
			RequestsPerWindow: cfg.Throttle.Attempts,
			WindowDuration:    cfg.Throttle.Window,
		},
		ThrottleCacheSize: cfg.Throttle.CacheSize,
		CORSOrigins:       cfg.Server.CORSOrigins,
		Version:           cfg.Observability.OTelServiceVersion,
	})
	if err != nil {
		return err
	}
	loadCtx, cancelLoad := context.WithTimeout(ctx, 10*time.Second)
	if err := srv.LoadDirectories(loadCtx); err != nil {
		logger.Warn("Serving with directories that will load on first use")
	}
	cancelLoad()

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      srv,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	healthServer := &http.Server{
		Addr:              cfg.Server.HealthAddr(),
		Handler:           srv.HealthHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	stopStats := make(chan struct{})
	go recordDBStats(db, srv.Metrics(), stopStats)

	// shutdown functions run in reverse order
	shutdown := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.Register("otel", providers.Shutdown)
	shutdown.Register("database", func(context.Context) error { return db.Close() })
	if redisClient != nil {
		shutdown.Register("redis", func(context.Context) error { return redisClient.Close() })
	}
	shutdown.Register("audit", func(context.Context) error { return auditLogger.Close() })
	shutdown.Register("db stats", func(context.Context) error {
		close(stopStats)
		return nil
	})
	shutdown.Register("health server", healthServer.Shutdown)

	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	serve := func(name string, s *http.Server) {
		logger.Infof("%s listening on %s", name, s.Addr)
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Errorf("%s failed", name)
			cancel()
		}
	}
	go serve("API server", httpServer)
	go serve("Health server", healthServer)

	return shutdown.WaitForShutdown(waitCtx)
}

func tokenPair(cfg config.JWTConfig) (*auth.Issuer, *auth.Verifier, error) {
	priv, err := auth.ParsePrivateKeyPEM(cfg.PrivateKey)
	if err != nil {
		return nil, nil, err
	}
	pub, err := auth.ParsePublicKeyPEM(cfg.PublicKey)
	if err != nil {
		return nil, nil, err
	}
	opts := []auth.Option{auth.WithTTL(cfg.TTL), auth.WithIssuerName(cfg.Issuer)}
	issuer, err := auth.NewIssuer(priv, opts...)
	if err != nil {
		return nil, nil, err
	}
	verifier, err := auth.NewVerifier(pub, opts...)
	if err != nil {
		return nil, nil, err
	}
	return issuer, verifier, nil
}

// recordDBStats samples the connection pool until stop is closed
func recordDBStats(db *sql.DB, metrics *observability.Metrics, stop <-chan struct{}) {
	if metrics == nil {
		return
	}
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			metrics.RecordDBStats(db.Stats())
		}
	}
}
