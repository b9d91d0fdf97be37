package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/taskboard/pkg/api"
	"github.com/platinummonkey/taskboard/pkg/audit"
	"github.com/platinummonkey/taskboard/pkg/auth"
	"github.com/platinummonkey/taskboard/pkg/config"
	"github.com/platinummonkey/taskboard/pkg/middleware"
	"github.com/platinummonkey/taskboard/pkg/observability"
	"github.com/platinummonkey/taskboard/pkg/projects"
	"github.com/platinummonkey/taskboard/pkg/rbac"
	"github.com/platinummonkey/taskboard/pkg/storage"
	"github.com/platinummonkey/taskboard/pkg/storage/postgres"
	"github.com/platinummonkey/taskboard/pkg/users"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	auditLog := setupLogger(cfg.Observability.LogLevel.String())

	if err := run(cfg, logger, auditLog); err != nil {
		logger.WithError(err).Error("Server exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger, auditLog *logrus.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
	}, logger)
	if err != nil {
		return err
	}

	conn, err := postgres.NewConnectionManager(ctx, postgres.ConfigFromStorage(cfg.Storage))
	if err != nil {
		return err
	}
	if err := conn.Migrate(ctx); err != nil {
		conn.Close()
		return err
	}
	db := conn.DB()
	logger.Info("Connected to PostgreSQL")

	var redisClient *redis.Client
	if cfg.Storage.RedisURL != "" {
		redisClient, err = postgres.NewRedisClient(ctx, cfg.Storage)
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, rate limiting stays in memory")
			redisClient = nil
		} else {
			logger.Info("Connected to Redis")
		}
	}

	var (
		registry *prometheus.Registry
		metrics  *observability.Metrics
		recorder rbac.Recorder
	)
	if cfg.Observability.MetricsEnabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics = observability.NewMetrics(registry)
		recorder = metrics
		conn.StartStatsReporter(ctx, cfg.Observability.DBStatsInterval, metrics)
	}

	auditLogger := audit.NewMultiLogger(audit.NewDBLogger(db), audit.NewLogrusLogger(auditLog))

	store := rbac.NewStore(db)
	resolver := rbac.NewResolver(store, store, rbac.WithLegacyOwnerGrant(cfg.Authz.LegacyOwnerGrant))
	gateOpts := []rbac.GateOption{
		rbac.WithProjectCreators(cfg.Authz.ProjectCreators...),
		rbac.WithAuditLogger(auditLogger),
	}
	if recorder != nil {
		gateOpts = append(gateOpts, rbac.WithRecorder(recorder))
	}
	gate := rbac.NewGate(resolver, gateOpts...)

	userService := users.NewSQLService(db, gate, auditLogger)
	tokens := auth.NewTokenManager(auth.NewSQLTokenStore(db), userService, auditLogger)
	projectService := projects.NewSQLService(db, gate, store, auditLogger)
	members := rbac.NewMembershipManager(gate, store, storage.NewTxManager(db))

	deps := api.Dependencies{
		Gate:         gate,
		Users:        userService,
		Tokens:       tokens,
		Projects:     projectService,
		Members:      members,
		Audit:        audit.NewDBLogger(db),
		Logger:       logger,
		Metrics:      metrics,
		Registry:     registry,
		Health:       observability.NewHealthChecker(db, redisClient, cfg.Observability.OTelServiceVersion),
		Tracing:      cfg.Observability.OTelEnabled,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
	}
	if cfg.RateLimit.Enabled {
		var limitRecorder middleware.RateLimitRecorder
		if metrics != nil {
			limitRecorder = metrics
		}
		deps.UserRateLimit = newRateLimit(ctx, redisClient, cfg.RateLimit.PerUser, "ratelimit:user", limitRecorder, logger)
		deps.PublicRateLimit = newRateLimit(ctx, redisClient, cfg.RateLimit.PerIP, "ratelimit:ip", limitRecorder, logger)
	}

	scheduler := cron.New()
	_, err = scheduler.AddFunc(cfg.Jobs.TokenCleanupSchedule, func() {
		revoked, err := tokens.CleanupExpiredTokens(context.Background())
		if err != nil {
			logger.WithError(err).Error("Expired token cleanup failed")
			return
		}
		if metrics != nil {
			metrics.ExpiredTokensRevokedTotal.Add(float64(revoked))
		}
		if revoked > 0 {
			logger.WithField("revoked", revoked).Info("Revoked expired tokens")
		}
	})
	if err != nil {
		conn.Close()
		return err
	}
	scheduler.Start()

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api.NewServer(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := observability.NewShutdownManager(logger, server, cfg.Server.ShutdownTimeout)
	shutdown.Register("cron", func(ctx context.Context) error {
		select {
		case <-scheduler.Stop().Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	shutdown.Register("audit", func(context.Context) error {
		return auditLogger.Close()
	})
	if redisClient != nil {
		shutdown.Register("redis", func(context.Context) error {
			return redisClient.Close()
		})
	}
	shutdown.Register("database", func(context.Context) error {
		return conn.Close()
	})
	shutdown.Register("otel", otelProviders.Shutdown)

	serverErr := make(chan error, 1)
	go func() {
		logger.WithField("addr", server.Addr).Info("Taskboard server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	waitCtx, stopWaiting := context.WithCancel(ctx)
	defer stopWaiting()
	go func() {
		if err := <-serverErr; err != nil {
			logger.WithError(err).Error("HTTP server failed")
			stopWaiting()
		}
	}()

	return shutdown.WaitForSignal(waitCtx)
}

// newRateLimit prefers the Redis-backed limiter so budgets hold across
// replicas, keeping an in-memory limiter as fallback for Redis outages
func newRateLimit(ctx context.Context, client *redis.Client, cfg middleware.RateLimitConfig, prefix string, recorder middleware.RateLimitRecorder, logger *observability.Logger) *middleware.RateLimitMiddleware {
	memory := middleware.NewRateLimiter(cfg)
	memory.StartCleanup(ctx)

	if client == nil {
		return middleware.NewRateLimitMiddleware(memory, nil, recorder, logger)
	}
	return middleware.NewRateLimitMiddleware(middleware.NewDistributedRateLimiter(client, cfg, prefix), memory, recorder, logger)
}

func setupLogger(logLevel string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
	})

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}
