// Package observability provides structured logging, Prometheus metrics,
// health probes, graceful shutdown and OpenTelemetry setup for the
// taskboard server.
//
// # Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	observability.FromContext(ctx).WithField("project_id", id).Info("archived")
//
// FromContext picks up the request ID, user ID and trace IDs placed in the
// context by the HTTP middleware.
//
// # Metrics
//
// Metrics satisfies rbac.Recorder, so the authorization gate and the
// membership manager report decisions directly:
//
//	metrics := observability.NewMetrics(registry)
//	gate := rbac.NewGate(resolver, rbac.WithRecorder(metrics))
//
// # Health
//
//	checker := observability.NewHealthChecker(db, redisClient, version)
//	observability.RegisterHealthRoutes(router, checker)
//
// The database is required for readiness. Redis only degrades it.
package observability
