// Package config loads server configuration from environment variables,
// optionally layered over a YAML file.
//
// Precedence, lowest first: built-in defaults, the file named by
// TASKBOARD_CONFIG_FILE, then TASKBOARD_* environment variables.
//
// Server settings:
//
//	TASKBOARD_HOST="0.0.0.0"
//	TASKBOARD_PORT="8080"
//	TASKBOARD_READ_TIMEOUT="15s"
//	TASKBOARD_SHUTDOWN_TIMEOUT="30s"
//
// Storage settings:
//
//	TASKBOARD_DATABASE_URL="postgres://localhost/taskboard"
//	TASKBOARD_DATABASE_MAX_CONNS="20"
//	TASKBOARD_REDIS_URL="redis://localhost:6379"  # optional, enables distributed rate limiting
//
// Authorization settings:
//
//	TASKBOARD_LEGACY_OWNER_GRANT="true"
//	TASKBOARD_PROJECT_CREATORS="admin,manager"
//
// Observability settings:
//
//	TASKBOARD_LOG_LEVEL="info"  # debug, info, warn, error
//	TASKBOARD_METRICS_ENABLED="true"
//	TASKBOARD_OTEL_ENABLED="true"
//	TASKBOARD_OTEL_ENDPOINT="otel-collector:4317"
//
// Jobs:
//
//	TASKBOARD_TOKEN_CLEANUP_SCHEDULE="@hourly"
package config
