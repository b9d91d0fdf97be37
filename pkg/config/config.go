package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/taskboard/pkg/middleware"
	"github.com/platinummonkey/taskboard/pkg/observability"
	"github.com/platinummonkey/taskboard/pkg/rbac"
	"github.com/platinummonkey/taskboard/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Storage configuration
	Storage storage.Config

	// Observability configuration
	Observability ObservabilityConfig

	// Authorization configuration
	Authz AuthzConfig

	// Rate limiting configuration
	RateLimit RateLimitSettings

	// Background jobs
	Jobs JobsConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled  bool
	DBStatsInterval time.Duration

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
	OTelSampleRatio    float64
}

// AuthzConfig holds authorization engine settings
type AuthzConfig struct {
	// LegacyOwnerGrant gives system MANAGERs ADMIN on projects they own or
	// created when they hold no membership there
	LegacyOwnerGrant bool
	// ProjectCreators lists the system roles allowed to create projects
	ProjectCreators []rbac.SystemRole
}

// RateLimitSettings holds per-IP and per-user request budgets
type RateLimitSettings struct {
	Enabled bool
	PerIP   middleware.RateLimitConfig
	PerUser middleware.RateLimitConfig
}

// JobsConfig holds cron schedules
type JobsConfig struct {
	TokenCleanupSchedule string
}

// fileConfig is the YAML overlay. Zero values leave the default in place;
// environment variables are applied afterwards and win.
type fileConfig struct {
	Server struct {
		Host            string `yaml:"host"`
		Port            string `yaml:"port"`
		ReadTimeout     string `yaml:"read_timeout"`
		WriteTimeout    string `yaml:"write_timeout"`
		ShutdownTimeout string `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Database struct {
		URL      string `yaml:"url"`
		MaxConns int    `yaml:"max_conns"`
		MinConns int    `yaml:"min_conns"`
	} `yaml:"database"`
	Redis struct {
		URL string `yaml:"url"`
	} `yaml:"redis"`
	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
	Authz struct {
		LegacyOwnerGrant *bool    `yaml:"legacy_owner_grant"`
		ProjectCreators  []string `yaml:"project_creators"`
	} `yaml:"authz"`
	RateLimit struct {
		Enabled         *bool `yaml:"enabled"`
		PerIPRequests   int   `yaml:"per_ip_requests"`
		PerUserRequests int   `yaml:"per_user_requests"`
	} `yaml:"rate_limit"`
	Jobs struct {
		TokenCleanupSchedule string `yaml:"token_cleanup_schedule"`
	} `yaml:"jobs"`
}

// Defaults returns the configuration used when nothing is set
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxBodyBytes:    1 << 20,
		},
		Storage: storage.DefaultConfig(),
		Observability: ObservabilityConfig{
			LogLevel:           observability.InfoLevel,
			MetricsEnabled:     true,
			DBStatsInterval:    15 * time.Second,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "taskboard",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
			OTelSampleRatio:    1,
		},
		Authz: AuthzConfig{
			LegacyOwnerGrant: true,
			ProjectCreators:  []rbac.SystemRole{rbac.SystemRoleAdmin},
		},
		RateLimit: RateLimitSettings{
			Enabled: true,
			PerIP:   middleware.DefaultRateLimitConfig(),
			PerUser: middleware.PerUserRateLimitConfig(),
		},
		Jobs: JobsConfig{TokenCleanupSchedule: "@hourly"},
	}
}

// LoadConfig loads defaults, then the optional YAML file named by
// TASKBOARD_CONFIG_FILE, then environment variables
func LoadConfig() (*Config, error) {
	cfg := Defaults()

	if path := getEnv("TASKBOARD_CONFIG_FILE", ""); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := cfg.applyYAML(data); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyYAML(data []byte) error {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return err
	}

	setString(&c.Server.Host, fc.Server.Host)
	setString(&c.Server.Port, fc.Server.Port)
	for _, d := range []struct {
		dst *time.Duration
		raw string
	}{
		{&c.Server.ReadTimeout, fc.Server.ReadTimeout},
		{&c.Server.WriteTimeout, fc.Server.WriteTimeout},
		{&c.Server.ShutdownTimeout, fc.Server.ShutdownTimeout},
	} {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", d.raw, err)
		}
		*d.dst = v
	}

	setString(&c.Storage.PostgresURL, fc.Database.URL)
	setInt(&c.Storage.PostgresMaxConns, fc.Database.MaxConns)
	setInt(&c.Storage.PostgresMinConns, fc.Database.MinConns)
	setString(&c.Storage.RedisURL, fc.Redis.URL)

	if fc.Logging.Level != "" {
		level, err := observability.ParseLogLevel(fc.Logging.Level)
		if err != nil {
			return err
		}
		c.Observability.LogLevel = level
	}

	if fc.Authz.LegacyOwnerGrant != nil {
		c.Authz.LegacyOwnerGrant = *fc.Authz.LegacyOwnerGrant
	}
	if len(fc.Authz.ProjectCreators) > 0 {
		roles, err := parseSystemRoles(fc.Authz.ProjectCreators)
		if err != nil {
			return err
		}
		c.Authz.ProjectCreators = roles
	}

	if fc.RateLimit.Enabled != nil {
		c.RateLimit.Enabled = *fc.RateLimit.Enabled
	}
	setInt(&c.RateLimit.PerIP.RequestsPerWindow, fc.RateLimit.PerIPRequests)
	setInt(&c.RateLimit.PerUser.RequestsPerWindow, fc.RateLimit.PerUserRequests)
	setString(&c.Jobs.TokenCleanupSchedule, fc.Jobs.TokenCleanupSchedule)
	return nil
}

func (c *Config) applyEnv() error {
	c.Server = ServerConfig{
		Host:            getEnv("TASKBOARD_HOST", c.Server.Host),
		Port:            getEnv("TASKBOARD_PORT", c.Server.Port),
		ReadTimeout:     getEnvDuration("TASKBOARD_READ_TIMEOUT", c.Server.ReadTimeout),
		WriteTimeout:    getEnvDuration("TASKBOARD_WRITE_TIMEOUT", c.Server.WriteTimeout),
		IdleTimeout:     getEnvDuration("TASKBOARD_IDLE_TIMEOUT", c.Server.IdleTimeout),
		ShutdownTimeout: getEnvDuration("TASKBOARD_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout),
		MaxBodyBytes:    getEnvInt64("TASKBOARD_MAX_BODY_BYTES", c.Server.MaxBodyBytes),
	}

	// PostgreSQL config
	c.Storage.PostgresURL = getEnv("TASKBOARD_DATABASE_URL", c.Storage.PostgresURL)
	c.Storage.PostgresMaxConns = getEnvInt("TASKBOARD_DATABASE_MAX_CONNS", c.Storage.PostgresMaxConns)
	c.Storage.PostgresMinConns = getEnvInt("TASKBOARD_DATABASE_MIN_CONNS", c.Storage.PostgresMinConns)
	c.Storage.PostgresTimeout = getEnvDuration("TASKBOARD_DATABASE_TIMEOUT", c.Storage.PostgresTimeout)

	// Redis config
	c.Storage.RedisURL = getEnv("TASKBOARD_REDIS_URL", c.Storage.RedisURL)
	c.Storage.RedisPassword = getEnv("TASKBOARD_REDIS_PASSWORD", c.Storage.RedisPassword)
	c.Storage.RedisDB = getEnvInt("TASKBOARD_REDIS_DB", c.Storage.RedisDB)
	c.Storage.RedisPoolSize = getEnvInt("TASKBOARD_REDIS_POOL_SIZE", c.Storage.RedisPoolSize)

	if raw := getEnv("TASKBOARD_LOG_LEVEL", ""); raw != "" {
		level, err := observability.ParseLogLevel(raw)
		if err != nil {
			return err
		}
		c.Observability.LogLevel = level
	}
	c.Observability.MetricsEnabled = getEnvBool("TASKBOARD_METRICS_ENABLED", c.Observability.MetricsEnabled)
	c.Observability.DBStatsInterval = getEnvDuration("TASKBOARD_DB_STATS_INTERVAL", c.Observability.DBStatsInterval)
	c.Observability.OTelEnabled = getEnvBool("TASKBOARD_OTEL_ENABLED", c.Observability.OTelEnabled)
	c.Observability.OTelEndpoint = getEnv("TASKBOARD_OTEL_ENDPOINT", c.Observability.OTelEndpoint)
	c.Observability.OTelServiceName = getEnv("TASKBOARD_OTEL_SERVICE_NAME", c.Observability.OTelServiceName)
	c.Observability.OTelServiceVersion = getEnv("TASKBOARD_OTEL_SERVICE_VERSION", c.Observability.OTelServiceVersion)
	c.Observability.OTelInsecure = getEnvBool("TASKBOARD_OTEL_INSECURE", c.Observability.OTelInsecure)
	c.Observability.OTelSampleRatio = getEnvFloat("TASKBOARD_OTEL_SAMPLE_RATIO", c.Observability.OTelSampleRatio)

	c.Authz.LegacyOwnerGrant = getEnvBool("TASKBOARD_LEGACY_OWNER_GRANT", c.Authz.LegacyOwnerGrant)
	if raw := getEnv("TASKBOARD_PROJECT_CREATORS", ""); raw != "" {
		roles, err := parseSystemRoles(strings.Split(raw, ","))
		if err != nil {
			return err
		}
		c.Authz.ProjectCreators = roles
	}

	c.RateLimit.Enabled = getEnvBool("TASKBOARD_RATE_LIMIT_ENABLED", c.RateLimit.Enabled)
	c.RateLimit.PerIP.RequestsPerWindow = getEnvInt("TASKBOARD_RATE_LIMIT_IP_REQUESTS", c.RateLimit.PerIP.RequestsPerWindow)
	c.RateLimit.PerUser.RequestsPerWindow = getEnvInt("TASKBOARD_RATE_LIMIT_USER_REQUESTS", c.RateLimit.PerUser.RequestsPerWindow)
	window := getEnvDuration("TASKBOARD_RATE_LIMIT_WINDOW", c.RateLimit.PerUser.WindowDuration)
	c.RateLimit.PerIP.WindowDuration = window
	c.RateLimit.PerUser.WindowDuration = window

	c.Jobs.TokenCleanupSchedule = getEnv("TASKBOARD_TOKEN_CLEANUP_SCHEDULE", c.Jobs.TokenCleanupSchedule)
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Storage.PostgresURL == "" {
		return fmt.Errorf("database URL is required")
	}
	if c.Storage.PostgresMaxConns < c.Storage.PostgresMinConns {
		return fmt.Errorf("database max conns (%d) must not be below min conns (%d)",
			c.Storage.PostgresMaxConns, c.Storage.PostgresMinConns)
	}
	if len(c.Authz.ProjectCreators) == 0 {
		return fmt.Errorf("at least one project creator role is required")
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.PerIP.RequestsPerWindow <= 0 || c.RateLimit.PerUser.RequestsPerWindow <= 0 {
			return fmt.Errorf("rate limit budgets must be positive")
		}
		if c.RateLimit.PerUser.WindowDuration <= 0 {
			return fmt.Errorf("rate limit window must be positive")
		}
	}
	if c.Jobs.TokenCleanupSchedule == "" {
		return fmt.Errorf("token cleanup schedule is required")
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

func parseSystemRoles(labels []string) ([]rbac.SystemRole, error) {
	roles := make([]rbac.SystemRole, 0, len(labels))
	for _, label := range labels {
		role, err := rbac.ParseSystemRole(strings.TrimSpace(label))
		if err != nil {
			return nil, fmt.Errorf("project creators: %w", err)
		}
		roles = append(roles, role)
	}
	return roles, nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
