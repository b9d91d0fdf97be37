package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/platinummonkey/taskboard/pkg/storage"
)

// ConnectionManager owns the PostgreSQL connection pool.
//
// Authorization decisions read through the same pool as writes; there is no
// replica routing, so a role change is visible to the very next request.
type ConnectionManager struct {
	db     *sql.DB
	config ConnectionConfig
}

// ConnectionConfig holds database connection configuration
type ConnectionConfig struct {
	URL         string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// ConfigFromStorage builds a connection config from the storage settings
func ConfigFromStorage(cfg storage.Config) ConnectionConfig {
	return ConnectionConfig{
		URL:         cfg.PostgresURL,
		MaxConns:    cfg.PostgresMaxConns,
		MinConns:    cfg.PostgresMinConns,
		Timeout:     cfg.PostgresTimeout,
		MaxLifetime: cfg.PostgresMaxLifetime,
		MaxIdleTime: cfg.PostgresMaxIdleTime,
	}
}

// NewConnectionManager opens and verifies the connection pool
func NewConnectionManager(ctx context.Context, config ConnectionConfig) (*ConnectionManager, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("postgres URL is required")
	}

	db, err := sql.Open("postgres", config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}

	db.SetMaxOpenConns(config.MaxConns)
	db.SetMaxIdleConns(config.MinConns)
	db.SetConnMaxLifetime(config.MaxLifetime)
	db.SetConnMaxIdleTime(config.MaxIdleTime)

	timeout := config.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &ConnectionManager{db: db, config: config}, nil
}

// DB returns the underlying pool
func (cm *ConnectionManager) DB() *sql.DB {
	return cm.db
}

// Migrate applies the PostgreSQL schema migrations
func (cm *ConnectionManager) Migrate(ctx context.Context) error {
	return storage.RunMigrations(ctx, cm.db, storage.DialectPostgres)
}

// HealthCheck pings the database
func (cm *ConnectionManager) HealthCheck(ctx context.Context) error {
	if err := cm.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database unhealthy: %w", err)
	}
	return nil
}

// PoolStatsReporter receives periodic connection pool statistics
type PoolStatsReporter interface {
	ReportDBStats(stats sql.DBStats)
}

// StartStatsReporter publishes pool statistics every interval until ctx is done
func (cm *ConnectionManager) StartStatsReporter(ctx context.Context, interval time.Duration, reporter PoolStatsReporter) {
	if interval == 0 {
		interval = 15 * time.Second
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				reporter.ReportDBStats(cm.db.Stats())
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Close closes the pool
func (cm *ConnectionManager) Close() error {
	if err := cm.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
