package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Dialect selects which SQL variant of a migration is applied
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite3"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	Postgres    string
	SQLite      string
}

// SQL returns the statement text for the given dialect
func (m Migration) SQL(dialect Dialect) (string, error) {
	switch dialect {
	case DialectPostgres:
		return m.Postgres, nil
	case DialectSQLite:
		return m.SQLite, nil
	default:
		return "", fmt.Errorf("unsupported dialect: %s", dialect)
	}
}

// Migrations returns all schema migrations in version order
func Migrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create users table",
			Postgres: `
				CREATE TABLE IF NOT EXISTS users (
					id BIGSERIAL PRIMARY KEY,
					username VARCHAR(255) NOT NULL UNIQUE,
					email VARCHAR(255) NOT NULL UNIQUE,
					system_role VARCHAR(20) NOT NULL DEFAULT 'user'
						CHECK (system_role IN ('user', 'manager', 'admin')),
					active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMPTZ NOT NULL,
					updated_at TIMESTAMPTZ NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_users_system_role ON users(system_role);
			`,
			SQLite: `
				CREATE TABLE IF NOT EXISTS users (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					username TEXT NOT NULL UNIQUE,
					email TEXT NOT NULL UNIQUE,
					system_role TEXT NOT NULL DEFAULT 'user'
						CHECK (system_role IN ('user', 'manager', 'admin')),
					active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				);
			`,
		},
		{
			Version:     2,
			Description: "Create projects table",
			Postgres: `
				CREATE TABLE IF NOT EXISTS projects (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					status VARCHAR(20) NOT NULL DEFAULT 'planning',
					owner_id BIGINT NOT NULL REFERENCES users(id),
					creator_id BIGINT NOT NULL REFERENCES users(id),
					active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMPTZ NOT NULL,
					updated_at TIMESTAMPTZ NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_projects_owner_id ON projects(owner_id);
				CREATE INDEX IF NOT EXISTS idx_projects_creator_id ON projects(creator_id);
				CREATE INDEX IF NOT EXISTS idx_projects_created_at ON projects(created_at DESC, id DESC);
			`,
			SQLite: `
				CREATE TABLE IF NOT EXISTS projects (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					name TEXT NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					status TEXT NOT NULL DEFAULT 'planning',
					owner_id INTEGER NOT NULL REFERENCES users(id),
					creator_id INTEGER NOT NULL REFERENCES users(id),
					active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				);
			`,
		},
		{
			Version:     3,
			Description: "Create project_members table with membership invariants",
			Postgres: `
				CREATE TABLE IF NOT EXISTS project_members (
					id BIGSERIAL PRIMARY KEY,
					project_id BIGINT NOT NULL REFERENCES projects(id),
					user_id BIGINT NOT NULL REFERENCES users(id),
					role VARCHAR(20) NOT NULL
						CHECK (role IN ('viewer', 'member', 'admin', 'owner')),
					active BOOLEAN NOT NULL DEFAULT TRUE,
					joined_at TIMESTAMPTZ NOT NULL,
					left_at TIMESTAMPTZ,
					added_by BIGINT REFERENCES users(id)
				);

				CREATE UNIQUE INDEX IF NOT EXISTS uq_project_members_active
					ON project_members(project_id, user_id) WHERE active = TRUE;
				CREATE UNIQUE INDEX IF NOT EXISTS uq_project_members_owner
					ON project_members(project_id) WHERE active = TRUE AND role = 'owner';
				CREATE INDEX IF NOT EXISTS idx_project_members_user_id ON project_members(user_id, active);
			`,
			SQLite: `
				CREATE TABLE IF NOT EXISTS project_members (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					project_id INTEGER NOT NULL REFERENCES projects(id),
					user_id INTEGER NOT NULL REFERENCES users(id),
					role TEXT NOT NULL
						CHECK (role IN ('viewer', 'member', 'admin', 'owner')),
					active BOOLEAN NOT NULL DEFAULT TRUE,
					joined_at TIMESTAMP NOT NULL,
					left_at TIMESTAMP,
					added_by INTEGER REFERENCES users(id)
				);

				CREATE UNIQUE INDEX IF NOT EXISTS uq_project_members_active
					ON project_members(project_id, user_id) WHERE active = TRUE;
				CREATE UNIQUE INDEX IF NOT EXISTS uq_project_members_owner
					ON project_members(project_id) WHERE active = TRUE AND role = 'owner';
			`,
		},
		{
			Version:     4,
			Description: "Create tasks table",
			Postgres: `
				CREATE TABLE IF NOT EXISTS tasks (
					id BIGSERIAL PRIMARY KEY,
					project_id BIGINT NOT NULL REFERENCES projects(id),
					title VARCHAR(500) NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					status VARCHAR(20) NOT NULL DEFAULT 'todo'
						CHECK (status IN ('todo', 'in_progress', 'review', 'done')),
					priority VARCHAR(20) NOT NULL DEFAULT 'medium',
					assignee_id BIGINT REFERENCES users(id),
					creator_id BIGINT NOT NULL REFERENCES users(id),
					created_at TIMESTAMPTZ NOT NULL,
					updated_at TIMESTAMPTZ NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_tasks_project_id ON tasks(project_id);
				CREATE INDEX IF NOT EXISTS idx_tasks_assignee_id ON tasks(assignee_id);
				CREATE INDEX IF NOT EXISTS idx_tasks_created_at ON tasks(created_at DESC, id DESC);
			`,
			SQLite: `
				CREATE TABLE IF NOT EXISTS tasks (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					project_id INTEGER NOT NULL REFERENCES projects(id),
					title TEXT NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					status TEXT NOT NULL DEFAULT 'todo'
						CHECK (status IN ('todo', 'in_progress', 'review', 'done')),
					priority TEXT NOT NULL DEFAULT 'medium',
					assignee_id INTEGER REFERENCES users(id),
					creator_id INTEGER NOT NULL REFERENCES users(id),
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				);
			`,
		},
		{
			Version:     5,
			Description: "Create api_tokens table",
			Postgres: `
				CREATE TABLE IF NOT EXISTS api_tokens (
					id BIGSERIAL PRIMARY KEY,
					user_id BIGINT NOT NULL REFERENCES users(id),
					token_hash VARCHAR(64) NOT NULL UNIQUE,
					token_prefix VARCHAR(32) NOT NULL,
					name VARCHAR(255) NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					scopes TEXT NOT NULL DEFAULT '',
					expires_at TIMESTAMPTZ,
					last_used_at TIMESTAMPTZ,
					created_at TIMESTAMPTZ NOT NULL,
					revoked_at TIMESTAMPTZ,
					revoked_by BIGINT REFERENCES users(id),
					revoke_reason TEXT NOT NULL DEFAULT ''
				);

				CREATE INDEX IF NOT EXISTS idx_api_tokens_user_id ON api_tokens(user_id);
			`,
			SQLite: `
				CREATE TABLE IF NOT EXISTS api_tokens (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					user_id INTEGER NOT NULL REFERENCES users(id),
					token_hash TEXT NOT NULL UNIQUE,
					token_prefix TEXT NOT NULL,
					name TEXT NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					scopes TEXT NOT NULL DEFAULT '',
					expires_at TIMESTAMP,
					last_used_at TIMESTAMP,
					created_at TIMESTAMP NOT NULL,
					revoked_at TIMESTAMP,
					revoked_by INTEGER REFERENCES users(id),
					revoke_reason TEXT NOT NULL DEFAULT ''
				);
			`,
		},
		{
			Version:     6,
			Description: "Create audit_logs table",
			Postgres: `
				CREATE TABLE IF NOT EXISTS audit_logs (
					id BIGSERIAL PRIMARY KEY,
					timestamp TIMESTAMPTZ NOT NULL,
					event_type VARCHAR(100) NOT NULL,
					status VARCHAR(20) NOT NULL,
					user_id BIGINT,
					username VARCHAR(255) NOT NULL DEFAULT '',
					resource_type VARCHAR(50) NOT NULL DEFAULT '',
					resource_id VARCHAR(255) NOT NULL DEFAULT '',
					project_id BIGINT,
					request_id VARCHAR(100) NOT NULL DEFAULT '',
					message TEXT NOT NULL DEFAULT '',
					error_message TEXT NOT NULL DEFAULT '',
					metadata TEXT NOT NULL DEFAULT '{}'
				);

				CREATE INDEX IF NOT EXISTS idx_audit_logs_timestamp ON audit_logs(timestamp DESC);
				CREATE INDEX IF NOT EXISTS idx_audit_logs_event_type ON audit_logs(event_type);
				CREATE INDEX IF NOT EXISTS idx_audit_logs_project_id ON audit_logs(project_id);
			`,
			SQLite: `
				CREATE TABLE IF NOT EXISTS audit_logs (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					timestamp TIMESTAMP NOT NULL,
					event_type TEXT NOT NULL,
					status TEXT NOT NULL,
					user_id INTEGER,
					username TEXT NOT NULL DEFAULT '',
					resource_type TEXT NOT NULL DEFAULT '',
					resource_id TEXT NOT NULL DEFAULT '',
					project_id INTEGER,
					request_id TEXT NOT NULL DEFAULT '',
					message TEXT NOT NULL DEFAULT '',
					error_message TEXT NOT NULL DEFAULT '',
					metadata TEXT NOT NULL DEFAULT '{}'
				);
			`,
		},
	}
}

// RunMigrations applies every migration newer than the recorded schema
// version. Each migration runs in its own transaction together with the
// bookkeeping row.
func RunMigrations(ctx context.Context, db *sql.DB, dialect Dialect) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return err
	}

	for _, migration := range Migrations() {
		if applied[migration.Version] {
			continue
		}

		stmt, err := migration.SQL(dialect)
		if err != nil {
			return err
		}

		if err := applyMigration(ctx, db, migration, stmt); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", migration.Version, migration.Description, err)
		}
	}

	return nil
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[int]bool, error) {
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("failed to read applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func applyMigration(ctx context.Context, db *sql.DB, migration Migration, stmt string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, description, applied_at) VALUES ($1, $2, $3)`,
		migration.Version, migration.Description, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	return tx.Commit()
}

// SchemaVersion returns the highest applied migration version
func SchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version sql.NullInt64
	err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_migrations`).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return int(version.Int64), nil
}
