// Package sqlitetest provides in-memory SQLite databases carrying the full
// taskboard schema, for use in package tests.
package sqlitetest

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/platinummonkey/taskboard/pkg/storage"
)

// NewDB opens a fresh in-memory database and applies all migrations.
// The pool is pinned to one connection so every query sees the same
// in-memory database.
func NewDB(t testing.TB) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)

	if err := storage.RunMigrations(context.Background(), db, storage.DialectSQLite); err != nil {
		db.Close()
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})
	return db
}

// InsertUser creates an active user with the given system role label
func InsertUser(t testing.TB, db *sql.DB, username, systemRole string) int64 {
	t.Helper()

	now := time.Now().UTC()
	var id int64
	err := db.QueryRow(`
		INSERT INTO users (username, email, system_role, active, created_at, updated_at)
		VALUES ($1, $2, $3, TRUE, $4, $5)
		RETURNING id
	`, username, username+"@example.com", systemRole, now, now).Scan(&id)
	if err != nil {
		t.Fatalf("Failed to insert user %s: %v", username, err)
	}
	return id
}

// DeactivateUser marks a user inactive
func DeactivateUser(t testing.TB, db *sql.DB, userID int64) {
	t.Helper()

	if _, err := db.Exec(`UPDATE users SET active = FALSE WHERE id = $1`, userID); err != nil {
		t.Fatalf("Failed to deactivate user %d: %v", userID, err)
	}
}

// InsertProject creates a project row without any membership. Most tests
// should go through the projects service instead; this exists for fixtures
// that need a project whose owner has no materialized membership.
func InsertProject(t testing.TB, db *sql.DB, name string, ownerID, creatorID int64) int64 {
	t.Helper()

	now := time.Now().UTC()
	var id int64
	err := db.QueryRow(`
		INSERT INTO projects (name, description, status, owner_id, creator_id, active, created_at, updated_at)
		VALUES ($1, '', 'planning', $2, $3, TRUE, $4, $5)
		RETURNING id
	`, name, ownerID, creatorID, now, now).Scan(&id)
	if err != nil {
		t.Fatalf("Failed to insert project %s: %v", name, err)
	}
	return id
}

// InsertMembership creates an active membership row
func InsertMembership(t testing.TB, db *sql.DB, projectID, userID int64, role string) int64 {
	t.Helper()

	var id int64
	err := db.QueryRow(`
		INSERT INTO project_members (project_id, user_id, role, active, joined_at)
		VALUES ($1, $2, $3, TRUE, $4)
		RETURNING id
	`, projectID, userID, role, time.Now().UTC()).Scan(&id)
	if err != nil {
		t.Fatalf("Failed to insert membership: %v", err)
	}
	return id
}

// InsertTask creates a task; assigneeID may be zero for an unassigned task
func InsertTask(t testing.TB, db *sql.DB, projectID, creatorID, assigneeID int64, title, status string) int64 {
	t.Helper()

	var assignee interface{}
	if assigneeID != 0 {
		assignee = assigneeID
	}

	now := time.Now().UTC()
	var id int64
	err := db.QueryRow(`
		INSERT INTO tasks (project_id, title, description, status, priority, assignee_id, creator_id, created_at, updated_at)
		VALUES ($1, $2, '', $3, 'medium', $4, $5, $6, $7)
		RETURNING id
	`, projectID, title, status, assignee, creatorID, now, now).Scan(&id)
	if err != nil {
		t.Fatalf("Failed to insert task %s: %v", title, err)
	}
	return id
}

// CountActiveMemberships returns the number of active rows for a project,
// optionally restricted to one role
func CountActiveMemberships(t testing.TB, db *sql.DB, projectID int64, role string) int {
	t.Helper()

	query := `SELECT COUNT(*) FROM project_members WHERE project_id = $1 AND active = TRUE`
	args := []interface{}{projectID}
	if role != "" {
		query += ` AND role = $2`
		args = append(args, role)
	}

	var count int
	if err := db.QueryRow(query, args...).Scan(&count); err != nil {
		t.Fatalf("Failed to count memberships: %v", err)
	}
	return count
}
