package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// DBLogger implements audit logging to the audit_logs table
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a new database-backed audit logger. The table is
// created by the schema migrations.
func NewDBLogger(db *sql.DB) *DBLogger {
	return &DBLogger{db: db}
}

// Log inserts an audit event
func (l *DBLogger) Log(ctx context.Context, event *AuditEvent) error {
	metadata := []byte("{}")
	if len(event.Metadata) > 0 {
		var err error
		metadata, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	query := `
		INSERT INTO audit_logs (
			timestamp, event_type, status,
			user_id, username,
			resource_type, resource_id, project_id,
			request_id, message, error_message, metadata
		) VALUES (
			$1, $2, $3,
			$4, $5,
			$6, $7, $8,
			$9, $10, $11, $12
		) RETURNING id
	`

	err := l.db.QueryRowContext(ctx, query,
		event.Timestamp, string(event.EventType), string(event.Status),
		event.UserID, event.Username,
		string(event.ResourceType), event.ResourceID, event.ProjectID,
		event.RequestID, event.Message, event.ErrorMessage, string(metadata),
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}

	return nil
}

// ListByProject returns the most recent events for a project, newest first
func (l *DBLogger) ListByProject(ctx context.Context, projectID int64, limit int) ([]*AuditEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT id, timestamp, event_type, status, user_id, username,
		       resource_type, resource_id, project_id, request_id,
		       message, error_message, metadata
		FROM audit_logs
		WHERE project_id = $1
		ORDER BY timestamp DESC, id DESC
		LIMIT $2
	`, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	var events []*AuditEvent
	for rows.Next() {
		var (
			event     AuditEvent
			userID    sql.NullInt64
			project   sql.NullInt64
			eventType string
			status    string
			resource  string
			metadata  string
		)
		if err := rows.Scan(
			&event.ID, &event.Timestamp, &eventType, &status, &userID, &event.Username,
			&resource, &event.ResourceID, &project, &event.RequestID,
			&event.Message, &event.ErrorMessage, &metadata,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}

		event.EventType = EventType(eventType)
		event.Status = EventStatus(status)
		event.ResourceType = ResourceType(resource)
		if userID.Valid {
			event.UserID = &userID.Int64
		}
		if project.Valid {
			event.ProjectID = &project.Int64
		}
		if metadata != "" {
			if err := json.Unmarshal([]byte(metadata), &event.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		events = append(events, &event)
	}

	return events, rows.Err()
}

// Close implements Logger. The pool is owned by the caller.
func (l *DBLogger) Close() error {
	return nil
}
