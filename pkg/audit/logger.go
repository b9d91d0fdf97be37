package audit

import (
	"context"
)

// Logger is the interface for audit sinks
type Logger interface {
	// Log records an audit event
	Log(ctx context.Context, event *AuditEvent) error

	// Close flushes and releases the sink
	Close() error
}

// NoOpLogger discards every event
type NoOpLogger struct{}

// Log implements Logger
func (NoOpLogger) Log(ctx context.Context, event *AuditEvent) error {
	return nil
}

// Close implements Logger
func (NoOpLogger) Close() error {
	return nil
}
