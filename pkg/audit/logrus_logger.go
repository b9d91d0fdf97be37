package audit

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogrusLogger writes audit events as structured logrus entries
type LogrusLogger struct {
	logger logrus.FieldLogger
}

// NewLogrusLogger creates an audit sink on top of a logrus logger
func NewLogrusLogger(logger logrus.FieldLogger) *LogrusLogger {
	return &LogrusLogger{logger: logger}
}

// Log implements Logger
func (l *LogrusLogger) Log(ctx context.Context, event *AuditEvent) error {
	fields := logrus.Fields{
		"audit":      true,
		"event_type": string(event.EventType),
		"status":     string(event.Status),
	}
	if event.UserID != nil {
		fields["user_id"] = *event.UserID
	}
	if event.ProjectID != nil {
		fields["project_id"] = *event.ProjectID
	}
	if event.ResourceType != "" {
		fields["resource_type"] = string(event.ResourceType)
		fields["resource_id"] = event.ResourceID
	}
	if event.RequestID != "" {
		fields["request_id"] = event.RequestID
	}
	if event.ErrorMessage != "" {
		fields["error"] = event.ErrorMessage
	}
	for k, v := range event.Metadata {
		fields["meta_"+k] = v
	}

	entry := l.logger.WithFields(fields)
	switch event.Status {
	case EventStatusDenied, EventStatusFailure:
		entry.Warn(event.Message)
	default:
		entry.Info(event.Message)
	}
	return nil
}

// Close implements Logger
func (l *LogrusLogger) Close() error {
	return nil
}
