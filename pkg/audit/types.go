package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/platinummonkey/taskboard/pkg/contextkeys"
)

// EventType represents the category of audit event
type EventType string

const (
	// Authentication events
	EventTypeAuthTokenCreate       EventType = "auth.token_create"
	EventTypeAuthTokenRevoke       EventType = "auth.token_revoke"
	EventTypeAuthTokenValidateFail EventType = "auth.token_validate_fail"

	// Authorization events
	EventTypeAuthzAccessDenied EventType = "authz.access_denied"
	EventTypeAuthzRoleChange   EventType = "authz.system_role_change"

	// Membership lifecycle events
	EventTypeMembershipAdd        EventType = "membership.add"
	EventTypeMembershipRoleChange EventType = "membership.role_change"
	EventTypeMembershipRemove     EventType = "membership.remove"
	EventTypeMembershipLeave      EventType = "membership.leave"
	EventTypeOwnershipTransfer    EventType = "membership.ownership_transfer"

	// Data mutation events
	EventTypeProjectCreate  EventType = "data.project_create"
	EventTypeProjectUpdate  EventType = "data.project_update"
	EventTypeProjectArchive EventType = "data.project_archive"
	EventTypeTaskCreate     EventType = "data.task_create"
	EventTypeTaskUpdate     EventType = "data.task_update"

	// Admin events
	EventTypeAdminUserCreate     EventType = "admin.user_create"
	EventTypeAdminUserDeactivate EventType = "admin.user_deactivate"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// ResourceType represents the type of resource being accessed
type ResourceType string

const (
	ResourceTypeProject    ResourceType = "project"
	ResourceTypeTask       ResourceType = "task"
	ResourceTypeMembership ResourceType = "membership"
	ResourceTypeUser       ResourceType = "user"
	ResourceTypeToken      ResourceType = "token"
)

// AuditEvent represents a single audit log entry
type AuditEvent struct {
	ID        int64       `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor
	UserID   *int64 `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`

	// Target
	ResourceType ResourceType `json:"resource_type,omitempty"`
	ResourceID   string       `json:"resource_id,omitempty"`
	ProjectID    *int64       `json:"project_id,omitempty"`

	RequestID    string                 `json:"request_id,omitempty"`
	Message      string                 `json:"message,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// NewEvent creates an event stamped with the current time and the request
// ID carried by ctx
func NewEvent(ctx context.Context, eventType EventType, status EventStatus) *AuditEvent {
	return &AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
		RequestID: contextkeys.GetRequestID(ctx),
		Metadata:  make(map[string]interface{}),
	}
}

// WithActor sets the acting user
func (e *AuditEvent) WithActor(userID int64) *AuditEvent {
	e.UserID = &userID
	return e
}

// WithProject sets the project the event belongs to
func (e *AuditEvent) WithProject(projectID int64) *AuditEvent {
	e.ProjectID = &projectID
	return e
}

// WithResource sets the target resource
func (e *AuditEvent) WithResource(resourceType ResourceType, resourceID string) *AuditEvent {
	e.ResourceType = resourceType
	e.ResourceID = resourceID
	return e
}

// WithMessage sets the human readable message
func (e *AuditEvent) WithMessage(message string) *AuditEvent {
	e.Message = message
	return e
}

// WithError records err as the event's error message
func (e *AuditEvent) WithError(err error) *AuditEvent {
	if err != nil {
		e.ErrorMessage = err.Error()
	}
	return e
}

// With adds a metadata field
func (e *AuditEvent) With(key string, value interface{}) *AuditEvent {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// ToJSON converts the audit event to JSON
func (e *AuditEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}
