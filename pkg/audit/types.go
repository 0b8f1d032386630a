package audit

import (
	"encoding/json"
	"strconv"
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	// Authentication events
	EventTypeAuthLogin       EventType = "auth.login"
	EventTypeAuthLoginFailed EventType = "auth.login_failed"

	// Authorization events
	EventTypeAuthzPermissionGrant  EventType = "authz.permission_grant"
	EventTypeAuthzPermissionRevoke EventType = "authz.permission_revoke"
	EventTypeAuthzAccessDenied     EventType = "authz.access_denied"
	EventTypeAuthzDirectoryReload  EventType = "authz.directory_reload"
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
	ResourceTypeRole         ResourceType = "role"
	ResourceTypePermission   ResourceType = "permission"
	ResourceTypeUser         ResourceType = "user"
	ResourceTypeEmployee     ResourceType = "employee"
	ResourceTypeDepartment   ResourceType = "department"
	ResourceTypePosition     ResourceType = "position"
	ResourceTypeOrganization ResourceType = "organization"
	ResourceTypeRoute        ResourceType = "route"
)

// AuditEvent represents a single audit log entry
type AuditEvent struct {
	ID        int64       `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor information
	UserID         *int64 `json:"user_id,omitempty"`
	Username       string `json:"username,omitempty"`
	OrganizationID *int64 `json:"organization_id,omitempty"`

	// Resource information
	ResourceType ResourceType `json:"resource_type,omitempty"`
	ResourceID   string       `json:"resource_id,omitempty"`

	// Request context
	IPAddress string `json:"ip_address,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Method    string `json:"method,omitempty"`
	Path      string `json:"path,omitempty"`

	Message  string                 `json:"message,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// WithResource sets the resource the event refers to
func (e *AuditEvent) WithResource(resourceType ResourceType, id int64) *AuditEvent {
	e.ResourceType = resourceType
	e.ResourceID = strconv.FormatInt(id, 10)
	return e
}

// WithMessage sets the human readable message
func (e *AuditEvent) WithMessage(message string) *AuditEvent {
	e.Message = message
	return e
}

// WithMetadata adds a metadata entry
func (e *AuditEvent) WithMetadata(key string, value interface{}) *AuditEvent {
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
