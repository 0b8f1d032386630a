package audit

import (
	"context"

	"github.com/platinummonkey/scorecard/pkg/observability"
)

// StructuredLogger writes audit events to the structured application log
type StructuredLogger struct {
	logger *observability.Logger
}

// NewStructuredLogger creates an audit logger backed by logger
func NewStructuredLogger(logger *observability.Logger) *StructuredLogger {
	return &StructuredLogger{logger: logger.WithField("component", "audit")}
}

// Log writes event as one log line. Denials and failures log at warn level.
func (l *StructuredLogger) Log(ctx context.Context, event *AuditEvent) error {
	fields := map[string]interface{}{
		"event_type": string(event.EventType),
		"status":     string(event.Status),
	}
	if event.UserID != nil {
		fields["user_id"] = *event.UserID
	}
	if event.Username != "" {
		fields["username"] = event.Username
	}
	if event.OrganizationID != nil {
		fields["organization_id"] = *event.OrganizationID
	}
	if event.ResourceType != "" {
		fields["resource_type"] = string(event.ResourceType)
		fields["resource_id"] = event.ResourceID
	}
	if event.RequestID != "" {
		fields["request_id"] = event.RequestID
	}
	if event.Path != "" {
		fields["method"] = event.Method
		fields["path"] = event.Path
	}
	if event.IPAddress != "" {
		fields["ip_address"] = event.IPAddress
	}
	for k, v := range event.Metadata {
		fields["meta."+k] = v
	}

	entry := l.logger.WithFields(fields)
	message := event.Message
	if message == "" {
		message = string(event.EventType)
	}
	if event.Status == EventStatusSuccess {
		entry.Info(message)
	} else {
		entry.Warn(message)
	}
	return nil
}

// Close is a no-op
func (l *StructuredLogger) Close() error {
	return nil
}
