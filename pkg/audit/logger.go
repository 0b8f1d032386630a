package audit

import (
	"context"
	"net/http"
	"time"

	"github.com/platinummonkey/scorecard/pkg/auth"
	"github.com/platinummonkey/scorecard/pkg/contextkeys"
	"github.com/platinummonkey/scorecard/pkg/httputil"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log records an audit event
	Log(ctx context.Context, event *AuditEvent) error

	// Close flushes and releases the logger
	Close() error
}

// WithLogger adds an audit logger to the context
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return contextkeys.WithAuditLogger(ctx, logger)
}

// FromContext retrieves the audit logger from context
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(contextkeys.AuditLoggerKey).(Logger); ok {
		return logger
	}
	return noOpLogger{}
}

// Nop returns a logger that discards every event
func Nop() Logger {
	return noOpLogger{}
}

type noOpLogger struct{}

func (noOpLogger) Log(ctx context.Context, event *AuditEvent) error { return nil }
func (noOpLogger) Close() error                                     { return nil }

// NewEvent creates an event populated with the request context and, when the
// request is authenticated, the caller's identity. r may be nil.
func NewEvent(ctx context.Context, r *http.Request, eventType EventType, status EventStatus) *AuditEvent {
	event := &AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
		RequestID: contextkeys.GetRequestID(ctx),
	}

	if claims, ok := ctx.Value(contextkeys.ClaimsKey).(*auth.Claims); ok && claims != nil {
		userID := claims.UserID
		event.UserID = &userID
		event.Username = claims.Username
		event.OrganizationID = claims.OrgID
	}

	if r != nil {
		event.IPAddress = httputil.ClientIP(r)
		event.Method = r.Method
		event.Path = r.URL.Path
	}

	return event
}

// Record sends event to the logger stored in ctx
func Record(ctx context.Context, event *AuditEvent) error {
	return FromContext(ctx).Log(ctx, event)
}
