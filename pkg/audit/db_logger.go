package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// DBLogger writes audit events to the audit_logs table. The table is created
// by storage.Migrate.
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a new database-based audit logger
func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &DBLogger{db: db}, nil
}

const insertAuditLog = `
	INSERT INTO audit_logs (
		timestamp, event_type, status,
		user_id, username, organization_id,
		resource_type, resource_id,
		ip_address, request_id, method, path,
		message, metadata
	) VALUES (
		$1, $2, $3,
		$4, $5, $6,
		$7, $8,
		$9, $10, $11, $12,
		$13, $14
	) RETURNING id`

// Log inserts event and stores the generated id on it
func (l *DBLogger) Log(ctx context.Context, event *AuditEvent) error {
	var metadata sql.NullString
	if len(event.Metadata) > 0 {
		raw, err := json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		metadata = sql.NullString{String: string(raw), Valid: true}
	}

	err := l.db.QueryRowContext(ctx, insertAuditLog,
		event.Timestamp, string(event.EventType), string(event.Status),
		event.UserID, event.Username, event.OrganizationID,
		string(event.ResourceType), event.ResourceID,
		event.IPAddress, event.RequestID, event.Method, event.Path,
		event.Message, metadata,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	return nil
}

// Close is a no-op; the database handle is owned by the caller
func (l *DBLogger) Close() error {
	return nil
}
