// Package audit records security relevant events: logins, permission grants
// and revokes, directory reloads and access denials.
//
// Events go to every configured Logger. The server uses a MultiLogger that
// writes each event to the structured log and to the audit_logs table:
//
//	logger := audit.NewMultiLogger(
//		audit.NewStructuredLogger(appLogger),
//		dbLogger,
//	)
//	ctx = audit.WithLogger(ctx, logger)
//
// Handlers build events from the request so the caller identity, client IP
// and request id are filled in:
//
//	event := audit.NewEvent(ctx, r, audit.EventTypeAuthzPermissionGrant, audit.EventStatusSuccess).
//		WithResource(audit.ResourceTypeRole, roleID).
//		WithMetadata("permission_ids", ids)
//	audit.Record(ctx, event)
package audit
