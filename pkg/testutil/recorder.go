package testutil

import (
	"context"
	"sync"

	"github.com/platinummonkey/scorecard/pkg/audit"
)

// AuditRecorder keeps every audit event logged to it
type AuditRecorder struct {
	mu     sync.Mutex
	events []*audit.AuditEvent
}

func (r *AuditRecorder) Log(ctx context.Context, event *audit.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *AuditRecorder) Close() error { return nil }

// Events returns a copy of the recorded events
func (r *AuditRecorder) Events() []*audit.AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*audit.AuditEvent(nil), r.events...)
}

// OfType returns the recorded events of eventType
func (r *AuditRecorder) OfType(eventType audit.EventType) []*audit.AuditEvent {
	var out []*audit.AuditEvent
	for _, e := range r.Events() {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}
