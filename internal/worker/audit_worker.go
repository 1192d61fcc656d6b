// Package worker hosts background subscribers to the event dispatcher.
package worker

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/spec-kit/identity-service/internal/events"
	"github.com/spec-kit/identity-service/internal/repository"
)

// StartAuditWorker subscribes the audit log to identity lifecycle events.
// Every created, linked, and merged event becomes a durable audit row.
func StartAuditWorker(dispatcher events.Dispatcher, audit repository.AuditLogRepository, logger *zap.Logger) {
	if dispatcher == nil || audit == nil {
		return
	}

	handler := func(ctx context.Context, event events.Event) error {
		entry := &repository.AuditEntry{
			EventType:   string(event.Type),
			CanonicalID: event.CanonicalID,
			PerformedBy: event.PerformedBy,
			Details:     payloadDetails(event.Payload),
		}
		return audit.Create(ctx, entry)
	}

	dispatcher.Subscribe(events.EventIdentityCreated, handler)
	dispatcher.Subscribe(events.EventIdentityLinked, handler)
	dispatcher.Subscribe(events.EventIdentityMerged, handler)
}

// payloadDetails flattens a typed event payload into the audit details map.
func payloadDetails(payload interface{}) map[string]any {
	if payload == nil {
		return nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	var details map[string]any
	if err := json.Unmarshal(raw, &details); err != nil {
		return nil
	}
	return details
}
