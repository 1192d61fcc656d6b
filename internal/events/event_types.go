package events

import (
	"time"

	"github.com/spec-kit/identity-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventIdentityCreated EventType = "identity_created"
	EventIdentityLinked  EventType = "identity_linked"
	EventIdentityMerged  EventType = "identity_merged"
)

// Event represents an identity lifecycle event. Payloads carry identifier
// types and provenance but never raw PII or hash values.
type Event struct {
	ID          string      `json:"id"`
	Type        EventType   `json:"type"`
	CanonicalID string      `json:"canonical_id"`
	PerformedBy string      `json:"performed_by"`
	Timestamp   time.Time   `json:"timestamp"`
	Payload     interface{} `json:"payload"`
}

// IdentityCreatedPayload payload.
type IdentityCreatedPayload struct {
	Source string `json:"source"`
}

// IdentityLinkedPayload payload.
type IdentityLinkedPayload struct {
	IDType     domain.IdentifierType `json:"id_type"`
	Source     string                `json:"source"`
	Confidence float64               `json:"confidence"`
	Verified   bool                  `json:"verified"`
}

// IdentityMergedPayload payload.
type IdentityMergedPayload struct {
	MergedIDs  []string `json:"merged_ids"`
	Reason     string   `json:"reason"`
	MovedLinks int      `json:"moved_links"`
}
