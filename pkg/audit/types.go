package audit

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the category of audit event
type EventType string

const (
	EventTypeDecisionGranted    EventType = "decision.granted"
	EventTypeDecisionDenied     EventType = "decision.denied"
	EventTypeDecisionBypass     EventType = "decision.bypass"
	EventTypeEntitlementChanged EventType = "entitlement.changed"
)

// Event represents a single audit entry. Decision events capture the actor,
// organization, target module/action, and the taxonomy kind for denials;
// entitlement events capture the status transition.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	EventType EventType `json:"event_type"`

	ActorID        *int64 `json:"actor_id,omitempty"`
	OrganizationID int64  `json:"organization_id,omitempty"`

	Module    string `json:"module,omitempty"`
	Submodule string `json:"submodule,omitempty"`
	Action    string `json:"action,omitempty"`

	// Kind is the failure taxonomy kind for denied decisions
	Kind string `json:"kind,omitempty"`
	// Bypass is the bypass rule that applied, for bypass decisions
	Bypass string `json:"bypass,omitempty"`

	Message  string                 `json:"message,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// NewEvent creates an event with ID and timestamp populated
func NewEvent(eventType EventType) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		EventType: eventType,
	}
}

// SearchFilter filters audit event listings
type SearchFilter struct {
	StartTime      *time.Time
	EndTime        *time.Time
	ActorID        *int64
	OrganizationID *int64
	EventTypes     []EventType
	Module         string

	Limit  int
	Offset int
}
