package models

import "time"

// EventType names a committed workflow change
type EventType string

// Workflow events
const (
	EventFlagCreated       EventType = "flag_created"
	EventFlagStatusChanged EventType = "flag_status_changed"
	EventItemStatusChanged EventType = "item_status_changed"
	EventUserVerified      EventType = "user_verified"
	EventKYCSubmitted      EventType = "kyc_submitted"
	EventKYCRejected       EventType = "kyc_rejected"
)

// Event describes a change after it has been committed to a store
type Event struct {
	Type       EventType  `json:"type"`
	RecordID   string     `json:"recordId"`
	OwnerID    string     `json:"ownerId,omitempty"`
	ActorID    string     `json:"actorId,omitempty"`
	From       string     `json:"from,omitempty"`
	To         string     `json:"to,omitempty"`
	Reason     string     `json:"reason,omitempty"`
	OccurredAt time.Time  `json:"occurredAt"`
}
