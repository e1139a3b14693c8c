package events

import (
	"time"

	"github.com/gymcore/access-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventAccessGranted EventType = "access_granted"
	EventAccessDenied  EventType = "access_denied"
	EventManualEntry   EventType = "manual_entry"
)

// AllEventTypes lists every event the access service emits.
var AllEventTypes = []EventType{EventAccessGranted, EventAccessDenied, EventManualEntry}

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type    domain.SubjectType `json:"type"`
	StaffID string             `json:"staff_id,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	SubjectID string      `json:"subject_id,omitempty"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// AccessDecisionPayload describes a QR validation outcome.
type AccessDecisionPayload struct {
	RecordID         string                  `json:"record_id"`
	Outcome          domain.AccessOutcome    `json:"outcome"`
	Reason           domain.DenialReason     `json:"reason,omitempty"`
	StationID        string                  `json:"station_id,omitempty"`
	StaffID          string                  `json:"staff_id,omitempty"`
	MembershipStatus domain.MembershipStatus `json:"membership_status,omitempty"`
}

// ManualEntryPayload describes an entry registered by reception without a code.
type ManualEntryPayload struct {
	RecordID         string                   `json:"record_id"`
	Reason           domain.ManualEntryReason `json:"reason"`
	Notes            string                   `json:"notes,omitempty"`
	MembershipStatus domain.MembershipStatus  `json:"membership_status,omitempty"`
}
