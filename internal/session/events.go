package session

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/poundofcure/go-intake/internal/catalog"
)

// EventType represents the type of intake lifecycle event
type EventType string

const (
	EventSessionCreated     EventType = "SessionCreated"
	EventIdentityVerified   EventType = "IdentityVerified"
	EventVerificationLocked EventType = "VerificationLocked"
	EventSectionCompleted   EventType = "SectionCompleted"
	EventSessionCompleted   EventType = "SessionCompleted"
)

// Event represents an intake lifecycle event
type Event struct {
	ID            string          `json:"id"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	EventType     EventType       `json:"event_type"`
	EventData     json.RawMessage `json:"event_data"`
	Version       int             `json:"version"`
	Timestamp     time.Time       `json:"timestamp"`
	PatientMRN    string          `json:"patient_mrn,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
}

// NewEvent creates a new event keyed by session ID
func NewEvent(sessionID string, eventType EventType, data interface{}) (*Event, error) {
	eventData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Event{
		ID:            uuid.New().String(),
		AggregateID:   sessionID,
		AggregateType: "IntakeSession",
		EventType:     eventType,
		EventData:     eventData,
		Timestamp:     time.Now().UTC(),
	}, nil
}

// WithPatient sets audit fields
func (e *Event) WithPatient(mrn string) *Event {
	e.PatientMRN = mrn
	return e
}

// SessionCreatedData contains session creation details
type SessionCreatedData struct {
	SessionID  string    `json:"session_id"`
	PatientMRN string    `json:"patient_mrn"`
	CreatedAt  time.Time `json:"created_at"`
}

// IdentityVerifiedData contains verification details
type IdentityVerifiedData struct {
	SessionID string `json:"session_id"`
	Attempts  int    `json:"attempts"`
}

// VerificationLockedData contains lockout details
type VerificationLockedData struct {
	SessionID string `json:"session_id"`
	Attempts  int    `json:"attempts"`
}

// SectionCompletedData contains section completion details
type SectionCompletedData struct {
	SessionID   string          `json:"session_id"`
	Section     catalog.Section `json:"section"`
	FieldCount  int             `json:"field_count"`
	PushedToEHR bool            `json:"pushed_to_ehr"`
}

// SessionCompletedData contains session completion details
type SessionCompletedData struct {
	SessionID    string    `json:"session_id"`
	PatientMRN   string    `json:"patient_mrn"`
	EHRPatientID string    `json:"ehr_patient_id,omitempty"`
	CompletedAt  time.Time `json:"completed_at"`
}
