// Package session implements the intake session aggregate: identity state,
// per-section records and trackers, and the derivation of which section the
// conversation is currently in.
package session

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/poundofcure/go-intake/internal/catalog"
	"github.com/poundofcure/go-intake/internal/intake"
	"github.com/poundofcure/go-intake/internal/verification"
)

// ErrNotFound is returned when a session ID resolves to nothing.
var ErrNotFound = errors.New("session not found")

// Session is one patient's intake conversation. Section membership is never
// stored; CurrentSection derives it from completion flags so the two can
// never disagree.
type Session struct {
	ID           string `json:"id"`
	PatientMRN   string `json:"patient_mrn"`
	EHRPatientID string `json:"ehr_patient_id,omitempty"`

	// Chart identity used by the verification gate. Loaded at session
	// creation, never echoed to the patient.
	PatientFirstName string `json:"patient_first_name,omitempty"`
	StoredLastName   string `json:"-"`
	StoredDOB        string `json:"-"`

	VerificationStatus   verification.Status `json:"verification_status"`
	VerificationAttempts int                 `json:"verification_attempts"`

	Sections map[catalog.Section]intake.Record     `json:"sections"`
	Tracking map[catalog.Section]*intake.Tracking  `json:"tracking"`

	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// New creates an unverified session for a patient chart.
func New(patientMRN string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:                 uuid.New().String(),
		PatientMRN:         patientMRN,
		VerificationStatus: verification.StatusUnconfirmed,
		Sections:           make(map[catalog.Section]intake.Record),
		Tracking:           make(map[catalog.Section]*intake.Tracking),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// Confirmed reports whether the identity gate has been passed.
func (s *Session) Confirmed() bool {
	return s.VerificationStatus == verification.StatusConfirmed
}

// Locked reports whether the identity gate is terminally locked.
func (s *Session) Locked() bool {
	return s.VerificationStatus == verification.StatusLocked
}

// CurrentSection returns the first section, in intake order, whose tracker
// is not complete. The second return is true when every section is done.
func (s *Session) CurrentSection() (catalog.Section, bool) {
	for _, sec := range catalog.Order {
		tr, ok := s.Tracking[sec]
		if !ok || !tr.IsComplete {
			return sec, false
		}
	}
	return "", true
}

// Record returns the section's record, creating an empty one on first use.
func (s *Session) Record(sec catalog.Section) intake.Record {
	if s.Sections[sec] == nil {
		s.Sections[sec] = make(intake.Record)
	}
	return s.Sections[sec]
}

// EnsureTracking returns the section's tracker, initializing it lazily from
// the record on first use. Pre-populated paths are only honored at
// initialization; later calls return the existing tracker untouched.
func (s *Session) EnsureTracking(sec catalog.Section, prepopulated []string) *intake.Tracking {
	if tr, ok := s.Tracking[sec]; ok {
		return tr
	}
	tr := intake.NewTracking(sec, s.Record(sec), prepopulated, nil)
	s.Tracking[sec] = tr
	return tr
}

// MarkCompleted flips the session to completed exactly once and reports
// whether this call was the one that did it.
func (s *Session) MarkCompleted() bool {
	if s.Completed {
		return false
	}
	now := time.Now().UTC()
	s.Completed = true
	s.CompletedAt = &now
	return true
}

// Touch bumps the updated-at timestamp.
func (s *Session) Touch() {
	s.UpdatedAt = time.Now().UTC()
}
