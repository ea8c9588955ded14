// Package orchestrator drives one conversation turn end to end: identity
// gating, extraction, merging, progress tracking, section transitions, EHR
// pushes, and lifecycle events. Turns for the same session are serialized;
// different sessions run concurrently.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/poundofcure/go-intake/internal/catalog"
	"github.com/poundofcure/go-intake/internal/ehr"
	"github.com/poundofcure/go-intake/internal/extraction"
	"github.com/poundofcure/go-intake/internal/intake"
	"github.com/poundofcure/go-intake/internal/observability/metrics"
	"github.com/poundofcure/go-intake/internal/session"
	"github.com/poundofcure/go-intake/internal/verification"
	"github.com/poundofcure/go-intake/pkg/sessionlock"
)

// History window sizes. Verification needs little context; intake turns get
// a wider window so corrections like "actually it was 2019" resolve.
const (
	verificationHistoryWindow = 6
	intakeHistoryWindow       = 40
)

// ErrSessionNotFound is returned for turns against unknown sessions.
var ErrSessionNotFound = session.ErrNotFound

// Repository persists sessions. Write failures are hard errors: the engine
// never tells a patient their answer was recorded when it was not.
type Repository interface {
	CreateSession(ctx context.Context, s *session.Session) error
	LoadSession(ctx context.Context, id string) (*session.Session, error)
	SaveSection(ctx context.Context, sessionID string, sec catalog.Section, record intake.Record, tracking *intake.Tracking) error
	SetVerificationState(ctx context.Context, sessionID string, status verification.Status, attempts int) error
	ConfirmSession(ctx context.Context, sessionID, ehrPatientID string) error
	MarkSessionComplete(ctx context.Context, sessionID string, at time.Time) error
}

// History persists the conversation transcript.
type History interface {
	AddMessages(ctx context.Context, sessionID string, msgs []extraction.Message) error
	RecentMessages(ctx context.Context, sessionID string, limit int) ([]extraction.Message, error)
}

// Directory resolves patient charts in the EHR.
type Directory interface {
	LookupPatientByMRN(ctx context.Context, mrn string) (*ehr.Patient, error)
}

// Pusher writes completed sections to the EHR. Push failures are not turn
// failures; the section is retried on later turns.
type Pusher interface {
	PushSection(ctx context.Context, patientID string, sec catalog.Section, record intake.Record) error
}

// Publisher records lifecycle events for asynchronous consumers.
type Publisher interface {
	Publish(ctx context.Context, event *session.Event) error
}

// TurnResult is the outcome of one processed message.
type TurnResult struct {
	SessionID      string   `json:"session_id"`
	Response       string   `json:"response"`
	CurrentSection string   `json:"current_section"`
	UpdatedPaths   []string `json:"updated_paths,omitempty"`
	Actions        []string `json:"agent_actions,omitempty"`
}

// Orchestrator wires the turn pipeline together.
type Orchestrator struct {
	repo      Repository
	history   History
	directory Directory
	pusher    Pusher
	publisher Publisher
	extractor extraction.Extractor
	store     session.Store
	locks     *sessionlock.Locker
	logger    *zap.Logger
}

// New creates an orchestrator
func New(repo Repository, history History, directory Directory, pusher Pusher, publisher Publisher, extractor extraction.Extractor, store session.Store, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		repo:      repo,
		history:   history,
		directory: directory,
		pusher:    pusher,
		publisher: publisher,
		extractor: extractor,
		store:     store,
		locks:     sessionlock.New(),
		logger:    logger,
	}
}

// CreateSession resolves the MRN to a chart, creates an unverified session,
// and returns it with the opening verification prompt.
func (o *Orchestrator) CreateSession(ctx context.Context, mrn string) (*session.Session, string, error) {
	patient, err := o.directory.LookupPatientByMRN(ctx, mrn)
	if err != nil {
		if errors.Is(err, ehr.ErrPatientNotFound) {
			return nil, "", err
		}
		return nil, "", fmt.Errorf("chart lookup: %w", err)
	}

	sess := session.New(mrn)
	sess.PatientFirstName = patient.FirstName
	sess.StoredLastName = patient.LastName
	sess.StoredDOB = patient.DateOfBirth

	if err := o.repo.CreateSession(ctx, sess); err != nil {
		return nil, "", fmt.Errorf("create session: %w", err)
	}
	o.store.Put(sess)

	o.publish(ctx, sess, session.EventSessionCreated, session.SessionCreatedData{
		SessionID:  sess.ID,
		PatientMRN: sess.PatientMRN,
		CreatedAt:  sess.CreatedAt,
	})

	greeting := verification.Prompt(sess.PatientFirstName, 1)
	if err := o.history.AddMessages(ctx, sess.ID, []extraction.Message{
		{Role: extraction.RoleAssistant, Content: greeting, At: time.Now().UTC()},
	}); err != nil {
		return nil, "", fmt.Errorf("record greeting: %w", err)
	}

	o.logger.Info("session created",
		zap.String("session_id", sess.ID),
		zap.String("patient_mrn", mrn))
	return sess, greeting, nil
}

// ProcessTurn runs one patient message through the pipeline. It returns an
// error only when the turn genuinely could not be served; conversational
// problems (failed verification, extraction trouble) come back as normal
// responses.
func (o *Orchestrator) ProcessTurn(ctx context.Context, sessionID, message string) (*TurnResult, error) {
	unlock := o.locks.Lock(sessionID)
	defer unlock()

	sess, err := o.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer sess.Touch()

	switch {
	case sess.Locked():
		// Terminal. No identity comparison, no attempt counting.
		return o.finishTurn(ctx, sess, message, &TurnResult{
			SessionID:      sess.ID,
			Response:       verification.LockoutMessage,
			CurrentSection: "verification_failed",
			Actions:        []string{"verification_limit_reached"},
		})
	case sess.Completed:
		return o.finishTurn(ctx, sess, message, &TurnResult{
			SessionID:      sess.ID,
			Response:       "Your intake is already complete. Our team will review everything before your appointment.",
			CurrentSection: "completed",
			Actions:        []string{"session_complete"},
		})
	case !sess.Confirmed():
		return o.verificationTurn(ctx, sess, message)
	default:
		return o.intakeTurn(ctx, sess, message)
	}
}

// Session returns current session state for read-only surfaces. It takes
// the session lock so it never observes a half-applied turn.
func (o *Orchestrator) Session(ctx context.Context, sessionID string) (*session.Session, error) {
	unlock := o.locks.Lock(sessionID)
	defer unlock()
	return o.loadSession(ctx, sessionID)
}

func (o *Orchestrator) loadSession(ctx context.Context, sessionID string) (*session.Session, error) {
	if sess, ok := o.store.Get(sessionID); ok {
		return sess, nil
	}
	sess, err := o.repo.LoadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	o.store.Put(sess)
	return sess, nil
}

// verificationTurn handles one message while the identity gate is closed.
func (o *Orchestrator) verificationTurn(ctx context.Context, sess *session.Session, message string) (*TurnResult, error) {
	history, err := o.history.RecentMessages(ctx, sess.ID, verificationHistoryWindow)
	if err != nil {
		o.logger.Warn("transcript unavailable for verification turn",
			zap.String("session_id", sess.ID), zap.Error(err))
	}

	provided := o.extractIdentity(ctx, message, history)
	stored := verification.Identity{LastName: sess.StoredLastName, DateOfBirth: sess.StoredDOB}
	outcome := verification.Evaluate(provided, stored, sess.VerificationAttempts, o.logger)

	sess.VerificationStatus = outcome.Status
	sess.VerificationAttempts = outcome.Attempts
	if err := o.repo.SetVerificationState(ctx, sess.ID, outcome.Status, outcome.Attempts); err != nil {
		return nil, fmt.Errorf("persist verification state: %w", err)
	}

	switch outcome.Status {
	case verification.StatusConfirmed:
		metrics.Default().VerificationSuccesses.Inc()
		return o.confirmSession(ctx, sess, message, outcome)
	case verification.StatusLocked:
		metrics.Default().VerificationFailures.Inc()
		metrics.Default().VerificationLockouts.Inc()
		o.publish(ctx, sess, session.EventVerificationLocked, session.VerificationLockedData{
			SessionID: sess.ID,
			Attempts:  outcome.Attempts,
		})
		return o.finishTurn(ctx, sess, message, &TurnResult{
			SessionID:      sess.ID,
			Response:       outcome.Message,
			CurrentSection: "verification_failed",
			Actions:        []string{"verification_limit_reached", fmt.Sprintf("attempt_%d", outcome.Attempts)},
		})
	default:
		metrics.Default().VerificationFailures.Inc()
		return o.finishTurn(ctx, sess, message, &TurnResult{
			SessionID:      sess.ID,
			Response:       outcome.Message,
			CurrentSection: "identity_verification",
			Actions:        []string{"verification_failed", fmt.Sprintf("attempt_%d", outcome.Attempts)},
		})
	}
}

// extractIdentity asks the extractor first, then falls back to pattern
// matching so a plain "Smith, 5/1/1980" still verifies when the model layer
// is down.
func (o *Orchestrator) extractIdentity(ctx context.Context, message string, history []extraction.Message) verification.Identity {
	provided := verification.Identity{}
	identity, err := o.extractor.ExtractIdentity(ctx, message, history)
	if err != nil {
		o.logger.Warn("identity extraction failed, falling back to pattern match", zap.Error(err))
	} else {
		provided.LastName = identity.LastName
		provided.DateOfBirth = identity.DateOfBirth
	}
	if provided.LastName == "" {
		provided.LastName = verification.ParseLastName(message)
	}
	if provided.DateOfBirth == "" {
		if dob, err := verification.NormalizeDate(message); err == nil {
			provided.DateOfBirth = dob
		}
	}
	return provided
}

// confirmSession opens the gate: pre-populate demographics from the chart,
// initialize tracking, and compose the first intake question.
func (o *Orchestrator) confirmSession(ctx context.Context, sess *session.Session, message string, outcome verification.Outcome) (*TurnResult, error) {
	actions := []string{"identity_verified"}

	var covered []string
	patient, err := o.directory.LookupPatientByMRN(ctx, sess.PatientMRN)
	if err != nil {
		// Verification already passed against stored identity; the chart
		// fetch only feeds pre-population, so proceed without it.
		o.logger.Warn("chart fetch after verification failed",
			zap.String("session_id", sess.ID), zap.Error(err))
	} else {
		sess.EHRPatientID = patient.PatientID
		prepop, coveredPaths := intake.TranslateEHRFields(catalog.SectionDemographics, patient.Fields())
		sess.Sections[catalog.SectionDemographics] = intake.Merge(sess.Record(catalog.SectionDemographics), prepop)
		covered = coveredPaths
		actions = append(actions, "demographics_populated")
	}

	if err := o.repo.ConfirmSession(ctx, sess.ID, sess.EHRPatientID); err != nil {
		return nil, fmt.Errorf("confirm session: %w", err)
	}

	tracker := sess.EnsureTracking(catalog.SectionDemographics, covered)
	if err := o.repo.SaveSection(ctx, sess.ID, catalog.SectionDemographics, sess.Record(catalog.SectionDemographics), tracker); err != nil {
		return nil, fmt.Errorf("persist demographics: %w", err)
	}

	o.publish(ctx, sess, session.EventIdentityVerified, session.IdentityVerifiedData{
		SessionID: sess.ID,
		Attempts:  outcome.Attempts,
	})

	greeting := "Thank you for verifying your identity"
	if sess.PatientFirstName != "" {
		greeting += ", " + sess.PatientFirstName
	}
	greeting += "! "
	if len(covered) > 0 {
		greeting += "I can see we already have some of your information on file. "
	}

	return o.finishTurn(ctx, sess, message, &TurnResult{
		SessionID:      sess.ID,
		Response:       greeting + o.nextQuestion(catalog.SectionDemographics, tracker),
		CurrentSection: string(catalog.SectionDemographics),
		Actions:        actions,
	})
}

// intakeTurn handles one message after the identity gate is open.
func (o *Orchestrator) intakeTurn(ctx context.Context, sess *session.Session, message string) (*TurnResult, error) {
	actions := o.retryPendingPushes(ctx, sess)

	sec, done := sess.CurrentSection()
	if done {
		return o.completeSession(ctx, sess, message, actions)
	}
	tracker := sess.EnsureTracking(sec, nil)
	targets := tracker.NextGroup()

	history, err := o.history.RecentMessages(ctx, sess.ID, intakeHistoryWindow)
	if err != nil {
		o.logger.Warn("transcript unavailable for intake turn",
			zap.String("session_id", sess.ID), zap.Error(err))
	}

	result, err := o.extractor.ExtractFields(ctx, extraction.Request{
		Section:     sec,
		Schema:      catalog.Fields(sec),
		Existing:    sess.Record(sec),
		History:     history,
		Utterance:   message,
		TargetPaths: targets,
	})
	if err != nil {
		// An extractor outage degrades the conversation, never the turn. No
		// state changed, so nothing is persisted.
		metrics.Default().ExtractionFailures.Inc()
		o.logger.Error("field extraction failed",
			zap.String("session_id", sess.ID),
			zap.String("section", string(sec)),
			zap.Error(err))
		return o.finishTurn(ctx, sess, message, &TurnResult{
			SessionID:      sess.ID,
			Response:       "I'm sorry, I had trouble processing that. Could you say it again? " + o.nextQuestion(sec, tracker),
			CurrentSection: string(sec),
			Actions:        append(actions, "error_recovery"),
		})
	}

	outcome := intake.ApplyExtraction(sec, sess.Record(sec), result.Fields, tracker, targets, o.logger)
	sess.Sections[sec] = outcome.Record
	if sec == catalog.SectionDemographics {
		o.autodetectCountry(outcome.Record, tracker)
	}

	if err := o.repo.SaveSection(ctx, sess.ID, sec, outcome.Record, tracker); err != nil {
		return nil, fmt.Errorf("persist section %s: %w", sec, err)
	}

	if !tracker.IsComplete {
		return o.finishTurn(ctx, sess, message, &TurnResult{
			SessionID:      sess.ID,
			Response:       o.acknowledge(outcome) + o.nextQuestion(sec, tracker),
			CurrentSection: string(sec),
			UpdatedPaths:   outcome.Filled,
			Actions:        actions,
		})
	}

	// Section just completed on this turn.
	actions = append(actions, "section_completed:"+string(sec))
	metrics.Default().SectionsCompleted.WithLabelValues(string(sec)).Inc()
	o.publish(ctx, sess, session.EventSectionCompleted, session.SectionCompletedData{
		SessionID:   sess.ID,
		Section:     sec,
		FieldCount:  len(catalog.AllLeafPaths(sec)),
		PushedToEHR: false,
	})
	if o.pushSection(ctx, sess, sec, tracker) {
		actions = append(actions, "pushed_to_ehr:"+string(sec))
	}

	next, allDone := sess.CurrentSection()
	if allDone {
		return o.completeSession(ctx, sess, message, actions)
	}

	nextTracker := sess.EnsureTracking(next, nil)
	if err := o.repo.SaveSection(ctx, sess.ID, next, sess.Record(next), nextTracker); err != nil {
		return nil, fmt.Errorf("persist section %s: %w", next, err)
	}
	transition := fmt.Sprintf("That completes the %s section. Next up is %s. ", catalog.Title(sec), catalog.Title(next))
	return o.finishTurn(ctx, sess, message, &TurnResult{
		SessionID:      sess.ID,
		Response:       transition + o.nextQuestion(next, nextTracker),
		CurrentSection: string(next),
		UpdatedPaths:   outcome.Filled,
		Actions:        actions,
	})
}

// completeSession flips the session to completed exactly once.
func (o *Orchestrator) completeSession(ctx context.Context, sess *session.Session, message string, actions []string) (*TurnResult, error) {
	if sess.MarkCompleted() {
		if err := o.repo.MarkSessionComplete(ctx, sess.ID, *sess.CompletedAt); err != nil {
			// Roll back the in-memory flag so a later turn retries.
			sess.Completed = false
			sess.CompletedAt = nil
			return nil, fmt.Errorf("persist completion: %w", err)
		}
		o.publish(ctx, sess, session.EventSessionCompleted, session.SessionCompletedData{
			SessionID:    sess.ID,
			PatientMRN:   sess.PatientMRN,
			EHRPatientID: sess.EHRPatientID,
			CompletedAt:  *sess.CompletedAt,
		})
		actions = append(actions, "intake_complete")
		o.logger.Info("intake session completed", zap.String("session_id", sess.ID))
	}
	return o.finishTurn(ctx, sess, message, &TurnResult{
		SessionID:      sess.ID,
		Response:       "That's everything we need. Your intake is complete, and our team will review it before your appointment. Thank you!",
		CurrentSection: "completed",
		Actions:        actions,
	})
}

// retryPendingPushes re-attempts EHR pushes for sections that completed on
// earlier turns but failed to push. Returns the actions taken.
func (o *Orchestrator) retryPendingPushes(ctx context.Context, sess *session.Session) []string {
	var actions []string
	for _, sec := range catalog.Order {
		tracker, ok := sess.Tracking[sec]
		if !ok || !tracker.IsComplete || tracker.PushedToEHR {
			continue
		}
		if o.pushSection(ctx, sess, sec, tracker) {
			actions = append(actions, "pushed_to_ehr:"+string(sec))
		}
	}
	return actions
}

// pushSection pushes one completed section and persists the pushed flag.
// Failures are logged and left for a later turn to retry.
func (o *Orchestrator) pushSection(ctx context.Context, sess *session.Session, sec catalog.Section, tracker *intake.Tracking) bool {
	if sess.EHRPatientID == "" {
		o.logger.Warn("no chart id, skipping ehr push",
			zap.String("session_id", sess.ID), zap.String("section", string(sec)))
		return false
	}
	if err := o.pusher.PushSection(ctx, sess.EHRPatientID, sec, sess.Record(sec)); err != nil {
		metrics.Default().EHRPushFailures.WithLabelValues(string(sec)).Inc()
		o.logger.Error("ehr push failed, will retry on a later turn",
			zap.String("session_id", sess.ID),
			zap.String("section", string(sec)),
			zap.Error(err))
		return false
	}
	tracker.PushedToEHR = true
	if err := o.repo.SaveSection(ctx, sess.ID, sec, sess.Record(sec), tracker); err != nil {
		// The push went through; losing the flag only risks a redundant
		// push, which the EHR tolerates.
		o.logger.Error("failed to persist push flag",
			zap.String("session_id", sess.ID),
			zap.String("section", string(sec)),
			zap.Error(err))
	}
	return true
}

// autodetectCountry fills address.country once a domestic-looking ZIP code
// arrives, so the conversation never asks a question the data answers.
func (o *Orchestrator) autodetectCountry(record intake.Record, tracker *intake.Tracking) {
	if !tracker.Unasked("address.country") {
		return
	}
	if !catalog.HasData(record, "address.zipCode") {
		return
	}
	if country := ehr.DetectCountry(record); country != "" {
		record.Set("address.country", country)
		tracker.MarkAsked("address.country")
		tracker.IsComplete = tracker.Complete()
	}
}

// acknowledge prefixes the next question with a short receipt of what the
// turn captured.
func (o *Orchestrator) acknowledge(outcome intake.MergeOutcome) string {
	if len(outcome.Filled) == 0 && len(outcome.Declined) == 0 {
		return ""
	}
	if len(outcome.Declined) > 0 {
		return "No problem, we can skip that. "
	}
	return "Got it, thank you. "
}

// nextQuestion composes the next prompt from the catalog.
func (o *Orchestrator) nextQuestion(sec catalog.Section, tracker *intake.Tracking) string {
	group := tracker.NextGroup()
	if len(group) == 0 {
		return ""
	}
	return catalog.Prompt(sec, group[0])
}

// finishTurn appends the turn's messages to the transcript and returns the
// result. The transcript is part of durable state, so a write failure fails
// the turn.
func (o *Orchestrator) finishTurn(ctx context.Context, sess *session.Session, message string, result *TurnResult) (*TurnResult, error) {
	now := time.Now().UTC()
	err := o.history.AddMessages(ctx, sess.ID, []extraction.Message{
		{Role: extraction.RoleUser, Content: message, At: now},
		{Role: extraction.RoleAssistant, Content: result.Response, At: now},
	})
	if err != nil {
		return nil, fmt.Errorf("persist transcript: %w", err)
	}
	return result, nil
}

func (o *Orchestrator) publish(ctx context.Context, sess *session.Session, eventType session.EventType, data interface{}) {
	event, err := session.NewEvent(sess.ID, eventType, data)
	if err != nil {
		o.logger.Error("failed to build event",
			zap.String("event_type", string(eventType)), zap.Error(err))
		return
	}
	event.WithPatient(sess.PatientMRN)
	if err := o.publisher.Publish(ctx, event); err != nil {
		o.logger.Error("failed to publish event",
			zap.String("event_type", string(eventType)), zap.Error(err))
	}
}
