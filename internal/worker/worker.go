package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/poundofcure/go-intake/internal/ehr"
	"github.com/poundofcure/go-intake/internal/infrastructure/redpanda"
	"github.com/poundofcure/go-intake/internal/session"
	"github.com/poundofcure/go-intake/pkg/idempotency"
)

// HandlerName identifies this consumer in the idempotency inbox.
const HandlerName = "diagnosis-push"

// SessionLoader loads persisted session state.
type SessionLoader interface {
	LoadSession(ctx context.Context, id string) (*session.Session, error)
}

// DiagnosisPusher sends derived diagnoses to the EHR.
type DiagnosisPusher interface {
	PushDiagnosis(ctx context.Context, patientID string, diagnosis ehr.Diagnosis) error
}

// Deduper provides exactly-once processing for consumed events.
type Deduper interface {
	Process(ctx context.Context, key, handlerName string, payload json.RawMessage, fn idempotency.ProcessFunc) (*idempotency.ProcessResult, error)
}

// Worker consumes intake lifecycle events and pushes derived diagnoses to
// the EHR when a session completes. Other event types are skipped.
type Worker struct {
	sessions SessionLoader
	pusher   DiagnosisPusher
	inbox    Deduper
	logger   *zap.Logger
}

// New creates an analysis worker.
func New(sessions SessionLoader, pusher DiagnosisPusher, inbox Deduper, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{sessions: sessions, pusher: pusher, inbox: inbox, logger: logger}
}

// pushResult is stored in the inbox so replays can report what was done.
type pushResult struct {
	SessionID string `json:"session_id"`
	Diagnoses int    `json:"diagnoses"`
}

// Handle processes one consumed event. Malformed payloads are logged and
// dropped rather than retried.
func (w *Worker) Handle(ctx context.Context, msg *redpanda.ConsumedMessage) error {
	var event session.Event
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		w.logger.Warn("dropping undecodable event",
			zap.String("topic", msg.Topic),
			zap.Int64("offset", msg.Offset),
			zap.Error(err))
		return nil
	}
	if event.EventType != session.EventSessionCompleted {
		return nil
	}

	var data session.SessionCompletedData
	if err := json.Unmarshal(event.EventData, &data); err != nil {
		w.logger.Warn("dropping malformed completion event",
			zap.String("event_id", event.ID), zap.Error(err))
		return nil
	}
	if data.EHRPatientID == "" {
		w.logger.Warn("completed session has no chart id, skipping diagnosis push",
			zap.String("session_id", data.SessionID))
		return nil
	}

	key := idempotency.GenerateKey(event.ID, HandlerName)
	result, err := w.inbox.Process(ctx, key, HandlerName, msg.Value, func(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
		return w.pushDiagnoses(ctx, data)
	})
	if err != nil {
		if errors.Is(err, idempotency.ErrDuplicateMessage) {
			return nil
		}
		return err
	}
	if !result.IsNew {
		w.logger.Debug("event already processed", zap.String("event_id", event.ID))
	}
	return nil
}

func (w *Worker) pushDiagnoses(ctx context.Context, data session.SessionCompletedData) (json.RawMessage, error) {
	sess, err := w.sessions.LoadSession(ctx, data.SessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", data.SessionID, err)
	}

	diagnoses := Analyze(sess.Sections)
	for _, d := range diagnoses {
		if err := w.pusher.PushDiagnosis(ctx, data.EHRPatientID, d); err != nil {
			return nil, fmt.Errorf("push diagnosis %s: %w", d.Code, err)
		}
	}

	w.logger.Info("diagnoses pushed",
		zap.String("session_id", data.SessionID),
		zap.String("ehr_patient_id", data.EHRPatientID),
		zap.Int("count", len(diagnoses)))

	return json.Marshal(pushResult{SessionID: data.SessionID, Diagnoses: len(diagnoses)})
}
