package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/poundofcure/go-intake/internal/catalog"
	"github.com/poundofcure/go-intake/internal/ehr"
	"github.com/poundofcure/go-intake/internal/infrastructure/redpanda"
	"github.com/poundofcure/go-intake/internal/intake"
	"github.com/poundofcure/go-intake/internal/session"
	"github.com/poundofcure/go-intake/pkg/idempotency"
)

type fakeLoader struct {
	sess *session.Session
	err  error
}

func (f *fakeLoader) LoadSession(ctx context.Context, id string) (*session.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.sess, nil
}

type fakePusher struct {
	pushed []ehr.Diagnosis
	err    error
}

func (f *fakePusher) PushDiagnosis(ctx context.Context, patientID string, d ehr.Diagnosis) error {
	if f.err != nil {
		return f.err
	}
	f.pushed = append(f.pushed, d)
	return nil
}

// fakeInbox runs the handler and remembers finished keys, like the real
// inbox but in memory.
type fakeInbox struct {
	finished map[string]json.RawMessage
	calls    int
}

func (f *fakeInbox) Process(ctx context.Context, key, handler string, payload json.RawMessage, fn idempotency.ProcessFunc) (*idempotency.ProcessResult, error) {
	if f.finished == nil {
		f.finished = make(map[string]json.RawMessage)
	}
	if result, ok := f.finished[key]; ok {
		return &idempotency.ProcessResult{IsNew: false, Result: result}, nil
	}
	f.calls++
	result, err := fn(ctx, payload)
	if err != nil {
		return nil, err
	}
	f.finished[key] = result
	return &idempotency.ProcessResult{IsNew: true, Result: result}, nil
}

func completedSession() *session.Session {
	sess := session.New("MRN-1001")
	sess.Sections = map[catalog.Section]intake.Record{
		catalog.SectionWeightHistory: {
			"currentVitals": map[string]any{
				"height": map[string]any{"feet": float64(5), "inches": float64(6)},
				"weight": float64(260),
			},
		},
		catalog.SectionMedicalHistory: {
			"specificConditions": map[string]any{
				"gerdHeartburn": map[string]any{"hasGerd": true},
			},
		},
	}
	return sess
}

func completionMessage(t *testing.T, sess *session.Session, chartID string) *redpanda.ConsumedMessage {
	t.Helper()
	event, err := session.NewEvent(sess.ID, session.EventSessionCompleted, session.SessionCompletedData{
		SessionID:    sess.ID,
		PatientMRN:   sess.PatientMRN,
		EHRPatientID: chartID,
		CompletedAt:  time.Now(),
	})
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	raw, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return &redpanda.ConsumedMessage{Topic: redpanda.TopicIntakeEvents, Value: raw}
}

func TestHandlePushesDerivedDiagnoses(t *testing.T) {
	sess := completedSession()
	pusher := &fakePusher{}
	w := New(&fakeLoader{sess: sess}, pusher, &fakeInbox{}, nil)

	if err := w.Handle(context.Background(), completionMessage(t, sess, "chart-9")); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	codes := make(map[string]bool)
	for _, d := range pusher.pushed {
		codes[d.Code] = true
	}
	// 5'6" at 260 lbs is BMI 42: morbid obesity plus the Z68 band, plus GERD.
	for _, want := range []string{"E66.01", "Z68.41", "K21.9"} {
		if !codes[want] {
			t.Errorf("missing diagnosis %s, pushed %v", want, codes)
		}
	}
}

func TestHandleReplaySkipsSecondPush(t *testing.T) {
	sess := completedSession()
	pusher := &fakePusher{}
	inbox := &fakeInbox{}
	w := New(&fakeLoader{sess: sess}, pusher, inbox, nil)

	msg := completionMessage(t, sess, "chart-9")
	if err := w.Handle(context.Background(), msg); err != nil {
		t.Fatalf("first Handle: %v", err)
	}
	pushedOnce := len(pusher.pushed)

	if err := w.Handle(context.Background(), msg); err != nil {
		t.Fatalf("replayed Handle: %v", err)
	}
	if inbox.calls != 1 {
		t.Errorf("handler ran %d times, want 1", inbox.calls)
	}
	if len(pusher.pushed) != pushedOnce {
		t.Errorf("replay pushed again: %d -> %d", pushedOnce, len(pusher.pushed))
	}
}

func TestHandleIgnoresOtherEventTypes(t *testing.T) {
	sess := completedSession()
	pusher := &fakePusher{}
	inbox := &fakeInbox{}
	w := New(&fakeLoader{sess: sess}, pusher, inbox, nil)

	event, err := session.NewEvent(sess.ID, session.EventSectionCompleted, session.SectionCompletedData{
		SessionID: sess.ID,
		Section:   catalog.SectionDemographics,
	})
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	raw, _ := json.Marshal(event)

	if err := w.Handle(context.Background(), &redpanda.ConsumedMessage{Value: raw}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if inbox.calls != 0 || len(pusher.pushed) != 0 {
		t.Errorf("section event should not trigger a push")
	}
}

func TestHandlePushFailureReturnsError(t *testing.T) {
	sess := completedSession()
	pusher := &fakePusher{err: errors.New("ehr down")}
	w := New(&fakeLoader{sess: sess}, pusher, &fakeInbox{}, nil)

	if err := w.Handle(context.Background(), completionMessage(t, sess, "chart-9")); err == nil {
		t.Fatal("expected error when the EHR push fails")
	}
}

func TestHandleDropsUndecodablePayload(t *testing.T) {
	w := New(&fakeLoader{}, &fakePusher{}, &fakeInbox{}, nil)
	msg := &redpanda.ConsumedMessage{Value: []byte("not json")}
	if err := w.Handle(context.Background(), msg); err != nil {
		t.Fatalf("poison message should be dropped, got %v", err)
	}
}

func TestAnalyzeBMIBands(t *testing.T) {
	cases := []struct {
		name   string
		weight float64
		want   string
	}{
		{"overweight", 160, "E66.3"},
		{"obese", 200, "E66.9"},
		{"morbidly obese", 260, "E66.01"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sections := map[catalog.Section]intake.Record{
				catalog.SectionWeightHistory: {
					"currentVitals": map[string]any{
						"height": map[string]any{"feet": float64(5), "inches": float64(6)},
						"weight": tc.weight,
					},
				},
			}
			diagnoses := Analyze(sections)
			found := false
			for _, d := range diagnoses {
				if d.Code == tc.want {
					found = true
				}
			}
			if !found {
				t.Errorf("at %v lbs want %s, got %v", tc.weight, tc.want, diagnoses)
			}
		})
	}
}

func TestAnalyzeHandlesFreeTextNumbers(t *testing.T) {
	sections := map[catalog.Section]intake.Record{
		catalog.SectionWeightHistory: {
			"currentVitals": map[string]any{
				"height": map[string]any{"feet": "5", "inches": "6 inches"},
				"weight": "260 lbs",
			},
		},
	}
	diagnoses := Analyze(sections)
	if len(diagnoses) == 0 {
		t.Fatal("expected diagnoses from free-text vitals")
	}
	if diagnoses[0].Code != "E66.01" {
		t.Errorf("got %s, want E66.01", diagnoses[0].Code)
	}
}

func TestAnalyzeDeclinedVitalsProduceNothing(t *testing.T) {
	sections := map[catalog.Section]intake.Record{
		catalog.SectionWeightHistory: {
			"currentVitals": map[string]any{
				"height": map[string]any{"feet": intake.Declined},
				"weight": intake.Declined,
			},
		},
	}
	if diagnoses := Analyze(sections); len(diagnoses) != 0 {
		t.Errorf("declined vitals should not be classified, got %v", diagnoses)
	}
}
