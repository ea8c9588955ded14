// Package integration exercises a complete intake conversation end to end:
// verification, all three sections, EHR pushes, and the downstream
// diagnosis worker, with in-memory infrastructure.
package integration

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/poundofcure/go-intake/internal/catalog"
	"github.com/poundofcure/go-intake/internal/ehr"
	"github.com/poundofcure/go-intake/internal/extraction"
	"github.com/poundofcure/go-intake/internal/infrastructure/redpanda"
	"github.com/poundofcure/go-intake/internal/intake"
	"github.com/poundofcure/go-intake/internal/orchestrator"
	"github.com/poundofcure/go-intake/internal/session"
	"github.com/poundofcure/go-intake/internal/verification"
	"github.com/poundofcure/go-intake/internal/worker"
	"github.com/poundofcure/go-intake/pkg/idempotency"
)

type memRepo struct {
	mu       sync.Mutex
	sessions map[string]*session.Session
}

func newMemRepo() *memRepo {
	return &memRepo{sessions: make(map[string]*session.Session)}
}

func (r *memRepo) CreateSession(ctx context.Context, s *session.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
	return nil
}

func (r *memRepo) LoadSession(ctx context.Context, id string) (*session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, session.ErrNotFound
	}
	return s, nil
}

func (r *memRepo) SaveSection(ctx context.Context, sessionID string, sec catalog.Section, record intake.Record, tracking *intake.Tracking) error {
	return nil
}

func (r *memRepo) SetVerificationState(ctx context.Context, sessionID string, status verification.Status, attempts int) error {
	return nil
}

func (r *memRepo) ConfirmSession(ctx context.Context, sessionID, ehrPatientID string) error {
	return nil
}

func (r *memRepo) MarkSessionComplete(ctx context.Context, sessionID string, at time.Time) error {
	return nil
}

type memHistory struct {
	mu       sync.Mutex
	messages map[string][]extraction.Message
}

func newMemHistory() *memHistory {
	return &memHistory{messages: make(map[string][]extraction.Message)}
}

func (h *memHistory) AddMessages(ctx context.Context, sessionID string, msgs []extraction.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages[sessionID] = append(h.messages[sessionID], msgs...)
	return nil
}

func (h *memHistory) RecentMessages(ctx context.Context, sessionID string, limit int) ([]extraction.Message, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	msgs := h.messages[sessionID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

type memEHR struct {
	mu        sync.Mutex
	patient   *ehr.Patient
	sections  map[catalog.Section]int
	diagnoses []ehr.Diagnosis
}

func (m *memEHR) LookupPatientByMRN(ctx context.Context, mrn string) (*ehr.Patient, error) {
	if mrn != m.patient.RecordID {
		return nil, ehr.ErrPatientNotFound
	}
	return m.patient, nil
}

func (m *memEHR) PushSection(ctx context.Context, patientID string, sec catalog.Section, record intake.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sections == nil {
		m.sections = make(map[catalog.Section]int)
	}
	m.sections[sec]++
	return nil
}

func (m *memEHR) PushDiagnosis(ctx context.Context, patientID string, d ehr.Diagnosis) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.diagnoses = append(m.diagnoses, d)
	return nil
}

type memPublisher struct {
	mu     sync.Mutex
	events []*session.Event
}

func (p *memPublisher) Publish(ctx context.Context, event *session.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *memPublisher) find(eventType session.EventType) *session.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.events {
		if e.EventType == eventType {
			return e
		}
	}
	return nil
}

// scriptedExtractor answers every targeted question, with fixed values for
// the vitals so the diagnosis worker has something to classify.
type scriptedExtractor struct {
	answers map[string]any
}

func (e *scriptedExtractor) ExtractIdentity(ctx context.Context, utterance string, history []extraction.Message) (extraction.Identity, error) {
	parts := strings.SplitN(utterance, ",", 2)
	identity := extraction.Identity{LastName: strings.TrimSpace(parts[0])}
	if len(parts) == 2 {
		identity.DateOfBirth = strings.TrimSpace(parts[1])
	}
	return identity, nil
}

func (e *scriptedExtractor) ExtractFields(ctx context.Context, req extraction.Request) (extraction.Result, error) {
	fields := make(intake.Record)
	for _, path := range req.TargetPaths {
		if v, ok := e.answers[path]; ok {
			fields.Set(path, v)
			continue
		}
		fields.Set(path, "test answer")
	}
	return extraction.Result{Fields: fields}, nil
}

type memInbox struct {
	mu       sync.Mutex
	finished map[string]json.RawMessage
}

func (f *memInbox) Process(ctx context.Context, key, handler string, payload json.RawMessage, fn idempotency.ProcessFunc) (*idempotency.ProcessResult, error) {
	f.mu.Lock()
	if f.finished == nil {
		f.finished = make(map[string]json.RawMessage)
	}
	if result, ok := f.finished[key]; ok {
		f.mu.Unlock()
		return &idempotency.ProcessResult{IsNew: false, Result: result}, nil
	}
	f.mu.Unlock()

	result, err := fn(ctx, payload)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.finished[key] = result
	f.mu.Unlock()
	return &idempotency.ProcessResult{IsNew: true, Result: result}, nil
}

func TestFullIntakeConversation(t *testing.T) {
	ctx := context.Background()

	ehrSystem := &memEHR{patient: &ehr.Patient{
		PatientID:   "chart-100",
		RecordID:    "MRN-2002",
		FirstName:   "Jane",
		LastName:    "Smith",
		DateOfBirth: "1980-05-01",
		Email:       "jane@example.com",
	}}
	publisher := &memPublisher{}
	repo := newMemRepo()
	extractor := &scriptedExtractor{answers: map[string]any{
		"currentVitals.height.feet":   float64(5),
		"currentVitals.height.inches": float64(6),
		"currentVitals.weight":        float64(260),
		"specificConditions.gerdHeartburn.hasGerd": true,
	}}

	orch := orchestrator.New(repo, newMemHistory(), ehrSystem, ehrSystem, publisher, extractor,
		session.NewMemoryStore(session.DefaultStoreConfig(), nil), nil)

	sess, greeting, err := orch.CreateSession(ctx, "MRN-2002")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if !strings.Contains(greeting, "Jane") {
		t.Errorf("greeting should address the patient by first name: %q", greeting)
	}

	// One failed attempt, then a successful one.
	result, err := orch.ProcessTurn(ctx, sess.ID, "Jones, May 1 1980")
	if err != nil {
		t.Fatalf("failed verification turn: %v", err)
	}
	if result.CurrentSection != "identity_verification" {
		t.Fatalf("wrong name should not verify, got section %s", result.CurrentSection)
	}

	result, err = orch.ProcessTurn(ctx, sess.ID, "Smith, May 1 1980")
	if err != nil {
		t.Fatalf("verification turn: %v", err)
	}
	if result.CurrentSection != string(catalog.SectionDemographics) {
		t.Fatalf("expected demographics after verification, got %s", result.CurrentSection)
	}

	// Answer every question until the intake completes.
	for turn := 0; turn < 80; turn++ {
		result, err = orch.ProcessTurn(ctx, sess.ID, "here you go")
		if err != nil {
			t.Fatalf("turn %d: %v", turn, err)
		}
		if result.CurrentSection == "completed" {
			break
		}
	}
	if result.CurrentSection != "completed" {
		t.Fatalf("conversation never completed, stuck in %s", result.CurrentSection)
	}

	for _, sec := range []catalog.Section{catalog.SectionDemographics, catalog.SectionWeightHistory, catalog.SectionMedicalHistory} {
		if ehrSystem.sections[sec] != 1 {
			t.Errorf("section %s pushed %d times, want 1", sec, ehrSystem.sections[sec])
		}
	}

	completed := publisher.find(session.EventSessionCompleted)
	if completed == nil {
		t.Fatal("no SessionCompleted event published")
	}

	// Feed the completion event through the analysis worker twice; the
	// diagnoses must only be pushed once.
	raw, err := json.Marshal(completed)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	msg := &redpanda.ConsumedMessage{Topic: redpanda.TopicIntakeEvents, Value: raw}
	analysis := worker.New(repo, ehrSystem, &memInbox{}, nil)
	for i := 0; i < 2; i++ {
		if err := analysis.Handle(ctx, msg); err != nil {
			t.Fatalf("worker handle: %v", err)
		}
	}

	codes := make(map[string]int)
	for _, d := range ehrSystem.diagnoses {
		codes[d.Code]++
	}
	for _, want := range []string{"E66.01", "K21.9"} {
		if codes[want] != 1 {
			t.Errorf("diagnosis %s pushed %d times, want 1", want, codes[want])
		}
	}
}

func TestLockoutIsTerminal(t *testing.T) {
	ctx := context.Background()

	ehrSystem := &memEHR{patient: &ehr.Patient{
		PatientID:   "chart-200",
		RecordID:    "MRN-3003",
		FirstName:   "Sam",
		LastName:    "Nguyen",
		DateOfBirth: "1975-12-25",
	}}
	extractor := &scriptedExtractor{}

	orch := orchestrator.New(newMemRepo(), newMemHistory(), ehrSystem, ehrSystem, &memPublisher{}, extractor,
		session.NewMemoryStore(session.DefaultStoreConfig(), nil), nil)

	sess, _, err := orch.CreateSession(ctx, "MRN-3003")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	var result *orchestrator.TurnResult
	for i := 0; i < verification.MaxAttempts; i++ {
		result, err = orch.ProcessTurn(ctx, sess.ID, "Wrong, January 1 1900")
		if err != nil {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
	}
	if result.CurrentSection != "verification_failed" {
		t.Fatalf("expected lockout after %d attempts, got %s", verification.MaxAttempts, result.CurrentSection)
	}

	// Even the right identity no longer opens the gate.
	result, err = orch.ProcessTurn(ctx, sess.ID, "Nguyen, December 25 1975")
	if err != nil {
		t.Fatalf("post-lock turn: %v", err)
	}
	if result.CurrentSection != "verification_failed" {
		t.Errorf("locked session accepted a late verification")
	}
}

func TestUnknownSessionIsNotFound(t *testing.T) {
	ehrSystem := &memEHR{patient: &ehr.Patient{RecordID: "MRN-1"}}
	orch := orchestrator.New(newMemRepo(), newMemHistory(), ehrSystem, ehrSystem, &memPublisher{}, &scriptedExtractor{},
		session.NewMemoryStore(session.DefaultStoreConfig(), nil), nil)

	_, err := orch.ProcessTurn(context.Background(), "nope", "hello")
	if !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}
