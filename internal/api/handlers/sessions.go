// Package handlers provides HTTP handlers for the intake API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/poundofcure/go-intake/internal/api/middleware"
	"github.com/poundofcure/go-intake/internal/catalog"
	"github.com/poundofcure/go-intake/internal/ehr"
	"github.com/poundofcure/go-intake/internal/infrastructure/postgres"
	"github.com/poundofcure/go-intake/internal/orchestrator"
	"github.com/poundofcure/go-intake/internal/session"
)

// SessionLister lists sessions for operational tooling.
type SessionLister interface {
	ListRecentSessions(ctx context.Context, limit int) ([]postgres.SessionSummary, error)
}

// SessionHandler handles session lifecycle endpoints
type SessionHandler struct {
	orch   *orchestrator.Orchestrator
	lister SessionLister
	logger *zap.Logger
}

// NewSessionHandler creates a new handler
func NewSessionHandler(orch *orchestrator.Orchestrator, lister SessionLister, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{orch: orch, lister: lister, logger: logger}
}

// Routes returns the handler routes
func (h *SessionHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Get("/{id}/debug", h.Debug)
	return r
}

// CreateSessionRequest is the request body for starting an intake session
type CreateSessionRequest struct {
	PatientMRN string `json:"patient_mrn"`
}

// CreateSessionResponse is the response for a new session
type CreateSessionResponse struct {
	SessionID      string `json:"session_id"`
	Greeting       string `json:"greeting"`
	CurrentSection string `json:"current_section"`
}

// Create handles POST /sessions
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer("session-handler")
	ctx, span := tracer.Start(ctx, "create_session")
	defer span.End()

	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.PatientMRN == "" {
		h.jsonError(w, "patient_mrn is required", http.StatusBadRequest)
		return
	}

	sess, greeting, err := h.orch.CreateSession(ctx, req.PatientMRN)
	if err != nil {
		if errors.Is(err, ehr.ErrPatientNotFound) {
			h.jsonError(w, "no patient found for that record number", http.StatusNotFound)
			return
		}
		h.logger.Error("session create failed",
			zap.String("request_id", middleware.GetRequestID(ctx)),
			zap.Error(err))
		h.jsonError(w, "failed to create session", http.StatusInternalServerError)
		return
	}
	span.SetAttributes(attribute.String("session_id", sess.ID))

	resp := CreateSessionResponse{
		SessionID:      sess.ID,
		Greeting:       greeting,
		CurrentSection: "identity_verification",
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(resp)
}

// Get handles GET /sessions/{id}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	sess, err := h.orch.Session(ctx, id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			h.jsonError(w, "session not found", http.StatusNotFound)
			return
		}
		h.jsonError(w, "failed to load session", http.StatusInternalServerError)
		return
	}

	sec, done := sess.CurrentSection()
	currentSection := string(sec)
	switch {
	case sess.Locked():
		currentSection = "verification_failed"
	case !sess.Confirmed():
		currentSection = "identity_verification"
	case done:
		currentSection = "completed"
	}

	resp := map[string]interface{}{
		"session_id":      sess.ID,
		"patient_mrn":     sess.PatientMRN,
		"confirmed":       sess.Confirmed(),
		"completed":       sess.Completed,
		"current_section": currentSection,
		"created_at":      sess.CreatedAt,
		"updated_at":      sess.UpdatedAt,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// Debug handles GET /sessions/{id}/debug. Exposes the full per-section state
// for support tooling; gated behind the API key like everything else.
func (h *SessionHandler) Debug(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	sess, err := h.orch.Session(ctx, id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			h.jsonError(w, "session not found", http.StatusNotFound)
			return
		}
		h.jsonError(w, "failed to load session", http.StatusInternalServerError)
		return
	}

	progress := make(map[string]interface{}, len(catalog.Order))
	for _, sec := range catalog.Order {
		tracker, ok := sess.Tracking[sec]
		if !ok {
			progress[string(sec)] = map[string]interface{}{"started": false}
			continue
		}
		progress[string(sec)] = map[string]interface{}{
			"started":        true,
			"unasked_fields": tracker.UnaskedFields,
			"is_complete":    tracker.IsComplete,
			"pushed_to_ehr":  tracker.PushedToEHR,
		}
	}

	resp := map[string]interface{}{
		"session_id":            sess.ID,
		"verification_status":   sess.VerificationStatus,
		"verification_attempts": sess.VerificationAttempts,
		"sections":              sess.Sections,
		"progress":              progress,
		"completed":             sess.Completed,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// List handles GET /sessions
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sessions, err := h.lister.ListRecentSessions(ctx, 50)
	if err != nil {
		h.logger.Error("session list failed", zap.Error(err))
		h.jsonError(w, "failed to list sessions", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"count":    len(sessions),
		"sessions": sessions,
	})
}

func (h *SessionHandler) jsonError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
