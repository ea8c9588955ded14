package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/poundofcure/go-intake/internal/api/middleware"
	"github.com/poundofcure/go-intake/internal/observability/metrics"
	"github.com/poundofcure/go-intake/internal/orchestrator"
	"github.com/poundofcure/go-intake/internal/session"
)

// TranscriptStore is what the history endpoint needs: the recent window plus
// the full transcript length.
type TranscriptStore interface {
	orchestrator.History
	CountMessages(ctx context.Context, sessionID string) (int, error)
}

// ChatHandler handles conversation endpoints
type ChatHandler struct {
	orch    *orchestrator.Orchestrator
	history TranscriptStore
	logger  *zap.Logger
}

// NewChatHandler creates a new handler
func NewChatHandler(orch *orchestrator.Orchestrator, history TranscriptStore, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{orch: orch, history: history, logger: logger}
}

// Routes returns the handler routes
func (h *ChatHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Message)
	r.Get("/{sessionID}/history", h.History)
	return r
}

// MessageRequest is one patient message
type MessageRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// Message handles POST /chat
func (h *ChatHandler) Message(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer("chat-handler")
	ctx, span := tracer.Start(ctx, "process_turn")
	defer span.End()

	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" || req.Message == "" {
		h.jsonError(w, "session_id and message are required", http.StatusBadRequest)
		return
	}
	span.SetAttributes(attribute.String("session_id", req.SessionID))

	timer := metrics.NewTimer()
	result, err := h.orch.ProcessTurn(ctx, req.SessionID, req.Message)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			h.jsonError(w, "session not found", http.StatusNotFound)
			return
		}
		h.logger.Error("turn failed",
			zap.String("session_id", req.SessionID),
			zap.String("request_id", middleware.GetRequestID(ctx)),
			zap.Error(err))
		h.jsonError(w, "failed to process message", http.StatusInternalServerError)
		return
	}
	metrics.RecordTurn(result.CurrentSection, timer.Duration())

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// History handles GET /chat/{sessionID}/history
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := chi.URLParam(r, "sessionID")

	limit := 200
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			h.jsonError(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	messages, err := h.history.RecentMessages(ctx, sessionID, limit)
	if err != nil {
		h.logger.Error("history load failed",
			zap.String("session_id", sessionID), zap.Error(err))
		h.jsonError(w, "failed to load history", http.StatusInternalServerError)
		return
	}

	// message_count is the full transcript length, not the window size, so
	// clients can page. Fall back to the window when the count fails.
	count, err := h.history.CountMessages(ctx, sessionID)
	if err != nil {
		h.logger.Warn("transcript count failed",
			zap.String("session_id", sessionID), zap.Error(err))
		count = len(messages)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"session_id":    sessionID,
		"message_count": count,
		"messages":      messages,
	})
}

func (h *ChatHandler) jsonError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
