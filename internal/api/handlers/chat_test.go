package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/poundofcure/go-intake/internal/extraction"
)

type fakeTranscript struct {
	messages []extraction.Message
	countErr error
}

func (f *fakeTranscript) AddMessages(_ context.Context, _ string, msgs []extraction.Message) error {
	f.messages = append(f.messages, msgs...)
	return nil
}

func (f *fakeTranscript) RecentMessages(_ context.Context, _ string, limit int) ([]extraction.Message, error) {
	msgs := f.messages
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func (f *fakeTranscript) CountMessages(context.Context, string) (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	return len(f.messages), nil
}

func transcriptOf(n int) *fakeTranscript {
	f := &fakeTranscript{}
	for i := 0; i < n; i++ {
		f.messages = append(f.messages, extraction.Message{
			Role:    extraction.RoleUser,
			Content: fmt.Sprintf("message %d", i),
			At:      time.Now().UTC(),
		})
	}
	return f
}

func TestHistoryReportsFullTranscriptLength(t *testing.T) {
	h := NewChatHandler(nil, transcriptOf(10), zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/sess-1/history?limit=2", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		MessageCount int                  `json:"message_count"`
		Messages     []extraction.Message `json:"messages"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.Messages) != 2 {
		t.Errorf("window size = %d, want 2", len(body.Messages))
	}
	if body.MessageCount != 10 {
		t.Errorf("message_count = %d, want full transcript length 10", body.MessageCount)
	}
}

func TestHistoryCountFailureFallsBackToWindow(t *testing.T) {
	store := transcriptOf(10)
	store.countErr = errors.New("connection reset")
	h := NewChatHandler(nil, store, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/sess-1/history?limit=3", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		MessageCount int `json:"message_count"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.MessageCount != 3 {
		t.Errorf("message_count = %d, want window fallback 3", body.MessageCount)
	}
}
