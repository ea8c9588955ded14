package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequestIDGeneratedAndPropagated(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" {
		t.Error("request ID should be generated when absent")
	}
	if got := rec.Header().Get("X-Request-ID"); got != seen {
		t.Errorf("response header = %q, context = %q", got, seen)
	}

	// A caller-supplied ID is kept.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-42")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "req-42" {
		t.Errorf("request ID = %q, want req-42", seen)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	keys := map[string]string{"key-1": "clinic-portal"}
	var client string
	h := APIKeyAuth(keys)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client = GetClientID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/chat", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("missing key status = %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", nil)
	req.Header.Set("X-API-Key", "wrong")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("invalid key status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/chat", nil)
	req.Header.Set("Authorization", "Bearer key-1")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("valid key status = %d", rec.Code)
	}
	if client != "clinic-portal" {
		t.Errorf("client id = %q, want clinic-portal", client)
	}
}
