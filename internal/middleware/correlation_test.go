package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCorrelationID(t *testing.T) {
	handler := CorrelationID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := r.Context().Value(CorrelationKey).(string)
		if !ok || id == "" {
			t.Error("correlation id missing from context")
		}
	}))

	req := httptest.NewRequest("POST", "/pipeline/generation/run", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Header().Get("X-Correlation-ID") == "" {
		t.Error("header missing")
	}
}

func TestCorrelationID_PropagatesIncomingHeader(t *testing.T) {
	handler := CorrelationID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetCorrelationID(r.Context()) != "upstream-id" {
			t.Error("incoming correlation id not propagated")
		}
	}))

	req := httptest.NewRequest("POST", "/webhooks/entity-changed", nil)
	req.Header.Set("X-Correlation-ID", "upstream-id")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Header().Get("X-Correlation-ID") != "upstream-id" {
		t.Error("header not echoed back")
	}
}
