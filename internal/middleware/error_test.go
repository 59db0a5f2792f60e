package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestErrorHandler_NoPanic(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	req := httptest.NewRequest("GET", "/api/v1/facts", nil)
	w := httptest.NewRecorder()
	ErrorHandler(zap.NewNop())(handler).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
}

func TestErrorHandler_PanicRecovery(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.ErrorLevel)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var facts map[string]string
		facts["lunch"] = "boom"
	})

	req := httptest.NewRequest("POST", "/api/v1/facts", nil)
	w := httptest.NewRecorder()
	ErrorHandler(zap.New(core))(handler).ServeHTTP(w, req)

	resp := w.Result()
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected Content-Type 'application/json', got '%s'", ct)
	}

	var body ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body.Success {
		t.Error("Expected success to be false")
	}
	if body.Error != "Internal Server Error" {
		t.Errorf("Expected error 'Internal Server Error', got '%s'", body.Error)
	}
	if body.Path != "/api/v1/facts" {
		t.Errorf("Expected path '/api/v1/facts', got '%s'", body.Path)
	}
	if body.Timestamp == "" {
		t.Error("Expected timestamp to be set")
	}

	if got := logs.FilterMessage("panic_recovered").Len(); got != 1 {
		t.Errorf("Expected 1 panic_recovered entry, got %d", got)
	}
}

func TestErrorHandler_AbortHandlerPropagates(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	})

	defer func() {
		if rec := recover(); rec != http.ErrAbortHandler {
			t.Errorf("Expected http.ErrAbortHandler to propagate, got %v", rec)
		}
	}()

	ErrorHandler(zap.NewNop())(handler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
}
