package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/benvon/smart-timelog/internal/request"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogging(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		method         string
		path           string
		handlerStatus  int
		timeline       string
		expectTimeline bool
	}{
		{
			name:          "health check",
			method:        "GET",
			path:          "/healthz",
			handlerStatus: http.StatusOK,
		},
		{
			name:           "fact created",
			method:         "POST",
			path:           "/api/v1/facts",
			handlerStatus:  http.StatusCreated,
			timeline:       "auth0|42",
			expectTimeline: true,
		},
		{
			name:           "fact missing",
			method:         "GET",
			path:           "/api/v1/facts/unknown",
			handlerStatus:  http.StatusNotFound,
			timeline:       "team-a",
			expectTimeline: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			core, logs := observer.New(zap.InfoLevel)
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.timeline != "" {
					_ = request.WithTimeline(r.Context(), tt.timeline)
				}
				w.WriteHeader(tt.handlerStatus)
			})

			w := httptest.NewRecorder()
			Logging(zap.New(core))(handler).ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))

			if w.Code != tt.handlerStatus {
				t.Errorf("Expected status %d, got %d", tt.handlerStatus, w.Code)
			}

			entries := logs.FilterMessage("http_request").All()
			if len(entries) != 1 {
				t.Fatalf("Expected 1 http_request entry, got %d", len(entries))
			}
			fields := entries[0].ContextMap()
			if fields["status_code"] != int64(tt.handlerStatus) {
				t.Errorf("Expected status_code %d, got %v", tt.handlerStatus, fields["status_code"])
			}
			if fields["path"] != tt.path {
				t.Errorf("Expected path %s, got %v", tt.path, fields["path"])
			}
			got, ok := fields["timeline_id"]
			if ok != tt.expectTimeline {
				t.Errorf("Expected timeline_id present=%v, got %v", tt.expectTimeline, fields)
			}
			if tt.expectTimeline && got != tt.timeline {
				t.Errorf("Expected timeline_id %s, got %v", tt.timeline, got)
			}
		})
	}
}

func TestAudit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		event  string
	}{
		{http.StatusOK, ""},
		{http.StatusUnauthorized, "security_event"},
		{http.StatusForbidden, "security_event"},
		{http.StatusTooManyRequests, "rate_limit_violation"},
		{http.StatusLocked, "timeline_lock_contention"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			t.Parallel()

			core, logs := observer.New(zap.WarnLevel)
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})

			req := httptest.NewRequest("POST", "/api/v1/facts", nil)
			req.Header.Set("X-Forwarded-For", "203.0.113.9")
			Audit(zap.New(core))(handler).ServeHTTP(httptest.NewRecorder(), req)

			if tt.event == "" {
				if logs.Len() != 0 {
					t.Errorf("Expected no audit entries, got %d", logs.Len())
				}
				return
			}
			entries := logs.FilterMessage(tt.event).All()
			if len(entries) != 1 {
				t.Fatalf("Expected 1 %s entry, got %d", tt.event, len(entries))
			}
			if ip := entries[0].ContextMap()["ip"]; ip != "203.0.113.9" {
				t.Errorf("Expected ip 203.0.113.9, got %v", ip)
			}
		})
	}
}
