package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthChecker(t *testing.T) {
	t.Parallel()

	healthy := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	tests := []struct {
		name         string
		mode         string
		checks       map[string]CheckFunc
		expectStatus int
		expectHealth string
		expectChecks map[string]string
	}{
		{
			name:         "basic mode skips checks",
			checks:       map[string]CheckFunc{"database": down},
			expectStatus: http.StatusOK,
			expectHealth: "healthy",
		},
		{
			name:         "extended mode all healthy",
			mode:         "extended",
			checks:       map[string]CheckFunc{"database": healthy, "redis": healthy, "rabbitmq": healthy},
			expectStatus: http.StatusOK,
			expectHealth: "healthy",
			expectChecks: map[string]string{"database": "healthy", "redis": "healthy", "rabbitmq": "healthy"},
		},
		{
			name:         "extended mode with a failure",
			mode:         "extended",
			checks:       map[string]CheckFunc{"database": healthy, "rabbitmq": down},
			expectStatus: http.StatusServiceUnavailable,
			expectHealth: "unhealthy",
			expectChecks: map[string]string{"database": "healthy", "rabbitmq": "unhealthy: connection refused"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := NewHealthChecker()
			for name, check := range tt.checks {
				h.AddCheck(name, check)
			}

			url := "/healthz"
			if tt.mode != "" {
				url += "?mode=" + tt.mode
			}
			w := httptest.NewRecorder()
			h.HealthCheck(w, httptest.NewRequest("GET", url, nil))

			if w.Code != tt.expectStatus {
				t.Errorf("Expected status %d, got %d", tt.expectStatus, w.Code)
			}

			var body HealthResponse
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if body.Status != tt.expectHealth {
				t.Errorf("Expected status %s, got %s", tt.expectHealth, body.Status)
			}
			if len(body.Checks) != len(tt.expectChecks) {
				t.Errorf("Expected %d checks, got %d", len(tt.expectChecks), len(body.Checks))
			}
			for key, value := range tt.expectChecks {
				if body.Checks[key] != value {
					t.Errorf("Expected check[%s] = %s, got %s", key, value, body.Checks[key])
				}
			}
		})
	}
}
