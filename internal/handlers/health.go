package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/mux"
)

// HealthCheckTimeout bounds each dependency check in extended mode
const HealthCheckTimeout = 5 * time.Second

// CheckFunc reports whether one dependency is reachable
type CheckFunc func(ctx context.Context) error

// HealthChecker handles health check requests
type HealthChecker struct {
	checks map[string]CheckFunc
}

// NewHealthChecker creates a health checker. Checks run only in extended mode.
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{checks: make(map[string]CheckFunc)}
}

// AddCheck registers a named dependency check
func (h *HealthChecker) AddCheck(name string, check CheckFunc) *HealthChecker {
	h.checks[name] = check
	return h
}

// RegisterRoutes registers the health endpoint
func (h *HealthChecker) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// HealthCheck handles the /healthz endpoint. With ?mode=extended it checks every dependency.
func (h *HealthChecker) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	statusCode := http.StatusOK

	if r.URL.Query().Get("mode") == "extended" {
		response.Checks = h.runChecks(r.Context())
		for _, result := range response.Checks {
			if result != "healthy" {
				response.Status = "unhealthy"
				statusCode = http.StatusServiceUnavailable
				break
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}

func (h *HealthChecker) runChecks(ctx context.Context) map[string]string {
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make(map[string]string, len(names))
	for _, name := range names {
		checkCtx, cancel := context.WithTimeout(ctx, HealthCheckTimeout)
		err := h.checks[name](checkCtx)
		cancel()

		if err != nil {
			results[name] = "unhealthy: " + err.Error()
		} else {
			results[name] = "healthy"
		}
	}
	return results
}
