package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/benvon/smart-timelog/internal/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
)

func newPublicRouter(t *testing.T, cfg RouterConfig) http.Handler {
	t.Helper()

	openAPI, err := NewOpenAPIHandler()
	if err != nil {
		t.Fatalf("Failed to load OpenAPI document: %v", err)
	}
	cfg.Identify = middleware.HeaderTimeline("default")
	return NewRouter(cfg, []RouteRegistrar{NewHealthChecker(), openAPI}, nil)
}

func TestRouter_PublicRoutes(t *testing.T) {
	t.Parallel()

	router := newPublicRouter(t, RouterConfig{Logger: zap.NewNop(), FrontendURL: "https://app.example"})

	tests := []struct {
		name              string
		method            string
		path              string
		expectStatus      int
		expectContentType string
	}{
		{"health", "GET", "/healthz", http.StatusOK, "application/json"},
		{"openapi yaml", "GET", "/api/openapi.yaml", http.StatusOK, "application/yaml"},
		{"openapi json", "GET", "/api/openapi.json", http.StatusOK, "application/json"},
		{"unknown path", "GET", "/nope", http.StatusNotFound, "application/json"},
		{"wrong method", "DELETE", "/healthz", http.StatusMethodNotAllowed, "application/json"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := serve(router, httptest.NewRequest(tt.method, tt.path, nil))
			if w.Code != tt.expectStatus {
				t.Errorf("Expected status %d, got %d", tt.expectStatus, w.Code)
			}
			if ct := w.Header().Get("Content-Type"); ct != tt.expectContentType {
				t.Errorf("Expected Content-Type %q, got %q", tt.expectContentType, ct)
			}
			if w.Header().Get("X-Content-Type-Options") != "nosniff" {
				t.Error("Expected security headers on every response")
			}
		})
	}
}

func TestRouter_CORSPreflight(t *testing.T) {
	t.Parallel()

	router := newPublicRouter(t, RouterConfig{FrontendURL: "https://app.example"})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/facts", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := serve(router, req)

	if w.Code >= 300 {
		t.Errorf("Expected the preflight to succeed, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Errorf("Expected allowed origin, got %q", got)
	}
}

func TestNewOpenAPIHandler_RejectsMalformedDocument(t *testing.T) {
	t.Parallel()

	if _, err := newOpenAPIHandler([]byte("openapi: [unterminated")); err == nil {
		t.Error("Expected a malformed document to be rejected")
	}
}

// TestTraceContextPropagation verifies that otelmux continues an incoming trace
func TestTraceContextPropagation(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	router := newPublicRouter(t, RouterConfig{ServiceName: "smart-timelog-test"})

	tests := []struct {
		name        string
		traceParent string
		expectTrace string
	}{
		{
			name: "without existing trace ID",
		},
		{
			name:        "with existing trace ID",
			traceParent: "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01",
			expectTrace: "4bf92f3577b34da6a3ce929d0e0e4736",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			exporter.Reset()

			req := httptest.NewRequest("GET", "/healthz", nil)
			if tt.traceParent != "" {
				req.Header.Set("traceparent", tt.traceParent)
			}
			w := serve(router, req)
			if w.Code != http.StatusOK {
				t.Errorf("Expected status OK, got %d", w.Code)
			}

			if err := tp.ForceFlush(context.Background()); err != nil {
				t.Errorf("Failed to flush tracer provider: %v", err)
			}

			spans := exporter.GetSpans()
			if len(spans) == 0 {
				t.Fatal("Expected at least one span to be created")
			}
			traceID := spans[0].SpanContext.TraceID()
			if !traceID.IsValid() {
				t.Error("Expected valid trace ID in span")
			}
			if tt.expectTrace != "" && traceID.String() != tt.expectTrace {
				t.Errorf("Expected trace %s, got %s", tt.expectTrace, traceID)
			}
		})
	}
}
