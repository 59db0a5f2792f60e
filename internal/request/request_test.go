package request

import (
	"context"
	"net/http/httptest"
	"testing"
)

func TestClientIP(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		wantIP  string
	}{
		{"x-forwarded-for", map[string]string{"X-Forwarded-For": "1.2.3.4"}, "", "1.2.3.4"},
		{"x-forwarded-for first", map[string]string{"X-Forwarded-For": " 1.2.3.4 , 5.6.7.8 "}, "", "1.2.3.4"},
		{"x-real-ip", map[string]string{"X-Real-IP": "9.9.9.9"}, "", "9.9.9.9"},
		{"remote addr", nil, "10.0.0.1:12345", "10.0.0.1:12345"},
		{"xff over xri", map[string]string{"X-Forwarded-For": "1.2.3.4", "X-Real-IP": "9.9.9.9"}, "", "1.2.3.4"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := httptest.NewRequest("GET", "/", nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if tt.remote != "" {
				r.RemoteAddr = tt.remote
			}
			if got := ClientIP(r); got != tt.wantIP {
				t.Errorf("ClientIP() = %q, want %q", got, tt.wantIP)
			}
		})
	}
}

func TestTimelineFromContext(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest("GET", "/", nil)
	if got := TimelineFromContext(r); got != "" {
		t.Errorf("Expected no timeline, got %q", got)
	}

	r = r.WithContext(WithTimeline(context.Background(), "auth0|42"))
	if got := TimelineFromContext(r); got != "auth0|42" {
		t.Errorf("TimelineFromContext() = %q, want auth0|42", got)
	}

	r = r.WithContext(context.WithValue(context.Background(), TimelineContextKey(), 42))
	if got := TimelineFromContext(r); got != "" {
		t.Errorf("Expected wrong-typed value to be ignored, got %q", got)
	}
}

func TestWithTimelineSink(t *testing.T) {
	t.Parallel()

	var seen string
	ctx := WithTimelineSink(context.Background(), &seen)
	_ = WithTimeline(ctx, "team-a")

	if seen != "team-a" {
		t.Errorf("Expected sink to receive team-a, got %q", seen)
	}
}
