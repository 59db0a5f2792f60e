// Package request holds per-request values shared by middleware and handlers.
package request

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const (
	timelineContextKey contextKey = "timeline"
	timelineSinkKey    contextKey = "timeline_sink"
)

// TimelineContextKey returns the context key used for the timeline. Exposed for tests that inject non-string values.
func TimelineContextKey() contextKey { return timelineContextKey }

// ClientIP extracts the client IP from the request, respecting X-Forwarded-For and X-Real-IP.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	return r.RemoteAddr
}

// WithTimeline returns a context carrying the timeline the request writes to.
// A sink installed further up the chain with WithTimelineSink receives the ID too.
func WithTimeline(ctx context.Context, timelineID string) context.Context {
	if dst, ok := ctx.Value(timelineSinkKey).(*string); ok && dst != nil {
		*dst = timelineID
	}
	return context.WithValue(ctx, timelineContextKey, timelineID)
}

// WithTimelineSink lets outer middleware learn the timeline chosen by inner middleware.
func WithTimelineSink(ctx context.Context, dst *string) context.Context {
	return context.WithValue(ctx, timelineSinkKey, dst)
}

// TimelineFromContext returns the request's timeline, or "" if missing or wrong type.
func TimelineFromContext(r *http.Request) string {
	id, _ := r.Context().Value(timelineContextKey).(string)
	return id
}
