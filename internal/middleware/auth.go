package middleware

import (
	"context"
	"net/http"
	"strings"

	logpkg "github.com/benvon/smart-timelog/internal/logger"
	"github.com/benvon/smart-timelog/internal/request"
	"github.com/benvon/smart-timelog/internal/services/oidc"
	"github.com/benvon/smart-timelog/internal/validation"
	"go.uber.org/zap"
)

// TimelineHeader selects the timeline when bearer tokens are not verified
const TimelineHeader = "X-Timeline-ID"

// TokenVerifier is satisfied by *oidc.Verifier
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*oidc.Claims, error)
}

// Auth verifies the bearer token and makes its subject the request's timeline
func Auth(verifier TokenVerifier, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
				respondErrorJSON(w, r, http.StatusUnauthorized, "Unauthorized", "Missing or malformed bearer token", logger)
				return
			}

			claims, err := verifier.Verify(r.Context(), token)
			if err != nil {
				logger.Debug("token_rejected", zap.String("error", logpkg.SanitizeError(err)))
				respondErrorJSON(w, r, http.StatusUnauthorized, "Unauthorized", "Invalid or expired token", logger)
				return
			}
			if err := validation.ValidateTimelineID(claims.Sub); err != nil {
				respondErrorJSON(w, r, http.StatusForbidden, "Forbidden", "Token subject cannot name a timeline", logger)
				return
			}

			next.ServeHTTP(w, r.WithContext(request.WithTimeline(r.Context(), claims.Sub)))
		})
	}
}

// HeaderTimeline takes the timeline from the X-Timeline-ID header, falling back to defaultTimeline.
// It replaces Auth when no OIDC issuer is configured.
func HeaderTimeline(defaultTimeline string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			timelineID := strings.TrimSpace(r.Header.Get(TimelineHeader))
			if timelineID == "" {
				timelineID = defaultTimeline
			}
			if err := validation.ValidateTimelineID(timelineID); err != nil {
				respondErrorJSON(w, r, http.StatusBadRequest, "Bad Request", err.Error(), nil)
				return
			}

			next.ServeHTTP(w, r.WithContext(request.WithTimeline(r.Context(), timelineID)))
		})
	}
}
