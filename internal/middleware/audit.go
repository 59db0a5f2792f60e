package middleware

import (
	"net/http"

	logpkg "github.com/benvon/smart-timelog/internal/logger"
	"github.com/benvon/smart-timelog/internal/request"
	"go.uber.org/zap"
)

// Audit logs rejected credentials, rate limit hits and lock contention
func Audit(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrapped := newStatusRecorder(w)

			next.ServeHTTP(wrapped, r)

			var event string
			switch wrapped.statusCode {
			case http.StatusUnauthorized, http.StatusForbidden:
				event = "security_event"
			case http.StatusTooManyRequests:
				event = "rate_limit_violation"
			case http.StatusLocked:
				event = "timeline_lock_contention"
			default:
				return
			}

			logger.Warn(event,
				zap.Int("status_code", wrapped.statusCode),
				zap.String("method", r.Method),
				zap.String("path", logpkg.SanitizePath(r.URL.Path)),
				zap.String("ip", logpkg.SanitizeString(request.ClientIP(r), logpkg.MaxGeneralStringLength)),
			)
		})
	}
}
