package middleware

import (
	"encoding/json"
	"net/http"
	"time"
)

// DefaultRequestTimeout bounds a request including its wait for the timeline lock
const DefaultRequestTimeout = 30 * time.Second

// Timeout cancels the request context after the timeout and answers 503 with the error envelope
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	body, _ := json.Marshal(ErrorResponse{
		Success: false,
		Error:   "Request Timeout",
		Message: "The request took longer than " + timeout.String(),
	})

	return func(next http.Handler) http.Handler {
		// TimeoutHandler derives the deadline context itself.
		return http.TimeoutHandler(next, timeout, string(body))
	}
}
