package middleware

import (
	"fmt"
	"net/http"
)

// DefaultMaxRequestSize is the default maximum request body size. Import batches are the largest bodies.
const DefaultMaxRequestSize int64 = 1 << 20

// MaxRequestSize limits the size of request bodies
func MaxRequestSize(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxRequestSize
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				respondErrorJSON(w, r, http.StatusRequestEntityTooLarge, "Request Entity Too Large",
					fmt.Sprintf("Request body exceeds %d bytes", maxBytes), nil)
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
