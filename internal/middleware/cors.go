package middleware

import (
	"net/http"
	"strings"

	"github.com/rs/cors"
)

// DefaultCORSMaxAge is how long browsers may cache a preflight answer, in seconds
const DefaultCORSMaxAge = 86400

// ParseOrigins splits a comma-separated origin list, dropping blanks and duplicates
func ParseOrigins(list string) []string {
	var origins []string
	seen := make(map[string]bool)
	for _, origin := range strings.Split(list, ",") {
		origin = strings.TrimSpace(origin)
		if origin == "" || seen[origin] {
			continue
		}
		seen[origin] = true
		origins = append(origins, origin)
	}
	return origins
}

// CORS answers preflight requests and sets CORS headers for the configured origins
func CORS(frontendURL string) func(http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   ParseOrigins(frontendURL),
		AllowCredentials: true,
		MaxAge:           DefaultCORSMaxAge,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", TimelineHeader},
	})
	return c.Handler
}
