package middleware

import (
	"fmt"
	"net/http"

	"github.com/benvon/smart-timelog/internal/request"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	stdlibmw "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"
)

// DefaultRate is used when no rate is configured
const DefaultRate = "20-S"

// RateLimit returns middleware that limits requests per client IP. A nil client keeps the counters in process.
func RateLimit(redisClient redis.UniversalClient, formatted string) (func(http.Handler) http.Handler, error) {
	if formatted == "" {
		formatted = DefaultRate
	}
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return nil, fmt.Errorf("failed to parse rate limit %q: %w", formatted, err)
	}

	var store limiter.Store
	if redisClient != nil {
		store, err = redisstore.NewStoreWithOptions(redisClient, limiter.StoreOptions{Prefix: "timelog:ratelimit"})
		if err != nil {
			return nil, fmt.Errorf("failed to create rate limit store: %w", err)
		}
	} else {
		store = memory.NewStore()
	}

	instance := limiter.New(store, rate)
	mw := stdlibmw.NewMiddleware(instance,
		stdlibmw.WithKeyGetter(request.ClientIP),
		stdlibmw.WithLimitReachedHandler(func(w http.ResponseWriter, r *http.Request) {
			respondErrorJSON(w, r, http.StatusTooManyRequests, "Too Many Requests", "Rate limit exceeded", nil)
		}),
	)
	return mw.Handler, nil
}
