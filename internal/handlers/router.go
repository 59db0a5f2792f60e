package handlers

import (
	"net/http"
	"time"

	"github.com/benvon/smart-timelog/internal/middleware"
	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/zap"
)

// RouteRegistrar is implemented by every handler in this package
type RouteRegistrar interface {
	RegisterRoutes(r *mux.Router)
}

// RouterConfig configures the middleware chain around the handlers
type RouterConfig struct {
	Logger         *zap.Logger
	ServiceName    string // enables otelmux spans when set
	EnableHSTS     bool
	FrontendURL    string
	MaxRequestSize int64
	RequestTimeout time.Duration
	// Identify sets the request's timeline on API routes: middleware.Auth or middleware.HeaderTimeline
	Identify func(http.Handler) http.Handler
	// RateLimit is applied to API routes when set
	RateLimit func(http.Handler) http.Handler
}

// NewRouter mounts public handlers at the root and API handlers under /api/v1.
// Security headers and CORS wrap the router so preflights reach them for any method.
func NewRouter(cfg RouterConfig, public []RouteRegistrar, api []RouteRegistrar) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		respondJSONError(w, http.StatusNotFound, "Not Found", "No such endpoint")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		respondJSONError(w, http.StatusMethodNotAllowed, "Method Not Allowed", "Method not allowed on this endpoint")
	})

	if cfg.ServiceName != "" {
		r.Use(otelmux.Middleware(cfg.ServiceName))
	}
	r.Use(middleware.MaxRequestSize(cfg.MaxRequestSize))
	r.Use(middleware.ContentType)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.ErrorHandler(logger))
	r.Use(middleware.Audit(logger))
	r.Use(middleware.Logging(logger))

	for _, h := range public {
		h.RegisterRoutes(r)
	}

	apiRouter := r.PathPrefix("/api/v1").Subrouter()
	if cfg.RateLimit != nil {
		apiRouter.Use(cfg.RateLimit)
	}
	if cfg.Identify != nil {
		apiRouter.Use(cfg.Identify)
	}
	for _, h := range api {
		h.RegisterRoutes(apiRouter)
	}

	return middleware.SecurityHeaders(cfg.EnableHSTS)(middleware.CORS(cfg.FrontendURL)(r))
}
