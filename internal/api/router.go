package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"secureguard-lab/internal/api/handlers"
	apimiddleware "secureguard-lab/internal/api/middleware"
	"secureguard-lab/internal/config"
	"secureguard-lab/pkg/logger"
)

// Router holds dependencies for the API router
type Router struct {
	config   config.Config
	handlers *handlers.Handlers
	limiter  apimiddleware.RateLimitChecker
	logger   *logger.Logger
}

// NewRouter creates a new Router instance. limiter may be nil, which
// disables scan rate limiting.
func NewRouter(cfg config.Config, h *handlers.Handlers, limiter apimiddleware.RateLimitChecker, log *logger.Logger) *Router {
	return &Router{
		config:   cfg,
		handlers: h,
		limiter:  limiter,
		logger:   log.WithComponent("router"),
	}
}

// Setup sets up the Chi router with all routes and middleware
func (r *Router) Setup() http.Handler {
	router := chi.NewRouter()

	// Core middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(apimiddleware.Logger(r.logger))
	router.Use(middleware.Recoverer)

	// CORS
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   r.config.CORS.AllowedOrigins,
		AllowedMethods:   r.config.CORS.AllowedMethods,
		AllowedHeaders:   r.config.CORS.AllowedHeaders,
		AllowCredentials: r.config.CORS.AllowCredentials,
		MaxAge:           r.config.CORS.MaxAge,
	}))

	router.Get("/health", r.handlers.Health.Check)
	router.Get("/ready", r.handlers.Health.Ready)

	// long-lived; no request timeout
	router.Get("/ws/threats", r.handlers.Streaming.HandleWebSocket)

	router.Route("/api/v1", func(api chi.Router) {
		api.Use(middleware.Timeout(timeoutOrDefault(r.config.Server.WriteTimeout)))

		// Reads
		api.Get("/threats", r.handlers.Threats.List)
		api.Get("/posture", r.handlers.Threats.Posture)
		api.Get("/whitelist", r.handlers.Whitelist.List)
		api.Get("/scheduler/jobs", r.handlers.Scheduler.Jobs)
		api.Get("/stream/stats", r.handlers.Streaming.GetStats)

		// Mutations
		api.Group(func(protected chi.Router) {
			protected.Use(apimiddleware.APIKeyAuth(r.config.Auth.APIKey))

			protected.With(r.scanLimiter()).Post("/scan", r.handlers.Threats.Scan)
			protected.Post("/whitelist", r.handlers.Whitelist.Add)
			protected.Delete("/whitelist/{package}", r.handlers.Whitelist.Remove)
		})
	})

	return router
}

func (r *Router) scanLimiter() func(http.Handler) http.Handler {
	if !r.config.RateLimit.Enabled || r.limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return apimiddleware.RateLimiter(r.limiter, r.config.RateLimit, r.logger)
}

// timeoutOrDefault keeps a zero write timeout from cancelling every request
func timeoutOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return 60 * time.Second
	}
	return d
}
