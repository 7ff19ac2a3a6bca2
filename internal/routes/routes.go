package routes

import (
	"log/slog"
	"time"

	handlers "github.com/dercryptomuslim/umrahcheck-api/internal/http"
	mid "github.com/dercryptomuslim/umrahcheck-api/internal/middleware"
	"github.com/dercryptomuslim/umrahcheck-api/internal/obs"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func GetRoutes(h *handlers.Handler, rl *mid.IPRateLimiter, metrics *obs.Metrics, logger *slog.Logger, requestTimeout time.Duration) *chi.Mux {
	r := chi.NewRouter()
	// Useful built-in middlewares
	r.Use(middleware.RealIP)    // proper client IP extraction
	r.Use(middleware.RequestID) // sets request ID header
	r.Use(middleware.Recoverer) // built-in recoverer to avoid panics taking server down

	// our custom middlewares: metrics, logging, rate limit & timeout
	r.Use(mid.MetricsMiddleware(metrics))
	r.Use(mid.LoggingMiddleware(logger))
	r.Use(mid.RateLimitMiddleware(rl, metrics))
	r.Use(mid.TimeoutMiddleware(requestTimeout))

	// endpoints
	r.Get("/resolve", h.ResolvePrice)
	r.Get("/healthz", h.Healthz)
	r.Get("/metrics", metrics.Handler().ServeHTTP)

	return r
}
