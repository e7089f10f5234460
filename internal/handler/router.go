package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/capitalize-ai/ai-engine/internal/middleware"
	"github.com/capitalize-ai/ai-engine/pkg/logger"
)

// RouterConfig holds the HTTP surface settings.
type RouterConfig struct {
	JWTSecret         string
	CORSOrigins       []string
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// Handlers groups the endpoint handlers mounted by NewRouter.
type Handlers struct {
	Health    *HealthHandler
	Messages  *MessageHandler
	Knowledge *KnowledgeHandler
	Analytics *AnalyticsHandler
	Tenant    *TenantHandler
}

// NewRouter mounts every endpoint behind the shared middleware chain.
func NewRouter(h Handlers, cfg RouterConfig, log *logger.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORSOrigins))

	// Health endpoints (no auth required)
	r.Get("/health", h.Health.Health)
	r.Get("/ready", h.Health.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		if cfg.RateLimitRequests > 0 {
			r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireScope(middleware.ScopeMessages))
			r.Post("/messages", h.Messages.Process)
			r.Post("/inbound", h.Messages.Inbound)
		})

		r.Route("/knowledge", func(r chi.Router) {
			r.Use(middleware.RequireScope(middleware.ScopeKnowledge))
			r.Post("/", h.Knowledge.Index)
			r.Delete("/", h.Knowledge.Clear)
			r.Post("/search", h.Knowledge.Search)
			r.Delete("/{id}", h.Knowledge.Delete)
		})

		r.With(middleware.RequireScope(middleware.ScopeMessages)).Post("/feedback", h.Analytics.Feedback)

		r.Route("/analytics", func(r chi.Router) {
			r.Use(middleware.RequireScope(middleware.ScopeAnalytics))
			r.Get("/conversations", h.Analytics.Conversations)
			r.Get("/funnel", h.Analytics.Funnel)
			r.Get("/escalations", h.Analytics.Escalations)
			r.Get("/low-rated", h.Analytics.LowRated)
		})

		r.Route("/tenant", func(r chi.Router) {
			r.Use(middleware.RequireScope(middleware.ScopeAdmin))
			r.Get("/profile", h.Tenant.Profile)
			r.Delete("/cache", h.Tenant.InvalidateCache)
		})
	})

	return r
}
