package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/evikzub/CVTransformer/internal/domain"
	"github.com/evikzub/CVTransformer/internal/service"
	"github.com/evikzub/CVTransformer/internal/session"
	"github.com/evikzub/CVTransformer/pkg/health"
	"github.com/evikzub/CVTransformer/pkg/middleware"
)

// ServiceName labels metrics and spans emitted by the router.
const ServiceName = "cvtransformer"

// RouterConfig holds the HTTP surface settings.
type RouterConfig struct {
	CORS middleware.CORSConfig

	// SecureCookie sets the Secure flag on the session cookie.
	SecureCookie bool

	// LoginRatePerMinute and LoginBurst throttle login attempts per client
	// IP. A zero rate disables the limit.
	LoginRatePerMinute int
	LoginBurst         int

	// PprofCIDRs enables /debug/pprof for the listed networks when non-empty.
	PprofCIDRs []string
}

// NewRouter creates a chi router with all routes registered. ctx bounds the
// background goroutines of the login rate limiter.
func NewRouter(
	ctx context.Context,
	sessions *service.SessionService,
	tickets *service.TicketService,
	store *session.Store,
	healthHandler *health.Handler,
	cfg RouterConfig,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Tracing(ServiceName))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics(ServiceName))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	if len(cfg.PprofCIDRs) > 0 {
		middleware.RegisterPprof(r, cfg.PprofCIDRs, logger)
	}

	loader := &sessionLoader{store: store, sessions: sessions, secure: cfg.SecureCookie, logger: logger}
	authHandler := &AuthHandler{sessions: sessions, tickets: tickets, loader: loader, logger: logger}
	ticketHandler := &TicketHandler{sessions: sessions, tickets: tickets, logger: logger}
	adminHandler := &AdminHandler{sessions: sessions, logger: logger}

	loginLimit := func(next http.Handler) http.Handler { return next }
	if cfg.LoginRatePerMinute > 0 {
		loginLimit = middleware.RateLimit(ctx, cfg.LoginRatePerMinute, cfg.LoginBurst, logger)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.NoStore)
		r.Use(ContentTypeJSON)
		r.Use(loader.middleware)

		r.With(loginLimit).Post("/auth/login", authHandler.Login)
		r.Post("/auth/logout", authHandler.Logout)

		// Authenticated endpoints
		r.Group(func(r chi.Router) {
			r.Use(RejectExpired)
			r.Use(middleware.RequireAuth(sessionIdentity))

			r.Get("/auth/me", authHandler.Me)
			r.Put("/auth/credentials", authHandler.StoreCredentials)
			r.Delete("/auth/credentials", authHandler.ClearCredentials)

			r.Get("/tickets", ticketHandler.List)
			r.Post("/tickets", ticketHandler.Create)
			r.Get("/tickets/{id}", ticketHandler.Get)

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireRole(domain.RoleAdmin))

				r.Get("/users", adminHandler.ListUsers)
				r.Get("/stats", adminHandler.Stats)
				r.Put("/users/{id}/role", adminHandler.SetRole)
				r.Delete("/users/{id}", adminHandler.DeleteUser)
			})
		})
	})

	return r
}
