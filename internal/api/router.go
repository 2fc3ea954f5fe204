package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/kestrelvaluation/securechat/internal/api/middleware"
	"github.com/kestrelvaluation/securechat/internal/handlers"
)

// RouterConfig carries the pieces NewRouter wires together.
type RouterConfig struct {
	Handler   *handlers.Handler
	Auth      *middleware.AuthMiddleware
	SendLimit *middleware.RateLimiter
	Logger    zerolog.Logger
}

// NewRouter creates and configures the HTTP router.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(16 << 20)) // bounded by the image upload limit
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(chimw.Recoverer)

	// CORS - the back-office front end runs on its own origin
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := cfg.Handler

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes (no auth required)
	r.Get("/health", h.Health)

	// Authenticated routes (require bearer token)
	r.Group(func(r chi.Router) {
		r.Use(cfg.Auth.RequireAuth)

		r.Get("/rooms", h.ListRooms)
		r.Post("/rooms/direct", h.CreateDirectRoom)
		r.Post("/rooms/case", h.CreateCaseRoom)
		r.Get("/rooms/{id}/messages", h.GetMessages)
		r.Post("/rooms/{id}/open", h.OpenRoom)
		r.Post("/rooms/{id}/participants", h.AddParticipant)
		r.Delete("/rooms/{id}/participants/{userId}", h.RemoveParticipant)

		// Sends carry a per-user rate limit on top of auth.
		r.Group(func(r chi.Router) {
			r.Use(cfg.SendLimit.Middleware)
			r.Post("/rooms/{id}/messages", h.PostMessage)
		})

		r.Post("/presence/heartbeat", h.Heartbeat)
		r.Post("/presence/offline", h.MarkOffline)
		r.Get("/presence/{userId}", h.GetPresence)

		r.Post("/uploads", h.Upload)
		r.Get("/ws", h.Websocket)
	})

	return r
}
