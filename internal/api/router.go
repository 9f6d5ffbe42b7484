package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/plannerhq/webhook-engine/internal/engine"
	"github.com/plannerhq/webhook-engine/internal/store"
	ws "github.com/plannerhq/webhook-engine/internal/websocket"
	"github.com/plannerhq/webhook-engine/internal/worker"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(pgStore *store.PostgresStore, deliverer *worker.Deliverer, triggers *engine.TaskTriggers, hub *ws.Hub, jwtSecret string, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))
	r.Use(corsMiddleware)

	// Handlers
	webhookHandler := NewWebhookHandler(pgStore, deliverer, logger)
	eventHandler := NewEventHandler(pgStore, logger)
	taskHandler := NewTaskHandler(pgStore, triggers, logger)

	// Live delivery feed
	r.Get("/ws", hub.HandleWebSocket)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", HealthHandler())

		r.Group(func(r chi.Router) {
			r.Use(jwtAuth(jwtSecret))

			r.Route("/webhooks", func(r chi.Router) {
				r.Post("/parse-curl", webhookHandler.ParseCurl)
				r.Post("/test", webhookHandler.Test)
			})

			r.Route("/events", func(r chi.Router) {
				r.Post("/", eventHandler.Create)
				r.Get("/{id}", eventHandler.Get)

				r.Route("/{id}/webhook", func(r chi.Router) {
					r.Put("/", webhookHandler.ConfigureEvent)
					r.Get("/", webhookHandler.EventStatus)
					r.Delete("/", webhookHandler.DisableEvent)
					r.Get("/logs", webhookHandler.EventLogs)
				})
			})

			r.Route("/tasks", func(r chi.Router) {
				r.Post("/", taskHandler.Create)
				r.Get("/{id}", taskHandler.Get)
				r.Patch("/{id}/status", taskHandler.UpdateStatus)

				r.Route("/{id}/webhook", func(r chi.Router) {
					r.Put("/", webhookHandler.ConfigureTask)
					r.Get("/", webhookHandler.TaskStatus)
					r.Delete("/", webhookHandler.DisableTask)
					r.Get("/logs", webhookHandler.TaskLogs)
				})
			})
		})
	})

	return r
}

// corsMiddleware adds CORS headers for local tooling.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
