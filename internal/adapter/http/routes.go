package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Strob0t/taskcrew/internal/middleware"
)

// MountRoutes registers the control plane on r. Everything under /api/v1
// requires the bearer key when apiKey is set and then runs through api, in
// order; /health and /ws stay open.
func MountRoutes(r chi.Router, h *Handlers, apiKey string, api ...func(http.Handler) http.Handler) {
	r.Get("/health", h.Health)
	if h.Stream != nil {
		r.Handle("/ws", h.Stream)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.BearerKey(apiKey))
		r.Use(api...)

		// Businesses
		r.Get("/businesses", h.ListBusinesses)
		r.Post("/businesses", h.CreateBusiness)
		r.Get("/businesses/{id}", h.GetBusiness)
		r.Put("/businesses/{id}/autonomy", h.SetAutonomy)

		// Queue (nested under businesses)
		r.Post("/businesses/{id}/tasks", h.EnqueueTask)
		r.Get("/businesses/{id}/tasks", h.ListTasks)
		r.Post("/businesses/{id}/process-queue", h.ProcessQueue)
		r.Get("/businesses/{id}/queue-status", h.GetQueueStatus)
		r.Get("/businesses/{id}/roles", h.ListRoles)

		// Tasks (direct access)
		r.Get("/tasks/{id}", h.GetTask)
		r.Get("/tasks/{id}/children", h.ListChildren)
		r.Get("/tasks/{id}/messages", h.ListMessages)
		r.Post("/tasks/{id}/process", h.ProcessTask)
		r.Post("/tasks/{id}/approve", h.ApproveTask)
		r.Post("/tasks/{id}/reject", h.RejectTask)
		r.Post("/tasks/{id}/cancel", h.CancelTask)
		r.Post("/tasks/{id}/publish", h.PublishTask)
		r.Post("/tasks/{id}/requeue", h.RequeueTask)

		// Action envelope
		r.Post("/task-processor", h.TaskProcessor)
	})
}
