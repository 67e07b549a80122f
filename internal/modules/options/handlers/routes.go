package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all option position routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/options", func(r chi.Router) {
		r.Post("/legs", h.HandlePostLeg)
		r.Get("/positions", h.HandleGetPositions)
	})
}
