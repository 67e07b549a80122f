package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all tax lot routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/lots", func(r chi.Router) {
		r.Get("/", h.HandleGetLots)
		r.Post("/purchases", h.HandlePostPurchase)
		r.Post("/sales", h.HandlePostSale)
		r.Get("/dispositions", h.HandleGetDispositions)
	})
}
