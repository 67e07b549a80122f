package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all wash sale routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/wash-sales", func(r chi.Router) {
		r.Get("/{userID}", func(w http.ResponseWriter, r *http.Request) {
			h.HandleGetReport(w, r, chi.URLParam(r, "userID"))
		})
		r.Post("/{userID}/apply", func(w http.ResponseWriter, r *http.Request) {
			h.HandlePostApply(w, r, chi.URLParam(r, "userID"))
		})
	})
}
