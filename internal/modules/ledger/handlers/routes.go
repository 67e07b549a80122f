package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all ledger routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/ledger", func(r chi.Router) {
		r.Get("/accounts", h.HandleGetAccounts)
		r.Post("/transactions", h.HandlePostTransaction)
		r.Get("/transactions", h.HandleGetTransactions)
		r.Get("/transactions/{id}", func(w http.ResponseWriter, r *http.Request) {
			h.HandleGetTransactionByID(w, r, chi.URLParam(r, "id"))
		})
	})
}
