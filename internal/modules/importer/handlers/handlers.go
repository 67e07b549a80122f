// Package handlers provides HTTP handlers for transaction imports.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/bookkeeper/internal/modules/importer"
)

// Handler handles import HTTP requests
type Handler struct {
	importer *importer.Importer
	log      zerolog.Logger
}

// NewHandler creates a new import handler
func NewHandler(imp *importer.Importer, log zerolog.Logger) *Handler {
	return &Handler{
		importer: imp,
		log:      log.With().Str("handler", "importer").Logger(),
	}
}

// RegisterRoutes registers all import routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/import", h.HandlePostImport)
}

// HandlePostImport handles POST /api/import with a JSON array of
// normalized records.
func (h *Handler) HandlePostImport(w http.ResponseWriter, r *http.Request) {
	var records []importer.Record
	if err := json.NewDecoder(r.Body).Decode(&records); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(records) == 0 {
		http.Error(w, "Empty batch", http.StatusBadRequest)
		return
	}

	result, err := h.importer.Import(records)
	if err != nil {
		h.log.Error().Err(err).Msg("Import failed")
		http.Error(w, "Import failed", http.StatusInternalServerError)
		return
	}

	status := http.StatusOK
	if result.Failed > 0 && result.Processed == 0 {
		status = http.StatusUnprocessableEntity
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"data": result,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
