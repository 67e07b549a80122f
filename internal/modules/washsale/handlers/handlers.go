// Package handlers provides HTTP handlers for wash sale detection.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/bookkeeper/internal/modules/washsale"
)

// Handler handles wash sale HTTP requests
type Handler struct {
	detector *washsale.Detector
	applier  *washsale.Applier
	log      zerolog.Logger
}

// NewHandler creates a new wash sale handler
func NewHandler(detector *washsale.Detector, applier *washsale.Applier, log zerolog.Logger) *Handler {
	return &Handler{
		detector: detector,
		applier:  applier,
		log:      log.With().Str("handler", "washsale").Logger(),
	}
}

// HandleGetReport handles GET /api/wash-sales/{userID}. With ?cached=true
// the last scan's report is returned when one exists; otherwise a fresh
// scan runs.
func (h *Handler) HandleGetReport(w http.ResponseWriter, r *http.Request, userID string) {
	if r.URL.Query().Get("cached") == "true" {
		report, err := h.detector.CachedReport(userID)
		if err != nil {
			h.log.Error().Err(err).Msg("Failed to read cached report")
			http.Error(w, "Failed to read cached report", http.StatusInternalServerError)
			return
		}
		if report != nil {
			h.writeReport(w, report, true)
			return
		}
	}

	report, err := h.detector.Detect(userID)
	if err != nil {
		h.log.Error().Err(err).Msg("Wash sale scan failed")
		http.Error(w, "Wash sale scan failed", http.StatusInternalServerError)
		return
	}
	h.writeReport(w, report, false)
}

// HandlePostApply handles POST /api/wash-sales/{userID}/apply. The scan
// runs fresh and every detected violation's basis adjustment is applied.
// Already-recorded pairs are skipped, so re-applying is harmless.
func (h *Handler) HandlePostApply(w http.ResponseWriter, r *http.Request, userID string) {
	report, err := h.detector.Detect(userID)
	if err != nil {
		h.log.Error().Err(err).Msg("Wash sale scan failed")
		http.Error(w, "Wash sale scan failed", http.StatusInternalServerError)
		return
	}

	applied, err := h.applier.Apply(userID, report.Violations)
	if err != nil {
		h.log.Error().Err(err).Int("applied", applied).Msg("Wash sale apply failed")
		http.Error(w, "Wash sale apply failed", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"detected": len(report.Violations),
			"applied":  applied,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

func (h *Handler) writeReport(w http.ResponseWriter, report *washsale.Report, cached bool) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": report,
		"metadata": map[string]interface{}{
			"cached":    cached,
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
