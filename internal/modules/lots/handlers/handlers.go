// Package handlers provides HTTP handlers for tax lot operations.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/bookkeeper/internal/domain"
	"github.com/aristath/bookkeeper/internal/modules/lots"
)

// Handler handles tax lot HTTP requests
type Handler struct {
	service       *lots.Service
	defaultMethod lots.Method
	log           zerolog.Logger
}

// NewHandler creates a new lots handler
func NewHandler(service *lots.Service, defaultMethod lots.Method, log zerolog.Logger) *Handler {
	return &Handler{
		service:       service,
		defaultMethod: defaultMethod,
		log:           log.With().Str("handler", "lots").Logger(),
	}
}

type purchaseRequest struct {
	UserID   string          `json:"user_id"`
	Symbol   string          `json:"symbol"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    float64         `json:"price"`
	Fees     float64         `json:"fees"`
	Date     string          `json:"date"` // YYYY-MM-DD
}

type saleRequest struct {
	UserID   string              `json:"user_id"`
	Symbol   string              `json:"symbol"`
	Quantity decimal.Decimal     `json:"quantity"`
	Price    float64             `json:"price"`
	Fees     float64             `json:"fees"`
	Date     string              `json:"date"`
	Method   string              `json:"method,omitempty"`
	Selected []lots.LotSelection `json:"selected,omitempty"`
}

// HandlePostPurchase handles POST /api/lots/purchases
func (h *Handler) HandlePostPurchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		http.Error(w, "Invalid date, expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	lot, err := h.service.RecordPurchase(lots.PurchaseInput{
		UserID:   req.UserID,
		Symbol:   req.Symbol,
		Quantity: req.Quantity,
		Price:    req.Price,
		Fees:     req.Fees,
		Date:     date,
	})
	if err != nil {
		h.writeDomainError(w, err, "Failed to record purchase")
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"data": lot,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandlePostSale handles POST /api/lots/sales
func (h *Handler) HandlePostSale(w http.ResponseWriter, r *http.Request) {
	var req saleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		http.Error(w, "Invalid date, expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	method := h.defaultMethod
	if req.Method != "" {
		method, err = lots.ParseMethod(req.Method)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	result, err := h.service.MatchSale(lots.SaleInput{
		UserID:   req.UserID,
		Symbol:   req.Symbol,
		Quantity: req.Quantity,
		Price:    req.Price,
		Fees:     req.Fees,
		Date:     date,
		Method:   method,
		Selected: req.Selected,
	})
	if err != nil {
		h.writeDomainError(w, err, "Failed to match sale")
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"data": result,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGetLots handles GET /api/lots
func (h *Handler) HandleGetLots(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user")
	if userID == "" {
		http.Error(w, "Missing user parameter", http.StatusBadRequest)
		return
	}
	symbol := r.URL.Query().Get("symbol")

	lotList, err := h.service.Lots(userID, symbol)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to query lots")
		http.Error(w, "Failed to query lots", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"lots":  lotList,
			"count": len(lotList),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGetDispositions handles GET /api/lots/dispositions
func (h *Handler) HandleGetDispositions(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user")
	if userID == "" {
		http.Error(w, "Missing user parameter", http.StatusBadRequest)
		return
	}
	symbol := r.URL.Query().Get("symbol")

	dispositions, err := h.service.Dispositions(userID, symbol)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to query dispositions")
		http.Error(w, "Failed to query dispositions", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"dispositions": dispositions,
			"count":        len(dispositions),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// writeDomainError maps engine errors to HTTP status codes.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error, fallback string) {
	var insufficient *domain.InsufficientLotsError
	var lotNotFound *domain.LotNotFoundError
	var conflict *domain.VersionConflictError

	switch {
	case errors.As(err, &insufficient):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &lotNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &conflict):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		h.log.Error().Err(err).Msg(fallback)
		http.Error(w, fallback, http.StatusInternalServerError)
	}
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
