// Package handlers provides HTTP handlers for option position operations.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/bookkeeper/internal/domain"
	"github.com/aristath/bookkeeper/internal/modules/options"
	"github.com/aristath/bookkeeper/internal/utils"
)

// Handler handles option position HTTP requests
type Handler struct {
	service *options.Service
	log     zerolog.Logger
}

// NewHandler creates a new options handler
func NewHandler(service *options.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "options").Logger(),
	}
}

type legRequest struct {
	UserID     string          `json:"user_id"`
	Symbol     string          `json:"symbol"`
	Underlying string          `json:"underlying"`
	OptionType string          `json:"option_type"`
	Strike     float64         `json:"strike"` // fractional dollars
	Expiration string          `json:"expiration,omitempty"`
	Action     string          `json:"action"`
	Quantity   decimal.Decimal `json:"quantity"`
	Amount     float64         `json:"amount"`
	Fees       float64         `json:"fees"`
	Date       string          `json:"date"` // YYYY-MM-DD
	Strategy   string          `json:"strategy,omitempty"`
	TradeNum   int64           `json:"trade_num,omitempty"`
}

// HandlePostLeg handles POST /api/options/legs. Opening actions create a
// position, closing actions match and close one.
func (h *Handler) HandlePostLeg(w http.ResponseWriter, r *http.Request) {
	var req legRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	leg, err := h.toLeg(&req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var position *domain.OptionPosition
	if leg.Action.IsOpening() {
		position, err = h.service.OpenLeg(leg)
	} else {
		position, err = h.service.CloseLeg(leg)
	}
	if err != nil {
		h.writeDomainError(w, err, "Failed to process leg")
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"data": position,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGetPositions handles GET /api/options/positions
func (h *Handler) HandleGetPositions(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user")
	if userID == "" {
		http.Error(w, "Missing user parameter", http.StatusBadRequest)
		return
	}
	status := domain.PositionStatus(r.URL.Query().Get("status"))

	positions, err := h.service.Positions(userID, status)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to query positions")
		http.Error(w, "Failed to query positions", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"positions": positions,
			"count":     len(positions),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

func (h *Handler) toLeg(req *legRequest) (*options.Leg, error) {
	action, err := options.ParseLegAction(req.Action)
	if err != nil {
		return nil, err
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return nil, errors.New("invalid date, expected YYYY-MM-DD")
	}
	var expiration *time.Time
	if req.Expiration != "" {
		exp, err := time.Parse("2006-01-02", req.Expiration)
		if err != nil {
			return nil, errors.New("invalid expiration, expected YYYY-MM-DD")
		}
		expiration = &exp
	}
	underlying := req.Underlying
	if underlying == "" {
		underlying = req.Symbol
	}
	return &options.Leg{
		UserID:     req.UserID,
		Symbol:     req.Symbol,
		Underlying: underlying,
		OptionType: domain.OptionType(req.OptionType),
		Strike:     utils.ToCents(req.Strike),
		Expiration: expiration,
		Action:     action,
		Quantity:   req.Quantity,
		Amount:     req.Amount,
		Fees:       req.Fees,
		Date:       date,
		Strategy:   req.Strategy,
		TradeNum:   req.TradeNum,
	}, nil
}

// writeDomainError maps engine errors to HTTP status codes.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error, fallback string) {
	var noMatch *domain.NoMatchingPositionError
	var sizeMismatch *domain.PositionSizeMismatchError
	var grouping *domain.InvalidLegGroupingError
	var conflict *domain.VersionConflictError

	switch {
	case errors.As(err, &noMatch):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &sizeMismatch):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &grouping):
		http.Error(w, err.Error(), http.StatusBadRequest)
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
