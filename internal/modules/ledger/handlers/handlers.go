// Package handlers provides HTTP handlers for ledger operations.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/bookkeeper/internal/domain"
	"github.com/aristath/bookkeeper/internal/modules/ledger"
)

// Handler handles ledger HTTP requests
type Handler struct {
	service *ledger.Service
	log     zerolog.Logger
}

// NewHandler creates a new ledger handler
func NewHandler(service *ledger.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "ledger").Logger(),
	}
}

type postLineRequest struct {
	AccountCode string `json:"account_code"`
	Amount      int64  `json:"amount"` // cents
	Side        string `json:"side"`   // "debit" or "credit"
}

type postTransactionRequest struct {
	Date        string            `json:"date"` // YYYY-MM-DD
	Description string            `json:"description"`
	Reference   string            `json:"reference,omitempty"`
	Lines       []postLineRequest `json:"lines"`
}

// HandlePostTransaction handles POST /api/ledger/transactions
func (h *Handler) HandlePostTransaction(w http.ResponseWriter, r *http.Request) {
	var req postTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		http.Error(w, "Invalid date, expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	lines := make([]ledger.Line, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, ledger.Line{
			AccountCode: l.AccountCode,
			Amount:      l.Amount,
			Side:        domain.BalanceSide(l.Side),
		})
	}

	jt, err := h.service.PostTransaction(ledger.PostInput{
		Date:        date,
		Description: req.Description,
		ExternalRef: req.Reference,
		Lines:       lines,
	})
	if err != nil {
		h.writeDomainError(w, err, "Failed to post transaction")
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"data": jt,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGetAccounts handles GET /api/ledger/accounts
func (h *Handler) HandleGetAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.Accounts()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to query accounts")
		http.Error(w, "Failed to query accounts", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"accounts": accounts,
			"count":    len(accounts),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGetTransactions handles GET /api/ledger/transactions
func (h *Handler) HandleGetTransactions(w http.ResponseWriter, r *http.Request) {
	limit := 100 // default
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 {
			limit = parsedLimit
		}
	}

	transactions, err := h.service.Transactions(limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to query transactions")
		http.Error(w, "Failed to query transactions", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"transactions": transactions,
			"count":        len(transactions),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGetTransactionByID handles GET /api/ledger/transactions/{id}
func (h *Handler) HandleGetTransactionByID(w http.ResponseWriter, r *http.Request, id string) {
	jt, err := h.service.Transaction(id)
	if err != nil {
		h.log.Error().Err(err).Str("id", id).Msg("Failed to query transaction")
		http.Error(w, "Failed to query transaction", http.StatusInternalServerError)
		return
	}
	if jt == nil {
		http.Error(w, "Transaction not found", http.StatusNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": jt,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// writeDomainError maps engine errors to HTTP status codes.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error, fallback string) {
	var unbalanced *domain.UnbalancedEntryError
	var notFound *domain.AccountNotFoundError
	var conflict *domain.VersionConflictError

	switch {
	case errors.As(err, &unbalanced):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &notFound):
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
