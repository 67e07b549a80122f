package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/aristath/bookkeeper/internal/modules/ledger"
)

func newTestRouter(t *testing.T) *chi.Mux {
	t.Helper()
	log := zerolog.Nop()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, ledger.InitSchema(db))
	svc := ledger.NewService(db, ledger.NewRepository(db, log), log)
	require.NoError(t, svc.EnsureDefaultAccounts())

	router := chi.NewRouter()
	router.Route("/api", func(r chi.Router) {
		NewHandler(svc, log).RegisterRoutes(r)
	})
	return router
}

func TestHandleGetAccounts(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/ledger/accounts", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	data := response["data"].(map[string]interface{})
	assert.Equal(t, float64(6), data["count"])
}

func TestHandlePostTransaction(t *testing.T) {
	router := newTestRouter(t)

	body := `{
		"date": "2024-03-01",
		"description": "Funding",
		"lines": [
			{"account_code": "T-1010", "amount": 50000, "side": "debit"},
			{"account_code": "T-4200", "amount": 50000, "side": "credit"}
		]
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/ledger/transactions", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	data := response["data"].(map[string]interface{})
	assert.NotEmpty(t, data["id"])
}

func TestHandlePostTransaction_UnbalancedIsBadRequest(t *testing.T) {
	router := newTestRouter(t)

	body := `{
		"date": "2024-03-01",
		"description": "Off balance",
		"lines": [
			{"account_code": "T-1010", "amount": 50001, "side": "debit"},
			{"account_code": "T-4200", "amount": 50000, "side": "credit"}
		]
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/ledger/transactions", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlePostTransaction_UnknownAccountIsNotFound(t *testing.T) {
	router := newTestRouter(t)

	body := `{
		"date": "2024-03-01",
		"description": "Bad code",
		"lines": [
			{"account_code": "T-9999", "amount": 100, "side": "debit"},
			{"account_code": "T-4200", "amount": 100, "side": "credit"}
		]
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/ledger/transactions", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleGetTransactionByID_NotFound(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/ledger/transactions/nope", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlePostTransaction_BadDate(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/ledger/transactions",
		strings.NewReader(`{"date": "03/01/2024", "description": "x", "lines": []}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
