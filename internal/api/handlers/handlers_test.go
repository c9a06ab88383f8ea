package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledger-service/ledger_service/internal/api/handlers"
	"github.com/ledger-service/ledger_service/internal/api/middleware"
	accountsvc "github.com/ledger-service/ledger_service/internal/domain/services/account"
	idempotencysvc "github.com/ledger-service/ledger_service/internal/domain/services/idempotency"
	paymentsvc "github.com/ledger-service/ledger_service/internal/domain/services/payment"
	"github.com/ledger-service/ledger_service/internal/infrastructure/cache"
	"github.com/ledger-service/ledger_service/internal/infrastructure/repositories/memory"
	"github.com/ledger-service/ledger_service/pkg/auth"
	"github.com/ledger-service/ledger_service/pkg/logger"
)

type testAPI struct {
	router *gin.Engine
	tokens *auth.Manager
	store  *memory.Store
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewStore()
	c := cache.NewMemoryCache()
	log := logger.NewNop()

	accounts := accountsvc.NewService(store, c, 5*time.Minute, log)
	idem := idempotencysvc.NewService(store, c, 24*time.Hour, log)
	payments := paymentsvc.NewService(store, accounts, idem, 3, log)

	tokens := auth.NewManager("test-secret", time.Hour, "ledger_service")

	accountHandler := handlers.NewAccountHandler(accounts, log)
	transferHandler := handlers.NewTransferHandler(payments, accounts, log)
	transactionHandler := handlers.NewTransactionHandler(payments, accounts, log)

	router := gin.New()
	v1 := router.Group("/api/v1")
	v1.Use(middleware.Auth(tokens))
	v1.POST("/accounts", accountHandler.Create())
	v1.GET("/accounts/:id", accountHandler.Get())
	v1.GET("/accounts/:id/balance", accountHandler.GetBalance())
	v1.POST("/transfers", transferHandler.Create())
	v1.GET("/transactions/:id", transactionHandler.Get())
	v1.POST("/transactions/:id/reverse", transactionHandler.Reverse())
	v1.GET("/transactions/account/:id/history", transactionHandler.History())

	return &testAPI{router: router, tokens: tokens, store: store}
}

func (a *testAPI) request(t *testing.T, userID uuid.UUID, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var payload *bytes.Buffer
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		payload = bytes.NewBuffer(raw)
	} else {
		payload = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, payload)
	req.Header.Set("Content-Type", "application/json")
	if userID != uuid.Nil {
		token, err := a.tokens.Generate(userID)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func (a *testAPI) createAccount(t *testing.T, userID uuid.UUID, currency, balance string) string {
	t.Helper()
	rec := a.request(t, userID, http.MethodPost, "/api/v1/accounts", map[string]any{
		"currency":        currency,
		"initial_balance": balance,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode(t, rec)["account_id"].(string)
}

func TestAuthRequired(t *testing.T) {
	api := newTestAPI(t)

	rec := api.request(t, uuid.Nil, http.MethodPost, "/api/v1/accounts", map[string]any{"currency": "USD"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", decode(t, rec)["code"])
}

func TestCreateAndFetchAccount(t *testing.T) {
	api := newTestAPI(t)
	userID := uuid.New()

	accountID := api.createAccount(t, userID, "USD", "100.00")

	rec := api.request(t, userID, http.MethodGet, "/api/v1/accounts/"+accountID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, accountID, body["account_id"])
	assert.Equal(t, userID.String(), body["user_id"])
	assert.Equal(t, "USD", body["currency"])
	assert.Equal(t, "100", body["balance"])
	assert.Equal(t, "ACTIVE", body["status"])

	// Another user's account reads as missing.
	rec = api.request(t, uuid.New(), http.MethodGet, "/api/v1/accounts/"+accountID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTransferEndpoint(t *testing.T) {
	api := newTestAPI(t)
	userID := uuid.New()

	from := api.createAccount(t, userID, "USD", "100.00")
	to := api.createAccount(t, userID, "USD", "50.00")

	transfer := map[string]any{
		"from_account_id": from,
		"to_account_id":   to,
		"amount":          "30.00",
		"currency":        "USD",
		"idempotency_key": "k1",
	}

	rec := api.request(t, userID, http.MethodPost, "/api/v1/transfers", transfer)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode(t, rec)
	assert.Equal(t, "COMPLETED", created["status"])
	assert.Equal(t, "TRANSFER", created["transaction_type"])

	// Replaying the key is a conflict that names the winner.
	rec = api.request(t, userID, http.MethodPost, "/api/v1/transfers", transfer)
	require.Equal(t, http.StatusConflict, rec.Code)
	conflict := decode(t, rec)
	assert.Equal(t, "DUPLICATE_TRANSACTION", conflict["code"])
	details := conflict["details"].(map[string]any)
	assert.Equal(t, created["transaction_id"], details["transaction_id"])

	rec = api.request(t, userID, http.MethodGet, "/api/v1/accounts/"+from+"/balance", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "70", decode(t, rec)["balance"])
}

func TestTransferErrorMapping(t *testing.T) {
	api := newTestAPI(t)
	userID := uuid.New()

	from := api.createAccount(t, userID, "USD", "10.00")
	to := api.createAccount(t, userID, "USD", "0.00")
	eur := api.createAccount(t, userID, "EUR", "50.00")

	cases := []struct {
		name   string
		body   map[string]any
		status int
		code   string
	}{
		{
			name: "insufficient funds",
			body: map[string]any{
				"from_account_id": from, "to_account_id": to,
				"amount": "50.00", "currency": "USD", "idempotency_key": "k2",
			},
			status: http.StatusBadRequest,
			code:   "INSUFFICIENT_FUNDS",
		},
		{
			name: "currency mismatch",
			body: map[string]any{
				"from_account_id": from, "to_account_id": eur,
				"amount": "1.00", "currency": "USD", "idempotency_key": "k3",
			},
			status: http.StatusBadRequest,
			code:   "CURRENCY_MISMATCH",
		},
		{
			name: "unknown destination",
			body: map[string]any{
				"from_account_id": from, "to_account_id": uuid.NewString(),
				"amount": "1.00", "currency": "USD", "idempotency_key": "k4",
			},
			status: http.StatusNotFound,
			code:   "INVALID_ACCOUNT",
		},
		{
			name: "negative amount",
			body: map[string]any{
				"from_account_id": from, "to_account_id": to,
				"amount": "-1.00", "currency": "USD", "idempotency_key": "k5",
			},
			status: http.StatusBadRequest,
			code:   "INVALID_AMOUNT",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := api.request(t, userID, http.MethodPost, "/api/v1/transfers", tc.body)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
			assert.Equal(t, tc.code, decode(t, rec)["code"])
		})
	}
}

func TestTransferForeignSourceRejected(t *testing.T) {
	api := newTestAPI(t)
	owner := uuid.New()
	attacker := uuid.New()

	from := api.createAccount(t, owner, "USD", "100.00")
	to := api.createAccount(t, attacker, "USD", "0.00")

	rec := api.request(t, attacker, http.MethodPost, "/api/v1/transfers", map[string]any{
		"from_account_id": from, "to_account_id": to,
		"amount": "100.00", "currency": "USD", "idempotency_key": "steal",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReverseEndpoint(t *testing.T) {
	api := newTestAPI(t)
	userID := uuid.New()

	from := api.createAccount(t, userID, "USD", "100.00")
	to := api.createAccount(t, userID, "USD", "50.00")

	rec := api.request(t, userID, http.MethodPost, "/api/v1/transfers", map[string]any{
		"from_account_id": from, "to_account_id": to,
		"amount": "30.00", "currency": "USD", "idempotency_key": "k1",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	transactionID := decode(t, rec)["transaction_id"].(string)

	rec = api.request(t, userID, http.MethodPost,
		fmt.Sprintf("/api/v1/transactions/%s/reverse", transactionID),
		map[string]any{"reason": "customer dispute"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	reversal := decode(t, rec)
	assert.Equal(t, "REVERSAL", reversal["transaction_type"])

	rec = api.request(t, userID, http.MethodGet, "/api/v1/transactions/"+transactionID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	original := decode(t, rec)["transaction"].(map[string]any)
	assert.Equal(t, "REVERSED", original["status"])
}

func TestGetTransactionForeignUserRejected(t *testing.T) {
	api := newTestAPI(t)
	owner := uuid.New()

	from := api.createAccount(t, owner, "USD", "100.00")
	to := api.createAccount(t, owner, "USD", "0.00")

	rec := api.request(t, owner, http.MethodPost, "/api/v1/transfers", map[string]any{
		"from_account_id": from, "to_account_id": to,
		"amount": "30.00", "currency": "USD", "idempotency_key": "k1",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	transactionID := decode(t, rec)["transaction_id"].(string)

	// Someone else's transaction reads as missing, entries included.
	rec = api.request(t, uuid.New(), http.MethodGet, "/api/v1/transactions/"+transactionID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.request(t, owner, http.MethodGet, "/api/v1/transactions/"+transactionID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReverseForeignUserRejected(t *testing.T) {
	api := newTestAPI(t)
	payer := uuid.New()
	payee := uuid.New()

	from := api.createAccount(t, payer, "USD", "100.00")
	to := api.createAccount(t, payee, "USD", "0.00")

	rec := api.request(t, payer, http.MethodPost, "/api/v1/transfers", map[string]any{
		"from_account_id": from, "to_account_id": to,
		"amount": "30.00", "currency": "USD", "idempotency_key": "k1",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	path := fmt.Sprintf("/api/v1/transactions/%s/reverse", decode(t, rec)["transaction_id"].(string))
	body := map[string]any{"reason": "customer dispute"}

	// Neither a stranger nor the credited party may unwind the transfer.
	rec = api.request(t, uuid.New(), http.MethodPost, path, body)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.request(t, payee, http.MethodPost, path, body)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.request(t, payer, http.MethodPost, path, body)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestHistoryEndpoint(t *testing.T) {
	api := newTestAPI(t)
	userID := uuid.New()

	from := api.createAccount(t, userID, "USD", "100.00")
	to := api.createAccount(t, userID, "USD", "0.00")

	for i := 0; i < 5; i++ {
		rec := api.request(t, userID, http.MethodPost, "/api/v1/transfers", map[string]any{
			"from_account_id": from, "to_account_id": to,
			"amount": "1.00", "currency": "USD",
			"idempotency_key": fmt.Sprintf("h-%d", i),
		})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := api.request(t, userID, http.MethodGet,
		"/api/v1/transactions/account/"+from+"/history?limit=2&offset=0", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Len(t, body["transactions"], 2)
	assert.Equal(t, float64(5), body["total_count"])
	assert.Equal(t, float64(2), body["limit"])
}
