package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/richardliu001/ledger-service/internal/config"
	"github.com/richardliu001/ledger-service/internal/repo"
	"github.com/richardliu001/ledger-service/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type apiError struct {
	Error struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, repo.AutoMigrate(db))

	log := zaptest.NewLogger(t).Sugar()
	ledger := service.NewLedger(repo.NewRepository(db, nil, log), log, service.EngineConfig{
		Retry:          service.RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
		RecordRejected: true,
	})
	return NewRouter(ledger, config.RateLimitConfig{}, 5*time.Second, log)
}

func do(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Caller-ID", "tester")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func provision(t *testing.T, r *gin.Engine, balance string) string {
	t.Helper()
	w := do(t, r, http.MethodPost, "/v1/accounts", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode[map[string]any](t, w)["account_id"].(string)
	if balance != "" {
		w = do(t, r, http.MethodPut, "/v1/accounts/"+id+"/balance", map[string]string{"balance": balance})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}
	return id
}

func TestHealthz(t *testing.T) {
	r := newTestRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMissingCaller(t *testing.T) {
	r := newTestRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/accounts", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTransferFlow(t *testing.T) {
	r := newTestRouter(t)
	x := provision(t, r, "100")
	y := provision(t, r, "50")

	w := do(t, r, http.MethodPost, "/v1/transfers", map[string]string{
		"from_account_id": x, "to_account_id": y, "amount": "30",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	out := decode[map[string]string](t, w)
	assert.Equal(t, "70", out["from_balance"])
	assert.Equal(t, "80", out["to_balance"])
	_, err := uuid.Parse(out["transaction_id"])
	require.NoError(t, err)

	w = do(t, r, http.MethodGet, "/v1/accounts/"+x+"/balance", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "70", decode[map[string]string](t, w)["balance"])

	w = do(t, r, http.MethodGet, "/v1/transactions/"+out["transaction_id"], nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "applied", decode[map[string]any](t, w)["status"])

	w = do(t, r, http.MethodGet, "/v1/accounts/"+y+"/transactions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[map[string][]any](t, w)["transactions"], 1)
}

func TestTransferErrors(t *testing.T) {
	r := newTestRouter(t)
	x := provision(t, r, "20")
	y := provision(t, r, "")

	cases := []struct {
		name   string
		body   map[string]string
		status int
		kind   string
	}{
		{"insufficient", map[string]string{"from_account_id": x, "to_account_id": y, "amount": "25"}, http.StatusUnprocessableEntity, "insufficient_funds"},
		{"zero amount", map[string]string{"from_account_id": x, "to_account_id": y, "amount": "0"}, http.StatusBadRequest, "validation"},
		{"bad amount", map[string]string{"from_account_id": x, "to_account_id": y, "amount": "ten"}, http.StatusBadRequest, "validation"},
		{"bad id", map[string]string{"from_account_id": "nope", "to_account_id": y, "amount": "1"}, http.StatusBadRequest, "validation"},
		{"unknown", map[string]string{"from_account_id": uuid.NewString(), "to_account_id": y, "amount": "1"}, http.StatusNotFound, "not_found"},
		{"missing field", map[string]string{"from_account_id": x, "amount": "1"}, http.StatusBadRequest, "validation"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(t, r, http.MethodPost, "/v1/transfers", tc.body)
			assert.Equal(t, tc.status, w.Code, w.Body.String())
			assert.Equal(t, tc.kind, decode[apiError](t, w).Error.Kind)
		})
	}

	w := do(t, r, http.MethodGet, "/v1/accounts/"+x+"/balance", nil)
	assert.Equal(t, "20", decode[map[string]string](t, w)["balance"])
}

func TestListTransactionsFilter(t *testing.T) {
	r := newTestRouter(t)
	x := provision(t, r, "10")
	y := provision(t, r, "")

	do(t, r, http.MethodPost, "/v1/transfers", map[string]string{"from_account_id": x, "to_account_id": y, "amount": "4"})
	do(t, r, http.MethodPost, "/v1/transfers", map[string]string{"from_account_id": x, "to_account_id": y, "amount": "40"})

	w := do(t, r, http.MethodGet, "/v1/transactions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[map[string][]any](t, w)["transactions"], 2)

	w = do(t, r, http.MethodGet, "/v1/transactions?status=rejected", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[map[string][]any](t, w)["transactions"], 1)

	w = do(t, r, http.MethodGet, "/v1/transactions?limit=x", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(t, r, http.MethodGet, "/v1/transactions?status=pending", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodGet, "/v1/accounts/"+uuid.NewString()+"/transactions", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSetBalanceValidation(t *testing.T) {
	r := newTestRouter(t)
	x := provision(t, r, "")

	w := do(t, r, http.MethodPut, "/v1/accounts/"+x+"/balance", map[string]string{"balance": "-5"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(t, r, http.MethodPut, "/v1/accounts/"+uuid.NewString()+"/balance", map[string]string{"balance": "5"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = do(t, r, http.MethodGet, "/v1/accounts/not-a-uuid/balance", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
