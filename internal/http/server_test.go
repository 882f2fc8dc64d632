package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"spendtracker/internal/auth"
	"spendtracker/internal/core"
	"spendtracker/internal/ledger"
	"spendtracker/internal/services"
	"spendtracker/internal/storage/memory"
)

type apiResponse struct {
	Success   bool            `json:"success"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
	ErrorKind string          `json:"error_kind"`
}

type testAPI struct {
	t     *testing.T
	srv   *Server
	token string
}

func newTestAPI(t *testing.T, ready func(context.Context) error) *testAPI {
	t.Helper()
	store := memory.New()
	tokens := auth.NewTokenIssuer("test-secret-0123456789", time.Hour)
	clock := func() time.Time { return time.Date(2024, 1, 20, 10, 0, 0, 0, time.UTC) }

	srv := NewServer(":0", Deps{
		Ledger:             services.NewLedgerService(store, ledger.NewEngine(ledger.PolicyIncremental), ledger.NewLocker(), services.WithClock(clock)),
		Categories:         services.NewCategoryService(store, 0),
		Auth:               auth.NewService(store, tokens, bcrypt.MinCost),
		Tokens:             tokens,
		Ready:              ready,
		RateLimitPerMinute: 1000,
	})
	srv.now = func() time.Time { return time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC) }
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testAPI{t: t, srv: srv}
}

func (a *testAPI) do(method, path string, body any) (*httptest.ResponseRecorder, apiResponse) {
	a.t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(a.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}
	rec := httptest.NewRecorder()
	a.srv.Handler.ServeHTTP(rec, req)

	var resp apiResponse
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	}
	return rec, resp
}

func (a *testAPI) register(username string) {
	a.t.Helper()
	rec, resp := a.do(http.MethodPost, "/api/auth/register", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": "correct horse",
	})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	var sess struct {
		Token string    `json:"token"`
		User  core.User `json:"user"`
	}
	require.NoError(a.t, json.Unmarshal(resp.Data, &sess))
	a.token = sess.Token
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v), string(raw))
	return v
}

func TestHealthEndpoints(t *testing.T) {
	api := newTestAPI(t, func(context.Context) error { return nil })

	rec, resp := api.do(http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, string(resp.Data))

	for _, path := range []string{"/healthz", "/readyz"} {
		rec, _ := api.do(http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	down := newTestAPI(t, func(context.Context) error { return errors.New("db gone") })
	rec, _ = down.do(http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAuthFlow(t *testing.T) {
	api := newTestAPI(t, nil)

	rec, resp := api.do(http.MethodGet, "/api/transactions", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "auth_error", resp.ErrorKind)
	assert.False(t, resp.Success)

	api.register("ann")

	rec, resp = api.do(http.MethodPost, "/api/auth/register", map[string]string{
		"username": "ann", "email": "other@example.com", "password": "correct horse",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict_error", resp.ErrorKind)
	assert.Equal(t, "username or email already exists", resp.Message)

	rec, _ = api.do(http.MethodPost, "/api/auth/login", map[string]string{"username": "ann", "password": "correct horse"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, resp = api.do(http.MethodPost, "/api/auth/login", map[string]string{"username": "ann", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid credentials", resp.Message)

	api.token = "garbage"
	rec, _ = api.do(http.MethodGet, "/api/categories", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLedgerScenario(t *testing.T) {
	api := newTestAPI(t, nil)
	api.register("ann")

	add := func(date string, credited, debited any) int64 {
		t.Helper()
		rec, resp := api.do(http.MethodPost, "/api/transactions", map[string]any{
			"category_id":      2,
			"transaction_date": date,
			"description":      "entry " + date,
			"credited":         credited,
			"debited":          debited,
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		return decode[services.AddResult](t, resp.Data).ID
	}

	add("2024-01-01", 100, 0)
	add("2024-01-05", "0", "30.00")
	jan3 := add("2024-01-03", "20", 0)

	rec, resp := api.do(http.MethodGet, "/api/transactions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[core.TransactionPage](t, resp.Data)
	require.Len(t, page.Transactions, 3)
	var balances []string
	for _, tx := range page.Transactions {
		balances = append(balances, tx.Balance.String())
	}
	assert.Equal(t, []string{"90.00", "120.00", "100.00"}, balances, "newest first")
	assert.Equal(t, core.Pagination{Page: 1, Limit: 50, Total: 3, Pages: 1}, page.Pagination)
	assert.Equal(t, "Food & Dining", page.Transactions[0].CategoryName)

	rec, resp = api.do(http.MethodGet, "/api/transactions/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"total_credited":"120.00","total_debited":"30.00","net":"90.00","total_transactions":3,"current_balance":"90.00"}`, string(resp.Data))

	rec, _ = api.do(http.MethodPut, fmt.Sprintf("/api/transactions/%d", jan3), map[string]any{
		"category_id": 2, "transaction_date": "2024-01-03", "description": "bigger", "credited": "50",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, resp = api.do(http.MethodGet, "/api/transactions/summary?to_date=2024-01-03", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "150.00", decode[core.SummaryView](t, resp.Data).CurrentBalance.String())

	rec, _ = api.do(http.MethodDelete, fmt.Sprintf("/api/transactions/%d", jan3), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec, resp = api.do(http.MethodDelete, fmt.Sprintf("/api/transactions/%d", jan3), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found_error", resp.ErrorKind)

	rec, resp = api.do(http.MethodGet, "/api/transactions?limit=1&page=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page = decode[core.TransactionPage](t, resp.Data)
	require.Len(t, page.Transactions, 1)
	assert.Equal(t, "100.00", page.Transactions[0].Balance.String())
	assert.Equal(t, 2, page.Pagination.Pages)

	rec, resp = api.do(http.MethodPost, "/api/admin/recompute", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"rows_updated":0}`, string(resp.Data))
}

func TestTransactionValidation(t *testing.T) {
	api := newTestAPI(t, nil)
	api.register("ann")

	tests := []struct {
		name string
		body any
		want string
	}{
		{"empty body", "", "request body is required"},
		{"malformed", "{", "invalid JSON body"},
		{"bad amount", map[string]any{"category_id": 1, "transaction_date": "2024-01-01", "description": "x", "credited": "abc"}, "invalid amount"},
		{"too many decimals", map[string]any{"category_id": 1, "transaction_date": "2024-01-01", "description": "x", "credited": "1.005"}, "more than 2 decimal places"},
		{"both sides", map[string]any{"category_id": 1, "transaction_date": "2024-01-01", "description": "x", "credited": 1, "debited": 1}, "only one of credited or debited"},
		{"missing description", map[string]any{"category_id": 1, "transaction_date": "2024-01-01", "credited": 1}, "description is required"},
		{"bad date", map[string]any{"category_id": 1, "transaction_date": "01/02/2024", "description": "x", "credited": 1}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, resp := api.do(http.MethodPost, "/api/transactions", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Equal(t, "validation_error", resp.ErrorKind)
			assert.Contains(t, resp.Message, tt.want)
		})
	}

	for _, path := range []string{
		"/api/transactions?page=0",
		"/api/transactions?category_id=food",
		"/api/transactions/summary?from_date=2024-02-01&to_date=2024-01-01",
		"/api/export/csv?to_date=yesterday",
	} {
		rec, _ := api.do(http.MethodGet, path, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}

	rec, _ := api.do(http.MethodPut, "/api/transactions/abc", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = api.do(http.MethodPut, "/api/transactions/999", map[string]any{
		"category_id": 1, "transaction_date": "2024-01-01", "description": "x", "credited": 1,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCategoriesAPI(t *testing.T) {
	api := newTestAPI(t, nil)
	api.register("ann")

	rec, resp := api.do(http.MethodGet, "/api/categories", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	globals := decode[[]core.Category](t, resp.Data)
	require.NotEmpty(t, globals)

	rec, resp = api.do(http.MethodPost, "/api/categories", map[string]string{"name": "Travel", "color": "#336699"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	travel := decode[core.Category](t, resp.Data)
	assert.Equal(t, core.DefaultCategoryIcon, travel.Icon)

	rec, _ = api.do(http.MethodPost, "/api/categories", map[string]string{"name": "Travel"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = api.do(http.MethodDelete, fmt.Sprintf("/api/categories/%d", globals[0].ID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "global categories are not deletable")

	rec, _ = api.do(http.MethodDelete, fmt.Sprintf("/api/categories/%d", travel.ID), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, resp = api.do(http.MethodGet, "/api/categories", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]core.Category](t, resp.Data), len(globals))
}

func TestViewsAndExport(t *testing.T) {
	api := newTestAPI(t, nil)
	api.register("ann")

	for _, body := range []map[string]any{
		{"category_id": 1, "transaction_date": "2023-12-15", "description": "salary", "credited": "1000", "notes": "december"},
		{"category_id": 2, "transaction_date": "2024-01-02", "description": "groceries, weekly", "debited": "45.50"},
		{"category_id": 3, "transaction_date": "2024-01-10", "description": "bus", "debited": "2"},
	} {
		rec, _ := api.do(http.MethodPost, "/api/transactions", body)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec, resp := api.do(http.MethodGet, "/api/analytics/category-spending?from_date=2024-01-01&category_id=all", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	spending := decode[[]core.CategorySpending](t, resp.Data)
	require.Len(t, spending, 2)
	assert.Equal(t, "45.50", spending[0].TotalSpent.String())

	rec, resp = api.do(http.MethodGet, "/api/analytics/monthly-trends", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	trend := decode[[]core.MonthTrend](t, resp.Data)
	require.Len(t, trend, 2)
	assert.Equal(t, "2024-01", trend[0].Month)
	assert.Equal(t, "-47.50", trend[0].Net.String())

	rec, resp = api.do(http.MethodGet, "/api/dashboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	dash := decode[core.Dashboard](t, resp.Data)
	assert.Equal(t, "952.50", dash.Summary.CurrentBalance.String())
	assert.Len(t, dash.Categories, 3)
	assert.Len(t, dash.Trend, 2)

	rec, resp = api.do(http.MethodGet, "/api/export/csv", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	export := decode[csvExport](t, resp.Data)
	assert.Equal(t, "transactions_20240203_040506.csv", export.Filename)
	lines := strings.Split(strings.TrimSpace(export.CSVData), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "Date,Category,Description,Credited,Debited,Balance,Notes", lines[0])
	assert.Equal(t, "2024-01-10,Transportation,bus,0.00,2.00,952.50,", lines[1])
	assert.Equal(t, `2024-01-02,Food & Dining,"groceries, weekly",0.00,45.50,954.50,`, lines[2])
}

func TestRenderCSVUncategorized(t *testing.T) {
	out, err := RenderCSV([]core.Transaction{{
		Date:        core.NewDate(2024, 3, 1),
		Description: "misc",
		Credited:    core.MustParseMoney("5"),
		Balance:     core.MustParseMoney("5"),
	}})
	require.NoError(t, err)
	assert.Contains(t, out, "2024-03-01,Uncategorized,misc,5.00,0.00,5.00,")
}

func TestSecurityMiddlewareWired(t *testing.T) {
	api := newTestAPI(t, nil)
	rec, _ := api.do(http.MethodGet, "/api/health", nil)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec, _ = api.do(http.MethodGet, "/.git/config", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateLimitOnMutations(t *testing.T) {
	api := newTestAPI(t, nil)
	_ = api.srv.Shutdown(context.Background())
	limited := NewServer(":0", Deps{
		Auth:               api.srv.auth,
		Tokens:             api.srv.tokens,
		RateLimitPerMinute: 2,
	})
	t.Cleanup(func() { _ = limited.Shutdown(context.Background()) })
	api.srv = limited

	body := map[string]string{"username": "x", "password": "y"}
	var last int
	for i := 0; i < 3; i++ {
		rec, _ := api.do(http.MethodPost, "/api/auth/login", body)
		last = rec.Code
	}
	assert.Equal(t, http.StatusTooManyRequests, last)

	rec, _ := api.do(http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "reads are not limited")
}
