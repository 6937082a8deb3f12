package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"household/internal/core"
	applog "household/internal/log"
	"household/internal/lock"
	"household/internal/metrics"
	"household/internal/services"
	"household/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "s3cret"

type apiFixture struct {
	srv     *Server
	repo    *storage.SQLiteRepository
	account core.Account
}

func newFixture(t *testing.T) *apiFixture {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "household.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	acct, err := repo.CreateAccount(context.Background(), core.Account{UserID: "u1", Name: "Checking", Type: "bank"})
	require.NoError(t, err)

	m := metrics.New()
	gen := services.NewRecurringGenerator(repo, nil, m, services.GeneratorConfig{})
	srv := NewServer(":0", Deps{
		Rules:        services.NewRuleService(repo),
		Transactions: services.NewTransactionService(repo, nil),
		Runner:       services.NewRecurringRunner(gen, lock.NewLocal(), m),
		Directory:    repo,
		Metrics:      m,
		Logger:       applog.New(applog.Config{Level: slog.LevelError, Output: io.Discard}),
		CronSecret:   testSecret,
	})
	return &apiFixture{srv: srv, repo: repo, account: acct}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.srv.Handler.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) ruleBody(start string) map[string]any {
	return map[string]any{
		"userId":      "u1",
		"type":        "expense",
		"categoryId":  "expense-housing",
		"accountId":   f.account.ID,
		"amount":      "1500000",
		"frequency":   "monthly",
		"startDate":   start,
		"description": "Rent",
	}
}

func (f *apiFixture) createRule(t *testing.T, start string) services.RuleView {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/recurring-rules", f.ruleBody(start), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var view services.RuleView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	return view
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

var withSecret = map[string]string{cronSecretHeader: testSecret}

func TestRunRequiresSecret(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/recurring/run", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/recurring/run", nil, map[string]string{cronSecretHeader: "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	f.srv.deps.CronSecret = ""
	rec = f.do(t, http.MethodPost, "/api/recurring/run", nil, map[string]string{cronSecretHeader: ""})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRunGeneratesDueOccurrences(t *testing.T) {
	f := newFixture(t)
	view := f.createRule(t, "2025-01-31")
	assert.Equal(t, "2025-01-31", view.NextDueDate.String())

	rec := f.do(t, http.MethodPost, "/api/recurring/run?today=2025-03-31", nil, withSecret)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[services.GenerateResult](t, rec)
	assert.Equal(t, 3, res.Generated)
	assert.Empty(t, res.Errors)

	// Same day again is a no-op.
	rec = f.do(t, http.MethodPost, "/api/recurring/run?today=2025-03-31", nil, withSecret)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decode[services.GenerateResult](t, rec).Generated)
	assert.Contains(t, rec.Body.String(), `"errors":[]`)

	rec = f.do(t, http.MethodGet, "/api/transactions?recurringRuleId="+view.ID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[core.TransactionPage](t, rec)
	require.Equal(t, 3, page.Total)
	var dates []string
	for _, tx := range page.Data {
		dates = append(dates, tx.Date.String())
	}
	assert.ElementsMatch(t, []string{"2025-01-31", "2025-02-28", "2025-03-31"}, dates)

	rec = f.do(t, http.MethodGet, "/api/recurring-rules/"+view.ID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[services.RuleView](t, rec)
	assert.Equal(t, 3, got.OccurrenceCount)
	assert.Equal(t, "2025-04-30", got.NextDueDate.String())
}

func TestRunReadsTodayFromBody(t *testing.T) {
	f := newFixture(t)
	f.createRule(t, "2025-01-15")

	rec := f.do(t, http.MethodPost, "/api/recurring/run", map[string]string{"today": "2025-01-15"}, withSecret)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, decode[services.GenerateResult](t, rec).Generated)

	rec = f.do(t, http.MethodPost, "/api/recurring/run?today=15-01-2025", nil, withSecret)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/recurring/run", `{"today":`, withSecret)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type stubRunner struct{ err error }

func (s stubRunner) Run(context.Context, core.Date) (services.GenerateResult, error) {
	return services.GenerateResult{}, s.err
}

func TestRunErrorStatuses(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{"in progress", services.ErrRunInProgress, http.StatusConflict, "already running"},
		{"systemic", errors.New("list active rules: disk I/O error"), http.StatusInternalServerError, "internal error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.srv.deps.Runner = stubRunner{err: tt.err}
			rec := f.do(t, http.MethodPost, "/api/recurring/run?today=2025-01-01", nil, withSecret)
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.body)
		})
	}
}

func TestCreateRuleValidation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		mutate func(map[string]any)
		status int
		detail string
	}{
		{"missing user", func(b map[string]any) { delete(b, "userId") }, http.StatusBadRequest, "userId"},
		{"bad frequency", func(b map[string]any) { b["frequency"] = "weekly" }, http.StatusBadRequest, "frequency"},
		{"zero max occurrences", func(b map[string]any) { b["maxOccurrences"] = 0 }, http.StatusBadRequest, "maxOccurrences"},
		{"negative amount", func(b map[string]any) { b["amount"] = "-5" }, http.StatusBadRequest, ""},
		{"bad date", func(b map[string]any) { b["startDate"] = "2025-02-30" }, http.StatusBadRequest, ""},
		{"end before start", func(b map[string]any) { b["endDate"] = "2024-12-31" }, http.StatusBadRequest, ""},
		{"unknown field", func(b map[string]any) { b["colour"] = "red" }, http.StatusBadRequest, ""},
		{"unknown account", func(b map[string]any) { b["accountId"] = "missing" }, http.StatusUnprocessableEntity, ""},
		{"unknown category", func(b map[string]any) { b["categoryId"] = "missing" }, http.StatusUnprocessableEntity, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := f.ruleBody("2025-01-31")
			tt.mutate(body)
			rec := f.do(t, http.MethodPost, "/api/recurring-rules", body, nil)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.detail != "" {
				eb := decode[errorBody](t, rec)
				assert.Contains(t, eb.Details, tt.detail)
			}
		})
	}
}

func TestRuleLifecycle(t *testing.T) {
	f := newFixture(t)
	view := f.createRule(t, "2025-01-31")
	assert.True(t, view.IsActive)
	assert.Equal(t, core.DefaultCurrency, view.Currency)

	rec := f.do(t, http.MethodGet, "/api/recurring-rules?type=expense&isActive=true", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]services.RuleView](t, rec), 1)

	rec = f.do(t, http.MethodGet, "/api/recurring-rules?type=income", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/recurring-rules?isActive=maybe", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPatch, "/api/recurring-rules/"+view.ID, map[string]any{}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPatch, "/api/recurring-rules/"+view.ID, map[string]any{"maxOccurrences": 0}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPatch, "/api/recurring-rules/"+view.ID, map[string]any{
		"description":    "Rent (new lease)",
		"maxOccurrences": 12,
		"notes":          "landlord",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[services.RuleView](t, rec)
	assert.Equal(t, "Rent (new lease)", updated.Description)
	require.NotNil(t, updated.MaxOccurrences)
	assert.Equal(t, 12, *updated.MaxOccurrences)

	rec = f.do(t, http.MethodPatch, "/api/recurring-rules/"+view.ID, `{"maxOccurrences":null,"notes":null}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cleared := decode[services.RuleView](t, rec)
	assert.Nil(t, cleared.MaxOccurrences)
	assert.Nil(t, cleared.Notes)
	assert.Equal(t, "Rent (new lease)", cleared.Description)

	rec = f.do(t, http.MethodPatch, "/api/recurring-rules/missing", map[string]any{"isActive": false}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/recurring-rules/"+view.ID, nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/recurring-rules/"+view.ID, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTransactionEndpoints(t *testing.T) {
	f := newFixture(t)

	body := map[string]any{
		"userId":     "u1",
		"accountId":  f.account.ID,
		"type":       "income",
		"categoryId": "income-salary",
		"date":       "2025-02-01",
		"amount":     3000,
		"notes":      "  February  ",
	}
	rec := f.do(t, http.MethodPost, "/api/transactions", body, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	tx := decode[core.Transaction](t, rec)
	assert.Nil(t, tx.RecurringRuleID)
	require.NotNil(t, tx.Notes)
	assert.Equal(t, "February", *tx.Notes)
	assert.Equal(t, "3000.00", tx.Amount.String())

	rec = f.do(t, http.MethodGet, "/api/transactions/"+tx.ID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, tx.ID, decode[core.Transaction](t, rec).ID)

	rec = f.do(t, http.MethodGet, "/api/transactions?type=income&dateFrom=2025-01-01&dateTo=2025-12-31", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[core.TransactionPage](t, rec)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, 1, page.Page)

	rec = f.do(t, http.MethodGet, "/api/transactions?dateFrom=2025-02-01&dateTo=2025-01-01", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/transactions?type=transfer", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body["categoryId"] = ""
	rec = f.do(t, http.MethodPost, "/api/transactions", body, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/transactions/"+tx.ID, nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/transactions/"+tx.ID, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func (f *apiFixture) createTransaction(t *testing.T, category, date, amount, notes string) core.Transaction {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/transactions", map[string]any{
		"userId":     "u1",
		"accountId":  f.account.ID,
		"type":       "expense",
		"categoryId": category,
		"date":       date,
		"amount":     amount,
		"notes":      notes,
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[core.Transaction](t, rec)
}

func TestUpdateTransactionEndpoint(t *testing.T) {
	f := newFixture(t)
	tx := f.createTransaction(t, "expense-food", "2025-03-01", "50", "groceries")

	rec := f.do(t, http.MethodPatch, "/api/transactions/"+tx.ID, map[string]any{
		"amount":     "1,250.50",
		"date":       "2025-03-10",
		"categoryId": "expense-transport",
		"notes":      nil,
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[core.Transaction](t, rec)
	assert.Equal(t, "1250.50", updated.Amount.String())
	assert.Equal(t, "2025-03-10", updated.Date.String())
	assert.Equal(t, "expense-transport", updated.CategoryID)
	assert.Equal(t, core.Expense, updated.Type)
	assert.Equal(t, "u1", updated.UserID)
	assert.Nil(t, updated.Notes)

	rec = f.do(t, http.MethodGet, "/api/transactions/"+tx.ID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1250.50", decode[core.Transaction](t, rec).Amount.String())

	rec = f.do(t, http.MethodPatch, "/api/transactions/"+tx.ID, map[string]any{"notes": "  bus  "}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, decode[core.Transaction](t, rec).Notes)

	cases := []struct {
		name string
		path string
		body any
		want int
	}{
		{"empty patch", "/api/transactions/" + tx.ID, map[string]any{}, http.StatusBadRequest},
		{"missing transaction", "/api/transactions/missing", map[string]any{"amount": 10}, http.StatusNotFound},
		{"unknown account", "/api/transactions/" + tx.ID, map[string]any{"accountId": "nope"}, http.StatusUnprocessableEntity},
		{"negative amount", "/api/transactions/" + tx.ID, map[string]any{"amount": "-5"}, http.StatusBadRequest},
		{"bad date", "/api/transactions/" + tx.ID, map[string]any{"date": "2025-02-30"}, http.StatusBadRequest},
		{"type is fixed", "/api/transactions/" + tx.ID, map[string]any{"type": "income"}, http.StatusBadRequest},
		{"blank user", "/api/transactions/" + tx.ID, map[string]any{"userId": ""}, http.StatusBadRequest},
		{"notes too long", "/api/transactions/" + tx.ID, map[string]any{"notes": strings.Repeat("n", 1001)}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPatch, tc.path, tc.body, nil)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
		})
	}

	rec = f.do(t, http.MethodGet, "/api/transactions/"+tx.ID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[core.Transaction](t, rec)
	assert.Equal(t, "expense-transport", got.CategoryID)
	require.NotNil(t, got.Notes)
	assert.Equal(t, "bus", *got.Notes)
}

func TestListTransactionsSearchAndSort(t *testing.T) {
	f := newFixture(t)
	food := f.createTransaction(t, "expense-food", "2025-01-05", "40", "Weekly groceries")
	train := f.createTransaction(t, "expense-transport", "2025-01-10", "120", "Train pass")
	rent := f.createTransaction(t, "expense-housing", "2025-01-01", "900", "50% deposit")

	list := func(query string) []string {
		t.Helper()
		rec := f.do(t, http.MethodGet, "/api/transactions"+query, nil, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var ids []string
		for _, tx := range decode[core.TransactionPage](t, rec).Data {
			ids = append(ids, tx.ID)
		}
		return ids
	}

	assert.Equal(t, []string{food.ID}, list("?search=groceries"))
	assert.Equal(t, []string{rent.ID}, list("?search=%25"))
	assert.Equal(t, []string{train.ID, food.ID, rent.ID}, list(""))
	assert.Equal(t, []string{food.ID, train.ID, rent.ID}, list("?sortBy=amount&sortOrder=asc"))
	assert.Equal(t, []string{rent.ID, train.ID, food.ID}, list("?sortBy=amount&sortOrder=DESC"))
	assert.Equal(t, []string{food.ID, rent.ID, train.ID}, list("?sortBy=category&sortOrder=asc"))

	rec := f.do(t, http.MethodGet, "/api/transactions?sortBy=notes", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.do(t, http.MethodGet, "/api/transactions?sortOrder=up", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAccountAndCategoryEndpoints(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/accounts", map[string]any{
		"userId": "u2", "name": "Savings", "type": "bank", "currency": "EUR",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	acct := decode[core.Account](t, rec)
	assert.True(t, acct.IsActive)
	assert.Equal(t, "EUR", acct.Currency)

	rec = f.do(t, http.MethodPost, "/api/accounts", map[string]any{"userId": "u2", "type": "bank"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/accounts?userId=u2", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]core.Account](t, rec), 1)

	rec = f.do(t, http.MethodPatch, "/api/accounts/"+acct.ID, map[string]any{"isActive": false}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[core.Account](t, rec).IsActive)

	rec = f.do(t, http.MethodGet, "/api/accounts/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPatch, "/api/accounts/missing", map[string]any{"name": "x"}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/categories?type=income", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cats := decode[[]core.Category](t, rec)
	require.NotEmpty(t, cats)
	for _, c := range cats {
		assert.Equal(t, core.Income, c.Type)
	}

	rec = f.do(t, http.MethodGet, "/api/categories?type=bogus", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthMetricsAndHardening(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = f.do(t, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "household_http_requests_total")

	rec = f.do(t, http.MethodGet, "/api/.env", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/transactions", nil, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	require.NoError(t, f.repo.Close())
	rec = f.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRateLimitPerClient(t *testing.T) {
	f := newFixture(t)
	f.srv = NewServer(":0", Deps{
		Directory:          f.repo,
		Transactions:       services.NewTransactionService(f.repo, nil),
		RateLimitPerMinute: 2,
		Logger:             applog.New(applog.Config{Level: slog.LevelError, Output: io.Discard}),
	})

	for i := 0; i < 2; i++ {
		rec := f.do(t, http.MethodGet, "/api/transactions", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := f.do(t, http.MethodGet, "/api/transactions", nil, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		name   string
		remote string
		xff    string
		want   string
	}{
		{"direct", "203.0.113.9:5000", "", "203.0.113.9"},
		{"untrusted peer ignores header", "203.0.113.9:5000", "198.51.100.1", "203.0.113.9"},
		{"trusted proxy honours header", "10.0.0.2:5000", "198.51.100.1, 10.0.0.2", "198.51.100.1"},
		{"trusted proxy bad header", "10.0.0.2:5000", "garbage", "10.0.0.2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			assert.Equal(t, tt.want, extractClientIP(r))
		})
	}
}

func TestSecretMatches(t *testing.T) {
	assert.True(t, secretMatches("abc", "abc"))
	assert.False(t, secretMatches("abc", "abd"))
	assert.False(t, secretMatches("abc", ""))
	assert.False(t, secretMatches("", ""))
}
