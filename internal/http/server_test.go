package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"ledger/internal/accounts"
	"ledger/internal/core"
	"ledger/internal/document/memory"
	"ledger/internal/ledger"
	"ledger/internal/log"
	"ledger/internal/repository"
	"ledger/internal/taxonomy"
)

const testSecret = "test-secret-0123456789"

type apiResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T, rateLimit int) *Server {
	t.Helper()
	ctx := context.Background()

	store := memory.New()
	users := repository.NewUsers(store)
	acc := accounts.NewManager(users, bcrypt.MinCost, log.Discard())
	_, err := acc.EnsureAdmin(ctx)
	require.NoError(t, err)

	tax := taxonomy.NewManager(repository.NewTaxonomies(store), log.Discard())
	_, err = tax.Seed(ctx)
	require.NoError(t, err)

	srv := NewServer(":0", Deps{
		Accounts:  acc,
		Taxonomy:  tax,
		Ledger:    ledger.New(users, ledger.WithLogger(log.Discard()), ledger.WithStatsCache(16, time.Minute)),
		Tokens:    NewTokenIssuer(testSecret, time.Hour),
		Logger:    log.Discard(),
		RateLimit: rateLimit,
	})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func do(t *testing.T, srv *Server, method, path, token string, body any) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)

	var resp apiResponse
	if rr.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp), rr.Body.String())
	}
	return rr, resp
}

func login(t *testing.T, srv *Server, username, password string) string {
	t.Helper()
	rr, resp := do(t, srv, http.MethodPost, "/api/login", "", credentialsRequest{Username: username, Password: password})
	require.Equal(t, http.StatusOK, rr.Code, resp.Message)
	var lr loginResponse
	require.NoError(t, json.Unmarshal(resp.Data, &lr))
	return lr.Token
}

func registerAndLogin(t *testing.T, srv *Server, username, password string) string {
	t.Helper()
	rr, resp := do(t, srv, http.MethodPost, "/api/register", "", credentialsRequest{Username: username, Password: password})
	require.Equal(t, http.StatusCreated, rr.Code, resp.Message)
	return login(t, srv, username, password)
}

func addRecord(t *testing.T, srv *Server, token string, amount, category, date, remark string) core.Record {
	t.Helper()
	body := map[string]any{"amount": json.Number(amount), "type": category, "date": date, "remark": remark}
	rr, resp := do(t, srv, http.MethodPost, "/api/records", token, body)
	require.Equal(t, http.StatusCreated, rr.Code, resp.Message)
	var rec core.Record
	require.NoError(t, json.Unmarshal(resp.Data, &rec))
	return rec
}

func TestHealthAndHeaders(t *testing.T) {
	srv := newTestServer(t, 0)

	rr, _ := do(t, srv, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))

	rr, _ = do(t, srv, http.MethodGet, "/.git/config", "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRegisterLoginAndFirstRecord(t *testing.T) {
	srv := newTestServer(t, 0)

	token := registerAndLogin(t, srv, "alice", "pw1")

	rr, resp := do(t, srv, http.MethodPost, "/api/register", "", credentialsRequest{Username: "alice", Password: "pw2"})
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.False(t, resp.Success)

	rr, resp = do(t, srv, http.MethodPost, "/api/login", "", credentialsRequest{Username: "alice", Password: "pw2"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.False(t, resp.Success)

	rr, _ = do(t, srv, http.MethodPost, "/api/login", "", credentialsRequest{Username: "nobody", Password: "x"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rec := addRecord(t, srv, token, "-20", "交通", "2024-01-01", "bus")
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, core.MustMoney("-20"), rec.Amount)

	rr, resp = do(t, srv, http.MethodGet, "/api/stats", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var summary core.Summary
	require.NoError(t, json.Unmarshal(resp.Data, &summary))
	assert.Equal(t, core.MustMoney("-20"), summary.Total)
	assert.Equal(t, map[string]int{"交通": 1}, summary.Counts)
}

func TestRegisterRejectsEmptyCredentials(t *testing.T) {
	srv := newTestServer(t, 0)

	rr, resp := do(t, srv, http.MethodPost, "/api/register", "", credentialsRequest{Username: "  ", Password: "x"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, resp.Message, "required")
}

func TestRecordsByIndexAndID(t *testing.T) {
	srv := newTestServer(t, 0)
	token := registerAndLogin(t, srv, "alice", "pw1")

	first := addRecord(t, srv, token, "-12.5", "餐饮", "2024-02-01", "lunch")
	second := addRecord(t, srv, token, "3000", "工资", "2024-02-05", "")

	rr, resp := do(t, srv, http.MethodPatch, "/api/records/0", token, map[string]string{"remark": "dinner"})
	require.Equal(t, http.StatusOK, rr.Code, resp.Message)
	var updated recordView
	require.NoError(t, json.Unmarshal(resp.Data, &updated))
	assert.Equal(t, "dinner", updated.Remark)
	assert.Equal(t, first.Amount, updated.Amount)
	assert.Equal(t, "餐饮", updated.Category)

	rr, _ = do(t, srv, http.MethodPatch, "/api/records/5", token, map[string]string{"remark": "x"})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr, _ = do(t, srv, http.MethodDelete, "/api/records/abc", token, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr, _ = do(t, srv, http.MethodDelete, "/api/records/0", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr, resp = do(t, srv, http.MethodGet, "/api/records", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var views []recordView
	require.NoError(t, json.Unmarshal(resp.Data, &views))
	require.Len(t, views, 1)
	assert.Equal(t, 0, views[0].Index)
	assert.Equal(t, second.ID, views[0].ID)

	rr, resp = do(t, srv, http.MethodPatch, "/api/records/id/"+second.ID, token, map[string]any{"amount": 3100})
	require.Equal(t, http.StatusOK, rr.Code, resp.Message)

	rr, resp = do(t, srv, http.MethodGet, "/api/records/id/"+second.ID, token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var got core.Record
	require.NoError(t, json.Unmarshal(resp.Data, &got))
	assert.Equal(t, core.MustMoney("3100"), got.Amount)

	rr, _ = do(t, srv, http.MethodDelete, "/api/records/id/"+second.ID, token, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	rr, _ = do(t, srv, http.MethodGet, "/api/records/id/"+second.ID, token, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAddRecordValidation(t *testing.T) {
	srv := newTestServer(t, 0)
	token := registerAndLogin(t, srv, "alice", "pw1")

	tests := []struct {
		name string
		body any
	}{
		{"missing amount", map[string]string{"type": "餐饮"}},
		{"missing category", map[string]any{"amount": -5}},
		{"bad amount", map[string]any{"amount": "abc", "type": "餐饮"}},
		{"unknown field", map[string]any{"amount": -5, "type": "餐饮", "color": "red"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr, resp := do(t, srv, http.MethodPost, "/api/records", token, tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.False(t, resp.Success)
		})
	}
}

func TestBudgetEndpoints(t *testing.T) {
	srv := newTestServer(t, 0)
	token := registerAndLogin(t, srv, "alice", "pw1")

	rr, resp := do(t, srv, http.MethodPut, "/api/budget", token, map[string]any{"budget": 1000})
	require.Equal(t, http.StatusOK, rr.Code, resp.Message)

	addRecord(t, srv, token, "-50", "购物", "", "")
	addRecord(t, srv, token, "-30", "交通", "", "")

	rr, resp = do(t, srv, http.MethodGet, "/api/budget", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var b core.Budget
	require.NoError(t, json.Unmarshal(resp.Data, &b))
	assert.Equal(t, core.MustMoney("1000"), b.Limit)
	assert.Equal(t, core.MustMoney("920"), b.Remaining)
	assert.Equal(t, core.MustMoney("80"), b.Spent)

	rr, _ = do(t, srv, http.MethodPut, "/api/budget", token, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAuthorization(t *testing.T) {
	srv := newTestServer(t, 0)
	alice := registerAndLogin(t, srv, "alice", "pw1")
	admin := login(t, srv, accounts.AdminUsername, accounts.AdminPassword)

	rr, _ := do(t, srv, http.MethodGet, "/api/records", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr, _ = do(t, srv, http.MethodGet, "/api/records", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	travel := "/api/categories/expense/" + url.PathEscape("旅行")
	rr, _ = do(t, srv, http.MethodPost, travel, alice, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr, _ = do(t, srv, http.MethodPost, travel, admin, nil)
	assert.Equal(t, http.StatusCreated, rr.Code)
	rr, _ = do(t, srv, http.MethodPost, travel, admin, nil)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr, resp := do(t, srv, http.MethodGet, "/api/categories", alice, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var cats map[core.CategoryKind][]string
	require.NoError(t, json.Unmarshal(resp.Data, &cats))
	assert.Contains(t, cats[core.Expense], "旅行")
	assert.Contains(t, cats[core.Income], "工资")

	rr, _ = do(t, srv, http.MethodDelete, travel, admin, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	rr, _ = do(t, srv, http.MethodDelete, travel, admin, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr, _ = do(t, srv, http.MethodPost, "/api/categories/savings/x", admin, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestChangePassword(t *testing.T) {
	srv := newTestServer(t, 0)
	registerAndLogin(t, srv, "alice", "pw1")
	admin := login(t, srv, accounts.AdminUsername, accounts.AdminPassword)

	rr, resp := do(t, srv, http.MethodPut, "/api/users/alice/password", admin, passwordRequest{Password: "new-pw"})
	require.Equal(t, http.StatusOK, rr.Code, resp.Message)

	rr, _ = do(t, srv, http.MethodPost, "/api/login", "", credentialsRequest{Username: "alice", Password: "pw1"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	login(t, srv, "alice", "new-pw")

	rr, _ = do(t, srv, http.MethodPut, "/api/users/ghost/password", admin, passwordRequest{Password: "x"})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRateLimitAppliesToWrites(t *testing.T) {
	srv := newTestServer(t, 1)

	rr, _ := do(t, srv, http.MethodPost, "/api/register", "", credentialsRequest{Username: "alice", Password: "pw1"})
	require.Equal(t, http.StatusCreated, rr.Code)

	rr, resp := do(t, srv, http.MethodPost, "/api/login", "", credentialsRequest{Username: "alice", Password: "pw1"})
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.False(t, resp.Success)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))

	rr, _ = do(t, srv, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestTokenIssuer(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, time.Hour)
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	issuer.now = func() time.Time { return now }

	token, exp, err := issuer.Issue(core.Principal{Username: "alice", IsAdmin: true})
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), exp)

	p, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, core.Principal{Username: "alice", IsAdmin: true}, p)

	other := NewTokenIssuer("another-secret-0123456789", time.Hour)
	other.now = issuer.now
	_, err = other.Verify(token)
	assert.True(t, errors.Is(err, core.ErrInvalidCredential))

	now = now.Add(2 * time.Hour)
	_, err = issuer.Verify(token)
	assert.True(t, errors.Is(err, core.ErrInvalidCredential))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{core.ErrNotFound, http.StatusNotFound},
		{core.ErrOutOfRange, http.StatusNotFound},
		{core.ErrDuplicate, http.StatusConflict},
		{core.ErrInvalidCredential, http.StatusUnauthorized},
		{core.ErrInvalidAmount, http.StatusBadRequest},
		{core.ErrUnknownCategory, http.StatusBadRequest},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestMetricsAdminOnly(t *testing.T) {
	srv := newTestServer(t, 100)
	alice := registerAndLogin(t, srv, "alice", "pw1")
	admin := login(t, srv, accounts.AdminUsername, accounts.AdminPassword)

	rr, _ := do(t, srv, http.MethodGet, "/api/metrics", alice, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	do(t, srv, http.MethodGet, "/api/stats", alice, nil)

	rr, resp := do(t, srv, http.MethodGet, "/api/metrics", admin, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var m metricsResponse
	require.NoError(t, json.Unmarshal(resp.Data, &m))
	assert.Positive(t, m.Requests.TotalRequests)
	require.NotNil(t, m.RateLimit)
	assert.Equal(t, 1, m.StatsCache)
}
