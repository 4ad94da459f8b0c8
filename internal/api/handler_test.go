package api

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

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talk2data/internal/domain"
	"talk2data/internal/engine"
	"talk2data/internal/service/assistant"
	"talk2data/internal/sqlguard"
	"talk2data/internal/storage"
)

const testSchema = `{"schema":{"tables":[
  {"name":"fact_orders","role":"fact","columns":{"order_id":"id","customer_key":"customer","amount":"total"},
   "foreign_keys":{"customer_key":"dim_customer.customer_key"}},
  {"name":"dim_customer","role":"dimension","columns":{"customer_key":"key","city":"city"}}
]}}`

// === Mocks ===

type mockAssistant struct {
	askFn     func(ctx context.Context, principal string, req assistant.AskRequest) (*assistant.Answer, error)
	executeFn func(ctx context.Context, principal string, req assistant.AskRequest, files []engine.FileItem, opts engine.Options) (*assistant.ExecuteResult, error)
}

func (m *mockAssistant) Ask(ctx context.Context, principal string, req assistant.AskRequest) (*assistant.Answer, error) {
	if m.askFn == nil {
		panic("mockAssistant.Ask called but not configured")
	}
	return m.askFn(ctx, principal, req)
}

func (m *mockAssistant) Execute(ctx context.Context, principal string, req assistant.AskRequest, files []engine.FileItem, opts engine.Options) (*assistant.ExecuteResult, error) {
	if m.executeFn == nil {
		panic("mockAssistant.Execute called but not configured")
	}
	return m.executeFn(ctx, principal, req, files, opts)
}

type mockHistory struct {
	listFn func(ctx context.Context, filter domain.HistoryFilter) ([]domain.HistoryEntry, int64, error)
}

func (m *mockHistory) Record(_ context.Context, _ *domain.HistoryEntry) error {
	panic("not implemented")
}

func (m *mockHistory) List(ctx context.Context, filter domain.HistoryFilter) ([]domain.HistoryEntry, int64, error) {
	if m.listFn == nil {
		panic("mockHistory.List called but not configured")
	}
	return m.listFn(ctx, filter)
}

// === Helpers ===

type testEnv struct {
	srv     *httptest.Server
	asst    *mockAssistant
	history *mockHistory
	schemas *storage.Cache
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	dir, err := storage.NewDirStore(t.TempDir())
	require.NoError(t, err)

	env := &testEnv{
		asst:    &mockAssistant{},
		history: &mockHistory{},
		schemas: storage.NewCache(dir, nil),
	}
	opts.Version = "test"
	h := NewHandler(env.asst, env.schemas, env.history, sqlguard.New(), opts)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := domain.WithPrincipal(req.Context(), domain.ContextPrincipal{Name: "alice", Authenticated: true})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Mount("/v1", h.Routes())
	env.srv = httptest.NewServer(r)
	t.Cleanup(env.srv.Close)
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), method, e.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func decodeError(t *testing.T, raw []byte) ErrorBody {
	t.Helper()
	var body ErrorBody
	require.NoError(t, json.Unmarshal(raw, &body))
	return body
}

// === Tests ===

func TestGenerateSQL(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		askErr     error
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "answered",
			body:       `{"question":"total sales","schema_name":"shop"}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "unknown field",
			body:       `{"question":"q","schema_name":"shop","bogus":1}`,
			wantStatus: http.StatusBadRequest,
			wantMsg:    "invalid request body",
		},
		{
			name:       "empty body",
			body:       ``,
			wantStatus: http.StatusBadRequest,
			wantMsg:    "request body is required",
		},
		{
			name:       "schema missing",
			body:       `{"question":"q","schema_name":"nope"}`,
			askErr:     domain.ErrNotFound("schema %q not found", "nope"),
			wantStatus: http.StatusNotFound,
			wantMsg:    `schema "nope" not found`,
		},
		{
			name:       "no relevant tables",
			body:       `{"question":"weather","schema_name":"shop"}`,
			askErr:     &domain.NoRelevantTablesError{Available: []string{"fact_orders"}},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "internal error is hidden",
			body:       `{"question":"q","schema_name":"shop"}`,
			askErr:     errors.New("llm exploded with secret details"),
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "internal server error",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, Options{})
			env.asst.askFn = func(_ context.Context, principal string, req assistant.AskRequest) (*assistant.Answer, error) {
				assert.Equal(t, "alice", principal)
				if tc.askErr != nil {
					return nil, tc.askErr
				}
				return &assistant.Answer{SQL: "SELECT SUM(amount) FROM fact_orders", Question: req.Question, ValidationPassed: true, Attempts: 1}, nil
			}

			resp, raw := env.do(t, http.MethodPost, "/v1/generate-sql", tc.body)
			require.Equal(t, tc.wantStatus, resp.StatusCode, string(raw))
			if tc.wantStatus == http.StatusOK {
				var ans assistant.Answer
				require.NoError(t, json.Unmarshal(raw, &ans))
				assert.Equal(t, "total sales", ans.Question)
				assert.True(t, ans.ValidationPassed)
				return
			}
			body := decodeError(t, raw)
			assert.Equal(t, tc.wantStatus, body.Code)
			if tc.wantMsg != "" {
				assert.Contains(t, body.Message, tc.wantMsg)
			}
		})
	}
}

func TestGenerateSQL_NoRelevantTablesDetails(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.asst.askFn = func(context.Context, string, assistant.AskRequest) (*assistant.Answer, error) {
		return nil, &domain.NoRelevantTablesError{Available: []string{"fact_orders", "dim_customer"}}
	}
	_, raw := env.do(t, http.MethodPost, "/v1/generate-sql", `{"question":"q","schema_name":"shop"}`)
	body := decodeError(t, raw)
	assert.Equal(t, []interface{}{"fact_orders", "dim_customer"}, body.Details["available_tables"])
}

func TestValidateSQL(t *testing.T) {
	env := newTestEnv(t, Options{})

	resp, raw := env.do(t, http.MethodPost, "/v1/validate-sql", `{"sql":"SELECT COUNT(*) FROM t"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ok sqlguard.Result
	require.NoError(t, json.Unmarshal(raw, &ok))
	assert.True(t, ok.OK)

	_, raw = env.do(t, http.MethodPost, "/v1/validate-sql", `{"sql":"DROP TABLE t"}`)
	var bad sqlguard.Result
	require.NoError(t, json.Unmarshal(raw, &bad))
	assert.False(t, bad.OK)
	assert.Equal(t, "DROP", bad.InvalidToken)
}

func TestSchemaLifecycle(t *testing.T) {
	env := newTestEnv(t, Options{})

	resp, raw := env.do(t, http.MethodGet, "/v1/schemas", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"schemas":[]}`, string(raw))

	resp, raw = env.do(t, http.MethodPut, "/v1/schemas/shop", testSchema)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	var put SchemaPutResponse
	require.NoError(t, json.Unmarshal(raw, &put))
	assert.Equal(t, "shop", put.Name)
	assert.ElementsMatch(t, []string{"fact_orders", "dim_customer"}, put.Tables)

	resp, raw = env.do(t, http.MethodGet, "/v1/schemas/shop", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, testSchema, string(raw))

	resp, raw = env.do(t, http.MethodGet, "/v1/schemas/shop/summary", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sum SchemaSummaryResponse
	require.NoError(t, json.Unmarshal(raw, &sum))
	assert.False(t, sum.Flat)
	assert.Contains(t, sum.Summary, "fact_orders")

	resp, _ = env.do(t, http.MethodDelete, "/v1/schemas/shop", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/v1/schemas/shop", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = env.do(t, http.MethodDelete, "/v1/schemas/shop", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPutSchema_Rejected(t *testing.T) {
	tests := []struct {
		name string
		path string
		body string
	}{
		{"no tables", "/v1/schemas/shop", `{"schema":{"tables":[]}}`},
		{"not a document", "/v1/schemas/shop", `[1, 2`},
		{"empty body", "/v1/schemas/shop", ``},
		{"bad name", "/v1/schemas/..secret", testSchema},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, Options{})
			resp, raw := env.do(t, http.MethodPut, tc.path, tc.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode, string(raw))
		})
	}
}

func TestJoinPath(t *testing.T) {
	env := newTestEnv(t, Options{})
	require.NoError(t, env.schemas.Put(context.Background(), "alice", "shop", []byte(testSchema)))

	resp, raw := env.do(t, http.MethodPost, "/v1/join-path", `{"schema_name":"shop","tables":["dim_customer","fact_orders"]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	var jp JoinPathResponse
	require.NoError(t, json.Unmarshal(raw, &jp))
	assert.Equal(t, "fact_orders", jp.Tables[0])
	assert.Contains(t, jp.JoinSQL, "dim_customer")
	assert.True(t, strings.HasPrefix(jp.FromClause, "FROM fact_orders"), jp.FromClause)

	resp, raw = env.do(t, http.MethodPost, "/v1/join-path", `{"schema_name":"shop","tables":["fact_orders","dim_region"]}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decodeError(t, raw)
	assert.Equal(t, []interface{}{"dim_region"}, body.Details["missing_tables"])

	resp, _ = env.do(t, http.MethodPost, "/v1/join-path", `{"schema_name":"shop"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestQuery(t *testing.T) {
	answer := &assistant.Answer{SQL: "SELECT SUM(amount) FROM orders", ValidationPassed: true}

	tests := []struct {
		name       string
		allowLocal bool
		body       string
		execErr    error
		result     *assistant.ExecuteResult
		wantStatus int
		wantCalled bool
	}{
		{
			name:       "local path refused",
			body:       `{"question":"q","schema_name":"shop","files":[{"source":"/etc/passwd"}]}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "no files",
			body:       `{"question":"q","schema_name":"shop","files":[]}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "local path allowed when enabled",
			allowLocal: true,
			body:       `{"question":"q","schema_name":"shop","files":[{"source":"/data/orders.csv"}]}`,
			result:     &assistant.ExecuteResult{Answer: answer, Result: &engine.QueryResult{Columns: []string{"sum"}, Rows: [][]any{{42}}, RowCount: 1}},
			wantStatus: http.StatusOK,
			wantCalled: true,
		},
		{
			name:       "remote source",
			body:       `{"question":"q","schema_name":"shop","files":[{"source":"s3://bucket/orders.parquet"}]}`,
			result:     &assistant.ExecuteResult{Answer: answer, Result: &engine.QueryResult{Columns: []string{"sum"}, Rows: [][]any{}}},
			wantStatus: http.StatusOK,
			wantCalled: true,
		},
		{
			name:       "execution failure keeps the answer",
			body:       `{"question":"q","schema_name":"shop","files":[{"source":"https://example.com/orders.csv"}]}`,
			result:     &assistant.ExecuteResult{Answer: answer},
			execErr:    errors.New("execute query: binder error"),
			wantStatus: http.StatusUnprocessableEntity,
			wantCalled: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, Options{AllowLocalFiles: tc.allowLocal, MaxRows: 10})
			called := false
			env.asst.executeFn = func(_ context.Context, _ string, _ assistant.AskRequest, files []engine.FileItem, opts engine.Options) (*assistant.ExecuteResult, error) {
				called = true
				assert.Len(t, files, 1)
				assert.Equal(t, 10, opts.MaxRows)
				return tc.result, tc.execErr
			}

			resp, raw := env.do(t, http.MethodPost, "/v1/query", tc.body)
			assert.Equal(t, tc.wantStatus, resp.StatusCode, string(raw))
			assert.Equal(t, tc.wantCalled, called)
			if tc.execErr != nil {
				var body struct {
					Message string            `json:"message"`
					Answer  *assistant.Answer `json:"answer"`
				}
				require.NoError(t, json.Unmarshal(raw, &body))
				require.NotNil(t, body.Answer)
				assert.Equal(t, answer.SQL, body.Answer.SQL)
				assert.Contains(t, body.Message, "binder error")
			}
		})
	}
}

func TestListHistory(t *testing.T) {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	sqlText := "SELECT 1 LIMIT 1"

	tests := []struct {
		name       string
		query      string
		wantStatus int
		check      func(t *testing.T, f domain.HistoryFilter)
	}{
		{
			name:       "own entries only",
			query:      "",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, f domain.HistoryFilter) {
				require.NotNil(t, f.PrincipalName)
				assert.Equal(t, "alice", *f.PrincipalName)
				assert.Nil(t, f.Status)
			},
		},
		{
			name:       "filters",
			query:      "?schema_name=shop&status=SUCCESS&from=2024-01-01T00:00:00Z&max_results=2",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, f domain.HistoryFilter) {
				assert.Equal(t, "shop", *f.SchemaName)
				assert.Equal(t, domain.HistoryStatusSuccess, *f.Status)
				assert.Equal(t, 2024, f.From.Year())
				assert.Equal(t, 2, f.Page.MaxResults)
			},
		},
		{name: "bad status", query: "?status=MAYBE", wantStatus: http.StatusBadRequest},
		{name: "bad from", query: "?from=yesterday", wantStatus: http.StatusBadRequest},
		{name: "bad max_results", query: "?max_results=0", wantStatus: http.StatusBadRequest},
		{name: "bad page_token", query: "?page_token=%25%25", wantStatus: http.StatusBadRequest},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, Options{})
			env.history.listFn = func(_ context.Context, f domain.HistoryFilter) ([]domain.HistoryEntry, int64, error) {
				if tc.check != nil {
					tc.check(t, f)
				}
				return []domain.HistoryEntry{{
					ID: "h1", PrincipalName: "alice", SchemaName: "shop", Question: "q",
					GeneratedSQL: &sqlText, Tables: []string{"t"}, Status: domain.HistoryStatusSuccess,
					Attempts: 1, ValidationPassed: true, CreatedAt: created,
				}}, 5, nil
			}

			resp, raw := env.do(t, http.MethodGet, "/v1/history"+tc.query, "")
			require.Equal(t, tc.wantStatus, resp.StatusCode, string(raw))
			if tc.wantStatus != http.StatusOK {
				return
			}
			var hr HistoryResponse
			require.NoError(t, json.Unmarshal(raw, &hr))
			require.Len(t, hr.Entries, 1)
			assert.Equal(t, int64(5), hr.Total)
			assert.Equal(t, sqlText, *hr.Entries[0].SQL)
			assert.True(t, created.Equal(hr.Entries[0].CreatedAt))
		})
	}
}

func TestListHistory_PageToken(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.history.listFn = func(context.Context, domain.HistoryFilter) ([]domain.HistoryEntry, int64, error) {
		return []domain.HistoryEntry{{ID: "a"}, {ID: "b"}}, 5, nil
	}
	_, raw := env.do(t, http.MethodGet, "/v1/history?max_results=2", "")
	var hr HistoryResponse
	require.NoError(t, json.Unmarshal(raw, &hr))
	assert.Equal(t, domain.EncodePageToken(2), hr.NextPageToken)
}

func TestInfo(t *testing.T) {
	env := newTestEnv(t, Options{})
	resp, raw := env.do(t, http.MethodGet, "/v1/info", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var info InfoResponse
	require.NoError(t, json.Unmarshal(raw, &info))
	assert.Equal(t, "test", info.Version)
	assert.Equal(t, "alice", info.Principal)
	assert.True(t, info.Authenticated)
	assert.NotEmpty(t, info.Rules)
}

func TestHTTPStatusFromDomainError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrNotFound("x"), http.StatusNotFound},
		{domain.ErrAccessDenied("x"), http.StatusForbidden},
		{domain.ErrConflict("x"), http.StatusConflict},
		{domain.ErrValidation("x"), http.StatusBadRequest},
		{domain.ErrSchemaFormat("x"), http.StatusBadRequest},
		{&domain.JoinPathError{Tables: []string{"a"}}, http.StatusBadRequest},
		{&domain.DataNotAvailableError{}, http.StatusUnprocessableEntity},
		{fmt.Errorf("select tables: %w", domain.ErrModelUnavailable), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, httpStatusFromDomainError(tc.err), "%T", tc.err)
	}
}
