package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talk2data/internal/config"
	"talk2data/internal/domain"
	"talk2data/internal/storage"
)

const testSecret = "test-secret"

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		MetaDBPath: filepath.Join(dir, "history.sqlite"),
		Store: storage.Config{
			Backend: storage.BackendDir,
			Dir:     filepath.Join(dir, "schemas"),
		},
		MaxRetries:          3,
		ConfidenceThreshold: 0.7,
		MaxQuestionLength:   500,
		MaxResultRows:       100,
		RateLimitRPS:        100,
		RateLimitBurst:      100,
		CORSAllowedOrigins:  []string{"*"},
		SeedExampleSchema:   true,
		Auth:                config.AuthConfig{JWTSecret: testSecret, NameClaim: "email"},
	}
}

func newTestApp(t *testing.T, cfg *config.Config) *httptest.Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	a, err := New(ctx, Deps{Cfg: cfg, Logger: slog.New(slog.NewTextHandler(io.Discard, nil)), Version: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, a.Close()) })

	srv := httptest.NewServer(a.Router)
	t.Cleanup(srv.Close)
	return srv
}

func signToken(t *testing.T, email string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "user-1",
		"email": email,
		"exp":   time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return tok
}

func get(t *testing.T, url, token string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

func TestNew_HealthIsPublic(t *testing.T) {
	srv := newTestApp(t, testConfig(t))

	resp, raw := get(t, srv.URL+"/health", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(raw))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestNew_Authentication(t *testing.T) {
	srv := newTestApp(t, testConfig(t))

	tests := []struct {
		name          string
		token         string
		wantStatus    int
		wantPrincipal string
		wantAuth      bool
	}{
		{name: "anonymous runs as default user", wantStatus: http.StatusOK, wantPrincipal: domain.DefaultLocalUser},
		{name: "valid token", token: signToken(t, "alice@example.com"), wantStatus: http.StatusOK, wantPrincipal: "alice@example.com", wantAuth: true},
		{name: "garbage token", token: "not-a-jwt", wantStatus: http.StatusUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp, raw := get(t, srv.URL+"/v1/info", tc.token)
			require.Equal(t, tc.wantStatus, resp.StatusCode, string(raw))
			if tc.wantStatus != http.StatusOK {
				return
			}
			var info struct {
				Principal     string `json:"principal"`
				Authenticated bool   `json:"authenticated"`
				Version       string `json:"version"`
			}
			require.NoError(t, json.Unmarshal(raw, &info))
			assert.Equal(t, tc.wantPrincipal, info.Principal)
			assert.Equal(t, tc.wantAuth, info.Authenticated)
			assert.Equal(t, "test", info.Version)
		})
	}
}

func TestNew_AuthRequired(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.Required = true
	srv := newTestApp(t, cfg)

	resp, _ := get(t, srv.URL+"/v1/info", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("WWW-Authenticate"))
}

func TestNew_SeedsExampleSchemaForDefaultUserOnly(t *testing.T) {
	srv := newTestApp(t, testConfig(t))

	_, raw := get(t, srv.URL+"/v1/schemas", "")
	assert.JSONEq(t, `{"schemas":["`+ExampleSchemaName+`"]}`, string(raw))

	_, raw = get(t, srv.URL+"/v1/schemas", signToken(t, "bob@example.com"))
	assert.JSONEq(t, `{"schemas":[]}`, string(raw))

	resp, raw := get(t, srv.URL+"/v1/schemas/"+ExampleSchemaName+"/summary", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), "fact_sales")
}

func TestNew_GenerateWithoutModelIsUnavailable(t *testing.T) {
	srv := newTestApp(t, testConfig(t))

	body := `{"question":"total revenue","schema_name":"` + ExampleSchemaName + `"}`
	resp, err := http.Post(srv.URL+"/v1/generate-sql", "application/json", strings.NewReader(body)) //nolint:noctx
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestNew_RateLimited(t *testing.T) {
	cfg := testConfig(t)
	cfg.RateLimitRPS = 0.001
	cfg.RateLimitBurst = 1
	srv := newTestApp(t, cfg)

	resp, _ := get(t, srv.URL+"/v1/info", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = get(t, srv.URL+"/v1/info", "")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	resp, _ = get(t, srv.URL+"/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode, "health is not rate limited")
}

func TestSeedExampleSchema_Idempotent(t *testing.T) {
	ctx := context.Background()
	dir, err := storage.NewDirStore(t.TempDir())
	require.NoError(t, err)
	cache := storage.NewCache(dir, nil)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	require.NoError(t, seedExampleSchema(ctx, cache, "local", logger))
	custom := []byte(`{"schema":{"tables":[{"name":"fact_custom","role":"fact","columns":{"id":"id"}}]}}`)
	require.NoError(t, cache.Put(ctx, "local", ExampleSchemaName, custom))
	require.NoError(t, seedExampleSchema(ctx, cache, "local", logger))

	doc, err := cache.Document(ctx, "local", ExampleSchemaName)
	require.NoError(t, err)
	assert.Equal(t, []string{"fact_custom"}, doc.TableNames())
}
