package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talk2data/internal/storage"
)

var envKeys = []string{
	"LISTEN_ADDR", "TLS_CERT_FILE", "TLS_KEY_FILE", "LOG_LEVEL", "ENV", "META_DB_PATH",
	"OPENAI_API_KEY", "OPENAI_BASE_URL", "OPENAI_MODEL", "OPENAI_TEMPERATURE",
	"SCHEMA_STORE", "SCHEMA_DIR", "SCHEMA_PREFIX",
	"S3_KEY_ID", "S3_SECRET", "S3_ENDPOINT", "S3_REGION", "S3_BUCKET",
	"AZURE_STORAGE_ACCOUNT", "AZURE_STORAGE_KEY", "AZURE_CONTAINER", "GCS_BUCKET", "GCS_KEY_FILE",
	"GCS_HMAC_KEY_ID", "GCS_HMAC_SECRET", "AZURE_STORAGE_CONNECTION_STRING",
	"MAX_RETRIES", "CONFIDENCE_THRESHOLD", "MAX_QUESTION_LENGTH", "MAX_RESULT_ROWS",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "CORS_ALLOWED_ORIGINS", "ALLOW_INSECURE_HTTP", "ALLOW_LOCAL_FILES", "SEED_EXAMPLE_SCHEMA",
	"AUTH_ISSUER_URL", "AUTH_JWKS_URL", "AUTH_AUDIENCE", "AUTH_ALLOWED_ISSUERS", "JWT_SECRET",
	"AUTH_NAME_CLAIM", "AUTH_REQUIRED", "DEFAULT_USER",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "talk2data_history.sqlite", cfg.MetaDBPath)
	assert.Equal(t, storage.BackendDir, cfg.Store.Backend)
	assert.Equal(t, "schemas", cfg.Store.Dir)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.InDelta(t, 0.7, cfg.ConfidenceThreshold, 1e-9)
	assert.Equal(t, 500, cfg.MaxQuestionLength)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, "email", cfg.Auth.NameClaim)
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
	assert.Len(t, cfg.Warnings, 2)
}

func TestLoadFromEnv_AllVarsSet(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_MODEL", "gpt-4o")
	t.Setenv("OPENAI_TEMPERATURE", "0.2")
	t.Setenv("SCHEMA_STORE", "S3")
	t.Setenv("S3_BUCKET", "talk2data-schemas")
	t.Setenv("S3_ENDPOINT", "minio:9000")
	t.Setenv("SCHEMA_PREFIX", "tenants")
	t.Setenv("MAX_RETRIES", "0")
	t.Setenv("CONFIDENCE_THRESHOLD", "0.85")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com,")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("ALLOW_LOCAL_FILES", "yes")
	t.Setenv("SEED_EXAMPLE_SCHEMA", "1")
	t.Setenv("GCS_HMAC_KEY_ID", "GOOG1EXAMPLE")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.InDelta(t, 0.2, cfg.LLM.Temperature, 1e-6)
	assert.Equal(t, storage.BackendS3, cfg.Store.Backend)
	assert.Equal(t, "talk2data-schemas", cfg.Store.S3.Bucket)
	assert.Equal(t, "tenants", cfg.Store.S3.Prefix)
	assert.Equal(t, 0, cfg.MaxRetries, "explicit zero retries is kept")
	assert.InDelta(t, 0.85, cfg.ConfidenceThreshold, 1e-9)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
	assert.True(t, cfg.AllowLocalFiles)
	assert.True(t, cfg.SeedExampleSchema)
	assert.Equal(t, "GOOG1EXAMPLE", cfg.GCSHMACKeyID)
	assert.Empty(t, cfg.Warnings)
}

func TestLoadFromEnv_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"bad number", map[string]string{"MAX_RETRIES": "three"}, "MAX_RETRIES"},
		{"threshold range", map[string]string{"CONFIDENCE_THRESHOLD": "1.5"}, "CONFIDENCE_THRESHOLD"},
		{"tls pair", map[string]string{"TLS_CERT_FILE": "cert.pem"}, "TLS_KEY_FILE"},
		{"unknown backend", map[string]string{"SCHEMA_STORE": "ftp"}, "unknown SCHEMA_STORE"},
		{"s3 bucket", map[string]string{"SCHEMA_STORE": "s3"}, "S3_BUCKET"},
		{"azure container", map[string]string{"SCHEMA_STORE": "azure"}, "AZURE_CONTAINER"},
		{"gcs bucket", map[string]string{"SCHEMA_STORE": "gcs"}, "GCS_BUCKET"},
		{"oidc audience", map[string]string{"AUTH_ISSUER_URL": "https://issuer"}, "AUTH_AUDIENCE"},
		{"production auth", map[string]string{"ENV": "production"}, "token validation"},
		{"production cors", map[string]string{"ENV": "production", "JWT_SECRET": "x"}, "CORS wildcard"},
		{"production tls", map[string]string{
			"ENV": "production", "JWT_SECRET": "x", "CORS_ALLOWED_ORIGINS": "https://app.example.com",
		}, "TLS_CERT_FILE"},
		{"production local files", map[string]string{
			"ENV": "production", "JWT_SECRET": "x", "CORS_ALLOWED_ORIGINS": "https://app.example.com",
			"ALLOW_LOCAL_FILES": "true",
		}, "ALLOW_LOCAL_FILES"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := LoadFromEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoadFromEnv_ProductionBehindProxy(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENV", "production")
	t.Setenv("JWT_SECRET", "x")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example.com")
	t.Setenv("ALLOW_INSECURE_HTTP", "true")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARNING"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestLoadDotEnv(t *testing.T) {
	require.NoError(t, LoadDotEnv("/nonexistent/.env"))

	envFile := filepath.Join(t.TempDir(), ".env")
	content := "# comment\n\nexport T2D_A=plain\nT2D_B=\"quoted value\"\nT2D_C='single'\nT2D_KEEP=from_file\nnot a pair\n"
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0o600))

	t.Setenv("T2D_KEEP", "from_env")
	for _, k := range []string{"T2D_A", "T2D_B", "T2D_C"} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}

	require.NoError(t, LoadDotEnv(envFile))
	assert.Equal(t, "plain", os.Getenv("T2D_A"))
	assert.Equal(t, "quoted value", os.Getenv("T2D_B"))
	assert.Equal(t, "single", os.Getenv("T2D_C"))
	assert.Equal(t, "from_env", os.Getenv("T2D_KEEP"))
}
