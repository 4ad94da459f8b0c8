// Package config loads server configuration from the environment and an
// optional .env file.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"talk2data/internal/storage"
)

// AuthConfig holds bearer token validation settings.
type AuthConfig struct {
	IssuerURL      string   // OIDC issuer, e.g. a Cognito user pool URL
	JWKSURL        string   // overrides discovery when set
	Audience       string   // required aud / client id
	AllowedIssuers []string // defaults to [IssuerURL]
	JWTSecret      string   // HS256 shared secret for local tokens
	NameClaim      string   // claim used as principal name (default "email")
	Required       bool     // reject requests without a token
	DefaultUser    string   // principal for anonymous requests
}

// OIDCEnabled reports whether an external identity provider is configured.
func (a *AuthConfig) OIDCEnabled() bool {
	return a.IssuerURL != "" || a.JWKSURL != ""
}

// LLMConfig configures the OpenAI-compatible chat endpoint.
type LLMConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
}

// Config is the server configuration.
type Config struct {
	ListenAddr        string
	TLSCertFile       string
	TLSKeyFile        string
	AllowInsecureHTTP bool
	LogLevel          string
	Env               string

	// MetaDBPath is the SQLite file holding query history.
	MetaDBPath string

	LLM LLMConfig

	// Store selects where schema documents live.
	Store storage.Config

	// Assistant defaults.
	MaxRetries          int
	ConfidenceThreshold float64
	MaxQuestionLength   int
	MaxResultRows       int

	// AllowLocalFiles lets /v1/query read paths on the server's filesystem.
	AllowLocalFiles bool

	// Credentials DuckDB uses for gs:// and az:// query sources. S3 sources
	// reuse the schema store's S3 keys.
	GCSHMACKeyID          string
	GCSHMACSecret         string
	AzureConnectionString string

	// SeedExampleSchema stores a demo retail schema for the default user on
	// startup when that user has no schemas yet.
	SeedExampleSchema bool

	RateLimitRPS       float64
	RateLimitBurst     int
	CORSAllowedOrigins []string

	Auth AuthConfig

	// Warnings collects non-fatal problems found while loading; the caller
	// logs them once the logger exists.
	Warnings []string
}

// SlogLevel maps LogLevel to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	return ParseLevel(c.LogLevel)
}

// ParseLevel maps debug, warn and error to slog levels; anything else is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsProduction reports whether ENV=production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// LoadFromEnv reads the configuration from environment variables and applies
// defaults. Production mode turns insecure defaults into errors.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		ListenAddr:  os.Getenv("LISTEN_ADDR"),
		TLSCertFile: os.Getenv("TLS_CERT_FILE"),
		TLSKeyFile:  os.Getenv("TLS_KEY_FILE"),
		LogLevel:    os.Getenv("LOG_LEVEL"),
		Env:         os.Getenv("ENV"),
		MetaDBPath:  os.Getenv("META_DB_PATH"),
		LLM: LLMConfig{
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			BaseURL: os.Getenv("OPENAI_BASE_URL"),
			Model:   os.Getenv("OPENAI_MODEL"),
		},
		Store: storage.Config{
			Backend: strings.ToLower(os.Getenv("SCHEMA_STORE")),
			Dir:     os.Getenv("SCHEMA_DIR"),
			S3: storage.S3Config{
				KeyID:    os.Getenv("S3_KEY_ID"),
				Secret:   os.Getenv("S3_SECRET"),
				Endpoint: os.Getenv("S3_ENDPOINT"),
				Region:   os.Getenv("S3_REGION"),
				Bucket:   os.Getenv("S3_BUCKET"),
				Prefix:   os.Getenv("SCHEMA_PREFIX"),
			},
			Azure: storage.AzureConfig{
				AccountName: os.Getenv("AZURE_STORAGE_ACCOUNT"),
				AccountKey:  os.Getenv("AZURE_STORAGE_KEY"),
				Container:   os.Getenv("AZURE_CONTAINER"),
				Prefix:      os.Getenv("SCHEMA_PREFIX"),
			},
			GCS: storage.GCSConfig{
				Bucket:      os.Getenv("GCS_BUCKET"),
				KeyFilePath: os.Getenv("GCS_KEY_FILE"),
				Prefix:      os.Getenv("SCHEMA_PREFIX"),
			},
		},
		MaxRetries:            -1,
		AllowInsecureHTTP:     parseBoolEnvDefault("ALLOW_INSECURE_HTTP", false),
		AllowLocalFiles:       parseBoolEnvDefault("ALLOW_LOCAL_FILES", false),
		SeedExampleSchema:     parseBoolEnvDefault("SEED_EXAMPLE_SCHEMA", false),
		GCSHMACKeyID:          os.Getenv("GCS_HMAC_KEY_ID"),
		GCSHMACSecret:         os.Getenv("GCS_HMAC_SECRET"),
		AzureConnectionString: os.Getenv("AZURE_STORAGE_CONNECTION_STRING"),
		CORSAllowedOrigins:    splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
		Auth: AuthConfig{
			IssuerURL:      os.Getenv("AUTH_ISSUER_URL"),
			JWKSURL:        os.Getenv("AUTH_JWKS_URL"),
			Audience:       os.Getenv("AUTH_AUDIENCE"),
			AllowedIssuers: splitList(os.Getenv("AUTH_ALLOWED_ISSUERS")),
			JWTSecret:      os.Getenv("JWT_SECRET"),
			NameClaim:      os.Getenv("AUTH_NAME_CLAIM"),
			Required:       parseBoolEnvDefault("AUTH_REQUIRED", false),
			DefaultUser:    os.Getenv("DEFAULT_USER"),
		},
	}

	var errs []string
	parseFloat := func(key string, dst *float64) {
		if v := os.Getenv(key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = f
		}
	}
	parseInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = n
		}
	}
	var temperature float64
	parseFloat("OPENAI_TEMPERATURE", &temperature)
	cfg.LLM.Temperature = float32(temperature)
	parseInt("MAX_RETRIES", &cfg.MaxRetries)
	parseFloat("CONFIDENCE_THRESHOLD", &cfg.ConfidenceThreshold)
	parseInt("MAX_QUESTION_LENGTH", &cfg.MaxQuestionLength)
	parseInt("MAX_RESULT_ROWS", &cfg.MaxResultRows)
	parseFloat("RATE_LIMIT_RPS", &cfg.RateLimitRPS)
	parseInt("RATE_LIMIT_BURST", &cfg.RateLimitBurst)
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}

	applyDefaults(cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.MetaDBPath == "" {
		cfg.MetaDBPath = "talk2data_history.sqlite"
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = storage.BackendDir
	}
	if cfg.Store.Backend == storage.BackendDir && cfg.Store.Dir == "" {
		cfg.Store.Dir = "schemas"
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 3
	}
	if cfg.ConfidenceThreshold == 0 {
		cfg.ConfidenceThreshold = 0.7
	}
	if cfg.MaxQuestionLength == 0 {
		cfg.MaxQuestionLength = 500
	}
	if cfg.MaxResultRows == 0 {
		cfg.MaxResultRows = 1000
	}
	if cfg.RateLimitRPS == 0 {
		cfg.RateLimitRPS = 5
	}
	if cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = 20
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"*"}
	}
	if cfg.Auth.NameClaim == "" {
		cfg.Auth.NameClaim = "email"
	}
	if !cfg.Auth.OIDCEnabled() && cfg.Auth.JWTSecret == "" {
		cfg.Warnings = append(cfg.Warnings, "no token validation configured: every request runs as the default user")
	}
	if cfg.LLM.APIKey == "" {
		cfg.Warnings = append(cfg.Warnings, "OPENAI_API_KEY is not set: SQL generation is unavailable")
	}
}

func (cfg *Config) validate() error {
	if (cfg.TLSCertFile == "") != (cfg.TLSKeyFile == "") {
		return fmt.Errorf("both TLS_CERT_FILE and TLS_KEY_FILE must be set together")
	}
	if cfg.ConfidenceThreshold < 0 || cfg.ConfidenceThreshold > 1 {
		return fmt.Errorf("CONFIDENCE_THRESHOLD must be between 0 and 1")
	}
	if cfg.Auth.IssuerURL != "" && cfg.Auth.Audience == "" {
		return fmt.Errorf("AUTH_AUDIENCE is required when AUTH_ISSUER_URL is set")
	}
	switch cfg.Store.Backend {
	case storage.BackendDir:
	case storage.BackendS3:
		if cfg.Store.S3.Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when SCHEMA_STORE=s3")
		}
	case storage.BackendAzure:
		if cfg.Store.Azure.Container == "" {
			return fmt.Errorf("AZURE_CONTAINER is required when SCHEMA_STORE=azure")
		}
	case storage.BackendGCS:
		if cfg.Store.GCS.Bucket == "" {
			return fmt.Errorf("GCS_BUCKET is required when SCHEMA_STORE=gcs")
		}
	default:
		return fmt.Errorf("unknown SCHEMA_STORE %q", cfg.Store.Backend)
	}

	if cfg.IsProduction() {
		if !cfg.Auth.OIDCEnabled() && cfg.Auth.JWTSecret == "" {
			return fmt.Errorf("token validation must be configured in production (AUTH_ISSUER_URL, AUTH_JWKS_URL or JWT_SECRET)")
		}
		if len(cfg.CORSAllowedOrigins) == 1 && cfg.CORSAllowedOrigins[0] == "*" {
			return fmt.Errorf("CORS wildcard (*) is not allowed in production (ENV=production)")
		}
		if cfg.AllowLocalFiles {
			return fmt.Errorf("ALLOW_LOCAL_FILES is not allowed in production")
		}
		if cfg.TLSCertFile == "" && !cfg.AllowInsecureHTTP {
			return fmt.Errorf("TLS_CERT_FILE/TLS_KEY_FILE must be set in production unless ALLOW_INSECURE_HTTP=true")
		}
	}
	return nil
}

func parseBoolEnvDefault(key string, defaultVal bool) bool {
	switch strings.TrimSpace(strings.ToLower(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return defaultVal
	}
}

// splitList splits a comma-separated value, dropping blanks.
func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// LoadDotEnv sets variables from a KEY=VALUE file without overriding the
// environment. A missing file is not an error.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = stripQuotes(strings.TrimSpace(value))
		if _, set := os.LookupEnv(key); !set {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
