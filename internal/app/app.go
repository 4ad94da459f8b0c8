// Package app wires the talk2data server: schema storage, query history,
// the language model and the assistant, behind the HTTP router.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"talk2data/internal/api"
	"talk2data/internal/config"
	"talk2data/internal/db"
	"talk2data/internal/db/repository"
	"talk2data/internal/domain"
	"talk2data/internal/engine"
	"talk2data/internal/llm"
	"talk2data/internal/middleware"
	"talk2data/internal/service/assistant"
	"talk2data/internal/service/generator"
	"talk2data/internal/service/selector"
	"talk2data/internal/sqlguard"
	"talk2data/internal/storage"
)

// rateLimitSweepInterval is how often idle rate-limit buckets are evicted.
const rateLimitSweepInterval = time.Minute

// Deps holds what main() provides.
type Deps struct {
	Cfg     *config.Config
	Logger  *slog.Logger
	Version string
}

// App is the fully wired server.
type App struct {
	Schemas   *storage.Cache
	History   *repository.HistoryRepo
	Assistant *assistant.Service
	Validator *sqlguard.Validator
	Router    http.Handler

	closers []io.Closer
}

// New wires every component from deps. ctx bounds background work such as
// rate-limit sweeping; Close releases the databases and storage clients.
func New(ctx context.Context, deps Deps) (*App, error) {
	cfg := deps.Cfg
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{}

	// === Schema storage ===
	store, err := storage.Open(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("schema store: %w", err)
	}
	if c, ok := store.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}
	a.Schemas = storage.NewCache(store, logger)
	logger.Info("schema store ready", "backend", cfg.Store.Backend)

	// === Query history ===
	hist, err := db.OpenHistory(cfg.MetaDBPath)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("history database: %w", err)
	}
	a.closers = append(a.closers, hist)
	a.History = repository.NewHistoryRepo(hist.Write, hist.Read)

	// === Language model ===
	a.Validator = sqlguard.New()
	model, err := newModel(cfg, a.Validator.Rules(), logger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	// === Assistant ===
	sel := selector.NewService(model, logger)
	gen := generator.New(sel, model, a.Validator.Rules(), logger)
	a.Assistant = assistant.NewService(a.Schemas, gen, model, a.Validator, logger)
	a.Assistant.SetHistory(a.History)
	a.Assistant.SetDefaults(cfg.MaxRetries, cfg.ConfidenceThreshold, cfg.MaxQuestionLength)

	defaultUser := cfg.Auth.DefaultUser
	if defaultUser == "" {
		defaultUser = domain.DefaultLocalUser
	}
	if cfg.SeedExampleSchema {
		if err := seedExampleSchema(ctx, a.Schemas, defaultUser, logger); err != nil {
			logger.Warn("seed example schema failed", "error", err)
		}
	}
	warmSchemaCache(ctx, a.Schemas, defaultUser, logger)

	// === Router ===
	validator, err := newTokenValidator(ctx, cfg.Auth)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		Burst:             cfg.RateLimitBurst,
	})
	go limiter.Sweep(ctx, rateLimitSweepInterval)

	handler := api.NewHandler(a.Assistant, a.Schemas, a.History, a.Validator, api.Options{
		Version:         deps.Version,
		AllowLocalFiles: cfg.AllowLocalFiles,
		MaxRows:         cfg.MaxResultRows,
		S3:              s3Credentials(cfg),
		Azure:           azureCredentials(cfg),
		GCS:             gcsCredentials(cfg),
		Logger:          logger,
	})
	a.Router = NewRouter(RouterConfig{
		Handler:        handler,
		Validator:      validator,
		Limiter:        limiter,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Auth: middleware.AuthOptions{
			NameClaim:   cfg.Auth.NameClaim,
			Required:    cfg.Auth.Required,
			DefaultUser: defaultUser,
			Logger:      logger,
		},
		Logger: logger,
	})
	return a, nil
}

// Close releases storage clients and databases.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// RouterConfig holds the pieces NewRouter assembles.
type RouterConfig struct {
	Handler        *api.Handler
	Validator      middleware.TokenValidator // nil when no token validation is configured
	Limiter        *middleware.RateLimiter   // nil disables rate limiting
	AllowedOrigins []string
	Auth           middleware.AuthOptions
	Logger         *slog.Logger
}

// NewRouter builds the chi router: /health is public, everything under /v1
// is authenticated and rate limited.
func NewRouter(rc RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.AccessLog(rc.Logger))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   rc.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", api.Health)

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Authenticate(rc.Validator, rc.Auth))
		if rc.Limiter != nil {
			r.Use(rc.Limiter.Handler)
		}
		r.Mount("/", rc.Handler.Routes())
	})
	return r
}

// languageModel is implemented by llm.Client and llm.Unavailable.
type languageModel interface {
	domain.TableSelectorLLM
	domain.SQLGeneratorLLM
}

func newModel(cfg *config.Config, rules string, logger *slog.Logger) (languageModel, error) {
	if cfg.LLM.APIKey == "" {
		return llm.Unavailable{}, nil
	}
	client, err := llm.New(llm.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Rules:       rules,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("language model: %w", err)
	}
	logger.Info("language model ready", "model", client.Model())
	return client, nil
}

// newTokenValidator prefers OIDC over the HS256 secret. It returns nil when
// neither is configured.
func newTokenValidator(ctx context.Context, auth config.AuthConfig) (middleware.TokenValidator, error) {
	switch {
	case auth.OIDCEnabled():
		v, err := middleware.NewOIDCValidator(ctx, middleware.OIDCConfig{
			IssuerURL:      auth.IssuerURL,
			JWKSURL:        auth.JWKSURL,
			Audience:       auth.Audience,
			AllowedIssuers: auth.AllowedIssuers,
		})
		if err != nil {
			return nil, fmt.Errorf("oidc: %w", err)
		}
		return v, nil
	case auth.JWTSecret != "":
		v, err := middleware.NewHS256Validator(auth.JWTSecret, auth.Audience)
		if err != nil {
			return nil, fmt.Errorf("jwt: %w", err)
		}
		return v, nil
	default:
		return nil, nil
	}
}

// s3Credentials reuses the schema store's S3 keys for s3:// data files.
func s3Credentials(cfg *config.Config) *engine.S3Credentials {
	s3 := cfg.Store.S3
	if s3.KeyID == "" {
		return nil
	}
	return &engine.S3Credentials{
		KeyID:    s3.KeyID,
		Secret:   s3.Secret,
		Region:   s3.Region,
		Endpoint: strings.TrimPrefix(strings.TrimPrefix(s3.Endpoint, "https://"), "http://"),
		URLStyle: "path",
	}
}

func azureCredentials(cfg *config.Config) *engine.AzureCredentials {
	az := cfg.Store.Azure
	if cfg.AzureConnectionString == "" && az.AccountKey == "" {
		return nil
	}
	return &engine.AzureCredentials{
		AccountName:      az.AccountName,
		AccountKey:       az.AccountKey,
		ConnectionString: cfg.AzureConnectionString,
	}
}

func gcsCredentials(cfg *config.Config) *engine.GCSCredentials {
	if cfg.GCSHMACKeyID == "" {
		return nil
	}
	return &engine.GCSCredentials{KeyID: cfg.GCSHMACKeyID, Secret: cfg.GCSHMACSecret}
}
