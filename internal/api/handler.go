// Package api provides the HTTP handlers of the talk2data REST API.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"talk2data/internal/domain"
	"talk2data/internal/engine"
	"talk2data/internal/schema"
	"talk2data/internal/service/assistant"
	"talk2data/internal/sqlguard"
)

// assistantService answers questions. Implemented by assistant.Service.
type assistantService interface {
	Ask(ctx context.Context, principal string, req assistant.AskRequest) (*assistant.Answer, error)
	Execute(ctx context.Context, principal string, req assistant.AskRequest, files []engine.FileItem, opts engine.Options) (*assistant.ExecuteResult, error)
}

// schemaService stores and parses schema documents. Implemented by
// storage.Cache.
type schemaService interface {
	domain.SchemaStore
	Document(ctx context.Context, user, name string) (*schema.Document, error)
}

// sqlValidator is implemented by sqlguard.Validator.
type sqlValidator interface {
	Validate(sql string) sqlguard.Result
	Rules() string
}

// Options configure a Handler.
type Options struct {
	Version string
	// AllowLocalFiles lets /v1/query read paths on the server's filesystem.
	// Only remote URIs are accepted otherwise.
	AllowLocalFiles bool
	MaxRows         int
	S3              *engine.S3Credentials
	Azure           *engine.AzureCredentials
	GCS             *engine.GCSCredentials
	Logger          *slog.Logger
}

// Handler serves the API.
type Handler struct {
	assistant assistantService
	schemas   schemaService
	history   domain.HistoryRepository
	validator sqlValidator
	opts      Options
	logger    *slog.Logger
}

// NewHandler creates a Handler. history may be nil, which disables
// GET /v1/history.
func NewHandler(asst assistantService, schemas schemaService, history domain.HistoryRepository, validator sqlValidator, opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		assistant: asst,
		schemas:   schemas,
		history:   history,
		validator: validator,
		opts:      opts,
		logger:    logger.With("component", "api"),
	}
}

// Routes returns the /v1 routes. Authentication and rate limiting are applied
// by the caller.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/info", h.info)
	r.Post("/generate-sql", h.generateSQL)
	r.Post("/validate-sql", h.validateSQL)
	r.Post("/join-path", h.joinPath)
	r.Post("/query", h.query)
	r.Get("/history", h.listHistory)

	r.Route("/schemas", func(r chi.Router) {
		r.Get("/", h.listSchemas)
		r.Get("/{name}", h.getSchema)
		r.Put("/{name}", h.putSchema)
		r.Delete("/{name}", h.deleteSchema)
		r.Get("/{name}/summary", h.schemaSummary)
	})
	return r
}

// Health reports liveness. It is mounted outside authentication.
func Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// InfoResponse describes the running server.
type InfoResponse struct {
	Version       string `json:"version"`
	Principal     string `json:"principal"`
	Authenticated bool   `json:"authenticated"`
	Rules         string `json:"rules"`
}

func (h *Handler) info(w http.ResponseWriter, r *http.Request) {
	p, _ := domain.PrincipalFromContext(r.Context())
	writeJSON(w, http.StatusOK, InfoResponse{
		Version:       h.opts.Version,
		Principal:     domain.PrincipalName(r.Context()),
		Authenticated: p.Authenticated,
		Rules:         h.validator.Rules(),
	})
}
