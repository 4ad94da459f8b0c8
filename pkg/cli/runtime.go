package cli

import (
	"errors"
	"fmt"

	"talk2data/internal/domain"
	"talk2data/internal/llm"
	"talk2data/internal/service/assistant"
	"talk2data/internal/service/generator"
	"talk2data/internal/service/selector"
	"talk2data/internal/sqlguard"
	"talk2data/internal/storage"
)

func (s *settings) schemas() (*storage.Cache, error) {
	store, err := storage.NewDirStore(s.schemaDir)
	if err != nil {
		return nil, err
	}
	return storage.NewCache(store, s.logger), nil
}

// assistant wires the assistant over the schema directory. It fails when no
// API key is available.
func (s *settings) assistant() (*assistant.Service, error) {
	if s.apiKey == "" {
		return nil, fmt.Errorf("%w (or store one with 'talk2data config set-api-key')", domain.ErrModelUnavailable)
	}
	schemas, err := s.schemas()
	if err != nil {
		return nil, err
	}
	validator := sqlguard.New()
	model, err := llm.New(llm.Config{
		APIKey:  s.apiKey,
		BaseURL: s.baseURL,
		Model:   s.model,
		Rules:   validator.Rules(),
	}, s.logger)
	if err != nil {
		return nil, err
	}
	gen := generator.New(selector.NewService(model, s.logger), model, validator.Rules(), s.logger)
	return assistant.NewService(schemas, gen, model, validator, s.logger), nil
}

// errorCode classifies err for JSON error output.
func errorCode(err error) string {
	var (
		notFound   *domain.NotFoundError
		validation *domain.ValidationError
		format     *domain.SchemaFormatError
		schemaVal  *domain.SchemaValidationError
		noTables   *domain.NoRelevantTablesError
		joinPath   *domain.JoinPathError
		notAvail   *domain.DataNotAvailableError
	)
	switch {
	case errors.Is(err, domain.ErrModelUnavailable):
		return "MODEL_UNAVAILABLE"
	case errors.As(err, &notFound):
		return "NOT_FOUND"
	case errors.As(err, &validation):
		return "VALIDATION"
	case errors.As(err, &format):
		return "SCHEMA_FORMAT"
	case errors.As(err, &schemaVal):
		return "SCHEMA_VALIDATION"
	case errors.As(err, &noTables):
		return "NO_RELEVANT_TABLES"
	case errors.As(err, &joinPath):
		return "JOIN_PATH"
	case errors.As(err, &notAvail):
		return "DATA_NOT_AVAILABLE"
	default:
		return ""
	}
}
