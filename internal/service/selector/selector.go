// Package selector picks the schema tables a question needs.
package selector

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"talk2data/internal/domain"
	"talk2data/internal/schema"
)

// Service asks the language model for relevant tables and keeps only the
// ones the schema declares.
type Service struct {
	llm    domain.TableSelectorLLM
	logger *slog.Logger
}

// NewService creates a selector Service.
func NewService(llm domain.TableSelectorLLM, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{llm: llm, logger: logger.With("component", "selector")}
}

// SelectTables returns the tables needed to answer question.
//
// For a flat schema with actualTableNames set, those names are returned
// as-is and the model is not consulted. Otherwise the model's answer is
// filtered against the schema; unknown names are dropped. An empty result
// is a *domain.NoRelevantTablesError.
func (s *Service) SelectTables(ctx context.Context, question string, doc *schema.Document, actualTableNames []string) ([]string, error) {
	if doc.IsFlat() && len(actualTableNames) > 0 {
		return append([]string(nil), actualTableNames...), nil
	}

	proposed, err := s.llm.SelectTables(ctx, question, doc.SchemaSummary())
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, domain.ErrModelUnavailable) {
			return nil, err
		}
		s.logger.Warn("table selection failed", "error", err)
		proposed = nil
	}

	byLower := make(map[string]string, len(doc.Tables))
	for _, name := range doc.TableNames() {
		byLower[strings.ToLower(name)] = name
	}

	seen := make(map[string]bool, len(proposed))
	var tables []string
	for _, p := range proposed {
		name, ok := byLower[strings.ToLower(strings.TrimSpace(p))]
		if !ok {
			s.logger.Warn("dropping table not in schema", "table", p)
			continue
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		tables = append(tables, name)
	}

	if len(tables) == 0 {
		return nil, &domain.NoRelevantTablesError{Question: question, Available: doc.TableNames()}
	}
	s.logger.Debug("selected tables", "tables", tables)
	return tables, nil
}
