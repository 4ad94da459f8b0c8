package llm

import (
	"context"

	"talk2data/internal/domain"
)

var (
	_ domain.TableSelectorLLM = Unavailable{}
	_ domain.SQLGeneratorLLM  = Unavailable{}
)

// Unavailable stands in for Client when no API key is configured, so the
// server still serves schemas, validation and history.
type Unavailable struct{}

func (Unavailable) SelectTables(context.Context, string, string) ([]string, error) {
	return nil, domain.ErrModelUnavailable
}

func (Unavailable) GenerateSQL(context.Context, string, string) (string, error) {
	return "", domain.ErrModelUnavailable
}

func (Unavailable) FixSQL(context.Context, domain.FixRequest) (string, error) {
	return "", domain.ErrModelUnavailable
}

func (Unavailable) AssessConfidence(context.Context, string, string) (float64, error) {
	return 0, domain.ErrModelUnavailable
}
