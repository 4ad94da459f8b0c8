package domain

import (
	"context"
)

// TableSelectorLLM asks the language model which tables answer a question.
// Implemented by llm.Client.
type TableSelectorLLM interface {
	SelectTables(ctx context.Context, question, schemaSummary string) ([]string, error)
}

// SQLGeneratorLLM produces and repairs SQL. Implemented by llm.Client.
type SQLGeneratorLLM interface {
	GenerateSQL(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	FixSQL(ctx context.Context, req FixRequest) (string, error)
	AssessConfidence(ctx context.Context, question, sql string) (float64, error)
}

// FixRequest asks for a corrected query. Tables and JoinSQL repeat the
// schema context the rejected query was generated from.
type FixRequest struct {
	Question  string
	FailedSQL string
	Feedback  string
	Tables    string
	JoinSQL   string
}

// SchemaStore persists raw schema documents keyed by (user, schema name).
// Implemented by storage.S3Store, storage.AzureStore, storage.GCSStore and
// storage.DirStore.
type SchemaStore interface {
	Put(ctx context.Context, user, name string, raw []byte) error
	Get(ctx context.Context, user, name string) ([]byte, error)
	List(ctx context.Context, user string) ([]string, error)
	Delete(ctx context.Context, user, name string) error
}

// HistoryRepository records generated questions and their SQL.
// Implemented by db.HistoryRepo.
type HistoryRepository interface {
	Record(ctx context.Context, e *HistoryEntry) error
	List(ctx context.Context, filter HistoryFilter) ([]HistoryEntry, int64, error)
}
