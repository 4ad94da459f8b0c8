package app

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"slices"

	"talk2data/internal/storage"
)

// ExampleSchemaName is the name the demo retail schema is stored under.
const ExampleSchemaName = "retail_demo"

//go:embed example_schema.json
var exampleSchema []byte

// seedExampleSchema stores the demo retail schema for user. Idempotent: a
// user who already has the schema keeps their copy.
func seedExampleSchema(ctx context.Context, schemas *storage.Cache, user string, logger *slog.Logger) error {
	names, err := schemas.List(ctx, user)
	if err != nil {
		return fmt.Errorf("list schemas: %w", err)
	}
	if slices.Contains(names, ExampleSchemaName) {
		return nil
	}
	if err := schemas.Put(ctx, user, ExampleSchemaName, exampleSchema); err != nil {
		return fmt.Errorf("store %s: %w", ExampleSchemaName, err)
	}
	logger.Info("example schema seeded", "user", user, "schema", ExampleSchemaName)
	return nil
}

// warmSchemaCache parses every schema of user so the first question does not
// pay for the fetch. Failures are logged and skipped.
func warmSchemaCache(ctx context.Context, schemas *storage.Cache, user string, logger *slog.Logger) {
	names, err := schemas.List(ctx, user)
	if err != nil {
		logger.Warn("list schemas for warm-up failed", "user", user, "error", err)
		return
	}
	loaded := 0
	for _, name := range names {
		if _, err := schemas.Document(ctx, user, name); err != nil {
			logger.Warn("schema failed to load", "user", user, "schema", name, "error", err)
			continue
		}
		loaded++
	}
	if loaded > 0 {
		logger.Info("schema cache warmed", "user", user, "schemas", loaded)
	}
}
