package assistant

import (
	"context"
	"fmt"

	"talk2data/internal/domain"
	"talk2data/internal/engine"
)

// ExecuteResult pairs an answer with the rows its SQL produced.
type ExecuteResult struct {
	Answer *Answer             `json:"answer"`
	Result *engine.QueryResult `json:"result,omitempty"`
}

// Execute answers req and runs the SQL on DuckDB over files. The view names
// of the files are passed to table selection when the request names none.
// SQL that failed validation is never executed.
func (s *Service) Execute(ctx context.Context, principal string, req AskRequest, files []engine.FileItem, opts engine.Options) (*ExecuteResult, error) {
	if len(files) == 0 {
		return nil, domain.ErrValidation("at least one file is required")
	}
	if opts.Logger == nil {
		opts.Logger = s.logger
	}
	fc, err := engine.Open(ctx, files, opts)
	if err != nil {
		return nil, err
	}
	defer fc.Close() //nolint:errcheck

	if len(req.ActualTableNames) == 0 {
		req.ActualTableNames = fc.ListTables()
	}

	ans, err := s.Ask(ctx, principal, req)
	if err != nil {
		return nil, err
	}
	out := &ExecuteResult{Answer: ans}
	if !ans.ValidationPassed || ans.SQL == "" {
		return out, domain.ErrValidation("generated SQL was not executed: %s", ans.Message)
	}

	res, err := fc.Query(ctx, ans.SQL)
	if err != nil {
		return out, fmt.Errorf("execute generated SQL: %w", err)
	}
	out.Result = res
	return out, nil
}
