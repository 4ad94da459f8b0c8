// Package assistant answers questions with validated SQL. It retries
// generation with feedback until the SQL passes the safety checks and the
// model is confident enough, and records every answer.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"talk2data/internal/domain"
	"talk2data/internal/schema"
	"talk2data/internal/service/generator"
	"talk2data/internal/sqlguard"
)

// Defaults applied when an AskRequest leaves a knob unset.
const (
	DefaultMaxRetries          = 3
	DefaultConfidenceThreshold = 0.7
	DefaultMaxQuestionLength   = 500

	// fallbackConfidence is used when the confidence call fails.
	fallbackConfidence = 0.5
)

// DocumentSource resolves a stored schema. Implemented by storage.Cache.
type DocumentSource interface {
	Document(ctx context.Context, user, name string) (*schema.Document, error)
}

// Generator produces the first SQL attempt. Implemented by
// generator.Generator.
type Generator interface {
	Generate(ctx context.Context, req generator.Request) (*generator.Result, error)
}

// Validator checks SQL against the safety policy. Implemented by
// sqlguard.Validator.
type Validator interface {
	Validate(sql string) sqlguard.Result
}

// AskRequest is one question against a stored schema. Nil knobs take the
// service defaults.
type AskRequest struct {
	Question            string   `json:"question"`
	SchemaName          string   `json:"schema_name"`
	ActualTableNames    []string `json:"actual_table_names,omitempty"`
	MaxRetries          *int     `json:"max_retries,omitempty"`
	ConfidenceThreshold *float64 `json:"confidence_threshold,omitempty"`
}

// Answer is the outcome of Ask. SQL may be returned with ValidationPassed
// false once retries are exhausted; callers must not execute it.
type Answer struct {
	SQL              string        `json:"sql"`
	Question         string        `json:"question"`
	Confidence       float64       `json:"confidence"`
	ValidationPassed bool          `json:"validation_passed"`
	Attempts         int           `json:"attempts"`
	Message          string        `json:"message"`
	Tables           []string      `json:"tables"`
	JoinSQL          string        `json:"join_sql,omitempty"`
	Duration         time.Duration `json:"-"`
	DurationMs       int64         `json:"duration_ms"`
}

// discard drops the SQL and verdict of an earlier attempt.
func (a *Answer) discard() {
	a.SQL = ""
	a.Confidence = 0
	a.ValidationPassed = false
}

// Service runs the retry loop.
type Service struct {
	docs      DocumentSource
	gen       Generator
	llm       domain.SQLGeneratorLLM
	validator Validator
	history   domain.HistoryRepository
	logger    *slog.Logger

	maxRetries        int
	threshold         float64
	maxQuestionLength int
}

// NewService creates a Service with default limits.
func NewService(docs DocumentSource, gen Generator, llm domain.SQLGeneratorLLM, validator Validator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		docs:              docs,
		gen:               gen,
		llm:               llm,
		validator:         validator,
		logger:            logger.With("component", "assistant"),
		maxRetries:        DefaultMaxRetries,
		threshold:         DefaultConfidenceThreshold,
		maxQuestionLength: DefaultMaxQuestionLength,
	}
}

// SetHistory enables best-effort recording of every answer.
func (s *Service) SetHistory(repo domain.HistoryRepository) {
	s.history = repo
}

// SetDefaults overrides the retry count, the confidence threshold and the
// question length limit. Non-positive values keep the current setting,
// except maxRetries which may be zero.
func (s *Service) SetDefaults(maxRetries int, threshold float64, maxQuestionLength int) {
	if maxRetries >= 0 {
		s.maxRetries = maxRetries
	}
	if threshold > 0 {
		s.threshold = threshold
	}
	if maxQuestionLength > 0 {
		s.maxQuestionLength = maxQuestionLength
	}
}

// attempt carries the state of the loop between tries.
type attempt struct {
	sql      string
	feedback string
}

// Ask answers req for principal. Structural failures (no relevant tables,
// missing tables, no join path, data not available) abort without retry.
func (s *Service) Ask(ctx context.Context, principal string, req AskRequest) (*Answer, error) {
	start := time.Now()
	if err := s.checkRequest(req); err != nil {
		return nil, err
	}
	maxRetries, threshold, err := s.knobs(req)
	if err != nil {
		return nil, err
	}

	doc, err := s.docs.Document(ctx, principal, req.SchemaName)
	if err != nil {
		s.record(ctx, principal, req, nil, start, err)
		return nil, err
	}

	first, err := s.gen.Generate(ctx, generator.Request{
		Question:         req.Question,
		Schema:           doc,
		ActualTableNames: req.ActualTableNames,
	})
	if err != nil {
		s.record(ctx, principal, req, nil, start, err)
		return nil, err
	}

	ans := &Answer{Question: first.Question, Tables: first.Tables}
	if first.JoinPath != nil {
		ans.JoinSQL = first.JoinPath.ToSQL()
	}

	var prev attempt
	for try := 0; try <= maxRetries; try++ {
		ans.Attempts = try + 1
		last := try == maxRetries

		var sql string
		if try == 0 {
			sql = first.SQL
			if sql == "" {
				prev = attempt{sql: first.Rejected, feedback: unknownColumnsFeedback(first.Unknown)}
			}
		} else {
			sql, err = s.llm.FixSQL(ctx, domain.FixRequest{
				Question:  ans.Question,
				FailedSQL: prev.sql,
				Feedback:  prev.feedback,
				Tables:    first.Listing,
				JoinSQL:   ans.JoinSQL,
			})
			if err != nil {
				err = fmt.Errorf("attempt %d: %w", ans.Attempts, err)
				s.record(ctx, principal, req, ans, start, err)
				return nil, err
			}
			if err := generator.DeclinedError(sql); err != nil {
				ans.discard()
				s.record(ctx, principal, req, ans, start, err)
				return nil, err
			}
			if unknown := generator.CheckColumns(sql, doc, ans.Tables); len(unknown) > 0 {
				s.logger.Warn("fixed SQL rejected", "attempt", ans.Attempts, "unknown", unknown)
				prev = attempt{sql: sql, feedback: unknownColumnsFeedback(unknown)}
				sql = ""
			}
		}

		if sql == "" {
			if last {
				ans.discard()
				ans.Message = fmt.Sprintf("Maximum retries reached: %s", prev.feedback)
				break
			}
			continue
		}

		result := s.validator.Validate(sql)
		if !result.OK {
			s.logger.Warn("validation failed", "attempt", ans.Attempts, "error", result.ErrorMessage)
			if last {
				ans.SQL = sql
				ans.Confidence = 0
				ans.ValidationPassed = false
				ans.Message = fmt.Sprintf("Validation failed after %d attempts: %s", ans.Attempts, result.ErrorMessage)
				break
			}
			prev = attempt{sql: sql, feedback: result.ErrorMessage}
			continue
		}

		confidence := s.confidence(ctx, ans.Question, sql)
		ans.SQL = sql
		ans.Confidence = confidence
		ans.ValidationPassed = true
		if confidence >= threshold {
			ans.Message = "SQL generated successfully"
			break
		}
		if last {
			ans.Message = fmt.Sprintf("Validation passed but confidence %.2f is below threshold %.2f", confidence, threshold)
			break
		}
		prev = attempt{
			sql: sql,
			feedback: fmt.Sprintf("Low confidence score: %.2f. Please improve the SQL query to better match the user's question.",
				confidence),
		}
	}

	ans.Duration = time.Since(start)
	ans.DurationMs = ans.Duration.Milliseconds()
	s.record(ctx, principal, req, ans, start, nil)
	return ans, nil
}

func (s *Service) checkRequest(req AskRequest) error {
	q := strings.TrimSpace(req.Question)
	if q == "" {
		return domain.ErrValidation("question is required")
	}
	if n := utf8.RuneCountInString(q); n > s.maxQuestionLength {
		return domain.ErrValidation("question is %d characters long, the limit is %d", n, s.maxQuestionLength)
	}
	if strings.TrimSpace(req.SchemaName) == "" {
		return domain.ErrValidation("schema_name is required")
	}
	return nil
}

func (s *Service) knobs(req AskRequest) (int, float64, error) {
	maxRetries, threshold := s.maxRetries, s.threshold
	if req.MaxRetries != nil {
		if *req.MaxRetries < 0 || *req.MaxRetries > 10 {
			return 0, 0, domain.ErrValidation("max_retries must be between 0 and 10")
		}
		maxRetries = *req.MaxRetries
	}
	if req.ConfidenceThreshold != nil {
		if *req.ConfidenceThreshold < 0 || *req.ConfidenceThreshold > 1 {
			return 0, 0, domain.ErrValidation("confidence_threshold must be between 0 and 1")
		}
		threshold = *req.ConfidenceThreshold
	}
	return maxRetries, threshold, nil
}

// confidence rates sql, falling back to a neutral score on failure.
func (s *Service) confidence(ctx context.Context, question, sql string) float64 {
	c, err := s.llm.AssessConfidence(ctx, question, sql)
	if err != nil {
		s.logger.Warn("confidence assessment failed", "error", err)
		return fallbackConfidence
	}
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}

func unknownColumnsFeedback(unknown []string) string {
	return fmt.Sprintf("The query referenced columns that do not exist in the schema: %s. Use only the listed columns.",
		strings.Join(unknown, ", "))
}

// record writes a history entry. Failures are logged, never returned.
func (s *Service) record(ctx context.Context, principal string, req AskRequest, ans *Answer, start time.Time, askErr error) {
	if s.history == nil {
		return
	}
	e := &domain.HistoryEntry{
		PrincipalName: principal,
		SchemaName:    req.SchemaName,
		Question:      req.Question,
		DurationMs:    time.Since(start).Milliseconds(),
	}
	if ans != nil {
		e.Tables = ans.Tables
		e.Attempts = ans.Attempts
		e.ValidationPassed = ans.ValidationPassed
		if ans.SQL != "" {
			sql := ans.SQL
			e.GeneratedSQL = &sql
		}
		if ans.ValidationPassed {
			c := ans.Confidence
			e.Confidence = &c
		}
	}
	switch {
	case askErr != nil:
		e.Status = domain.HistoryStatusFailed
		msg := askErr.Error()
		e.ErrorMessage = &msg
	case ans != nil && ans.ValidationPassed:
		e.Status = domain.HistoryStatusSuccess
	default:
		e.Status = domain.HistoryStatusInvalid
		if ans != nil {
			msg := ans.Message
			e.ErrorMessage = &msg
		}
	}
	// Record even when the request context was cancelled.
	if err := s.history.Record(context.WithoutCancel(ctx), e); err != nil {
		s.logger.Warn("record history failed", "error", err)
	}
}

// IsStructural reports whether err is one of the failures Ask does not retry.
func IsStructural(err error) bool {
	var (
		nr *domain.NoRelevantTablesError
		sv *domain.SchemaValidationError
		jp *domain.JoinPathError
		na *domain.DataNotAvailableError
	)
	return errors.As(err, &nr) || errors.As(err, &sv) || errors.As(err, &jp) || errors.As(err, &na)
}
