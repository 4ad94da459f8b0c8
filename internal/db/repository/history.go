package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"talk2data/internal/domain"
)

var _ domain.HistoryRepository = (*HistoryRepo)(nil)

// HistoryRepo stores assistant answers in the query_history table. Writes use
// the single-connection pool; reads use the read pool.
type HistoryRepo struct {
	write *sql.DB
	read  *sql.DB
}

// NewHistoryRepo creates a HistoryRepo. read may be nil to use write for both.
func NewHistoryRepo(write, read *sql.DB) *HistoryRepo {
	if read == nil {
		read = write
	}
	return &HistoryRepo{write: write, read: read}
}

// Record inserts an entry, assigning an ID and timestamp when unset.
func (r *HistoryRepo) Record(ctx context.Context, e *domain.HistoryEntry) error {
	if e == nil {
		return domain.ErrValidation("history entry is required")
	}
	if e.ID == "" {
		e.ID = domain.NewID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	tables := e.Tables
	if tables == nil {
		tables = []string{}
	}
	tablesJSON, err := json.Marshal(tables)
	if err != nil {
		return fmt.Errorf("marshal tables: %w", err)
	}

	_, err = r.write.ExecContext(ctx, `
		INSERT INTO query_history (id, principal_name, schema_name, question, generated_sql, tables_json,
		    status, error_message, confidence, attempts, validation_passed, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.PrincipalName, e.SchemaName, e.Question, e.GeneratedSQL, string(tablesJSON),
		e.Status, e.ErrorMessage, e.Confidence, e.Attempts, boolToInt(e.ValidationPassed),
		e.DurationMs, e.CreatedAt.UTC().Format(timeLayout))
	return mapDBError(err)
}

// List returns one page of entries, newest first, and the total match count.
func (r *HistoryRepo) List(ctx context.Context, filter domain.HistoryFilter) ([]domain.HistoryEntry, int64, error) {
	var where []string
	var args []interface{}
	if filter.PrincipalName != nil {
		where = append(where, "principal_name = ?")
		args = append(args, *filter.PrincipalName)
	}
	if filter.SchemaName != nil {
		where = append(where, "schema_name = ?")
		args = append(args, *filter.SchemaName)
	}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, *filter.Status)
	}
	if filter.From != nil {
		where = append(where, "created_at >= ?")
		args = append(args, filter.From.UTC().Format(timeLayout))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := r.read.QueryRowContext(ctx, `SELECT count(*) FROM query_history`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count history: %w", err)
	}

	pageArgs := append(append([]interface{}{}, args...), filter.Page.Limit(), filter.Page.Offset())
	rows, err := r.read.QueryContext(ctx, `
		SELECT id, principal_name, schema_name, question, generated_sql, tables_json, status,
		       error_message, confidence, attempts, validation_passed, duration_ms, created_at
		FROM query_history`+clause+`
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`, pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	entries := []domain.HistoryEntry{}
	for rows.Next() {
		e, err := scanHistory(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate history: %w", err)
	}
	return entries, total, nil
}

func scanHistory(rows *sql.Rows) (*domain.HistoryEntry, error) {
	var (
		e          domain.HistoryEntry
		sqlText    sql.NullString
		tablesJSON string
		errMsg     sql.NullString
		confidence sql.NullFloat64
		passed     int64
		createdAt  string
	)
	if err := rows.Scan(&e.ID, &e.PrincipalName, &e.SchemaName, &e.Question, &sqlText, &tablesJSON,
		&e.Status, &errMsg, &confidence, &e.Attempts, &passed, &e.DurationMs, &createdAt); err != nil {
		return nil, fmt.Errorf("scan history: %w", err)
	}
	if sqlText.Valid {
		e.GeneratedSQL = &sqlText.String
	}
	if errMsg.Valid {
		e.ErrorMessage = &errMsg.String
	}
	if confidence.Valid {
		e.Confidence = &confidence.Float64
	}
	e.ValidationPassed = passed != 0
	if err := json.Unmarshal([]byte(tablesJSON), &e.Tables); err != nil {
		return nil, fmt.Errorf("decode tables of %s: %w", e.ID, err)
	}
	t, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at of %s: %w", e.ID, err)
	}
	e.CreatedAt = t
	return &e, nil
}
