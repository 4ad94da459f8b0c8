// Package generator turns a question into schema-consistent SQL: it selects
// tables, resolves their join path, prompts the model and checks the
// columns of the reply.
package generator

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"talk2data/internal/dates"
	"talk2data/internal/domain"
	"talk2data/internal/llm"
	"talk2data/internal/schema"
)

// errorSentinel prefixes a model reply that declines the question. The
// system prompt instructs the model to use it.
const errorSentinel = "ERROR:"

// TableSelector picks the tables for a question. Implemented by
// selector.Service.
type TableSelector interface {
	SelectTables(ctx context.Context, question string, doc *schema.Document, actualTableNames []string) ([]string, error)
}

// Request is one generation call.
type Request struct {
	Question         string
	Schema           *schema.Document
	ActualTableNames []string
}

// Result is the outcome of Generate. SQL is empty when the reply referenced
// undeclared columns; Unknown then lists them and Rejected keeps the reply.
// Listing is the table and column block the model was prompted with.
type Result struct {
	SQL      string
	Question string // after date normalization
	Tables   []string
	JoinPath *schema.JoinPath
	Listing  string
	Unknown  []string
	Rejected string
}

// Generator is the question-to-SQL pipeline.
type Generator struct {
	selector TableSelector
	llm      domain.SQLGeneratorLLM
	rules    string
	logger   *slog.Logger
}

// New creates a Generator. rules is the safety policy text placed in the
// system prompt.
func New(selector TableSelector, gen domain.SQLGeneratorLLM, rules string, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		selector: selector,
		llm:      gen,
		rules:    rules,
		logger:   logger.With("component", "generator"),
	}
}

// GenerateMultiTableSQL returns SQL for the question, or "" when the model
// referenced columns the schema does not declare.
func (g *Generator) GenerateMultiTableSQL(ctx context.Context, req Request) (string, error) {
	res, err := g.Generate(ctx, req)
	if err != nil {
		return "", err
	}
	return res.SQL, nil
}

// Generate runs the pipeline and reports the intermediate results.
//
// Structural failures are returned as errors: *domain.NoRelevantTablesError,
// *domain.SchemaValidationError, *domain.JoinPathError and
// *domain.DataNotAvailableError. Undeclared columns are not an error; the
// Result then carries no SQL.
func (g *Generator) Generate(ctx context.Context, req Request) (*Result, error) {
	if req.Schema == nil {
		return nil, domain.ErrValidation("schema is required")
	}
	doc := req.Schema
	question := dates.NormalizeWithLogger(req.Question, g.logger)

	tables, err := g.selector.SelectTables(ctx, question, doc, req.ActualTableNames)
	if err != nil {
		return nil, err
	}

	if !doc.IsFlat() {
		if missing := doc.MissingTables(tables); len(missing) > 0 {
			return nil, &domain.SchemaValidationError{Missing: missing, Available: doc.TableNames()}
		}
	}

	path, err := resolveJoinPath(doc, tables)
	if err != nil {
		return nil, err
	}

	data := g.promptData(question, doc, path)
	system, user, err := renderPrompts(data)
	if err != nil {
		return nil, err
	}

	reply, err := g.llm.GenerateSQL(ctx, system, user)
	if err != nil {
		return nil, err
	}
	sql := llm.StripCodeFences(reply)

	if err := DeclinedError(sql); err != nil {
		return nil, err
	}

	res := &Result{Question: question, Tables: path.Tables, JoinPath: path, Listing: data.Tables}
	if unknown := CheckColumns(sql, doc, path.Tables); len(unknown) > 0 {
		failure := &domain.ColumnValidationFailure{Unknown: unknown}
		g.logger.Warn("generated SQL rejected", "error", failure.Error(), "sql", sql)
		res.Unknown = unknown
		res.Rejected = sql
		return res, nil
	}
	res.SQL = sql
	return res, nil
}

// resolveJoinPath connects the selected tables. Flat schemas have no
// relationships, so every selected table is taken as is.
func resolveJoinPath(doc *schema.Document, tables []string) (*schema.JoinPath, error) {
	if doc.IsFlat() {
		return &schema.JoinPath{Tables: tables}, nil
	}
	path, ok := doc.FindJoinPath(tables)
	if !ok {
		if len(tables) > 1 {
			return nil, &domain.JoinPathError{Tables: tables}
		}
		path = &schema.JoinPath{Tables: tables}
	}
	return path, nil
}

// DeclinedError returns a *domain.DataNotAvailableError when reply starts
// with the ERROR: sentinel, and nil otherwise.
func DeclinedError(reply string) error {
	s := strings.TrimSpace(reply)
	if !strings.HasPrefix(strings.ToUpper(s), errorSentinel) {
		return nil
	}
	return &domain.DataNotAvailableError{Reason: strings.TrimSpace(s[len(errorSentinel):])}
}

func (g *Generator) promptData(question string, doc *schema.Document, path *schema.JoinPath) promptData {
	kpis := doc.KPIsSummaryFor(doc.MatchKPIs(question))
	if kpis == "" {
		kpis = doc.KPIsSummary()
	}
	data := promptData{
		Question: question,
		Tables:   tableListing(doc, path.Tables),
		Root:     path.Root(),
		JoinSQL:  path.ToSQL(),
		KPIs:     kpis,
		Synonyms: doc.SynonymsSummary(),
		Notes:    doc.NotesSummary(),
		Glossary: doc.GlossarySummary(),
		Examples: doc.ExamplesSummary(),
		Rules:    g.rules,
	}
	if data.JoinSQL == "" && len(path.Tables) > 1 {
		data.Unjoined = strings.Join(path.Tables, ", ")
	}
	return data
}

// tableListing describes the selected tables. A flat schema queried under a
// different physical name is listed under that name.
func tableListing(doc *schema.Document, tables []string) string {
	if doc.IsFlat() && len(doc.MissingTables(tables)) > 0 {
		declared := doc.Tables[0]
		var b strings.Builder
		for _, name := range tables {
			fmt.Fprintf(&b, "Table: %s\n", name)
			if declared.Grain != "" {
				fmt.Fprintf(&b, "Grain: %s\n", declared.Grain)
			}
			b.WriteString("Columns:\n")
			for _, c := range declared.Columns {
				if c.Description != "" {
					fmt.Fprintf(&b, "- %s.%s: %s\n", name, c.Name, c.Description)
				} else {
					fmt.Fprintf(&b, "- %s.%s\n", name, c.Name)
				}
			}
		}
		return strings.TrimRight(b.String(), "\n")
	}
	return doc.TableDetails(tables)
}

var (
	qualifiedRefRe = regexp.MustCompile(`\b([A-Za-z_][A-Za-z0-9_]*)\.([A-Za-z_][A-Za-z0-9_]*)\b`)
	stringLitRe    = regexp.MustCompile(`'(?:[^']|'')*'`)
)

// sqlKeywords are never table names even when followed by a dot.
var sqlKeywords = map[string]bool{
	"SELECT": true, "FROM": true, "WHERE": true, "JOIN": true, "LEFT": true, "RIGHT": true,
	"INNER": true, "OUTER": true, "FULL": true, "CROSS": true, "ON": true, "AND": true, "OR": true,
	"NOT": true, "GROUP": true, "BY": true, "ORDER": true, "HAVING": true, "LIMIT": true, "AS": true,
	"WITH": true, "UNION": true, "CASE": true, "WHEN": true, "THEN": true, "ELSE": true, "END": true,
	"IN": true, "IS": true, "NULL": true, "LIKE": true, "BETWEEN": true, "DISTINCT": true,
}

// CheckColumns returns the table.column references in sql that name one of
// tables but a column the schema does not declare, sorted and deduplicated.
// References through aliases or to other tables are not checked. For a flat
// schema every listed table is checked against the single declared table.
func CheckColumns(sql string, doc *schema.Document, tables []string) []string {
	byLower := make(map[string]*schema.Table, len(tables))
	for _, name := range tables {
		t, ok := doc.Table(name)
		if !ok && doc.IsFlat() {
			t, ok = doc.Tables[0], true
		}
		if ok {
			byLower[strings.ToLower(name)] = t
		}
	}

	stripped := stringLitRe.ReplaceAllString(sql, "''")
	seen := map[string]bool{}
	var unknown []string
	for _, m := range qualifiedRefRe.FindAllStringSubmatch(stripped, -1) {
		tableName, column := m[1], m[2]
		if sqlKeywords[strings.ToUpper(tableName)] {
			continue
		}
		t, ok := byLower[strings.ToLower(tableName)]
		if !ok {
			continue
		}
		if t.HasColumn(column) {
			continue
		}
		ref := tableName + "." + column
		if !seen[ref] {
			seen[ref] = true
			unknown = append(unknown, ref)
		}
	}
	sort.Strings(unknown)
	return unknown
}
