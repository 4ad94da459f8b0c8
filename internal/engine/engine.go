// Package engine runs generated SQL on DuckDB over uploaded data files.
// Each file is exposed as a view so questions about a flat schema can be
// answered against the physical data.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2" // registers the "duckdb" driver
	"golang.org/x/sync/errgroup"

	"talk2data/internal/ddl"
)

// DefaultMaxRows caps the rows Query returns unless overridden.
const DefaultMaxRows = 1000

// FileItem is one data file to register. Source is a local path or an
// s3://, gs://, az:// or https:// URI. Name overrides the view name derived
// from the file stem; Format overrides detection by extension.
type FileItem struct {
	Source string `json:"source"`
	Name   string `json:"name,omitempty"`
	Format string `json:"format,omitempty"`
}

// S3Credentials configure the DuckDB secret used for s3:// sources.
type S3Credentials struct {
	KeyID    string
	Secret   string
	Region   string
	Endpoint string
	URLStyle string
}

// AzureCredentials configure the DuckDB secret used for az:// sources.
// ConnectionString wins over the account pair.
type AzureCredentials struct {
	AccountName      string
	AccountKey       string
	ConnectionString string
}

// GCSCredentials are the HMAC keys used for gs:// sources.
type GCSCredentials struct {
	KeyID  string
	Secret string
}

// Options tune a FileConnector.
type Options struct {
	S3      *S3Credentials
	Azure   *AzureCredentials
	GCS     *GCSCredentials
	MaxRows int
	Logger  *slog.Logger
}

// Column describes one column of a registered view.
type Column struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// QueryResult holds the rows of a query. Truncated is set when more rows
// were available than MaxRows.
type QueryResult struct {
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows"`
	RowCount  int      `json:"row_count"`
	Truncated bool     `json:"truncated"`
}

// FileConnector exposes data files as DuckDB views.
type FileConnector struct {
	db      *sql.DB
	ownsDB  bool
	tables  []string
	secrets []string
	maxRows int
	logger  *slog.Logger
}

// Open creates an in-memory DuckDB database and registers files in it. The
// connector owns the database and closes it on Close.
func Open(ctx context.Context, files []FileItem, opts Options) (*FileConnector, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	fc, err := NewFileConnector(ctx, db, files, opts)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	fc.ownsDB = true
	return fc, nil
}

// NewFileConnector registers files as views in db. View names are
// SanitizeTableName of the file stem, deduplicated with a numeric suffix.
func NewFileConnector(ctx context.Context, db *sql.DB, files []FileItem, opts Options) (*FileConnector, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("at least one file is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxRows := opts.MaxRows
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	fc := &FileConnector{db: db, maxRows: maxRows, logger: logger.With("component", "engine")}

	if err := fc.prepareRemote(ctx, files, opts); err != nil {
		return nil, err
	}

	used := make(map[string]int, len(files))
	for _, f := range files {
		name, err := fc.register(ctx, f, used)
		if err != nil {
			return nil, err
		}
		fc.tables = append(fc.tables, name)
	}
	return fc, nil
}

func (fc *FileConnector) prepareRemote(ctx context.Context, files []FileItem, opts Options) error {
	var needHTTPFS, needAzure, needS3, needGCS bool
	for _, f := range files {
		switch scheme(f.Source) {
		case "s3":
			needHTTPFS, needS3 = true, true
		case "gs", "gcs":
			needHTTPFS, needGCS = true, true
		case "http", "https":
			needHTTPFS = true
		case "az", "azure", "abfss":
			needAzure = true
		}
	}
	if needHTTPFS {
		if err := installExtension(ctx, fc.db, "httpfs"); err != nil {
			return err
		}
	}
	if needAzure {
		if err := installExtension(ctx, fc.db, "azure"); err != nil {
			return err
		}
	}

	if c := opts.S3; needS3 && c != nil && c.KeyID != "" {
		if err := fc.createSecret(ctx, "talk2data_s3", func(name string) (string, error) {
			return ddl.CreateS3Secret(name, c.KeyID, c.Secret, c.Endpoint, c.Region, c.URLStyle)
		}); err != nil {
			return err
		}
	}
	if c := opts.Azure; needAzure && c != nil && (c.ConnectionString != "" || c.AccountKey != "") {
		if err := fc.createSecret(ctx, "talk2data_azure", func(name string) (string, error) {
			return ddl.CreateAzureSecret(name, c.AccountName, c.AccountKey, c.ConnectionString)
		}); err != nil {
			return err
		}
	}
	if c := opts.GCS; needGCS && c != nil && c.KeyID != "" {
		if err := fc.createSecret(ctx, "talk2data_gcs", func(name string) (string, error) {
			return ddl.CreateGCSSecret(name, c.KeyID, c.Secret)
		}); err != nil {
			return err
		}
	}
	return nil
}

func (fc *FileConnector) createSecret(ctx context.Context, name string, build func(string) (string, error)) error {
	stmt, err := build(name)
	if err != nil {
		return fmt.Errorf("build DDL: %w", err)
	}
	if _, err := fc.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create secret %s: %w", name, err)
	}
	fc.secrets = append(fc.secrets, name)
	return nil
}

func installExtension(ctx context.Context, db *sql.DB, name string) error {
	stmt := fmt.Sprintf("INSTALL %s; LOAD %s;", name, name)
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("extension setup (%s): %w", name, err)
	}
	return nil
}

func (fc *FileConnector) register(ctx context.Context, f FileItem, used map[string]int) (string, error) {
	if f.Source == "" {
		return "", fmt.Errorf("file source is required")
	}
	format := f.Format
	if format == "" {
		detected, err := ddl.FileFormat(f.Source)
		if err != nil {
			return "", err
		}
		format = detected
	}

	name := f.Name
	if name == "" {
		name = ddl.SanitizeTableName(stem(f.Source))
	}
	if n := used[name]; n > 0 {
		used[name] = n + 1
		name = fmt.Sprintf("%s_%d", name, n+1)
	}
	used[name]++

	stmt, err := ddl.CreateFileView(name, localPath(f.Source), format)
	if err != nil {
		return "", fmt.Errorf("file %s: %w", f.Source, err)
	}
	if _, err := fc.db.ExecContext(ctx, stmt); err != nil {
		return "", fmt.Errorf("register file %s: %w", f.Source, err)
	}
	fc.logger.Debug("registered file", "source", f.Source, "view", name, "format", format)
	return name, nil
}

// ListTables returns the registered view names in registration order.
func (fc *FileConnector) ListTables() []string {
	return append([]string(nil), fc.tables...)
}

// DescribeTable returns the columns of a registered view.
func (fc *FileConnector) DescribeTable(ctx context.Context, name string) ([]Column, error) {
	stmt, err := ddl.DescribeView(name)
	if err != nil {
		return nil, err
	}
	rows, err := fc.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", name, err)
	}
	defer rows.Close() //nolint:errcheck

	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var cols []Column
	for rows.Next() {
		vals := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan describe row: %w", err)
		}
		// column_name, column_type, null, key, default, extra
		col := Column{Name: asString(vals[0]), Type: asString(vals[1])}
		if len(vals) > 2 {
			col.Nullable = strings.EqualFold(asString(vals[2]), "YES")
		}
		cols = append(cols, col)
	}
	return cols, rows.Err()
}

// DescribeAll describes every registered view concurrently.
func (fc *FileConnector) DescribeAll(ctx context.Context) (map[string][]Column, error) {
	results := make([][]Column, len(fc.tables))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, name := range fc.tables {
		g.Go(func() error {
			cols, err := fc.DescribeTable(gctx, name)
			if err != nil {
				return err
			}
			results[i] = cols
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make(map[string][]Column, len(fc.tables))
	for i, name := range fc.tables {
		out[name] = results[i]
	}
	return out, nil
}

// Query runs sql and collects at most MaxRows rows.
func (fc *FileConnector) Query(ctx context.Context, query string) (*QueryResult, error) {
	rows, err := fc.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	res := &QueryResult{Columns: cols, Rows: [][]any{}}
	for rows.Next() {
		if len(res.Rows) >= fc.maxRows {
			res.Truncated = true
			break
		}
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		res.Rows = append(res.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	res.RowCount = len(res.Rows)
	return res, nil
}

// Close drops the registered views and secrets, or closes the database when the
// connector opened it.
func (fc *FileConnector) Close() error {
	if fc.ownsDB {
		return fc.db.Close()
	}
	ctx := context.Background()
	for _, name := range fc.tables {
		stmt, err := ddl.DropView(name)
		if err != nil {
			continue
		}
		if _, err := fc.db.ExecContext(ctx, stmt); err != nil {
			fc.logger.Warn("drop view failed", "view", name, "error", err)
		}
	}
	for _, name := range fc.secrets {
		stmt, err := ddl.DropSecret(name)
		if err != nil {
			continue
		}
		if _, err := fc.db.ExecContext(ctx, stmt); err != nil {
			fc.logger.Warn("drop secret failed", "secret", name, "error", err)
		}
	}
	return nil
}

func scheme(source string) string {
	if i := strings.Index(source, "://"); i > 0 {
		return strings.ToLower(source[:i])
	}
	return ""
}

// IsRemote reports whether source is a URI rather than a local path.
func IsRemote(source string) bool {
	s := scheme(source)
	return s != "" && s != "file"
}

// localPath keeps URIs as-is and converts local paths to forward slashes.
func localPath(source string) string {
	if scheme(source) != "" {
		return source
	}
	return strings.ReplaceAll(source, `\`, "/")
}

// stem returns the file name without directories and extensions.
func stem(source string) string {
	s := localPath(source)
	if i := strings.IndexAny(s, "?#"); i >= 0 && scheme(s) != "" {
		s = s[:i]
	}
	base := path.Base(s)
	if i := strings.IndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	return base
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}
