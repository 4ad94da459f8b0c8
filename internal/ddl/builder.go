package ddl

import (
	"fmt"
	"strings"
)

// FileFormat returns the reader format for a path by its extension:
// "csv" for .csv/.tsv/.txt (optionally gzipped), "parquet" for .parquet,
// "json" for .json/.ndjson/.jsonl.
func FileFormat(path string) (string, error) {
	p := strings.ToLower(path)
	p = strings.TrimSuffix(p, ".gz")
	switch {
	case strings.HasSuffix(p, ".csv"), strings.HasSuffix(p, ".tsv"), strings.HasSuffix(p, ".txt"):
		return "csv", nil
	case strings.HasSuffix(p, ".parquet"):
		return "parquet", nil
	case strings.HasSuffix(p, ".json"), strings.HasSuffix(p, ".ndjson"), strings.HasSuffix(p, ".jsonl"):
		return "json", nil
	default:
		return "", fmt.Errorf("unsupported file type: %q", path)
	}
}

func readFunc(fileFormat string) (string, error) {
	switch strings.ToLower(fileFormat) {
	case "csv", "":
		return "read_csv_auto", nil
	case "parquet":
		return "read_parquet", nil
	case "json":
		return "read_json_auto", nil
	default:
		return "", fmt.Errorf("unsupported file format: %q", fileFormat)
	}
}

// CreateFileView generates a view over a data file.
//
//	CREATE OR REPLACE VIEW "sales" AS SELECT * FROM read_csv_auto('s3://bucket/sales.csv')
func CreateFileView(view, sourcePath, fileFormat string) (string, error) {
	if err := ValidateName(view); err != nil {
		return "", fmt.Errorf("invalid view name: %w", err)
	}
	if sourcePath == "" {
		return "", fmt.Errorf("source path is required")
	}
	fn, err := readFunc(fileFormat)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("CREATE OR REPLACE VIEW %s AS SELECT * FROM %s(%s)",
		QuoteIdentifier(view), fn, QuoteLiteral(sourcePath)), nil
}

// DescribeView generates a DESCRIBE statement for a registered view.
func DescribeView(view string) (string, error) {
	if err := ValidateName(view); err != nil {
		return "", fmt.Errorf("invalid view name: %w", err)
	}
	return "DESCRIBE " + QuoteIdentifier(view), nil
}

// DropView generates a DROP VIEW IF EXISTS statement.
func DropView(view string) (string, error) {
	if err := ValidateName(view); err != nil {
		return "", fmt.Errorf("invalid view name: %w", err)
	}
	return "DROP VIEW IF EXISTS " + QuoteIdentifier(view), nil
}

// CreateS3Secret returns a DuckDB DDL statement to create an S3 secret.
// Empty endpoint and URL style are left to DuckDB's defaults.
func CreateS3Secret(name, keyID, secret, endpoint, region, urlStyle string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("secret name is required")
	}
	parts := []string{
		"TYPE S3",
		"KEY_ID " + QuoteLiteral(keyID),
		"SECRET " + QuoteLiteral(secret),
		"REGION " + QuoteLiteral(region),
	}
	if endpoint != "" {
		parts = append(parts, "ENDPOINT "+QuoteLiteral(endpoint))
	}
	if urlStyle != "" {
		parts = append(parts, "URL_STYLE "+QuoteLiteral(urlStyle))
	}
	return fmt.Sprintf("CREATE OR REPLACE SECRET %s (\n\t%s\n)",
		QuoteIdentifier(name), strings.Join(parts, ",\n\t")), nil
}

// CreateAzureSecret returns a DuckDB DDL statement to create an Azure secret.
func CreateAzureSecret(name, accountName, accountKey, connectionString string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("secret name is required")
	}
	if connectionString != "" {
		return fmt.Sprintf("CREATE OR REPLACE SECRET %s (\n\tTYPE AZURE,\n\tCONNECTION_STRING %s\n)",
			QuoteIdentifier(name), QuoteLiteral(connectionString)), nil
	}
	return fmt.Sprintf("CREATE OR REPLACE SECRET %s (\n\tTYPE AZURE,\n\tACCOUNT_NAME %s,\n\tACCOUNT_KEY %s\n)",
		QuoteIdentifier(name), QuoteLiteral(accountName), QuoteLiteral(accountKey)), nil
}

// CreateGCSSecret returns a DuckDB DDL statement to create a GCS secret from
// HMAC credentials.
func CreateGCSSecret(name, keyID, secret string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("secret name is required")
	}
	return fmt.Sprintf("CREATE OR REPLACE SECRET %s (\n\tTYPE GCS,\n\tKEY_ID %s,\n\tSECRET %s\n)",
		QuoteIdentifier(name), QuoteLiteral(keyID), QuoteLiteral(secret)), nil
}

// DropSecret returns a DuckDB DDL statement: DROP SECRET IF EXISTS "<name>".
func DropSecret(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("secret name is required")
	}
	return fmt.Sprintf("DROP SECRET IF EXISTS %s", QuoteIdentifier(name)), nil
}
