// Package ddl builds the DuckDB statements used to expose data files as
// views. Every identifier is validated and every literal quoted here.
package ddl

import (
	"fmt"
	"regexp"
	"strings"
)

// MaxNameLen bounds view and secret names.
const MaxNameLen = 128

var (
	nameRe      = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
	nonNameRuns = regexp.MustCompile(`[^a-z0-9]+`)

	// Data files are frequently named in German.
	umlauts = strings.NewReplacer("ä", "ae", "ö", "oe", "ü", "ue", "ß", "ss")
)

// ValidateName reports whether name can be used unquoted as a view or
// secret name.
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("name is required")
	case len(name) > MaxNameLen:
		return fmt.Errorf("name %q exceeds %d characters", name[:16]+"...", MaxNameLen)
	case !nameRe.MatchString(name):
		return fmt.Errorf("name %q must match %s", name, nameRe.String())
	}
	return nil
}

// QuoteIdentifier double-quotes name, doubling embedded quotes.
func QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteLiteral single-quotes value, doubling embedded quotes.
func QuoteLiteral(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}

// SanitizeTableName derives a view name from a file stem. The result always
// passes ValidateName.
func SanitizeTableName(stem string) string {
	name := umlauts.Replace(strings.ToLower(stem))
	name = strings.Trim(nonNameRuns.ReplaceAllString(name, "_"), "_")
	if name == "" {
		return "table"
	}
	if name[0] >= '0' && name[0] <= '9' {
		name = "t_" + name
	}
	if len(name) > MaxNameLen {
		name = strings.TrimRight(name[:MaxNameLen], "_")
	}
	return name
}
