// Package sqlguard checks generated SQL against a fixed safety policy using
// pattern matching. It never parses or executes the statement.
package sqlguard

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// ErrorCodeMultipleViolations is reported whenever at least one check fails.
const ErrorCodeMultipleViolations = "MULTIPLE_VIOLATIONS"

// DefaultForbiddenCommands are statement keywords that may not appear anywhere
// in a query.
var DefaultForbiddenCommands = []string{
	"INSERT", "UPDATE", "DELETE", "DROP", "CREATE", "ALTER", "TRUNCATE",
	"MERGE", "EXEC", "CALL", "GRANT", "REVOKE",
}

// DefaultAllowedFunctions is the function allow-list.
var DefaultAllowedFunctions = []string{
	"SUM", "AVG", "COUNT", "MIN", "MAX",
	"DATE", "DATE_TRUNC", "YEAR", "MONTH", "DAY", "NOW", "CURRENT_DATE", "DATEDIFF", "DATE_ADD", "DATE_SUB",
	"UPPER", "LOWER", "SUBSTR", "LENGTH", "TRIM", "CONCAT", "REPLACE", "LEFT", "RIGHT",
	"ROUND", "ABS", "CEIL", "FLOOR", "COALESCE", "IFNULL", "NULLIF",
	"CAST", "CONVERT",
}

// dangerousPattern pairs a case-insensitive regex with the label reported
// when it matches. Order matters: the first match wins.
type dangerousPattern struct {
	re    *regexp.Regexp
	label string
}

var dangerousPatterns = []dangerousPattern{
	{regexp.MustCompile(`(?i);\s*(DROP|DELETE|UPDATE|ALTER|INSERT)`), "Command chaining with destructive SQL"},
	{regexp.MustCompile(`--\s`), "Inline SQL comment (possible injection)"},
	{regexp.MustCompile(`/\*[\s\S]*?\*/`), "Block SQL comment (possible injection)"},
	{regexp.MustCompile(`(?i)\bUNION\s+SELECT\b`), "UNION-based SQL injection attempt"},
	{regexp.MustCompile(`(?i)\bOR\s+1\s*=\s*1\b`), "Boolean-based SQL injection (OR 1=1)"},
	{regexp.MustCompile(`(?i)\bEXEC\b`), "EXEC call detected (dangerous procedure execution)"},
	{regexp.MustCompile(`(?i);\s*EXEC\b`), "Command chaining with EXEC (dangerous)"},
	{regexp.MustCompile(`(?i)\bxp_`), "Extended stored procedure call (SQL Server attack)"},
	{regexp.MustCompile(`(?i)\bINFORMATION_SCHEMA\b`), "Schema enumeration attempt (probing metadata)"},
}

// aggregationPatterns exempt a query from the LIMIT requirement. They run
// against the upper-cased, whitespace-collapsed query.
var aggregationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`SUM\s*\(`),
	regexp.MustCompile(`COUNT\s*\(`),
	regexp.MustCompile(`AVG\s*\(`),
	regexp.MustCompile(`MIN\s*\(`),
	regexp.MustCompile(`MAX\s*\(`),
	regexp.MustCompile(`GROUP\s+BY`),
	regexp.MustCompile(`HAVING\s+`),
	regexp.MustCompile(`DISTINCT\s+COUNT`),
}

var functionCallRe = regexp.MustCompile(`\b([a-zA-Z_]+)\s*\(`)

// notFunctions are keywords that may legitimately precede "(".
var notFunctions = map[string]bool{
	"IN": true, "AND": true, "OR": true, "NOT": true, "LIKE": true,
	"AS": true, "VALUES": true, "FROM": true, "JOIN": true,
}

// Result is the outcome of Validate. It serializes directly into API
// responses and corrective prompts.
type Result struct {
	OK           bool   `json:"ok"`
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	InvalidToken string `json:"invalid_token,omitempty"`
	SQL          string `json:"sql"`
}

// Validator applies the safety policy. The zero value is not usable; call New.
// A Validator is immutable and safe for concurrent use.
type Validator struct {
	forbidden   []string
	forbiddenRe *regexp.Regexp
	allowed     map[string]bool
}

// Option configures a Validator.
type Option func(*Validator)

// WithAllowedFunctions extends the function allow-list.
func WithAllowedFunctions(names ...string) Option {
	return func(v *Validator) {
		for _, n := range names {
			v.allowed[strings.ToUpper(strings.TrimSpace(n))] = true
		}
	}
}

// WithForbiddenCommands extends the command deny-list.
func WithForbiddenCommands(names ...string) Option {
	return func(v *Validator) {
		for _, n := range names {
			n = strings.ToUpper(strings.TrimSpace(n))
			if n != "" {
				v.forbidden = append(v.forbidden, n)
			}
		}
	}
}

// New returns a Validator with the default lists plus any options.
func New(opts ...Option) *Validator {
	v := &Validator{
		forbidden: append([]string(nil), DefaultForbiddenCommands...),
		allowed:   make(map[string]bool, len(DefaultAllowedFunctions)),
	}
	for _, f := range DefaultAllowedFunctions {
		v.allowed[f] = true
	}
	for _, opt := range opts {
		opt(v)
	}
	quoted := make([]string, len(v.forbidden))
	for i, f := range v.forbidden {
		quoted[i] = regexp.QuoteMeta(f)
	}
	v.forbiddenRe = regexp.MustCompile(`(?i)\b(` + strings.Join(quoted, "|") + `)\b`)
	return v
}

// Validate runs every check and collects all violations into one message
// joined by "; ". Checks are never short-circuited.
func (v *Validator) Validate(sql string) Result {
	var (
		violations []string
		token      string
	)
	fail := func(prefix, msg, tok string) {
		violations = append(violations, prefix+": "+msg)
		if token == "" {
			token = tok
		}
	}

	if cmd, ok := v.forbiddenCommand(sql); ok {
		fail("Security violation", "Forbidden SQL operation detected: "+cmd, cmd)
	}
	if label, ok := dangerousLabel(sql); ok {
		fail("Injection risk", label, "")
	}
	if fn, ok := v.forbiddenFunction(sql); ok {
		fail("Function restriction", "Forbidden SQL function detected: "+fn, fn)
	}
	if !hasLimitOrAggregation(sql) {
		fail("Missing requirement", "Query must contain a Limit Clause", "")
	}
	if !hasSelectShape(sql) {
		fail("Syntax error", "Query must start with SELECT or WITH", "")
	}

	if len(violations) > 0 {
		return Result{
			OK:           false,
			ErrorCode:    ErrorCodeMultipleViolations,
			ErrorMessage: strings.Join(violations, "; "),
			InvalidToken: token,
			SQL:          sql,
		}
	}
	return Result{OK: true, SQL: sql}
}

func (v *Validator) forbiddenCommand(sql string) (string, bool) {
	m := v.forbiddenRe.FindStringSubmatch(sql)
	if m == nil {
		return "", false
	}
	return strings.ToUpper(m[1]), true
}

func dangerousLabel(sql string) (string, bool) {
	for _, p := range dangerousPatterns {
		if p.re.MatchString(sql) {
			return p.label, true
		}
	}
	return "", false
}

func (v *Validator) forbiddenFunction(sql string) (string, bool) {
	for _, m := range functionCallRe.FindAllStringSubmatch(sql, -1) {
		name := strings.ToUpper(m[1])
		if notFunctions[name] {
			continue
		}
		if !v.allowed[name] {
			return m[1], true
		}
	}
	return "", false
}

func hasLimitOrAggregation(sql string) bool {
	upper := strings.ToUpper(sql)
	normalized := strings.Join(strings.Fields(upper), " ")
	for _, re := range aggregationPatterns {
		if re.MatchString(normalized) {
			return true
		}
	}
	return strings.Contains(upper, "LIMIT")
}

func hasSelectShape(sql string) bool {
	upper := strings.ToUpper(strings.TrimSpace(sql))
	return strings.HasPrefix(upper, "SELECT") || strings.HasPrefix(upper, "WITH")
}

// Rules renders the policy as prompt text so the model can keep to it
// before the validator ever sees its output.
func (v *Validator) Rules() string {
	allowed := make([]string, 0, len(v.allowed))
	for f := range v.allowed {
		allowed = append(allowed, f)
	}
	sort.Strings(allowed)

	var b strings.Builder
	b.WriteString("SECURITY RULES:\n")
	b.WriteString("- Only SELECT statements (optionally starting with WITH) are allowed.\n")
	fmt.Fprintf(&b, "- Never use these commands: %s.\n", strings.Join(v.forbidden, ", "))
	fmt.Fprintf(&b, "- Only these functions are allowed: %s.\n", strings.Join(allowed, ", "))
	b.WriteString("- Do not use SQL comments, UNION SELECT, OR 1=1, chained statements, extended procedures or INFORMATION_SCHEMA.\n")
	b.WriteString("- Non-aggregated queries must end with a LIMIT clause.\n")
	return b.String()
}
