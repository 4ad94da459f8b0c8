package llm

import (
	"embed"
	"fmt"
	"strings"
	"text/template"
)

//go:embed prompts/*.tmpl
var promptFS embed.FS

var prompts = template.Must(template.ParseFS(promptFS, "prompts/*.tmpl"))

type selectorPrompt struct {
	Question      string
	SchemaSummary string
}

type confidencePrompt struct {
	Question string
	SQL      string
}

type fixPrompt struct {
	Question  string
	FailedSQL string
	Feedback  string
	Tables    string
	JoinSQL   string
	Rules     string
	Repeated  bool
}

func render(name string, data any) (string, error) {
	var b strings.Builder
	if err := prompts.ExecuteTemplate(&b, name, data); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", name, err)
	}
	return strings.TrimSpace(b.String()), nil
}
