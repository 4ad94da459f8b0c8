package generator

import (
	"embed"
	"fmt"
	"strings"
	"text/template"
)

//go:embed prompts/*.tmpl
var promptFS embed.FS

var prompts = template.Must(template.ParseFS(promptFS, "prompts/*.tmpl"))

// promptData feeds both the system and the user template.
type promptData struct {
	Question string
	Tables   string
	Root     string
	JoinSQL  string
	Unjoined string // tables of a flat schema queried together
	KPIs     string
	Synonyms string
	Notes    string
	Glossary string
	Examples string
	Rules    string
}

func renderPrompts(data promptData) (system, user string, err error) {
	var b strings.Builder
	if err := prompts.ExecuteTemplate(&b, "system.tmpl", data); err != nil {
		return "", "", fmt.Errorf("render system prompt: %w", err)
	}
	system = strings.TrimSpace(b.String())

	b.Reset()
	if err := prompts.ExecuteTemplate(&b, "user.tmpl", data); err != nil {
		return "", "", fmt.Errorf("render user prompt: %w", err)
	}
	return system, strings.TrimSpace(b.String()), nil
}
