package schema

import (
	"fmt"
	"sort"
	"strings"
)

// SchemaSummary describes every table for a language-model prompt:
//
//	Table: fact_sales (fact)
//	- Grain: one row per sale
//	- Columns: store_key, date_key, sales_amount
func (d *Document) SchemaSummary() string {
	parts := make([]string, 0, len(d.Tables))
	for _, t := range d.Tables {
		parts = append(parts, fmt.Sprintf("Table: %s (%s)\n- Grain: %s\n- Columns: %s\n",
			t.Name, t.Role, t.Grain, strings.Join(t.ColumnNames(), ", ")))
	}
	return strings.Join(parts, "\n")
}

// TableDetails lists each named table with its column descriptions, key
// columns and foreign keys. Unknown names are skipped.
func (d *Document) TableDetails(names []string) string {
	var b strings.Builder
	for _, name := range names {
		t, ok := d.byName[name]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "Table: %s (%s)\n", t.Name, t.Role)
		if t.Grain != "" {
			fmt.Fprintf(&b, "Grain: %s\n", t.Grain)
		}
		if t.Description != "" {
			fmt.Fprintf(&b, "Description: %s\n", t.Description)
		}
		if t.PrimaryKey != "" {
			fmt.Fprintf(&b, "Primary key: %s\n", t.PrimaryKey)
		}
		b.WriteString("Columns:\n")
		for _, c := range t.Columns {
			if c.Description != "" {
				fmt.Fprintf(&b, "- %s.%s: %s\n", t.Name, c.Name, c.Description)
			} else {
				fmt.Fprintf(&b, "- %s.%s\n", t.Name, c.Name)
			}
		}
		for _, fk := range sortedKeys(t.ForeignKeys) {
			fmt.Fprintf(&b, "Foreign key: %s.%s -> %s\n", t.Name, fk, t.ForeignKeys[fk])
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// KPIsSummary formats every KPI, or "" when the schema declares none.
func (d *Document) KPIsSummary() string {
	return d.kpiBlock(sortedKeys(d.KPIs))
}

// KPIsSummaryFor formats only the given KPI keys.
func (d *Document) KPIsSummaryFor(keys []string) string {
	return d.kpiBlock(keys)
}

func (d *Document) kpiBlock(keys []string) string {
	var lines []string
	for _, key := range keys {
		kpi, ok := d.KPIs[key]
		if !ok {
			continue
		}
		line := fmt.Sprintf("- %s: %s\n  Formula: %s", key, kpi.Description, kpi.Formula)
		if len(kpi.Keywords) > 0 {
			line += "\n  Keywords: " + strings.Join(kpi.Keywords, ", ")
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return ""
	}
	return "Available KPIs:\n" + strings.Join(lines, "\n")
}

// SynonymsSummary formats the business-term mapping, or "" when empty.
func (d *Document) SynonymsSummary() string {
	if len(d.Synonyms) == 0 {
		return ""
	}
	lines := []string{"Business terms:"}
	for _, term := range sortedKeys(d.Synonyms) {
		s := d.Synonyms[term]
		target := s.Table
		if s.Column != "" {
			target = s.Table + "." + s.Column
		}
		line := fmt.Sprintf("- %q -> %s", term, target)
		if s.Description != "" {
			line += " (" + s.Description + ")"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// NotesSummary formats schema notes as a bullet list, or "".
func (d *Document) NotesSummary() string {
	if len(d.Notes) == 0 {
		return ""
	}
	lines := make([]string, len(d.Notes))
	for i, n := range d.Notes {
		lines[i] = "- " + n
	}
	return strings.Join(lines, "\n")
}

// ExamplesSummary formats example question/SQL pairs, or "".
func (d *Document) ExamplesSummary() string {
	var parts []string
	for _, ex := range d.Examples {
		if ex.Question == "" || ex.SQL == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("Q: %s\nSQL: %s", ex.Question, ex.SQL))
	}
	return strings.Join(parts, "\n\n")
}

// GlossarySummary formats glossary terms, or "".
func (d *Document) GlossarySummary() string {
	if len(d.Glossary) == 0 {
		return ""
	}
	lines := make([]string, 0, len(d.Glossary))
	for _, term := range sortedKeys(d.Glossary) {
		lines = append(lines, fmt.Sprintf("- %s: %s", term, d.Glossary[term]))
	}
	return strings.Join(lines, "\n")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
