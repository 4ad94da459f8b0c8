// Package schema holds the parsed star-schema model and the join-path
// resolver that connects its tables through declared relationships.
package schema

import "strings"

// Table roles.
const (
	RoleFact      = "fact"
	RoleDimension = "dimension"
	RoleTable     = "table"
)

// DefaultJoinType is used when a relationship does not declare one.
const DefaultJoinType = "LEFT JOIN"

// Column is one declared column of a table.
type Column struct {
	Name        string
	Description string
}

// Table is a fact, dimension, or flat table of the schema.
type Table struct {
	Name        string
	Role        string
	Grain       string
	Description string
	Columns     []Column
	PrimaryKey  string
	ForeignKeys map[string]string // fk column -> "table.column"

	colIndex map[string]int // lower-cased column name -> index into Columns
}

// ColumnNames returns the column names in declaration order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// HasColumn reports whether the table declares the column. Matching is
// case-insensitive, as SQL identifiers are.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.colIndex[strings.ToLower(name)]
	return ok
}

// IsFact reports whether the table anchors a star: role "fact" or a
// "fact_" name prefix.
func (t *Table) IsFact() bool {
	return strings.EqualFold(t.Role, RoleFact) || strings.HasPrefix(strings.ToLower(t.Name), "fact_")
}

// Relationship is a declared join edge between two tables.
type Relationship struct {
	FromTable   string
	FromColumn  string
	ToTable     string
	ToColumn    string
	JoinType    string
	Description string
}

// Reversed returns the same edge traversed from the other side. The join
// type of the declaration is kept.
func (r Relationship) Reversed() Relationship {
	return Relationship{
		FromTable:   r.ToTable,
		FromColumn:  r.ToColumn,
		ToTable:     r.FromTable,
		ToColumn:    r.FromColumn,
		JoinType:    r.JoinType,
		Description: r.Description,
	}
}

// Synonym maps a business term to the schema element it refers to.
type Synonym struct {
	Table       string `json:"table"`
	Column      string `json:"column"`
	Description string `json:"description"`
}

// KPI is a named, predefined calculation.
type KPI struct {
	Formula     string   `json:"formula"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
}

// Example is a sample question with its reference SQL.
type Example struct {
	Question string `json:"question"`
	SQL      string `json:"sql"`
}

// Document is a parsed schema. It is read-only after Load returns and safe
// for concurrent use.
type Document struct {
	Tables        []*Table
	Relationships []Relationship
	Synonyms      map[string]Synonym
	KPIs          map[string]KPI
	Notes         []string
	Examples      []Example
	Glossary      map[string]string

	byName map[string]*Table
}

// Table returns the named table.
func (d *Document) Table(name string) (*Table, bool) {
	t, ok := d.byName[name]
	return t, ok
}

// TableNames returns table names in declaration order.
func (d *Document) TableNames() []string {
	names := make([]string, len(d.Tables))
	for i, t := range d.Tables {
		names[i] = t.Name
	}
	return names
}

// IsFlat reports whether the schema holds exactly one table. Join resolution
// and cross-table validation are skipped for flat schemas.
func (d *Document) IsFlat() bool {
	return len(d.Tables) == 1
}

// HasColumn reports whether table declares column.
func (d *Document) HasColumn(table, column string) bool {
	t, ok := d.byName[table]
	if !ok {
		return false
	}
	return t.HasColumn(column)
}

// MissingTables returns the names not declared by the schema, in input order.
func (d *Document) MissingTables(names []string) []string {
	var missing []string
	for _, n := range names {
		if _, ok := d.byName[n]; !ok {
			missing = append(missing, n)
		}
	}
	return missing
}

// MatchKPIs returns the keys of KPIs whose key or keywords occur in the
// question, sorted.
func (d *Document) MatchKPIs(question string) []string {
	q := strings.ToLower(question)
	var keys []string
	for _, key := range sortedKeys(d.KPIs) {
		kpi := d.KPIs[key]
		if strings.Contains(q, strings.ToLower(strings.ReplaceAll(key, "_", " "))) {
			keys = append(keys, key)
			continue
		}
		for _, kw := range kpi.Keywords {
			if kw != "" && strings.Contains(q, strings.ToLower(kw)) {
				keys = append(keys, key)
				break
			}
		}
	}
	return keys
}

func (d *Document) index() {
	d.byName = make(map[string]*Table, len(d.Tables))
	for _, t := range d.Tables {
		t.colIndex = make(map[string]int, len(t.Columns))
		for i, c := range t.Columns {
			t.colIndex[strings.ToLower(c.Name)] = i
		}
		d.byName[t.Name] = t
	}
}
