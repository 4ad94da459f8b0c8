package schema

import (
	"fmt"
	"strings"
)

// JoinPath is a join tree over the requested tables. Tables[0] is the root
// and every other table is attached by the relationship at the same
// position minus one.
type JoinPath struct {
	Tables        []string
	Relationships []Relationship
}

// ToSQL renders one join line per relationship in attachment order.
func (p *JoinPath) ToSQL() string {
	if p == nil || len(p.Relationships) == 0 {
		return ""
	}
	lines := make([]string, len(p.Relationships))
	for i, r := range p.Relationships {
		lines[i] = fmt.Sprintf("%s  %s ON %s.%s = %s.%s",
			r.JoinType, r.ToTable, r.FromTable, r.FromColumn, r.ToTable, r.ToColumn)
	}
	return strings.Join(lines, "\n")
}

// FromClause renders "FROM root" followed by the join lines.
func (p *JoinPath) FromClause() string {
	if p == nil || len(p.Tables) == 0 {
		return ""
	}
	from := "FROM " + p.Tables[0]
	if joins := p.ToSQL(); joins != "" {
		from += "\n" + joins
	}
	return from
}

// Root returns the table the path is anchored at.
func (p *JoinPath) Root() string {
	if p == nil || len(p.Tables) == 0 {
		return ""
	}
	return p.Tables[0]
}

// FindJoinPath connects the required tables through declared relationships.
//
// The root is the first fact table among required, or the first table when
// none is a fact table. Remaining tables are attached greedily: each pass
// attaches the first remaining table that some relationship links to an
// already-connected table, then restarts. A pass that attaches nothing means
// the tables are disconnected and no path is returned.
//
// Edges are undirected. An edge found from the far side is emitted reversed
// and keeps the declared join type.
func (d *Document) FindJoinPath(required []string) (*JoinPath, bool) {
	tables := dedupe(required)
	if len(tables) == 0 {
		return nil, false
	}

	root := d.pickRoot(tables)
	path := &JoinPath{Tables: []string{root}}
	connected := map[string]bool{root: true}
	remaining := make([]string, 0, len(tables)-1)
	for _, t := range tables {
		if t != root {
			remaining = append(remaining, t)
		}
	}

	for len(remaining) > 0 {
		attached := false
		for i, target := range remaining {
			rel, ok := d.findRelationship(connected, target)
			if !ok {
				continue
			}
			path.Tables = append(path.Tables, target)
			path.Relationships = append(path.Relationships, rel)
			connected[target] = true
			remaining = append(remaining[:i:i], remaining[i+1:]...)
			attached = true
			break
		}
		if !attached {
			return nil, false
		}
	}
	return path, true
}

func (d *Document) pickRoot(tables []string) string {
	for _, name := range tables {
		if t, ok := d.byName[name]; ok && t.IsFact() {
			return name
		}
		if strings.HasPrefix(strings.ToLower(name), "fact_") {
			return name
		}
	}
	return tables[0]
}

// findRelationship returns the first declared edge linking a connected table
// to target, oriented so that ToTable == target.
func (d *Document) findRelationship(connected map[string]bool, target string) (Relationship, bool) {
	for _, rel := range d.Relationships {
		if connected[rel.FromTable] && rel.ToTable == target {
			return rel, true
		}
		if connected[rel.ToTable] && rel.FromTable == target {
			return rel.Reversed(), true
		}
	}
	return Relationship{}, false
}

func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
