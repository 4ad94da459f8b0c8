package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"talk2data/internal/domain"
)

type rawDocument struct {
	Schema        *rawSchema        `json:"schema"`
	Tables        []rawTable        `json:"tables"`
	Relationships []rawRelationship `json:"relationships"`
	Notes         json.RawMessage   `json:"notes"`

	// Legacy single-table shape.
	Table       string         `json:"table"`
	Description string         `json:"description"`
	Grain       string         `json:"grain"`
	Columns     orderedColumns `json:"columns"`
	PrimaryKey  string         `json:"primary_key"`

	Synonyms map[string]Synonym         `json:"synonyms"`
	KPIs     map[string]KPI             `json:"kpis"`
	Examples []Example                  `json:"examples"`
	Glossary map[string]json.RawMessage `json:"glossary"`
}

type rawSchema struct {
	Tables        []rawTable        `json:"tables"`
	Relationships []rawRelationship `json:"relationships"`
	Notes         json.RawMessage   `json:"notes"`
}

type rawTable struct {
	Name        string            `json:"name"`
	Role        string            `json:"role"`
	Grain       string            `json:"grain"`
	Description string            `json:"description"`
	Columns     orderedColumns    `json:"columns"`
	PrimaryKey  string            `json:"primary_key"`
	ForeignKeys map[string]string `json:"foreign_keys"`
}

type rawRelationship struct {
	From        string `json:"from"`
	To          string `json:"to"`
	JoinType    string `json:"join_type"`
	Description string `json:"description"`
}

// orderedColumns decodes a JSON object of column -> description keeping the
// document order. A list of names or of {name, description} objects is
// accepted too.
type orderedColumns []Column

func (c *orderedColumns) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*c = nil
		return nil
	}

	if trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return err
		}
		cols := make([]Column, 0, len(items))
		for _, item := range items {
			var name string
			if err := json.Unmarshal(item, &name); err == nil {
				cols = append(cols, Column{Name: name})
				continue
			}
			var obj struct {
				Name        string `json:"name"`
				Description string `json:"description"`
			}
			if err := json.Unmarshal(item, &obj); err != nil {
				return fmt.Errorf("column entry: %w", err)
			}
			cols = append(cols, Column{Name: obj.Name, Description: obj.Description})
		}
		*c = cols
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("columns must be an object or a list, got %v", tok)
	}
	var cols []Column
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		cols = append(cols, Column{Name: key, Description: describe(raw)})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*c = cols
	return nil
}

// describe renders a free-form JSON value as text: strings as-is, objects by
// their "description" field, anything else compacted.
func describe(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Description string `json:"description"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Description != "" {
		return obj.Description
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

func parseNotes(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil && single != "" {
		return []string{single}
	}
	return nil
}

// Load parses a JSON schema document. Both the star-schema shape and the
// legacy single-table shape are accepted; the latter becomes one table of
// role "table". Malformed relationship entries are skipped with a warning.
func Load(raw []byte) (*Document, error) {
	return LoadWithLogger(raw, slog.Default())
}

// LoadWithLogger is Load with an explicit logger for skipped entries.
func LoadWithLogger(raw []byte, logger *slog.Logger) (*Document, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var rd rawDocument
	if err := json.Unmarshal(raw, &rd); err != nil {
		return nil, domain.ErrSchemaFormat("invalid schema JSON: %v", err)
	}

	tables := rd.Tables
	rels := rd.Relationships
	notes := parseNotes(rd.Notes)
	if rd.Schema != nil {
		tables = append(tables, rd.Schema.Tables...)
		rels = append(rels, rd.Schema.Relationships...)
		notes = append(notes, parseNotes(rd.Schema.Notes)...)
	}
	if len(tables) == 0 && rd.Table != "" {
		tables = []rawTable{{
			Name:        rd.Table,
			Role:        RoleTable,
			Grain:       rd.Grain,
			Description: rd.Description,
			Columns:     rd.Columns,
			PrimaryKey:  rd.PrimaryKey,
		}}
	}
	if len(tables) == 0 {
		return nil, domain.ErrSchemaFormat("schema declares no tables")
	}

	doc := &Document{
		Synonyms: rd.Synonyms,
		KPIs:     rd.KPIs,
		Notes:    notes,
		Examples: rd.Examples,
		Glossary: make(map[string]string, len(rd.Glossary)),
	}
	for term, def := range rd.Glossary {
		doc.Glossary[term] = describe(def)
	}

	seen := make(map[string]bool, len(tables))
	for _, rt := range tables {
		name := strings.TrimSpace(rt.Name)
		if name == "" {
			logger.Warn("skipping table without name")
			continue
		}
		if seen[name] {
			logger.Warn("skipping duplicate table", "table", name)
			continue
		}
		seen[name] = true
		role := strings.ToLower(strings.TrimSpace(rt.Role))
		if role == "" {
			role = RoleTable
		}
		doc.Tables = append(doc.Tables, &Table{
			Name:        name,
			Role:        role,
			Grain:       rt.Grain,
			Description: rt.Description,
			Columns:     []Column(rt.Columns),
			PrimaryKey:  rt.PrimaryKey,
			ForeignKeys: rt.ForeignKeys,
		})
	}

	for _, rr := range rels {
		rel, ok := parseRelationship(rr)
		if !ok {
			logger.Warn("invalid relationship format", "from", rr.From, "to", rr.To)
			continue
		}
		doc.Relationships = append(doc.Relationships, rel)
	}

	doc.index()
	return doc, nil
}

func parseRelationship(rr rawRelationship) (Relationship, bool) {
	from := strings.Split(strings.TrimSpace(rr.From), ".")
	to := strings.Split(strings.TrimSpace(rr.To), ".")
	if len(from) != 2 || len(to) != 2 {
		return Relationship{}, false
	}
	for _, part := range append(from, to...) {
		if part == "" {
			return Relationship{}, false
		}
	}
	joinType := strings.TrimSpace(rr.JoinType)
	if joinType == "" {
		joinType = DefaultJoinType
	}
	return Relationship{
		FromTable:   from[0],
		FromColumn:  from[1],
		ToTable:     to[0],
		ToColumn:    to[1],
		JoinType:    strings.ToUpper(joinType),
		Description: rr.Description,
	}, true
}

// LoadYAML parses the same document authored as YAML. Key order is kept so
// column order matches the file.
func LoadYAML(raw []byte) (*Document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return nil, domain.ErrSchemaFormat("invalid schema YAML: %v", err)
	}
	var buf bytes.Buffer
	if err := writeYAMLAsJSON(&buf, &root); err != nil {
		return nil, domain.ErrSchemaFormat("convert schema YAML: %v", err)
	}
	return Load(buf.Bytes())
}

// LoadFile reads a schema document from disk, choosing the decoder by extension.
func LoadFile(path string) (*Document, error) {
	raw, err := os.ReadFile(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadYAML(raw)
	default:
		return Load(raw)
	}
}

// ToJSON converts a YAML schema document to JSON with key order preserved.
// JSON input is returned compacted.
func ToJSON(raw []byte) ([]byte, error) {
	if json.Valid(raw) {
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	var root yaml.Node
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return nil, domain.ErrSchemaFormat("invalid schema document: %v", err)
	}
	var buf bytes.Buffer
	if err := writeYAMLAsJSON(&buf, &root); err != nil {
		return nil, domain.ErrSchemaFormat("convert schema YAML: %v", err)
	}
	return buf.Bytes(), nil
}

func writeYAMLAsJSON(buf *bytes.Buffer, n *yaml.Node) error {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			buf.WriteString("null")
			return nil
		}
		return writeYAMLAsJSON(buf, n.Content[0])
	case yaml.MappingNode:
		buf.WriteByte('{')
		for i := 0; i+1 < len(n.Content); i += 2 {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(n.Content[i].Value)
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := writeYAMLAsJSON(buf, n.Content[i+1]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case yaml.SequenceNode:
		buf.WriteByte('[')
		for i, item := range n.Content {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeYAMLAsJSON(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case yaml.AliasNode:
		return writeYAMLAsJSON(buf, n.Alias)
	case yaml.ScalarNode:
		var v interface{}
		if err := n.Decode(&v); err != nil {
			return err
		}
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		buf.Write(b)
	default:
		return fmt.Errorf("unsupported YAML node kind %d", n.Kind)
	}
	return nil
}
