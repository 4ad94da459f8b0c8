package generator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talk2data/internal/domain"
	"talk2data/internal/schema"
	"talk2data/internal/service/selector"
	"talk2data/internal/sqlguard"
)

const retailJSON = `{
  "schema": {
    "tables": [
      {"name": "fact_sales", "role": "fact", "grain": "one row per sale",
       "columns": {"store_key": "store", "date_key": "date", "sales_amount": "net amount"}},
      {"name": "dim_store", "role": "dimension", "columns": {"store_key": "key", "store_name": "name"}},
      {"name": "dim_date", "role": "dimension", "columns": {"date_key": "key", "full_date": "calendar date"}},
      {"name": "dim_supplier", "role": "dimension", "columns": {"supplier_key": "key"}}
    ],
    "relationships": [
      {"from": "fact_sales.store_key", "to": "dim_store.store_key"},
      {"from": "fact_sales.date_key", "to": "dim_date.date_key"}
    ]
  },
  "kpis": {"total_revenue": {"formula": "SUM(fact_sales.sales_amount)", "description": "Revenue", "keywords": ["umsatz"]}},
  "synonyms": {"filiale": {"table": "dim_store", "column": "store_name"}}
}`

type fakeTableLLM struct{ tables []string }

func (f fakeTableLLM) SelectTables(context.Context, string, string) ([]string, error) {
	return f.tables, nil
}

type fakeSQLLLM struct {
	reply  string
	err    error
	system string
	user   string
}

func (f *fakeSQLLLM) GenerateSQL(_ context.Context, system, user string) (string, error) {
	f.system, f.user = system, user
	return f.reply, f.err
}

func (f *fakeSQLLLM) FixSQL(context.Context, domain.FixRequest) (string, error) {
	return "", errors.New("not used")
}

func (f *fakeSQLLLM) AssessConfidence(context.Context, string, string) (float64, error) {
	return 0, errors.New("not used")
}

func newGenerator(tables []string, gen *fakeSQLLLM) *Generator {
	sel := selector.NewService(fakeTableLLM{tables: tables}, nil)
	return New(sel, gen, sqlguard.New().Rules(), nil)
}

func loadDoc(t *testing.T, raw string) *schema.Document {
	t.Helper()
	doc, err := schema.Load([]byte(raw))
	require.NoError(t, err)
	return doc
}

func TestGenerate_StarSchema(t *testing.T) {
	gen := &fakeSQLLLM{reply: "```sql\nSELECT dim_store.store_name, SUM(fact_sales.sales_amount)\nFROM fact_sales\nLEFT JOIN  dim_store ON fact_sales.store_key = dim_store.store_key\nLEFT JOIN  dim_date ON fact_sales.date_key = dim_date.date_key\nWHERE dim_date.full_date >= '2023-01-15'\nGROUP BY dim_store.store_name\n```"}
	g := newGenerator([]string{"dim_store", "fact_sales", "dim_date"}, gen)

	res, err := g.Generate(context.Background(), Request{
		Question: "Umsatz pro Filiale seit 15. Januar 2023",
		Schema:   loadDoc(t, retailJSON),
	})
	require.NoError(t, err)

	assert.Equal(t, "Umsatz pro Filiale seit 2023-01-15", res.Question)
	assert.Equal(t, []string{"fact_sales", "dim_store", "dim_date"}, res.Tables)
	assert.Len(t, res.JoinPath.Relationships, 2)
	assert.Empty(t, res.Unknown)
	assert.True(t, len(res.SQL) > 0 && res.SQL[:6] == "SELECT")
	assert.NotContains(t, res.SQL, "```")

	assert.Contains(t, gen.system, "FROM fact_sales\nLEFT JOIN  dim_store ON fact_sales.store_key = dim_store.store_key")
	assert.Contains(t, gen.system, "- fact_sales.sales_amount: net amount")
	assert.Contains(t, gen.system, "total_revenue")
	assert.Contains(t, gen.system, `"filiale" -> dim_store.store_name`)
	assert.Contains(t, gen.system, "SECURITY RULES:")
	assert.Contains(t, gen.system, `"ERROR: "`)
	assert.NotContains(t, gen.system, "dim_supplier")
	assert.Equal(t, "Question: Umsatz pro Filiale seit 2023-01-15", gen.user)
}

func TestGenerate_SingleTableSentinel(t *testing.T) {
	gen := &fakeSQLLLM{reply: "SELECT SUM(fact_sales.sales_amount) FROM fact_sales"}
	g := newGenerator([]string{"fact_sales"}, gen)

	sql, err := g.GenerateMultiTableSQL(context.Background(), Request{Question: "total revenue", Schema: loadDoc(t, retailJSON)})
	require.NoError(t, err)
	assert.Equal(t, "SELECT SUM(fact_sales.sales_amount) FROM fact_sales", sql)
	assert.Contains(t, gen.system, "Single table query - no JOINs needed")
}

func TestGenerate_StructuralFailures(t *testing.T) {
	tests := []struct {
		name   string
		tables []string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "no_relevant_tables",
			tables: []string{"employees"},
			check: func(t *testing.T, err error) {
				var e *domain.NoRelevantTablesError
				assert.True(t, errors.As(err, &e))
			},
		},
		{
			name:   "disconnected",
			tables: []string{"fact_sales", "dim_supplier"},
			check: func(t *testing.T, err error) {
				var e *domain.JoinPathError
				require.True(t, errors.As(err, &e))
				assert.Contains(t, err.Error(), "Unable to connect selected tables with JOINs")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeSQLLLM{reply: "SELECT 1"}
			_, err := newGenerator(tt.tables, gen).Generate(context.Background(), Request{Question: "q", Schema: loadDoc(t, retailJSON)})
			require.Error(t, err)
			tt.check(t, err)
			assert.Empty(t, gen.system, "model must not be called")
		})
	}
}

type staticSelector []string

func (s staticSelector) SelectTables(context.Context, string, *schema.Document, []string) ([]string, error) {
	return s, nil
}

func TestGenerate_SchemaValidationError(t *testing.T) {
	gen := &fakeSQLLLM{reply: "SELECT 1"}
	g := New(staticSelector{"fact_sales", "dim_customer"}, gen, "", nil)

	_, err := g.Generate(context.Background(), Request{Question: "q", Schema: loadDoc(t, retailJSON)})
	var e *domain.SchemaValidationError
	require.True(t, errors.As(err, &e))
	assert.Equal(t, []string{"dim_customer"}, e.Missing)
	assert.Contains(t, e.Available, "fact_sales")
}

func TestGenerate_DataNotAvailable(t *testing.T) {
	gen := &fakeSQLLLM{reply: "ERROR: The schema has no salary information"}
	g := newGenerator([]string{"fact_sales"}, gen)

	_, err := g.Generate(context.Background(), Request{Question: "average salary", Schema: loadDoc(t, retailJSON)})
	var e *domain.DataNotAvailableError
	require.True(t, errors.As(err, &e))
	assert.Equal(t, "The schema has no salary information", e.Reason)
}

func TestGenerate_UnknownColumnYieldsNoSQL(t *testing.T) {
	gen := &fakeSQLLLM{reply: "SELECT fact_sales.profit FROM fact_sales LIMIT 10"}
	g := newGenerator([]string{"fact_sales"}, gen)

	res, err := g.Generate(context.Background(), Request{Question: "profit", Schema: loadDoc(t, retailJSON)})
	require.NoError(t, err)
	assert.Empty(t, res.SQL)
	assert.Equal(t, []string{"fact_sales.profit"}, res.Unknown)

	sql, err := g.GenerateMultiTableSQL(context.Background(), Request{Question: "profit", Schema: loadDoc(t, retailJSON)})
	require.NoError(t, err)
	assert.Empty(t, sql)
}

func TestGenerate_LLMErrorPropagates(t *testing.T) {
	gen := &fakeSQLLLM{err: errors.New("rate limited")}
	_, err := newGenerator([]string{"fact_sales"}, gen).Generate(context.Background(), Request{Question: "q", Schema: loadDoc(t, retailJSON)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestGenerate_FlatSchemaWithActualName(t *testing.T) {
	gen := &fakeSQLLLM{reply: "SELECT upload_1.Store, SUM(upload_1.Sales) FROM upload_1 GROUP BY upload_1.Store"}
	g := newGenerator(nil, gen)
	flat := loadDoc(t, `{"table": "rossmann", "columns": {"Store": "store id", "Sales": "turnover"}}`)

	res, err := g.Generate(context.Background(), Request{Question: "sales per store", Schema: flat, ActualTableNames: []string{"upload_1"}})
	require.NoError(t, err)
	assert.NotEmpty(t, res.SQL)
	assert.Equal(t, []string{"upload_1"}, res.Tables)
	assert.Contains(t, gen.system, "Table: upload_1")
	assert.Contains(t, gen.system, "- upload_1.Sales: turnover")
	assert.Contains(t, gen.system, "Query upload_1 directly")
}

func TestGenerate_FlatSchemaSkipsJoinResolution(t *testing.T) {
	gen := &fakeSQLLLM{reply: "SELECT a.Store, b.Sales FROM a, b LIMIT 10"}
	g := newGenerator(nil, gen)
	flat := loadDoc(t, `{"table": "rossmann", "columns": {"Store": "store id", "Sales": "turnover"}}`)

	res, err := g.Generate(context.Background(), Request{Question: "sales", Schema: flat, ActualTableNames: []string{"a", "b"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, res.Tables)
	assert.Empty(t, res.JoinPath.Relationships)
	assert.NotEmpty(t, res.SQL)
	assert.Contains(t, gen.system, "No relationships are declared between a, b.")
	assert.Contains(t, gen.system, "- b.Sales: turnover")
}

func TestGenerate_ResultCarriesTableListing(t *testing.T) {
	gen := &fakeSQLLLM{reply: "SELECT fact_sales.profit FROM fact_sales LIMIT 10"}
	g := newGenerator([]string{"fact_sales"}, gen)

	res, err := g.Generate(context.Background(), Request{Question: "profit", Schema: loadDoc(t, retailJSON)})
	require.NoError(t, err)
	assert.Contains(t, res.Listing, "- fact_sales.sales_amount: net amount")
	assert.Contains(t, gen.system, res.Listing)
}

func TestDeclinedError(t *testing.T) {
	tests := []struct {
		reply      string
		wantReason string
		wantNil    bool
	}{
		{reply: "ERROR: no salary data", wantReason: "no salary data"},
		{reply: "  error:   no stock levels ", wantReason: "no stock levels"},
		{reply: "SELECT 'ERROR:' AS x", wantNil: true},
		{reply: "", wantNil: true},
	}
	for _, tt := range tests {
		t.Run(tt.reply, func(t *testing.T) {
			err := DeclinedError(tt.reply)
			if tt.wantNil {
				assert.NoError(t, err)
				return
			}
			var e *domain.DataNotAvailableError
			require.ErrorAs(t, err, &e)
			assert.Equal(t, tt.wantReason, e.Reason)
		})
	}
}

func TestCheckColumns(t *testing.T) {
	doc := loadDoc(t, retailJSON)
	tables := []string{"fact_sales", "dim_store"}

	tests := []struct {
		name string
		sql  string
		want []string
	}{
		{name: "all_declared", sql: "SELECT fact_sales.sales_amount, dim_store.store_name FROM fact_sales", want: nil},
		{name: "case_insensitive", sql: "SELECT FACT_SALES.SALES_AMOUNT FROM fact_sales", want: nil},
		{name: "unknown", sql: "SELECT fact_sales.profit, dim_store.city, fact_sales.profit FROM fact_sales", want: []string{"dim_store.city", "fact_sales.profit"}},
		{name: "alias_ignored", sql: "SELECT f.anything FROM fact_sales f", want: nil},
		{name: "unselected_table_ignored", sql: "SELECT dim_date.nothing FROM dim_date", want: nil},
		{name: "string_literal_ignored", sql: "SELECT fact_sales.sales_amount FROM fact_sales WHERE x = 'dim_store.bogus'", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CheckColumns(tt.sql, doc, tables))
		})
	}
}
