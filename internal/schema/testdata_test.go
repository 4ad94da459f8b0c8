package schema

const retailSchemaJSON = `{
  "schema": {
    "tables": [
      {
        "name": "fact_sales",
        "role": "fact",
        "grain": "one row per sale",
        "columns": {"store_key": "store reference", "date_key": "date reference", "product_key": "product reference", "sales_amount": "net sale amount"},
        "foreign_keys": {"store_key": "dim_store.store_key", "date_key": "dim_date.date_key"}
      },
      {
        "name": "dim_store",
        "role": "dimension",
        "grain": "one row per store",
        "primary_key": "store_key",
        "columns": {"store_key": "surrogate key", "store_name": "store display name", "region_key": "region reference"}
      },
      {
        "name": "dim_date",
        "role": "dimension",
        "grain": "one row per day",
        "columns": {"date_key": "surrogate key", "full_date": "calendar date"}
      },
      {
        "name": "dim_product",
        "role": "dimension",
        "columns": {"product_key": "surrogate key", "product_name": "name"}
      },
      {
        "name": "dim_region",
        "role": "dimension",
        "columns": {"region_key": "surrogate key", "region_name": "name"}
      },
      {
        "name": "dim_supplier",
        "role": "dimension",
        "columns": {"supplier_key": "surrogate key"}
      }
    ],
    "relationships": [
      {"from": "fact_sales.store_key", "to": "dim_store.store_key", "join_type": "INNER JOIN"},
      {"from": "fact_sales.date_key", "to": "dim_date.date_key"},
      {"from": "fact_sales.product_key", "to": "dim_product.product_key"},
      {"from": "dim_store.region_key", "to": "dim_region.region_key"},
      {"from": "broken", "to": "dim_date.date_key"}
    ],
    "notes": ["Amounts are in EUR"]
  },
  "synonyms": {
    "revenue": {"table": "fact_sales", "column": "sales_amount", "description": "net sales"}
  },
  "kpis": {
    "total_revenue": {"formula": "SUM(fact_sales.sales_amount)", "description": "Total net revenue", "keywords": ["umsatz", "revenue"]}
  },
  "examples": [
    {"question": "Total revenue", "sql": "SELECT SUM(sales_amount) FROM fact_sales"}
  ],
  "glossary": {"net": "after returns"}
}`

const legacySchemaJSON = `{
  "table": "rossmann_sales",
  "columns": {"Store": "store id", "Date": "sale date", "Sales": "turnover"},
  "notes": ["Closed days have zero sales"]
}`

func mustLoad(raw string) *Document {
	doc, err := Load([]byte(raw))
	if err != nil {
		panic(err)
	}
	return doc
}
