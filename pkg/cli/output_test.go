package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintTable(t *testing.T) {
	tests := []struct {
		name    string
		columns []string
		rows    [][]string
		want    string
	}{
		{
			name:    "aligned",
			columns: []string{"name", "tables"},
			rows:    [][]string{{"retail_demo", "4"}, {"shop", "12"}},
			want:    "NAME         TABLES\nretail_demo  4\nshop         12\n",
		},
		{
			name:    "short row",
			columns: []string{"a", "b"},
			rows:    [][]string{{"x"}},
			want:    "A  B\nx\n",
		},
		{name: "no columns", rows: [][]string{{"x"}}, want: ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			PrintTable(&buf, tc.columns, tc.rows)
			assert.Equal(t, tc.want, buf.String())
		})
	}
}

func TestPrintDetail(t *testing.T) {
	var buf bytes.Buffer
	PrintDetail(&buf, map[string]string{"Valid": "true", "Confidence": "0.90"})
	assert.Equal(t, "Confidence:  0.90\nValid:       true\n", buf.String())
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintJSON(&buf, map[string]int{"a": 1}))
	assert.Equal(t, "{\n  \"a\": 1\n}\n", buf.String())
}

func TestCellString(t *testing.T) {
	assert.Equal(t, "NULL", cellString(nil))
	assert.Equal(t, "abc", cellString([]byte("abc")))
	assert.Equal(t, "42", cellString(int64(42)))
	assert.Equal(t, "1.5", cellString(1.5))
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", maskSecret(""))
	assert.Equal(t, "****", maskSecret("abc"))
	assert.Equal(t, "****wxyz", maskSecret("sk-abcdwxyz"))
}
