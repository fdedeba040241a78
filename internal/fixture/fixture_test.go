package fixture

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_SlidingWindowSheet(t *testing.T) {
	wb, err := Load(context.Background(), filepath.Join("testdata", "rrsheet.hcl"))
	require.NoError(t, err)

	ws, err := wb.Worksheet("RRSheet")
	require.NoError(t, err)
	assert.Equal(t, 1000+999, ws.CellCount())
	assert.Equal(t, 999, ws.FormulaCount())

	first, ok := ws.FormulaAt(0, 1)
	require.True(t, ok)
	assert.Equal(t, "=SUM(A1:A2)", first)

	last, ok := ws.FormulaAt(998, 1)
	require.True(t, ok)
	assert.Equal(t, "=SUM(A999:A1000)", last)

	cell, ok := ws.GetCell(999, 0)
	require.True(t, ok)
	assert.Equal(t, "1", cell.Value)
}

func TestParse_CellBlocks(t *testing.T) {
	src := `
sheet "Data" {
  cell "A1" { value = "north" }
  cell "A2" { value = true }
  cell "A3" {}
  cell "B1" { formula = "A1&A2" }
}
`
	wb, err := Parse(context.Background(), []byte(src), "cells.hcl")
	require.NoError(t, err)

	ws, err := wb.Worksheet("data")
	require.NoError(t, err)

	cell, ok := ws.GetCell(0, 0)
	require.True(t, ok)
	assert.Equal(t, "north", cell.Value)

	cell, ok = ws.GetCell(1, 0)
	require.True(t, ok)
	assert.Equal(t, "true", cell.Value)

	assert.True(t, ws.HasCell(2, 0), "an empty cell block still creates the cell")

	formula, ok := ws.FormulaAt(0, 1)
	require.True(t, ok)
	assert.Equal(t, "=A1&A2", formula)
}

func TestParse_FillQuotedSheetFormula(t *testing.T) {
	src := `
sheet "Summary" {
  fill "B1:B3" { formula = "=SUM('Q1 Data'!A1:A2)*2" }
}
`
	wb, err := Parse(context.Background(), []byte(src), "fill.hcl")
	require.NoError(t, err)

	ws, err := wb.Worksheet("Summary")
	require.NoError(t, err)

	formula, ok := ws.FormulaAt(2, 1)
	require.True(t, ok)
	assert.Equal(t, "=SUM('Q1 Data'!A3:A4)*2", formula)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "syntax",
			src:  `sheet "S" {`,
			want: "failed to parse fixture",
		},
		{
			name: "unknown block",
			src:  `table "S" {}`,
			want: "failed to decode fixture",
		},
		{
			name: "duplicate sheet",
			src:  "sheet \"S\" {}\nsheet \"s\" {}\n",
			want: "already exists",
		},
		{
			name: "range in cell block",
			src:  "sheet \"S\" {\n  cell \"A1:A2\" {\n    value = 1\n  }\n}\n",
			want: "single cell",
		},
		{
			name: "value and formula",
			src:  "sheet \"S\" {\n  cell \"A1\" {\n    value = 1\n    formula = \"=B1\"\n  }\n}\n",
			want: "mutually exclusive",
		},
		{
			name: "bad address",
			src:  "sheet \"S\" {\n  fill \"1A\" {\n    value = 1\n  }\n}\n",
			want: `fill "1A"`,
		},
		{
			name: "list value",
			src:  "sheet \"S\" {\n  cell \"A1\" {\n    value = [1, 2]\n  }\n}\n",
			want: "string, number or bool",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(context.Background(), []byte(tt.src), "bad.hcl")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "none.hcl"))
	assert.Error(t, err)
}
