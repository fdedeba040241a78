// Package fixture loads workbooks described in HCL files:
//
//	sheet "RRSheet" {
//	  fill "A1:A1000" { value = 1 }
//	  fill "B1:B999"  { formula = "=SUM(A1:A2)" }
//	  cell "C1"       { formula = "=B1*2" }
//	}
//
// a fill formula is written for the top-left cell of its range and copied
// to every other cell the way a spreadsheet copies formulas: relative
// references move, $-anchored ones stay.
package fixture

import (
	"context"
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vogtb/go-sheetdeps/internal/ctxlog"
	"github.com/vogtb/go-sheetdeps/packages/depgraph"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// hclFile is the top-level structure of a fixture file for decoding
type hclFile struct {
	Sheets []*hclSheet `hcl:"sheet,block"`
}

type hclSheet struct {
	Name  string     `hcl:"name,label"`
	Cells []*hclCell `hcl:"cell,block"`
	Fills []*hclCell `hcl:"fill,block"`
}

// hclCell is both a cell and a fill block; a cell block's address must be
// a single cell
type hclCell struct {
	Address string         `hcl:"address,label"`
	Value   hcl.Expression `hcl:"value,optional"`
	Formula string         `hcl:"formula,optional"`
}

// Load parses the fixture at path into a new workbook
func Load(ctx context.Context, path string) (*depgraph.Workbook, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture %s: %w", path, err)
	}
	return Parse(ctx, src, path)
}

// Parse parses fixture source; filename is only used in diagnostics
func Parse(ctx context.Context, src []byte, filename string) (*depgraph.Workbook, error) {
	logger := ctxlog.FromContext(ctx)

	file, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse fixture %s: %w", filename, diags)
	}

	var parsed hclFile
	if diags := gohcl.DecodeBody(file.Body, nil, &parsed); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode fixture %s: %w", filename, diags)
	}

	wb := depgraph.NewWorkbook()
	for _, sheet := range parsed.Sheets {
		ws, err := wb.AddWorksheet(sheet.Name)
		if err != nil {
			return nil, fmt.Errorf("fixture %s: %w", filename, err)
		}
		for _, block := range sheet.Fills {
			if err := applyBlock(ws, block, true); err != nil {
				return nil, fmt.Errorf("fixture %s, sheet %q, fill %q: %w", filename, sheet.Name, block.Address, err)
			}
		}
		for _, block := range sheet.Cells {
			if err := applyBlock(ws, block, false); err != nil {
				return nil, fmt.Errorf("fixture %s, sheet %q, cell %q: %w", filename, sheet.Name, block.Address, err)
			}
		}
		logger.Debug("loaded fixture sheet",
			"file", filename,
			"sheet", sheet.Name,
			"cells", ws.CellCount(),
			"formulas", ws.FormulaCount())
	}
	return wb, nil
}

func applyBlock(ws *depgraph.Worksheet, block *hclCell, isFill bool) error {
	target, err := depgraph.ParseRef(ws.ID(), block.Address)
	if err != nil {
		return err
	}
	if !isFill && !target.IsCell() {
		return fmt.Errorf("cell block needs a single cell, use fill for ranges")
	}

	value, err := blockValue(block.Value)
	if err != nil {
		return err
	}
	if value != "" && block.Formula != "" {
		return fmt.Errorf("value and formula are mutually exclusive")
	}

	for cell := range target.Cells() {
		if block.Formula == "" {
			ws.SetCell(cell.StartRow, cell.StartColumn, value, "")
			continue
		}
		formula, err := ShiftFormula(block.Formula,
			int64(cell.StartRow)-int64(target.StartRow),
			int64(cell.StartColumn)-int64(target.StartColumn))
		if err != nil {
			return err
		}
		ws.SetCell(cell.StartRow, cell.StartColumn, "", formula)
	}
	return nil
}

// blockValue evaluates a value attribute to its text. an absent or null
// value is the empty string.
func blockValue(expr hcl.Expression) (string, error) {
	if expr == nil {
		return "", nil
	}
	v, diags := expr.Value(nil)
	if diags.HasErrors() {
		return "", diags
	}
	if v.IsNull() {
		return "", nil
	}
	if !v.IsWhollyKnown() {
		return "", fmt.Errorf("value must be known")
	}

	s, err := convert.Convert(v, cty.String)
	if err != nil {
		return "", fmt.Errorf("value must be a string, number or bool: %w", err)
	}
	return s.AsString(), nil
}
