package depgraph

import "cmp"

// CellAddress identifies one cell of a workbook
type CellAddress struct {
	WorksheetID uint32
	Row         uint32
	Column      uint32
}

// Ref returns the 1x1 ref of the address
func (a CellAddress) Ref() Ref {
	return NewCell(a.WorksheetID, a.Row, a.Column)
}

// CompareCellAddresses orders addresses by worksheet, row and column
func CompareCellAddresses(a, b CellAddress) int {
	return cmp.Or(
		cmp.Compare(a.WorksheetID, b.WorksheetID),
		cmp.Compare(a.Row, b.Row),
		cmp.Compare(a.Column, b.Column),
	)
}

// Cell represents a materialized spreadsheet cell. a cell exists even when
// both Value and Formula are empty, ranges only count as complete when
// every cell in them exists.
type Cell struct {
	Row       uint32 // zero-based row index
	Col       uint32 // zero-based column index
	Value     string // literal content for non-formula cells
	Formula   string // formula text, empty for plain cells
	FormulaID uint32 // internal formula table ID, 0 for plain cells
}

// IsFormula reports whether the cell holds a formula
func (c Cell) IsFormula() bool {
	return c.FormulaID != 0
}
