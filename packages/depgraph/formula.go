package depgraph

import (
	"slices"
	"strings"
)

// FormulaTable stores formula text centrally. cells filled down from one
// formula usually differ in their references, so sharing mostly pays off
// for absolute formulas like =SUM($A$1:$A$9).
type FormulaTable struct {
	texts *InternTable[string]

	cellsUsingFormula map[uint32]map[CellAddress]struct{} // formula ID -> cells using it
	formulaAtCell     map[CellAddress]uint32              // cell -> formula ID (reverse index)
}

// NewFormulaTable creates a new formula table
func NewFormulaTable() *FormulaTable {
	return &FormulaTable{
		texts:             NewInternTable[string](),
		cellsUsingFormula: make(map[uint32]map[CellAddress]struct{}),
		formulaAtCell:     make(map[CellAddress]uint32),
	}
}

// NormalizeFormula trims surrounding whitespace and makes sure the text
// carries exactly one leading '='
func NormalizeFormula(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	return "=" + strings.TrimPrefix(text, "=")
}

// InternFormula stores formula text for a cell, replacing whatever formula
// the cell used before. returns the formula ID.
func (ft *FormulaTable) InternFormula(text string, cell CellAddress) uint32 {
	ft.RemoveCellReference(cell)

	id := ft.texts.Intern(NormalizeFormula(text))
	if ft.cellsUsingFormula[id] == nil {
		ft.cellsUsingFormula[id] = make(map[CellAddress]struct{})
	}
	ft.cellsUsingFormula[id][cell] = struct{}{}
	ft.formulaAtCell[cell] = id
	return id
}

// RemoveCellReference detaches a cell from its formula. returns true if
// the cell had one.
func (ft *FormulaTable) RemoveCellReference(cell CellAddress) bool {
	id, exists := ft.formulaAtCell[cell]
	if !exists {
		return false
	}

	delete(ft.formulaAtCell, cell)
	if cells, ok := ft.cellsUsingFormula[id]; ok {
		delete(cells, cell)
		if len(cells) == 0 {
			delete(ft.cellsUsingFormula, id)
		}
	}
	ft.texts.RemoveReference(id)
	return true
}

// GetFormula retrieves the text for a formula ID
func (ft *FormulaTable) GetFormula(id uint32) (string, bool) {
	return ft.texts.Get(id)
}

// GetFormulaAtCell returns the formula ID at a specific cell
func (ft *FormulaTable) GetFormulaAtCell(cell CellAddress) (uint32, bool) {
	id, exists := ft.formulaAtCell[cell]
	return id, exists
}

// GetCellsUsingFormula returns all cells using a specific formula, in
// worksheet then row-major order
func (ft *FormulaTable) GetCellsUsingFormula(formulaID uint32) []CellAddress {
	cells := ft.cellsUsingFormula[formulaID]
	result := make([]CellAddress, 0, len(cells))
	for cell := range cells {
		result = append(result, cell)
	}
	slices.SortFunc(result, CompareCellAddresses)
	return result
}

// Count returns the number of unique formulas
func (ft *FormulaTable) Count() int {
	return ft.texts.Count()
}
