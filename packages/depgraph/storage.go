package depgraph

// Storage holds references to shared tables needed by storage operations
type Storage struct {
	worksheets *WorksheetTable
	strings    *StringTable
	formulas   *FormulaTable
}

// NewStorage creates empty shared tables
func NewStorage() *Storage {
	return &Storage{
		worksheets: NewWorksheetTable(),
		strings:    NewStringTable(),
		formulas:   NewFormulaTable(),
	}
}
