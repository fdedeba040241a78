package depgraph

import (
	"fmt"
	"slices"
	"strings"
)

// WorksheetTable manages worksheet storage and ID mappings. names are
// matched case-insensitively, the way spreadsheet applications do.
type WorksheetTable struct {
	nameToID   map[string]uint32     // folded name -> ID
	idToName   map[uint32]string     // ID -> name as defined
	worksheets map[uint32]*Worksheet // ID -> worksheet
	nextID     uint32
}

// NewWorksheetTable creates a new worksheet table
func NewWorksheetTable() *WorksheetTable {
	return &WorksheetTable{
		nameToID:   make(map[string]uint32),
		idToName:   make(map[uint32]string),
		worksheets: make(map[uint32]*Worksheet),
		nextID:     1, // start at 1, reserve 0 for no worksheet
	}
}

func foldName(name string) string {
	return strings.ToLower(name)
}

// DefineWorksheet registers a worksheet under name and assigns it the next
// ID. returns the ID of the worksheet.
func (wt *WorksheetTable) DefineWorksheet(name string, worksheet *Worksheet) (uint32, error) {
	if strings.TrimSpace(name) == "" {
		return 0, NewApplicationError(InvalidArgument, "worksheet name must not be empty")
	}
	if _, exists := wt.nameToID[foldName(name)]; exists {
		return 0, NewApplicationError(AlreadyExists, fmt.Sprintf("worksheet %q already exists", name))
	}

	id := wt.nextID
	wt.nameToID[foldName(name)] = id
	wt.idToName[id] = name
	wt.worksheets[id] = worksheet
	wt.nextID++

	// update the worksheet's ID
	if worksheet != nil {
		worksheet.worksheetID = id
	}
	return id, nil
}

// GetWorksheet returns the Worksheet for a given ID
func (wt *WorksheetTable) GetWorksheet(id uint32) (*Worksheet, bool) {
	worksheet, exists := wt.worksheets[id]
	return worksheet, exists
}

// GetWorksheetByName returns the Worksheet for a given name
func (wt *WorksheetTable) GetWorksheetByName(name string) (*Worksheet, bool) {
	id, exists := wt.GetWorksheetID(name)
	if !exists {
		return nil, false
	}
	return wt.GetWorksheet(id)
}

// GetWorksheetID returns the ID for a worksheet name
func (wt *WorksheetTable) GetWorksheetID(name string) (uint32, bool) {
	id, exists := wt.nameToID[foldName(name)]
	return id, exists
}

// GetWorksheetName returns the name for a worksheet ID
func (wt *WorksheetTable) GetWorksheetName(id uint32) (string, bool) {
	name, exists := wt.idToName[id]
	return name, exists
}

// IDs returns every worksheet ID in definition order
func (wt *WorksheetTable) IDs() []uint32 {
	ids := make([]uint32, 0, len(wt.worksheets))
	for id := range wt.worksheets {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Count returns the number of worksheets
func (wt *WorksheetTable) Count() int {
	return len(wt.worksheets)
}

// Workbook is a set of named worksheets sharing text and formula tables
type Workbook struct {
	storage *Storage
}

// NewWorkbook creates an empty workbook
func NewWorkbook() *Workbook {
	return &Workbook{storage: NewStorage()}
}

// AddWorksheet creates an empty worksheet
func (wb *Workbook) AddWorksheet(name string) (*Worksheet, error) {
	worksheet := NewWorksheet(wb.storage, 0)
	if _, err := wb.storage.worksheets.DefineWorksheet(name, worksheet); err != nil {
		return nil, err
	}
	return worksheet, nil
}

// Worksheet returns the worksheet called name
func (wb *Workbook) Worksheet(name string) (*Worksheet, error) {
	worksheet, exists := wb.storage.worksheets.GetWorksheetByName(name)
	if !exists {
		return nil, wrapError(NotFound, ErrSheetNotFound, fmt.Sprintf("worksheet %q", name))
	}
	return worksheet, nil
}

// WorksheetByID returns the worksheet with the given ID
func (wb *Workbook) WorksheetByID(id uint32) (*Worksheet, bool) {
	return wb.storage.worksheets.GetWorksheet(id)
}

// Worksheets returns every worksheet in definition order
func (wb *Workbook) Worksheets() []*Worksheet {
	ids := wb.storage.worksheets.IDs()
	out := make([]*Worksheet, 0, len(ids))
	for _, id := range ids {
		worksheet, _ := wb.storage.worksheets.GetWorksheet(id)
		out = append(out, worksheet)
	}
	return out
}

// Names returns every worksheet name in definition order
func (wb *Workbook) Names() []string {
	ids := wb.storage.worksheets.IDs()
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		name, _ := wb.storage.worksheets.GetWorksheetName(id)
		out = append(out, name)
	}
	return out
}

// FormulaCount returns the number of distinct formula texts in use
func (wb *Workbook) FormulaCount() int {
	return wb.storage.formulas.Count()
}
