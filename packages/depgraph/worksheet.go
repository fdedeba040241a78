package depgraph

import (
	"cmp"
	"iter"
	"math/bits"
	"slices"
)

// Worksheet provides sparse cell storage for one sheet of a workbook.
//
// architecture:
// - cells are partitioned into 256x256 chunks for spatial locality
// - an occupancy bitmap per chunk records which cells exist
// - text and formula arrays are allocated lazily, only for chunks that use them
// - text and formulas are interned through the shared Storage tables
//
// the builder asks two questions of a worksheet: which cells hold formulas
// (in row order) and whether every cell of a rectangle exists. both are
// answered from the bitmaps without materializing cells.
type Worksheet struct {
	chunks       map[ChunkKey]*Chunk // sparse map of chunks indexed by ChunkKey
	totalCells   int                 // stats tracking total number of cells
	formulaCells int                 // cells holding a formula
	storage      *Storage            // storage accessible to help
	worksheetID  uint32              // worksheet that owns this chunk
}

const (
	ChunkRows uint32 = 256                   // rows per chunk - power of 2 for efficient modulo
	ChunkCols uint32 = 256                   // columns per chunk - matches typical viewport size
	ChunkSize        = ChunkRows * ChunkCols // 65536 cells per chunk
)

// Chunk represents a 256x256 region of cells. only OccupiedBitmap exists
// initially.
type Chunk struct {
	OccupiedBitmap []uint64 // bit-packed array tracking which cells exist
	NonEmptyCount  int      // count of existing cells

	StringIDs  []uint32 // interned text IDs for plain cells (lazy)
	FormulaIDs []uint32 // formula table IDs for formula cells (lazy)
}

// NewWorksheet creates a new worksheet
func NewWorksheet(storage *Storage, worksheetID uint32) *Worksheet {
	if storage == nil {
		storage = NewStorage()
	}
	return &Worksheet{
		chunks:      make(map[ChunkKey]*Chunk),
		storage:     storage,
		worksheetID: worksheetID,
	}
}

// ID returns the worksheet ID, which is also the WorksheetID of its refs
func (w *Worksheet) ID() uint32 {
	return w.worksheetID
}

// Name returns the worksheet name registered in the worksheet table
func (w *Worksheet) Name() string {
	name, _ := w.storage.worksheets.GetWorksheetName(w.worksheetID)
	return name
}

// locate returns the chunk key and the column-first index inside the chunk
func (w *Worksheet) locate(row, col uint32) (ChunkKey, uint32) {
	key := ChunkKey{WorksheetID: w.worksheetID, ChunkRow: row / ChunkRows, ChunkCol: col / ChunkCols}
	// column-first indexing keeps a column of a chunk in consecutive bits
	return key, (col%ChunkCols)*ChunkRows + row%ChunkRows
}

// getChunk retrieves or creates a chunk
func (w *Worksheet) getChunk(key ChunkKey) *Chunk {
	chunk, exists := w.chunks[key]
	if !exists {
		chunk = &Chunk{
			OccupiedBitmap: make([]uint64, (ChunkSize+63)/64), // bit-packed, 64 bits per word
		}
		w.chunks[key] = chunk
	}
	return chunk
}

func (c *Chunk) occupied(idx uint32) bool {
	return c.OccupiedBitmap[idx/64]&(1<<(idx%64)) != 0
}

// SetCell creates or replaces the cell at row and col. a non-empty formula
// makes it a formula cell and value is ignored. an empty cell still
// exists.
func (w *Worksheet) SetCell(row, col uint32, value, formula string) {
	key, idx := w.locate(row, col)
	chunk := w.getChunk(key)
	addr := CellAddress{WorksheetID: w.worksheetID, Row: row, Column: col}

	if chunk.occupied(idx) {
		w.releaseCell(chunk, idx, addr)
	} else {
		chunk.OccupiedBitmap[idx/64] |= 1 << (idx % 64)
		chunk.NonEmptyCount++
		w.totalCells++
	}

	if formula = NormalizeFormula(formula); formula != "" {
		if chunk.FormulaIDs == nil {
			chunk.FormulaIDs = make([]uint32, ChunkSize)
		}
		chunk.FormulaIDs[idx] = w.storage.formulas.InternFormula(formula, addr)
		w.formulaCells++
		return
	}

	if value != "" {
		if chunk.StringIDs == nil {
			chunk.StringIDs = make([]uint32, ChunkSize)
		}
		chunk.StringIDs[idx] = w.storage.strings.Intern(value)
	}
}

// releaseCell drops the interned content of an existing cell but keeps it
// occupied
func (w *Worksheet) releaseCell(chunk *Chunk, idx uint32, addr CellAddress) {
	if chunk.FormulaIDs != nil && chunk.FormulaIDs[idx] != 0 {
		w.storage.formulas.RemoveCellReference(addr)
		chunk.FormulaIDs[idx] = 0
		w.formulaCells--
	}
	if chunk.StringIDs != nil && chunk.StringIDs[idx] != 0 {
		w.storage.strings.RemoveReference(chunk.StringIDs[idx])
		chunk.StringIDs[idx] = 0
	}
}

// RemoveCell removes a cell at the given row and column. returns false if
// there was no cell.
func (w *Worksheet) RemoveCell(row, col uint32) bool {
	key, idx := w.locate(row, col)
	chunk, exists := w.chunks[key]
	if !exists || !chunk.occupied(idx) {
		return false
	}

	w.releaseCell(chunk, idx, CellAddress{WorksheetID: w.worksheetID, Row: row, Column: col})
	chunk.OccupiedBitmap[idx/64] &^= 1 << (idx % 64)
	chunk.NonEmptyCount--
	w.totalCells--

	// if chunk is now empty, drop it to save memory
	if chunk.NonEmptyCount == 0 {
		delete(w.chunks, key)
	}
	return true
}

// HasCell reports whether a cell exists at row and col
func (w *Worksheet) HasCell(row, col uint32) bool {
	key, idx := w.locate(row, col)
	chunk, exists := w.chunks[key]
	return exists && chunk.occupied(idx)
}

// GetCell retrieves the cell at the given row and column
func (w *Worksheet) GetCell(row, col uint32) (Cell, bool) {
	key, idx := w.locate(row, col)
	chunk, exists := w.chunks[key]
	if !exists || !chunk.occupied(idx) {
		return Cell{}, false
	}
	return w.materialize(chunk, idx, row, col), true
}

func (w *Worksheet) materialize(chunk *Chunk, idx, row, col uint32) Cell {
	cell := Cell{Row: row, Col: col}
	if chunk.FormulaIDs != nil && chunk.FormulaIDs[idx] != 0 {
		cell.FormulaID = chunk.FormulaIDs[idx]
		cell.Formula, _ = w.storage.formulas.GetFormula(cell.FormulaID)
		return cell
	}
	if chunk.StringIDs != nil && chunk.StringIDs[idx] != 0 {
		cell.Value, _ = w.storage.strings.Get(chunk.StringIDs[idx])
	}
	return cell
}

// FormulaAt returns the formula text of a cell, ok is false for plain or
// missing cells
func (w *Worksheet) FormulaAt(row, col uint32) (string, bool) {
	cell, exists := w.GetCell(row, col)
	if !exists || !cell.IsFormula() {
		return "", false
	}
	return cell.Formula, true
}

// IsRangeComplete reports whether every cell of r exists on this worksheet
func (w *Worksheet) IsRangeComplete(r Ref) bool {
	if r.WorksheetID != w.worksheetID {
		return false
	}
	rowFrom, rowTo := r.StartRow/ChunkRows, r.EndRow/ChunkRows
	colFrom, colTo := r.StartColumn/ChunkCols, r.EndColumn/ChunkCols

	for cr := rowFrom; cr <= rowTo; cr++ {
		for cc := colFrom; cc <= colTo; cc++ {
			chunk, exists := w.chunks[ChunkKey{WorksheetID: w.worksheetID, ChunkRow: cr, ChunkCol: cc}]
			if !exists {
				return false
			}

			// local bounds of r inside this chunk
			lrFrom, lrTo := uint32(0), ChunkRows-1
			if cr == rowFrom {
				lrFrom = r.StartRow % ChunkRows
			}
			if cr == rowTo {
				lrTo = r.EndRow % ChunkRows
			}
			lcFrom, lcTo := uint32(0), ChunkCols-1
			if cc == colFrom {
				lcFrom = r.StartColumn % ChunkCols
			}
			if cc == colTo {
				lcTo = r.EndColumn % ChunkCols
			}

			for lc := lcFrom; lc <= lcTo; lc++ {
				for lr := lrFrom; lr <= lrTo; lr++ {
					if !chunk.occupied(lc*ChunkRows + lr) {
						return false
					}
				}
			}
		}
	}
	return true
}

// Cells returns every existing cell in row-major order
func (w *Worksheet) Cells() iter.Seq[Cell] {
	return w.walk(false)
}

// FormulaCells returns every formula cell in row-major order
func (w *Worksheet) FormulaCells() iter.Seq[Cell] {
	return w.walk(true)
}

func (w *Worksheet) walk(formulasOnly bool) iter.Seq[Cell] {
	return func(yield func(Cell) bool) {
		type position struct {
			chunk    *Chunk
			idx      uint32
			row, col uint32
		}

		var positions []position
		for key, chunk := range w.chunks {
			if formulasOnly && chunk.FormulaIDs == nil {
				continue
			}
			for word, set := range chunk.OccupiedBitmap {
				for set != 0 {
					bit := uint32(bits.TrailingZeros64(set))
					set &= set - 1
					idx := uint32(word)*64 + bit
					if formulasOnly && chunk.FormulaIDs[idx] == 0 {
						continue
					}
					positions = append(positions, position{
						chunk: chunk,
						idx:   idx,
						row:   key.ChunkRow*ChunkRows + idx%ChunkRows,
						col:   key.ChunkCol*ChunkCols + idx/ChunkRows,
					})
				}
			}
		}

		slices.SortFunc(positions, func(a, b position) int {
			return cmp.Or(cmp.Compare(a.row, b.row), cmp.Compare(a.col, b.col))
		})

		for _, p := range positions {
			if !yield(w.materialize(p.chunk, p.idx, p.row, p.col)) {
				return
			}
		}
	}
}

// CellCount returns the number of existing cells
func (w *Worksheet) CellCount() int {
	return w.totalCells
}

// FormulaCount returns the number of formula cells
func (w *Worksheet) FormulaCount() int {
	return w.formulaCells
}
