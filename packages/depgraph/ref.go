package depgraph

import (
	"cmp"
	"fmt"
	"iter"
	"math"
	"strconv"
)

// Ref represents an axis-aligned rectangle of cells within a single
// worksheet. a single cell is a 1x1 rectangle. bounds are zero-based and
// inclusive. Ref is a comparable value type and is never mutated in place,
// the worksheet ID is part of its identity.
type Ref struct {
	WorksheetID uint32
	StartRow    uint32
	StartColumn uint32
	EndRow      uint32
	EndColumn   uint32
}

// NewCell creates a 1x1 ref
func NewCell(worksheetID, row, col uint32) Ref {
	return Ref{
		WorksheetID: worksheetID,
		StartRow:    row,
		StartColumn: col,
		EndRow:      row,
		EndColumn:   col,
	}
}

// NewRect creates a ref spanning rows startRow..endRow and columns
// startCol..endCol. inverted bounds are rejected, never clamped.
func NewRect(worksheetID, startRow, startCol, endRow, endCol uint32) (Ref, error) {
	if endRow < startRow || endCol < startCol {
		return Ref{}, wrapError(InvalidArgument, ErrMalformedRef,
			fmt.Sprintf("rect (%d,%d)-(%d,%d)", startRow, startCol, endRow, endCol))
	}
	return Ref{
		WorksheetID: worksheetID,
		StartRow:    startRow,
		StartColumn: startCol,
		EndRow:      endRow,
		EndColumn:   endCol,
	}, nil
}

// IsCell reports whether the ref covers exactly one cell
func (r Ref) IsCell() bool {
	return r.StartRow == r.EndRow && r.StartColumn == r.EndColumn
}

// Rows returns the height of the ref
func (r Ref) Rows() uint32 {
	return r.EndRow - r.StartRow + 1
}

// Columns returns the width of the ref
func (r Ref) Columns() uint32 {
	return r.EndColumn - r.StartColumn + 1
}

// Size returns the number of cells covered
func (r Ref) Size() uint64 {
	return uint64(r.Rows()) * uint64(r.Columns())
}

// ContainsCell checks if a cell is within the ref
func (r Ref) ContainsCell(row, col uint32) bool {
	return row >= r.StartRow && row <= r.EndRow &&
		col >= r.StartColumn && col <= r.EndColumn
}

// Intersects reports whether the two refs share at least one cell
func (r Ref) Intersects(other Ref) bool {
	return r.WorksheetID == other.WorksheetID &&
		r.StartRow <= other.EndRow && other.StartRow <= r.EndRow &&
		r.StartColumn <= other.EndColumn && other.StartColumn <= r.EndColumn
}

// Contains reports whether every cell of other is covered by r
func (r Ref) Contains(other Ref) bool {
	return r.WorksheetID == other.WorksheetID &&
		other.StartRow >= r.StartRow && other.EndRow <= r.EndRow &&
		other.StartColumn >= r.StartColumn && other.EndColumn <= r.EndColumn
}

// Intersection returns the overlap of the two refs
func (r Ref) Intersection(other Ref) (Ref, bool) {
	if !r.Intersects(other) {
		return Ref{}, false
	}
	return Ref{
		WorksheetID: r.WorksheetID,
		StartRow:    max(r.StartRow, other.StartRow),
		StartColumn: max(r.StartColumn, other.StartColumn),
		EndRow:      min(r.EndRow, other.EndRow),
		EndColumn:   min(r.EndColumn, other.EndColumn),
	}, true
}

// touches reports whether the closed intervals [s1,e1] and [s2,e2] overlap
// or are directly adjacent. computed in 64 bits so the last row is safe.
func touches(s1, e1, s2, e2 uint32) bool {
	return uint64(s2) <= uint64(e1)+1 && uint64(s1) <= uint64(e2)+1
}

// MergeableWith reports whether the union of the two refs is itself an exact
// rectangle: same worksheet, identical extent on one axis and overlapping or
// adjacent on the other.
func (r Ref) MergeableWith(other Ref) bool {
	if r.WorksheetID != other.WorksheetID {
		return false
	}
	if r.StartColumn == other.StartColumn && r.EndColumn == other.EndColumn &&
		touches(r.StartRow, r.EndRow, other.StartRow, other.EndRow) {
		return true
	}
	return r.StartRow == other.StartRow && r.EndRow == other.EndRow &&
		touches(r.StartColumn, r.EndColumn, other.StartColumn, other.EndColumn)
}

// Union merges two mergeable refs. ok is false when the union would not be a
// rectangle. the result does not depend on argument order.
func (r Ref) Union(other Ref) (Ref, bool) {
	if !r.MergeableWith(other) {
		return Ref{}, false
	}
	return Ref{
		WorksheetID: r.WorksheetID,
		StartRow:    min(r.StartRow, other.StartRow),
		StartColumn: min(r.StartColumn, other.StartColumn),
		EndRow:      max(r.EndRow, other.EndRow),
		EndColumn:   max(r.EndColumn, other.EndColumn),
	}, true
}

// Subtract returns the cells of r not covered by other as disjoint
// rectangles: the full-width bands above and below the overlap, then the
// pieces left and right of it. an empty result means r is fully covered.
func (r Ref) Subtract(other Ref) []Ref {
	inter, ok := r.Intersection(other)
	if !ok {
		return []Ref{r}
	}
	pieces := make([]Ref, 0, 4)
	if inter.StartRow > r.StartRow {
		pieces = append(pieces, Ref{r.WorksheetID, r.StartRow, r.StartColumn, inter.StartRow - 1, r.EndColumn})
	}
	if inter.EndRow < r.EndRow {
		pieces = append(pieces, Ref{r.WorksheetID, inter.EndRow + 1, r.StartColumn, r.EndRow, r.EndColumn})
	}
	if inter.StartColumn > r.StartColumn {
		pieces = append(pieces, Ref{r.WorksheetID, inter.StartRow, r.StartColumn, inter.EndRow, inter.StartColumn - 1})
	}
	if inter.EndColumn < r.EndColumn {
		pieces = append(pieces, Ref{r.WorksheetID, inter.StartRow, inter.EndColumn + 1, inter.EndRow, r.EndColumn})
	}
	return pieces
}

// ShiftRows returns the ref moved down by n rows. the result must stay on
// the sheet: stores only shift by instance offsets of records they hold,
// and nextInstance checks the bound before a run grows. shifting past the
// last addressable row panics instead of wrapping.
func (r Ref) ShiftRows(n uint32) Ref {
	if r.EndRow > math.MaxUint32-n {
		panic(fmt.Sprintf("depgraph: shifting %s down %d rows runs off the sheet", r, n))
	}
	r.StartRow += n
	r.EndRow += n
	return r
}

// sameShape reports whether both refs have the same worksheet, columns and
// height, i.e. one is a pure row translation of the other.
func (r Ref) sameShape(other Ref) bool {
	return r.WorksheetID == other.WorksheetID &&
		r.StartColumn == other.StartColumn && r.EndColumn == other.EndColumn &&
		r.Rows() == other.Rows()
}

// Cells returns an iterator over every cell of the ref in row-major order
func (r Ref) Cells() iter.Seq[Ref] {
	return func(yield func(Ref) bool) {
		for row := uint64(r.StartRow); row <= uint64(r.EndRow); row++ {
			for col := uint64(r.StartColumn); col <= uint64(r.EndColumn); col++ {
				if !yield(NewCell(r.WorksheetID, uint32(row), uint32(col))) {
					return
				}
			}
		}
	}
}

// String renders the ref in A1 notation without a worksheet qualifier,
// e.g. "B1" or "B1:B2"
func (r Ref) String() string {
	start := ColumnName(r.StartColumn) + strconv.FormatUint(uint64(r.StartRow)+1, 10)
	if r.IsCell() {
		return start
	}
	return start + ":" + ColumnName(r.EndColumn) + strconv.FormatUint(uint64(r.EndRow)+1, 10)
}

// ColumnName converts a zero-based column index to letters (0=A, 25=Z, 26=AA)
func ColumnName(col uint32) string {
	var buf [8]byte
	i := len(buf)
	n := uint64(col) + 1
	for n > 0 {
		n--
		i--
		buf[i] = byte('A' + n%26)
		n /= 26
	}
	return string(buf[i:])
}

// CompareRefs orders refs by worksheet, start row, start column, end row and
// end column. used to keep query results deterministic.
func CompareRefs(a, b Ref) int {
	return cmp.Or(
		cmp.Compare(a.WorksheetID, b.WorksheetID),
		cmp.Compare(a.StartRow, b.StartRow),
		cmp.Compare(a.StartColumn, b.StartColumn),
		cmp.Compare(a.EndRow, b.EndRow),
		cmp.Compare(a.EndColumn, b.EndColumn),
	)
}
