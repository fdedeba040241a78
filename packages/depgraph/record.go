package depgraph

import "iter"

// Edge is a single (precedent, dependent) pair as produced by the builder.
// both sides may be ranges.
type Edge struct {
	Precedent Ref
	Dependent Ref
}

// Record is one stored entry of an EdgeStore. instance i, for
// 0 <= i < Repeat, stands for the pair (Precedent, Dependent) with both
// sides moved down by i*Stride rows. a plain record has Repeat 1 and
// Stride 0.
type Record struct {
	Precedent Ref
	Dependent Ref
	Stride    uint32
	Repeat    uint32
}

// IsStrided reports whether the record folds more than one instance
func (rec Record) IsStrided() bool {
	return rec.Repeat > 1
}

// PrecedentAt returns the precedent of instance i
func (rec Record) PrecedentAt(i uint32) Ref {
	return rec.Precedent.ShiftRows(i * rec.Stride)
}

// DependentAt returns the dependent of instance i
func (rec Record) DependentAt(i uint32) Ref {
	return rec.Dependent.ShiftRows(i * rec.Stride)
}

// PrecedentBounds returns the bounding box of every instance's precedent
func (rec Record) PrecedentBounds() Ref {
	return spanRows(rec.Precedent, rec.Stride, rec.Repeat)
}

// DependentBounds returns the bounding box of every instance's dependent
func (rec Record) DependentBounds() Ref {
	return spanRows(rec.Dependent, rec.Stride, rec.Repeat)
}

// Instances yields every (precedent, dependent) instance of the record
func (rec Record) Instances() iter.Seq[Edge] {
	return func(yield func(Edge) bool) {
		for i := uint32(0); i < rec.Repeat; i++ {
			if !yield(Edge{Precedent: rec.PrecedentAt(i), Dependent: rec.DependentAt(i)}) {
				return
			}
		}
	}
}

func spanRows(base Ref, stride, repeat uint32) Ref {
	last := base.ShiftRows((repeat - 1) * stride)
	base.EndRow = last.EndRow
	return base
}

// instanceWindow returns the inclusive instance range [lo, hi] whose copy of
// base (moved by i*stride rows) intersects query. ok is false when no
// instance does.
func instanceWindow(base Ref, stride, repeat uint32, query Ref) (lo, hi uint32, ok bool) {
	if base.WorksheetID != query.WorksheetID ||
		base.StartColumn > query.EndColumn || query.StartColumn > base.EndColumn {
		return 0, 0, false
	}
	if repeat <= 1 || stride == 0 {
		if base.Intersects(query) {
			return 0, 0, true
		}
		return 0, 0, false
	}
	if query.EndRow < base.StartRow {
		return 0, 0, false
	}
	s := uint64(stride)
	last := uint64(repeat - 1)

	// highest i with base.StartRow + i*s <= query.EndRow
	h := (uint64(query.EndRow) - uint64(base.StartRow)) / s
	if h > last {
		h = last
	}

	// lowest i with base.EndRow + i*s >= query.StartRow
	var l uint64
	if query.StartRow > base.EndRow {
		l = (uint64(query.StartRow) - uint64(base.EndRow) + s - 1) / s
	}
	if l > h {
		return 0, 0, false
	}
	return uint32(l), uint32(h), true
}
