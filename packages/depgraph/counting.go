package depgraph

import (
	"cmp"
	"slices"
)

// coveredCells returns the number of distinct cells covered by rects. refs on
// different worksheets never overlap. the union is computed by sweeping the
// distinct row boundaries and merging the column intervals active in each
// slab, so overlapping records are counted once.
func coveredCells(rects []Ref) uint64 {
	if len(rects) == 0 {
		return 0
	}
	if len(rects) == 1 {
		return rects[0].Size()
	}

	bySheet := make(map[uint32][]Ref)
	for _, r := range rects {
		bySheet[r.WorksheetID] = append(bySheet[r.WorksheetID], r)
	}

	var total uint64
	for _, sheetRects := range bySheet {
		total += sweepArea(sheetRects)
	}
	return total
}

type interval struct {
	start, end uint64 // half open
}

func sweepArea(rects []Ref) uint64 {
	bounds := make([]uint64, 0, 2*len(rects))
	for _, r := range rects {
		bounds = append(bounds, uint64(r.StartRow), uint64(r.EndRow)+1)
	}
	slices.Sort(bounds)
	bounds = slices.Compact(bounds)

	sorted := slices.Clone(rects)
	slices.SortFunc(sorted, func(a, b Ref) int {
		return cmp.Compare(a.StartRow, b.StartRow)
	})

	// every start and end row is a boundary, so a rect in the active set
	// spans the whole slab
	var (
		total  uint64
		next   int
		active []Ref
	)
	spans := make([]interval, 0, len(rects))
	for i := 0; i+1 < len(bounds); i++ {
		top, bottom := bounds[i], bounds[i+1]
		active = slices.DeleteFunc(active, func(r Ref) bool {
			return uint64(r.EndRow)+1 <= top
		})
		for next < len(sorted) && uint64(sorted[next].StartRow) <= top {
			active = append(active, sorted[next])
			next++
		}

		spans = spans[:0]
		for _, r := range active {
			spans = append(spans, interval{uint64(r.StartColumn), uint64(r.EndColumn) + 1})
		}
		total += (bottom - top) * unionLength(spans)
	}
	return total
}

func unionLength(spans []interval) uint64 {
	if len(spans) == 0 {
		return 0
	}
	slices.SortFunc(spans, func(a, b interval) int {
		return cmp.Compare(a.start, b.start)
	})
	var length uint64
	cur := spans[0]
	for _, s := range spans[1:] {
		if s.start <= cur.end {
			cur.end = max(cur.end, s.end)
			continue
		}
		length += cur.end - cur.start
		cur = s
	}
	return length + cur.end - cur.start
}
