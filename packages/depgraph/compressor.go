package depgraph

import (
	"slices"
)

// DefaultMinRunLength is the shortest affine run folded into a strided record
const DefaultMinRunLength = 2

// Compressor holds the merge rules applied by an EdgeStore. it detects
// affine runs inside a batch and coalesces query results. it keeps no
// state between calls.
type Compressor struct {
	StridedRuns  bool // fold affine runs of a batch into strided records
	MinRunLength int  // shortest run worth folding
}

// Segment is one slice of a batch: either a strided run or a single edge
type Segment struct {
	Start  int    // index of the first edge in the batch
	Length int    // number of edges covered
	Stride uint32 // row delta between successive edges, 0 for a single edge
}

// IsRun reports whether the segment folds more than one edge
func (s Segment) IsRun() bool {
	return s.Length > 1
}

// Segments partitions a batch, in order, into maximal affine runs and single
// edges. a run is a sequence whose precedents share worksheet, columns and
// height, whose dependents do the same, and where both sides move down by
// the same positive number of rows at every step.
func (c Compressor) Segments(edges []Edge) []Segment {
	segments := make([]Segment, 0, len(edges))
	minRun := max(c.MinRunLength, 2)

	for i := 0; i < len(edges); {
		if !c.StridedRuns || i+1 >= len(edges) {
			segments = append(segments, Segment{Start: i, Length: 1})
			i++
			continue
		}

		stride, ok := affineStride(edges[i], edges[i+1])
		if !ok {
			segments = append(segments, Segment{Start: i, Length: 1})
			i++
			continue
		}

		j := i + 2
		for j < len(edges) && isAffineStep(edges[j-1], edges[j], stride) {
			j++
		}

		if j-i >= minRun {
			segments = append(segments, Segment{Start: i, Length: j - i, Stride: stride})
			i = j
		} else {
			// too short, the next edge may still start a run of its own
			segments = append(segments, Segment{Start: i, Length: 1})
			i++
		}
	}

	return segments
}

// affineStride returns the common row delta from a to b
func affineStride(a, b Edge) (uint32, bool) {
	if b.Precedent.StartRow <= a.Precedent.StartRow {
		return 0, false
	}
	stride := b.Precedent.StartRow - a.Precedent.StartRow
	if !isAffineStep(a, b, stride) {
		return 0, false
	}
	return stride, true
}

// isAffineStep checks that b is a moved down by stride rows on both sides
func isAffineStep(a, b Edge, stride uint32) bool {
	return a.Precedent.sameShape(b.Precedent) &&
		a.Dependent.sameShape(b.Dependent) &&
		uint64(b.Precedent.StartRow) == uint64(a.Precedent.StartRow)+uint64(stride) &&
		uint64(b.Dependent.StartRow) == uint64(a.Dependent.StartRow)+uint64(stride)
}

// Coalesce returns a cell-set equivalent view of refs: duplicates and refs
// covered by another ref are dropped, then mergeable refs are joined
// until nothing changes. the result is sorted with CompareRefs.
func (c Compressor) Coalesce(refs []Ref) []Ref {
	if len(refs) <= 1 {
		return slices.Clone(refs)
	}

	out := dropCovered(refs)
	for {
		before := len(out)
		out = mergeRuns(out, true)
		out = mergeRuns(out, false)
		if len(out) == before {
			break
		}
	}

	slices.SortFunc(out, CompareRefs)
	return out
}

// dropCovered removes exact duplicates and refs contained in a larger one
func dropCovered(refs []Ref) []Ref {
	sorted := slices.Clone(refs)
	// larger first so containment only needs to look backwards
	slices.SortFunc(sorted, func(a, b Ref) int {
		if a.Size() != b.Size() {
			if a.Size() > b.Size() {
				return -1
			}
			return 1
		}
		return CompareRefs(a, b)
	})
	sorted = slices.Compact(sorted)

	out := make([]Ref, 0, len(sorted))
	for _, r := range sorted {
		covered := false
		for _, kept := range out {
			if kept.Contains(r) {
				covered = true
				break
			}
		}
		if !covered {
			out = append(out, r)
		}
	}
	return out
}

// mergeRuns makes one pass joining refs that share their column extent and
// touch vertically (vertical=true), or share their row extent and touch
// horizontally.
func mergeRuns(refs []Ref, vertical bool) []Ref {
	if len(refs) <= 1 {
		return refs
	}

	sorted := slices.Clone(refs)
	if vertical {
		slices.SortFunc(sorted, func(a, b Ref) int {
			return CompareRefs(
				Ref{a.WorksheetID, a.StartColumn, a.EndColumn, a.StartRow, a.EndRow},
				Ref{b.WorksheetID, b.StartColumn, b.EndColumn, b.StartRow, b.EndRow},
			)
		})
	} else {
		slices.SortFunc(sorted, func(a, b Ref) int {
			return CompareRefs(
				Ref{a.WorksheetID, a.StartRow, a.EndRow, a.StartColumn, a.EndColumn},
				Ref{b.WorksheetID, b.StartRow, b.EndRow, b.StartColumn, b.EndColumn},
			)
		})
	}

	out := make([]Ref, 0, len(sorted))
	current := sorted[0]
	for _, next := range sorted[1:] {
		if merged, ok := current.Union(next); ok {
			current = merged
			continue
		}
		out = append(out, current)
		current = next
	}
	return append(out, current)
}
