package depgraph

import (
	"cmp"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"
)

// DefaultMergeWindow is how many of the most recent same-precedent records
// Add inspects when looking for a contiguous merge
const DefaultMergeWindow = 64

type storeOptions struct {
	stridedRuns  bool
	minRunLength int
	mergeWindow  int
	logger       *slog.Logger
}

// StoreOption configures an EdgeStore
type StoreOption func(*storeOptions)

// WithStridedRuns enables or disables folding affine runs in AddBatch
func WithStridedRuns(enabled bool) StoreOption {
	return func(o *storeOptions) {
		o.stridedRuns = enabled
	}
}

// WithMinRunLength sets the shortest run folded into a strided record.
// values below 2 are raised to 2.
func WithMinRunLength(n int) StoreOption {
	return func(o *storeOptions) {
		o.minRunLength = max(n, 2)
	}
}

// WithMergeWindow bounds the candidates examined by a contiguous merge
func WithMergeWindow(n int) StoreOption {
	return func(o *storeOptions) {
		o.mergeWindow = max(n, 1)
	}
}

// WithLogger sets the logger used for debug output of merges and splits
func WithLogger(logger *slog.Logger) StoreOption {
	return func(o *storeOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// EdgeStore is the compressed dependency graph of one worksheet. it keeps a
// forward index on the precedent side of every record and a reverse index on
// the dependent side, both updated on every mutation. queries take a read
// lock; every mutation holds the write lock for its whole duration so no
// reader sees a half applied merge or split.
type EdgeStore struct {
	mu sync.RWMutex

	records map[recordID]*Record
	nextID  recordID

	byPrecedent map[Ref][]recordID // plain records by exact precedent, oldest first
	runTails    map[Edge]recordID  // next instance each strided record would take

	precedents spatialIndex // forward index on PrecedentBounds
	dependents spatialIndex // reverse index on DependentBounds

	compressor Compressor
	options    storeOptions
}

// StoreStats summarises the storage of an EdgeStore
type StoreStats struct {
	Records       int    // stored records
	Strided       int    // records folding more than one instance
	Instances     uint64 // records with strided ones expanded
	ForwardChunks int    // non-empty chunks of the precedent index
	ReverseChunks int    // non-empty chunks of the dependent index
}

// NewEdgeStore creates an empty store
func NewEdgeStore(opts ...StoreOption) *EdgeStore {
	options := storeOptions{
		stridedRuns:  true,
		minRunLength: DefaultMinRunLength,
		mergeWindow:  DefaultMergeWindow,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &EdgeStore{
		records:     make(map[recordID]*Record),
		byPrecedent: make(map[Ref][]recordID),
		runTails:    make(map[Edge]recordID),
		precedents:  newSpatialIndex(),
		dependents:  newSpatialIndex(),
		compressor: Compressor{
			StridedRuns:  options.stridedRuns,
			MinRunLength: options.minRunLength,
		},
		options: options,
	}
}

// Add records one edge: every cell of dependent reads every cell of
// precedent. the edge is dropped when an existing record already covers it,
// appended to a strided record when it is that record's next instance, or
// merged with same-precedent records whose dependents it touches.
func (es *EdgeStore) Add(precedent, dependent Ref) {
	es.mu.Lock()
	defer es.mu.Unlock()
	es.addLocked(Edge{Precedent: precedent, Dependent: dependent})
}

// AddBatch inserts edges as one mutation. affine runs found by the
// compressor become strided records, everything else goes through the
// same path as Add. the logical edge set equals that of calling Add for
// every edge in order.
func (es *EdgeStore) AddBatch(edges []Edge) {
	if len(edges) == 0 {
		return
	}

	es.mu.Lock()
	defer es.mu.Unlock()

	for _, seg := range es.compressor.Segments(edges) {
		if !seg.IsRun() {
			es.addLocked(edges[seg.Start])
			continue
		}
		es.addRunLocked(edges[seg.Start:seg.Start+seg.Length], seg.Stride)
	}
}

// ClearDependents removes every logical edge whose dependent cell lies in
// dependent. records that only partly overlap are rewritten so the cells
// outside dependent keep their precedents.
func (es *EdgeStore) ClearDependents(dependent Ref) {
	es.mu.Lock()
	defer es.mu.Unlock()
	es.clearLocked(dependent)
}

func (es *EdgeStore) clearLocked(dependent Ref) {
	// remainders are re-added once every intersecting record is gone so a
	// remainder never merges into a record that is about to be split
	var pending []Edge
	for _, id := range es.dependents.query(dependent) {
		rec := *es.records[id]
		lo, hi, ok := instanceWindow(rec.Dependent, rec.Stride, rec.Repeat, dependent)
		if !ok {
			continue
		}
		es.removeRecord(id)

		if rec.IsStrided() {
			if lo > 0 {
				es.insertRecord(newRun(rec.Precedent, rec.Dependent, rec.Stride, lo))
			}
			if hi+1 < rec.Repeat {
				es.insertRecord(newRun(rec.PrecedentAt(hi+1), rec.DependentAt(hi+1), rec.Stride, rec.Repeat-hi-1))
			}
			storeSplits.WithLabelValues("strided").Inc()
			es.options.logger.Debug("split strided record",
				"precedent", rec.Precedent.String(),
				"dependent", rec.Dependent.String(),
				"repeat", rec.Repeat,
				"cleared_from", lo,
				"cleared_to", hi)
		} else {
			storeSplits.WithLabelValues("plain").Inc()
		}

		for i := lo; i <= hi; i++ {
			for _, piece := range rec.DependentAt(i).Subtract(dependent) {
				pending = append(pending, Edge{Precedent: rec.PrecedentAt(i), Dependent: piece})
			}
		}
	}

	for _, e := range pending {
		es.addLocked(e)
	}
}

// SetPrecedents replaces the precedents of dependent in one mutation:
// readers see either the old edges or the new ones
func (es *EdgeStore) SetPrecedents(dependent Ref, precedents []Ref) {
	es.mu.Lock()
	defer es.mu.Unlock()

	es.clearLocked(dependent)
	for _, p := range precedents {
		es.addLocked(Edge{Precedent: p, Dependent: dependent})
	}
}

// GetDependents returns the cells whose formulas read any cell of
// precedent, as a sorted set of disjoint-or-coalesced rectangles
func (es *EdgeStore) GetDependents(precedent Ref) []Ref {
	es.mu.RLock()
	defer es.mu.RUnlock()

	var found []Ref
	for _, id := range es.precedents.query(precedent) {
		rec := es.records[id]
		lo, hi, ok := instanceWindow(rec.Precedent, rec.Stride, rec.Repeat, precedent)
		if !ok {
			continue
		}
		found = appendInstances(found, rec.Dependent, rec.Stride, lo, hi)
	}
	return es.compressor.Coalesce(found)
}

// GetPrecedents returns the cells read by the formulas of any cell in
// dependent
func (es *EdgeStore) GetPrecedents(dependent Ref) []Ref {
	es.mu.RLock()
	defer es.mu.RUnlock()

	var found []Ref
	for _, id := range es.dependents.query(dependent) {
		rec := es.records[id]
		lo, hi, ok := instanceWindow(rec.Dependent, rec.Stride, rec.Repeat, dependent)
		if !ok {
			continue
		}
		found = appendInstances(found, rec.Precedent, rec.Stride, lo, hi)
	}
	return es.compressor.Coalesce(found)
}

// NumEdges returns the number of logical (precedent cell, dependent cell)
// pairs. overlapping records are counted once.
func (es *EdgeStore) NumEdges() uint64 {
	es.mu.RLock()
	defer es.mu.RUnlock()
	return es.numEdgesLocked()
}

// NumVertices returns the number of distinct cells taking part in any
// logical edge, on either side
func (es *EdgeStore) NumVertices() uint64 {
	es.mu.RLock()
	defer es.mu.RUnlock()
	return es.numVerticesLocked()
}

// CompressInfo returns a one line summary of the store
func (es *EdgeStore) CompressInfo() string {
	es.mu.RLock()
	defer es.mu.RUnlock()

	records := len(es.records)
	edges := es.numEdgesLocked()
	ratio := 0.0
	if records > 0 {
		ratio = float64(edges) / float64(records)
	}
	return fmt.Sprintf("records=%d edges=%d vertices=%d ratio=%.2f",
		records, edges, es.numVerticesLocked(), ratio)
}

// Len returns the number of stored records
func (es *EdgeStore) Len() int {
	es.mu.RLock()
	defer es.mu.RUnlock()
	return len(es.records)
}

// Stats returns storage statistics
func (es *EdgeStore) Stats() StoreStats {
	es.mu.RLock()
	defer es.mu.RUnlock()

	stats := StoreStats{
		Records:       len(es.records),
		ForwardChunks: es.precedents.len(),
		ReverseChunks: es.dependents.len(),
	}
	for _, rec := range es.records {
		if rec.IsStrided() {
			stats.Strided++
		}
		stats.Instances += uint64(rec.Repeat)
	}
	return stats
}

// Records returns a copy of every stored record ordered by precedent then
// dependent
func (es *EdgeStore) Records() []Record {
	es.mu.RLock()
	defer es.mu.RUnlock()

	out := make([]Record, 0, len(es.records))
	for _, rec := range es.records {
		out = append(out, *rec)
	}
	slices.SortFunc(out, func(a, b Record) int {
		return cmp.Or(
			CompareRefs(a.Precedent, b.Precedent),
			CompareRefs(a.Dependent, b.Dependent),
			cmp.Compare(a.Stride, b.Stride),
			cmp.Compare(a.Repeat, b.Repeat),
		)
	})
	return out
}

func (es *EdgeStore) addLocked(e Edge) {
	if es.coveredLocked(e) {
		return
	}

	if id, ok := es.runTails[e]; ok {
		rec := *es.records[id]
		es.removeRecord(id)
		rec.Repeat++
		es.insertRecord(rec)
		storeMerges.WithLabelValues(mergeStridedExtend).Inc()
		return
	}

	// cascade: every merge grows the dependent, which may make another
	// candidate adjacent
	dependent := e.Dependent
	for {
		id, ok := es.findMergeable(e.Precedent, dependent)
		if !ok {
			break
		}
		dependent, _ = dependent.Union(es.records[id].Dependent)
		es.removeRecord(id)
		storeMerges.WithLabelValues(mergeContiguous).Inc()
	}

	es.insertRecord(Record{Precedent: e.Precedent, Dependent: dependent, Repeat: 1})
}

func (es *EdgeStore) addRunLocked(run []Edge, stride uint32) {
	first := run[0]
	if id, ok := es.runTails[first]; ok && es.records[id].Stride == stride {
		rec := *es.records[id]
		es.removeRecord(id)
		rec.Repeat += uint32(len(run))
		es.insertRecord(rec)
		storeMerges.WithLabelValues(mergeStridedExtend).Add(float64(len(run)))
		return
	}

	es.insertRecord(newRun(first.Precedent, first.Dependent, stride, uint32(len(run))))
	storeMerges.WithLabelValues(mergeStridedFold).Add(float64(len(run) - 1))
	es.options.logger.Debug("folded strided run",
		"precedent", first.Precedent.String(),
		"dependent", first.Dependent.String(),
		"stride", stride,
		"repeat", len(run))
}

// coveredLocked reports whether a record with exactly e's precedent
// already lists every cell of e's dependent
func (es *EdgeStore) coveredLocked(e Edge) bool {
	for _, id := range es.byPrecedent[e.Precedent] {
		if es.records[id].Dependent.Contains(e.Dependent) {
			return true
		}
	}
	for _, id := range es.precedents.query(e.Precedent) {
		rec := es.records[id]
		if !rec.IsStrided() {
			continue
		}
		if i, ok := instanceOf(rec.Precedent, rec.Stride, rec.Repeat, e.Precedent); ok &&
			rec.DependentAt(i).Contains(e.Dependent) {
			return true
		}
	}
	return false
}

// findMergeable looks through the most recent plain records of precedent
// for one whose dependent can be joined with dependent
func (es *EdgeStore) findMergeable(precedent, dependent Ref) (recordID, bool) {
	candidates := es.byPrecedent[precedent]
	examined := 0
	for i := len(candidates) - 1; i >= 0 && examined < es.options.mergeWindow; i-- {
		examined++
		if es.records[candidates[i]].Dependent.MergeableWith(dependent) {
			return candidates[i], true
		}
	}
	return 0, false
}

func (es *EdgeStore) insertRecord(rec Record) recordID {
	id := es.nextID
	es.nextID++

	stored := rec
	es.records[id] = &stored
	es.precedents.insert(id, rec.PrecedentBounds())
	es.dependents.insert(id, rec.DependentBounds())

	if rec.IsStrided() {
		if next, ok := nextInstance(rec); ok {
			if _, taken := es.runTails[next]; !taken {
				es.runTails[next] = id
			}
		}
	} else {
		es.byPrecedent[rec.Precedent] = append(es.byPrecedent[rec.Precedent], id)
	}
	return id
}

func (es *EdgeStore) removeRecord(id recordID) {
	rec, exists := es.records[id]
	if !exists {
		return
	}

	es.precedents.remove(id, rec.PrecedentBounds())
	es.dependents.remove(id, rec.DependentBounds())

	if rec.IsStrided() {
		if next, ok := nextInstance(*rec); ok && es.runTails[next] == id {
			delete(es.runTails, next)
		}
	} else {
		ids := slices.DeleteFunc(es.byPrecedent[rec.Precedent], func(other recordID) bool {
			return other == id
		})
		if len(ids) == 0 {
			delete(es.byPrecedent, rec.Precedent)
		} else {
			es.byPrecedent[rec.Precedent] = ids
		}
	}

	delete(es.records, id)
}

func (es *EdgeStore) numEdgesLocked() uint64 {
	perCell := make(map[Ref][]Ref)
	for _, rec := range es.records {
		for _, dep := range appendInstances(nil, rec.Dependent, rec.Stride, 0, rec.Repeat-1) {
			for cell := range dep.Cells() {
				lo, hi, _ := instanceWindow(rec.Dependent, rec.Stride, rec.Repeat, cell)
				perCell[cell] = appendInstances(perCell[cell], rec.Precedent, rec.Stride, lo, hi)
			}
		}
	}

	var total uint64
	for _, precedents := range perCell {
		total += coveredCells(precedents)
	}
	return total
}

func (es *EdgeStore) numVerticesLocked() uint64 {
	rects := make([]Ref, 0, 2*len(es.records))
	for _, rec := range es.records {
		rects = appendInstances(rects, rec.Precedent, rec.Stride, 0, rec.Repeat-1)
		rects = appendInstances(rects, rec.Dependent, rec.Stride, 0, rec.Repeat-1)
	}
	return coveredCells(rects)
}

// newRun builds a record of repeat instances, normalising a single instance
// to a plain record
func newRun(precedent, dependent Ref, stride, repeat uint32) Record {
	if repeat <= 1 {
		return Record{Precedent: precedent, Dependent: dependent, Repeat: 1}
	}
	return Record{Precedent: precedent, Dependent: dependent, Stride: stride, Repeat: repeat}
}

// nextInstance returns the instance a strided record would take next, ok is
// false when it would run past the last addressable row
func nextInstance(rec Record) (Edge, bool) {
	shift := uint64(rec.Repeat) * uint64(rec.Stride)
	if uint64(rec.Precedent.EndRow)+shift > math.MaxUint32 ||
		uint64(rec.Dependent.EndRow)+shift > math.MaxUint32 {
		return Edge{}, false
	}
	return Edge{Precedent: rec.PrecedentAt(rec.Repeat), Dependent: rec.DependentAt(rec.Repeat)}, true
}

// instanceOf returns the instance i whose copy of base equals r exactly
func instanceOf(base Ref, stride, repeat uint32, r Ref) (uint32, bool) {
	if !base.sameShape(r) || r.StartRow < base.StartRow || stride == 0 {
		return 0, base == r
	}
	delta := r.StartRow - base.StartRow
	if delta%stride != 0 || delta/stride >= repeat {
		return 0, false
	}
	return delta / stride, true
}

// appendInstances appends the copies of base for instances lo..hi. when
// successive copies touch or overlap they are emitted as one spanning
// rectangle.
func appendInstances(dst []Ref, base Ref, stride, lo, hi uint32) []Ref {
	if lo == hi || stride <= base.Rows() {
		span := base.ShiftRows(lo * stride)
		span.EndRow = base.ShiftRows(hi * stride).EndRow
		return append(dst, span)
	}
	for i := lo; i <= hi; i++ {
		dst = append(dst, base.ShiftRows(i*stride))
	}
	return dst
}
