package depgraph

import "slices"

const (
	IndexChunkRows = ChunkRows // rows per index chunk, matches worksheet chunks
	IndexChunkCols = ChunkCols // columns per index chunk
)

// recordID identifies a stored record inside one EdgeStore
type recordID uint64

// ChunkKey represents the key for one bucket of the spatial index
type ChunkKey struct {
	WorksheetID uint32
	ChunkRow    uint32
	ChunkCol    uint32
}

// spatialIndex buckets record bounding boxes into fixed size chunks so a
// rectangle query only visits records near it. a record is registered in
// every chunk its bounding box touches.
type spatialIndex struct {
	chunks map[ChunkKey]map[recordID]struct{}
}

func newSpatialIndex() spatialIndex {
	return spatialIndex{chunks: make(map[ChunkKey]map[recordID]struct{})}
}

// chunkSpan returns the inclusive chunk coordinates covered by a ref
func chunkSpan(r Ref) (rowFrom, rowTo, colFrom, colTo uint32) {
	return r.StartRow / IndexChunkRows, r.EndRow / IndexChunkRows,
		r.StartColumn / IndexChunkCols, r.EndColumn / IndexChunkCols
}

func (si *spatialIndex) insert(id recordID, bounds Ref) {
	rowFrom, rowTo, colFrom, colTo := chunkSpan(bounds)
	for cr := rowFrom; cr <= rowTo; cr++ {
		for cc := colFrom; cc <= colTo; cc++ {
			key := ChunkKey{WorksheetID: bounds.WorksheetID, ChunkRow: cr, ChunkCol: cc}
			bucket, exists := si.chunks[key]
			if !exists {
				bucket = make(map[recordID]struct{})
				si.chunks[key] = bucket
			}
			bucket[id] = struct{}{}
		}
	}
}

func (si *spatialIndex) remove(id recordID, bounds Ref) {
	rowFrom, rowTo, colFrom, colTo := chunkSpan(bounds)
	for cr := rowFrom; cr <= rowTo; cr++ {
		for cc := colFrom; cc <= colTo; cc++ {
			key := ChunkKey{WorksheetID: bounds.WorksheetID, ChunkRow: cr, ChunkCol: cc}
			if bucket, exists := si.chunks[key]; exists {
				delete(bucket, id)
				if len(bucket) == 0 {
					delete(si.chunks, key)
				}
			}
		}
	}
}

// query returns the IDs of records registered in any chunk touched by q,
// sorted ascending. callers still have to check exact intersection.
func (si *spatialIndex) query(q Ref) []recordID {
	rowFrom, rowTo, colFrom, colTo := chunkSpan(q)
	seen := make(map[recordID]struct{})
	for cr := rowFrom; cr <= rowTo; cr++ {
		for cc := colFrom; cc <= colTo; cc++ {
			for id := range si.chunks[ChunkKey{WorksheetID: q.WorksheetID, ChunkRow: cr, ChunkCol: cc}] {
				seen[id] = struct{}{}
			}
		}
	}
	ids := make([]recordID, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// len returns the number of non-empty chunks
func (si *spatialIndex) len() int {
	return len(si.chunks)
}
