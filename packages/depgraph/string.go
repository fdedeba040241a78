package depgraph

// InternTable provides interning of comparable values with reference
// counting. ID 0 is reserved for "no value".
type InternTable[T comparable] struct {
	ids       map[T]uint32
	values    map[uint32]T
	refCounts map[uint32]int // reference count for each ID
	nextID    uint32
}

// StringTable interns cell text
type StringTable = InternTable[string]

// NewInternTable creates a new intern table
func NewInternTable[T comparable]() *InternTable[T] {
	return &InternTable[T]{
		ids:       make(map[T]uint32),
		values:    make(map[uint32]T),
		refCounts: make(map[uint32]int),
		nextID:    1, // start at 1, reserve 0 for nil/empty
	}
}

// NewStringTable creates a new string table
func NewStringTable() *StringTable {
	return NewInternTable[string]()
}

// Intern adds a value to the table or increments its reference count if
// it already exists. returns the ID of the value.
func (t *InternTable[T]) Intern(v T) uint32 {
	if id, exists := t.ids[v]; exists {
		t.refCounts[id]++
		return id
	}

	id := t.nextID
	t.ids[v] = id
	t.values[id] = v
	t.refCounts[id] = 1
	t.nextID++

	return id
}

// Get retrieves a value by its ID
func (t *InternTable[T]) Get(id uint32) (T, bool) {
	v, exists := t.values[id]
	return v, exists
}

// Lookup returns the ID of a value without adding a reference
func (t *InternTable[T]) Lookup(v T) (uint32, bool) {
	id, exists := t.ids[v]
	return id, exists
}

// RemoveReference decrements the reference count for an ID. the value is
// dropped once nothing references it. returns true if it was dropped.
func (t *InternTable[T]) RemoveReference(id uint32) bool {
	v, exists := t.values[id]
	if !exists {
		return false
	}

	t.refCounts[id]--
	if t.refCounts[id] <= 0 {
		delete(t.ids, v)
		delete(t.values, id)
		delete(t.refCounts, id)
		return true
	}
	return false
}

// ReferenceCount returns the reference count for an ID
func (t *InternTable[T]) ReferenceCount(id uint32) int {
	return t.refCounts[id]
}

// Count returns the number of unique values in the table
func (t *InternTable[T]) Count() int {
	return len(t.ids)
}
