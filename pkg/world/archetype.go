package world

import (
	"slices"

	"github.com/argus-labs/archquery/pkg/assert"
	"github.com/argus-labs/archquery/pkg/query"
	"github.com/kelindar/bitmap"
)

// chunk is a fixed-capacity block of entities of one archetype. Per-column state is indexed by the
// archetype column.
type chunk struct {
	sequence       uint64 // Unique per allocation, slots are recycled
	index          int    // Position in the archetype chunk list
	entities       []query.EntityID
	changeVersions []uint32
	orderVersion   uint32
	shared         []query.SharedIndex
	enabled        [][2]uint64
}

// reset prepares a recycled chunk for a new allocation.
func (c *chunk) reset(sequence uint64, columns int, shared []query.SharedIndex, version uint32) {
	c.sequence = sequence
	c.entities = c.entities[:0]
	c.changeVersions = resize(c.changeVersions, columns)
	c.enabled = resize(c.enabled, columns)
	c.shared = append(c.shared[:0], shared...)
	for i := range columns {
		c.changeVersions[i] = version
		c.enabled[i] = [2]uint64{}
	}
	c.orderVersion = version
}

func resize[T any](s []T, n int) []T {
	if cap(s) < n {
		return make([]T, n)
	}
	return s[:n]
}

// archetype represents a collection of entities with the same component types.
// NOTE: We store the compCount instead of using Bitmap.Count() because counting bits is O(n).
type archetype struct {
	id         query.ArchetypeID
	types      []query.TypeIndex // Sorted, EntityType first
	components bitmap.Bitmap     // Bitmap of the types, used for exact lookups
	compCount  int
	enableable []bool // Per column
	sharedCols []bool // Per column
	chunks     []*chunk
	capacity   int
}

// newArchetype creates an archetype for the given sorted component types.
func newArchetype(id query.ArchetypeID, types []query.TypeIndex, registry *TypeRegistry, capacity int) *archetype {
	assert.That(slices.IsSorted(types), "archetype types must be sorted")
	assert.That(len(types) > 0 && types[0] == query.EntityType, "archetype must contain the entity type")

	arch := &archetype{
		id:         id,
		types:      types,
		compCount:  len(types),
		enableable: make([]bool, len(types)),
		sharedCols: make([]bool, len(types)),
		capacity:   capacity,
	}
	for i, t := range types {
		arch.components.Set(uint32(t))
		info, ok := registry.TypeInfo(t)
		assert.That(ok, "archetype type %d is not registered", t)
		arch.enableable[i] = info.Enableable
		arch.sharedCols[i] = info.Shared
	}
	return arch
}

// exact returns true if the given components match the archetype's exactly.
func (a *archetype) exact(components bitmap.Bitmap) bool {
	if a.compCount != components.Count() {
		return false
	}
	return a.contains(components)
}

// contains returns true if the archetype contains all of the components in the given components.
func (a *archetype) contains(components bitmap.Bitmap) bool {
	intersect := components.Clone(nil)
	intersect.And(a.components)
	return intersect.Count() == components.Count()
}

// column returns the column of t, or -1 when the archetype does not have it.
func (a *archetype) column(t query.TypeIndex) int {
	if !a.components.Contains(uint32(t)) {
		return -1
	}
	col, _ := slices.BinarySearch(a.types, t)
	return col
}

// findChunk returns a chunk with free space and the given shared values.
func (a *archetype) findChunk(shared []query.SharedIndex) *chunk {
	for _, c := range a.chunks {
		if len(c.entities) < a.capacity && slices.Equal(c.shared, shared) {
			return c
		}
	}
	return nil
}

func (a *archetype) entityCount() int {
	n := 0
	for _, c := range a.chunks {
		n += len(c.entities)
	}
	return n
}

// -------------------------------------------------------------------------------------------------
// Entity operations
// -------------------------------------------------------------------------------------------------

// addEntity appends the entity to the chunk with every enableable component enabled and returns
// its row.
func (a *archetype) addEntity(c *chunk, eid query.EntityID, version uint32) int {
	assert.That(len(c.entities) < a.capacity, "chunk is full")

	row := len(c.entities)
	c.entities = append(c.entities, eid)
	for col := range a.types {
		if a.enableable[col] {
			setBit(&c.enabled[col], row, true)
		}
		c.changeVersions[col] = version
	}
	c.orderVersion = version
	return row
}

// removeRow removes the entity at row by swapping in the last entity of the chunk. It returns the
// moved entity, if any.
func (a *archetype) removeRow(c *chunk, row int, version uint32) (query.EntityID, bool) {
	lastIndex := len(c.entities) - 1
	assert.That(row >= 0 && row <= lastIndex, "row %d out of range", row)

	moved := c.entities[lastIndex]
	c.entities[row] = moved
	c.entities = c.entities[:lastIndex]
	for col := range a.types {
		if !a.enableable[col] {
			continue
		}
		setBit(&c.enabled[col], row, testBit(c.enabled[col], lastIndex))
		setBit(&c.enabled[col], lastIndex, false)
	}
	c.orderVersion = version

	return moved, row != lastIndex
}

func setBit(words *[2]uint64, i int, v bool) {
	mask := uint64(1) << uint(i%64)
	if v {
		words[i/64] |= mask
	} else {
		words[i/64] &^= mask
	}
}

func testBit(words [2]uint64, i int) bool {
	return words[i/64]&(uint64(1)<<uint(i%64)) != 0
}

// -------------------------------------------------------------------------------------------------
// query.Archetype
// -------------------------------------------------------------------------------------------------

var _ query.Archetype = (*archetype)(nil)

func (a *archetype) ID() query.ArchetypeID {
	return a.id
}

func (a *archetype) Types() []query.TypeIndex {
	return a.types
}

// MemoryOrder is the identity, enabled bits are stored per column.
func (a *archetype) MemoryOrder(column int) int {
	return column
}

func (a *archetype) ChunkCount() int {
	return len(a.chunks)
}

func (a *archetype) ChunkEntityCount(c int) int {
	return len(a.chunks[c].entities)
}

func (a *archetype) ChunkSequence(c int) uint64 {
	return a.chunks[c].sequence
}

func (a *archetype) ChunkEntities(c int) []query.EntityID {
	return a.chunks[c].entities
}

func (a *archetype) ChangeVersion(column, c int) uint32 {
	return a.chunks[c].changeVersions[column]
}

func (a *archetype) OrderVersion(c int) uint32 {
	return a.chunks[c].orderVersion
}

func (a *archetype) SharedValue(column, c int) query.SharedIndex {
	return a.chunks[c].shared[column]
}

// EnabledBits returns the enabled bits of the column. Columns without enabled bits report every
// entity as enabled.
func (a *archetype) EnabledBits(memoryOrder, c int) [2]uint64 {
	if !a.enableable[memoryOrder] {
		return [2]uint64{^uint64(0), ^uint64(0)}
	}
	return a.chunks[c].enabled[memoryOrder]
}
