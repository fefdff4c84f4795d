package query

// TypeRegistry supplies type identity and metadata.
type TypeRegistry interface {
	// TypeInfo returns the metadata of a registered type.
	TypeInfo(t TypeIndex) (TypeInfo, bool)
}

// EntityLocator resolves entities to their storage location.
type EntityLocator interface {
	// Locate returns the archetype, chunk index, and row of an entity.
	Locate(e EntityID) (arch ArchetypeID, chunk int, row int, ok bool)
}

// ArchetypeStore is the storage layer the registry matches against. Archetype IDs are dense and
// assigned in creation order starting at 0.
type ArchetypeStore interface {
	EntityLocator

	ArchetypeCount() int
	Archetype(id ArchetypeID) Archetype
	// GlobalVersion is the monotonically increasing version stamped on changes.
	GlobalVersion() uint32
}

// Archetype is a read view of one archetype. Columns are offsets into Types().
type Archetype interface {
	ID() ArchetypeID
	// Types returns the component types sorted ascending. EntityType is always at offset 0.
	Types() []TypeIndex
	// MemoryOrder maps a column to the slot used for its enabled bits.
	MemoryOrder(column int) int

	ChunkCount() int
	ChunkEntityCount(chunk int) int
	// ChunkSequence is unique for each chunk allocation, chunk slots may be reused.
	ChunkSequence(chunk int) uint64
	ChunkEntities(chunk int) []EntityID
	ChangeVersion(column, chunk int) uint32
	OrderVersion(chunk int) uint32
	SharedValue(column, chunk int) SharedIndex
	// EnabledBits returns the per-entity enabled bits of the type stored at memoryOrder.
	EnabledBits(memoryOrder, chunk int) [2]uint64
}

// SharedComponentStore interns shared-component values.
type SharedComponentStore interface {
	// Intern returns the handle of value and takes a reference on it.
	Intern(t TypeIndex, value any) (SharedIndex, error)
	// Release drops a reference taken by Intern.
	Release(idx SharedIndex)
}

// DependencyTracker blocks until in-flight writers are done.
type DependencyTracker interface {
	// CompleteWriters blocks until every in-flight writer of t is done.
	CompleteWriters(t TypeIndex)
	// CompleteDependencies blocks until every in-flight writer touching the given types is done.
	CompleteDependencies(readers, writers []TypeIndex)
}

type nopDependencies struct{}

func (nopDependencies) CompleteWriters(TypeIndex)             {}
func (nopDependencies) CompleteDependencies(_, _ []TypeIndex) {}
