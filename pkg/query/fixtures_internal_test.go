package query

import (
	"slices"
	"sync"
)

// Test component types.
const (
	typeA TypeIndex = FirstUserType + iota
	typeB
	typeC
	typeD
	typeE // Enableable
	typeF // Enableable
	typeS // Shared
	typeT // Write group with typeU
	typeU // Write group with typeT and typeV
	typeV // Write group with typeU
	typeZ // Zero-sized tag
)

type fakeTypes map[TypeIndex]TypeInfo

func newFakeTypes() fakeTypes {
	types := fakeTypes{
		EntityType:      {Index: EntityType, Name: "entity", Size: 4},
		DisabledType:    {Index: DisabledType, Name: "disabled"},
		PrefabType:      {Index: PrefabType, Name: "prefab"},
		SystemType:      {Index: SystemType, Name: "system"},
		ChunkHeaderType: {Index: ChunkHeaderType, Name: "chunk_header"},
		typeA:           {Index: typeA, Name: "a", Size: 8},
		typeB:           {Index: typeB, Name: "b", Size: 8},
		typeC:           {Index: typeC, Name: "c", Size: 8},
		typeD:           {Index: typeD, Name: "d", Size: 8},
		typeE:           {Index: typeE, Name: "e", Size: 4, Enableable: true},
		typeF:           {Index: typeF, Name: "f", Size: 0, Enableable: true},
		typeS:           {Index: typeS, Name: "s", Size: 4, Shared: true},
		typeT:           {Index: typeT, Name: "t", Size: 4, WriteGroup: []TypeIndex{typeU}},
		typeU:           {Index: typeU, Name: "u", Size: 4, WriteGroup: []TypeIndex{typeT, typeV}},
		typeV:           {Index: typeV, Name: "v", Size: 4, WriteGroup: []TypeIndex{typeU}},
		typeZ:           {Index: typeZ, Name: "z", Size: 0},
	}
	return types
}

func (f fakeTypes) TypeInfo(t TypeIndex) (TypeInfo, bool) {
	info, ok := f[t]
	return info, ok
}

type fakeChunk struct {
	sequence     uint64
	entities     []EntityID
	versions     []uint32 // Per column
	orderVersion uint32
	shared       []SharedIndex // Per column
	enabled      [][2]uint64   // Per column
}

type fakeArchetype struct {
	id     ArchetypeID
	types  []TypeIndex
	chunks []*fakeChunk
}

func (a *fakeArchetype) ID() ArchetypeID                    { return a.id }
func (a *fakeArchetype) Types() []TypeIndex                 { return a.types }
func (a *fakeArchetype) MemoryOrder(column int) int         { return column }
func (a *fakeArchetype) ChunkCount() int                    { return len(a.chunks) }
func (a *fakeArchetype) ChunkEntityCount(c int) int         { return len(a.chunks[c].entities) }
func (a *fakeArchetype) ChunkSequence(c int) uint64         { return a.chunks[c].sequence }
func (a *fakeArchetype) ChunkEntities(c int) []EntityID     { return a.chunks[c].entities }
func (a *fakeArchetype) ChangeVersion(column, c int) uint32 { return a.chunks[c].versions[column] }
func (a *fakeArchetype) OrderVersion(c int) uint32          { return a.chunks[c].orderVersion }

func (a *fakeArchetype) SharedValue(column, c int) SharedIndex {
	return a.chunks[c].shared[column]
}

func (a *fakeArchetype) EnabledBits(memoryOrder, c int) [2]uint64 {
	return a.chunks[c].enabled[memoryOrder]
}

func (a *fakeArchetype) column(t TypeIndex) int {
	col, ok := slices.BinarySearch(a.types, t)
	if !ok {
		return -1
	}
	return col
}

// fakeStore is a minimal ArchetypeStore. Every entity is enabled on creation.
type fakeStore struct {
	archetypes []*fakeArchetype
	nextEntity EntityID
	nextSeq    uint64
	version    uint32
	registry   *Registry
}

func newFakeStore() *fakeStore {
	return &fakeStore{nextSeq: 1, version: 1}
}

func (s *fakeStore) ArchetypeCount() int                { return len(s.archetypes) }
func (s *fakeStore) Archetype(id ArchetypeID) Archetype { return s.archetypes[id] }
func (s *fakeStore) GlobalVersion() uint32              { return s.version }

func (s *fakeStore) Locate(e EntityID) (ArchetypeID, int, int, bool) {
	for _, a := range s.archetypes {
		for ci, c := range a.chunks {
			if row := slices.Index(c.entities, e); row >= 0 {
				return a.id, ci, row, true
			}
		}
	}
	return 0, 0, 0, false
}

// addArchetype creates an archetype holding the entity type plus the given types.
func (s *fakeStore) addArchetype(types ...TypeIndex) *fakeArchetype {
	all := append([]TypeIndex{EntityType}, types...)
	slices.Sort(all)
	a := &fakeArchetype{id: ArchetypeID(len(s.archetypes)), types: slices.Compact(all)}
	s.archetypes = append(s.archetypes, a)
	if s.registry != nil {
		s.registry.OnArchetypeCreated(a.id)
	}
	return a
}

// addChunk appends a chunk of n enabled entities.
func (s *fakeStore) addChunk(a *fakeArchetype, n int) *fakeChunk {
	c := &fakeChunk{
		sequence:     s.nextSeq,
		versions:     make([]uint32, len(a.types)),
		orderVersion: s.version,
		shared:       make([]SharedIndex, len(a.types)),
		enabled:      make([][2]uint64, len(a.types)),
	}
	s.nextSeq++
	for i := range a.types {
		c.versions[i] = s.version
		c.enabled[i] = fullWords(n)
	}
	for range n {
		c.entities = append(c.entities, s.nextEntity)
		s.nextEntity++
	}
	a.chunks = append(a.chunks, c)
	if s.registry != nil {
		s.registry.InvalidateArchetype(a.id)
	}
	return c
}

// setEnabled sets the enabled bit of t for row in chunk c.
func setEnabled(a *fakeArchetype, c *fakeChunk, t TypeIndex, row int, enabled bool) {
	col := a.column(t)
	mask := uint64(1) << uint(row%64)
	if enabled {
		c.enabled[col][row/64] |= mask
	} else {
		c.enabled[col][row/64] &^= mask
	}
}

type fakeShared struct {
	mu     sync.Mutex
	values map[any]SharedIndex
	refs   map[SharedIndex]int
}

func newFakeShared() *fakeShared {
	return &fakeShared{values: make(map[any]SharedIndex), refs: make(map[SharedIndex]int)}
}

func (f *fakeShared) Intern(_ TypeIndex, value any) (SharedIndex, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx, ok := f.values[value]
	if !ok {
		idx = SharedIndex(len(f.values) + 1)
		f.values[value] = idx
	}
	f.refs[idx]++
	return idx, nil
}

func (f *fakeShared) Release(idx SharedIndex) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refs[idx]--
}

type fakeDeps struct {
	mu        sync.Mutex
	completed []TypeIndex
}

func (d *fakeDeps) CompleteWriters(t TypeIndex) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.completed = append(d.completed, t)
}

func (d *fakeDeps) CompleteDependencies(readers, writers []TypeIndex) {
	for _, t := range readers {
		d.CompleteWriters(t)
	}
	for _, t := range writers {
		d.CompleteWriters(t)
	}
}

type fixture struct {
	types    fakeTypes
	store    *fakeStore
	shared   *fakeShared
	deps     *fakeDeps
	registry *Registry
}

func newFixture(opts ...Option) *fixture {
	f := &fixture{
		types:  newFakeTypes(),
		store:  newFakeStore(),
		shared: newFakeShared(),
		deps:   &fakeDeps{},
	}
	opts = append([]Option{WithSharedStore(f.shared), WithDependencyTracker(f.deps)}, opts...)
	f.registry = NewRegistry(f.types, f.store, opts...)
	f.store.registry = f.registry
	return f
}
