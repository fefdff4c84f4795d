package world

import (
	"slices"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/argus-labs/archquery/pkg/assert"
	"github.com/argus-labs/archquery/pkg/query"
	"github.com/kelindar/bitmap"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// World is an in-memory archetype store. It owns the type registry, the shared-value store, the
// writer dependency tracker, and the query registry, and keeps the registry informed of structural
// changes. A World is not safe for concurrent structural mutation.
type World struct {
	types   *TypeRegistry
	shared  *SharedStore
	deps    *Dependencies
	queries *query.Registry
	logger  zerolog.Logger

	archetypes   []*archetype // Index is the archetype ID
	entities     entityManager
	freeChunks   []*chunk // Recycled chunk slots
	nextSequence uint64
	version      uint32

	chunkCapacity int
}

var _ query.ArchetypeStore = (*World)(nil)

// New creates a world with the given options.
func New(opts Options) (*World, error) {
	options := newDefaultOptions()
	options.apply(opts)
	if err := options.validate(); err != nil {
		return nil, eris.Wrap(err, "invalid world options")
	}

	logger := zerolog.Nop()
	if options.Logger != nil {
		logger = *options.Logger
	}

	w := &World{
		types:         NewTypeRegistry(),
		shared:        NewSharedStore(),
		deps:          NewDependencies(),
		logger:        logger.With().Str("component", "world").Logger(),
		archetypes:    make([]*archetype, 0),
		entities:      newEntityManager(),
		nextSequence:  1,
		version:       1,
		chunkCapacity: options.ChunkCapacity,
	}
	w.queries = query.NewRegistry(w.types, w,
		query.WithLogger(logger),
		query.WithSharedStore(w.shared),
		query.WithDependencyTracker(w.deps),
		query.WithMaskCapacity(options.MaskCapacity),
		query.WithCacheChecks(options.CheckCache),
	)
	return w, nil
}

// NewFromEnv creates a world configured from the environment.
func NewFromEnv(logger zerolog.Logger) (*World, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	opts := Options{Logger: &logger}
	cfg.applyToOptions(&opts)
	return New(opts)
}

// Types returns the type registry.
func (w *World) Types() *TypeRegistry {
	return w.types
}

// Shared returns the shared-value store.
func (w *World) Shared() *SharedStore {
	return w.shared
}

// Dependencies returns the writer dependency tracker.
func (w *World) Dependencies() *Dependencies {
	return w.deps
}

// Queries returns the query registry.
func (w *World) Queries() *query.Registry {
	return w.queries
}

// Register registers a component type.
func (w *World) Register(info query.TypeInfo) (query.TypeIndex, error) {
	return w.types.Register(info)
}

// Tick advances the global version and returns it.
func (w *World) Tick() uint32 {
	w.version++
	if w.version == 0 {
		w.version = 1
	}
	return w.version
}

// Version returns the current global version.
func (w *World) Version() uint32 {
	return w.version
}

// EntityCount returns the number of live entities.
func (w *World) EntityCount() int {
	return w.entities.count()
}

// Close disposes the query registry and waits for scheduled writers.
func (w *World) Close() error {
	err := w.deps.Wait()
	w.queries.Dispose()
	return err
}

// -------------------------------------------------------------------------------------------------
// query.ArchetypeStore
// -------------------------------------------------------------------------------------------------

func (w *World) ArchetypeCount() int {
	return len(w.archetypes)
}

func (w *World) Archetype(id query.ArchetypeID) query.Archetype {
	return w.archetypes[id]
}

func (w *World) Locate(e query.EntityID) (query.ArchetypeID, int, int, bool) {
	loc, ok := w.entities.locations[e]
	if !ok {
		return 0, 0, 0, false
	}
	return loc.arch.id, loc.chunk.index, loc.row, true
}

func (w *World) GlobalVersion() uint32 {
	return w.version
}

// -------------------------------------------------------------------------------------------------
// Archetypes and chunks
// -------------------------------------------------------------------------------------------------

// findOrCreateArchetype finds the archetype with exactly the given sorted types or creates it.
func (w *World) findOrCreateArchetype(types []query.TypeIndex) *archetype {
	components := bitmap.Bitmap{}
	for _, t := range types {
		components.Set(uint32(t))
	}

	// First try to find existing archetype, if found return it.
	if arch := w.archExact(components); arch != nil {
		return arch
	}

	// Create new archetype if none found.
	id := query.ArchetypeID(len(w.archetypes)) // archetype ID = index in archetypes array
	arch := newArchetype(id, types, w.types, w.chunkCapacity)
	w.archetypes = append(w.archetypes, arch)
	w.queries.OnArchetypeCreated(id)

	w.logger.Debug().Int("archetype_id", int(id)).Int("components", len(types)).Msg("archetype created")
	return arch
}

// archExact returns the archetype that exactly matches the given component types.
func (w *World) archExact(components bitmap.Bitmap) *archetype {
	for _, arch := range w.archetypes {
		if arch.exact(components) {
			return arch
		}
	}
	return nil
}

// ArchetypesContaining returns the IDs of the archetypes holding every given type.
func (w *World) ArchetypesContaining(types ...query.TypeIndex) []query.ArchetypeID {
	components := bitmap.Bitmap{}
	for _, t := range types {
		components.Set(uint32(t))
	}
	var ids []query.ArchetypeID
	for _, arch := range w.archetypes {
		if arch.contains(components) {
			ids = append(ids, arch.id)
		}
	}
	return ids
}

// allocChunk adds a chunk with the given shared values to the archetype, recycling a free slot when
// one is available. Every chunk allocation gets a new sequence number.
func (w *World) allocChunk(arch *archetype, shared []query.SharedIndex) *chunk {
	var c *chunk
	if n := len(w.freeChunks); n > 0 {
		c = w.freeChunks[n-1]
		w.freeChunks = w.freeChunks[:n-1]
	} else {
		c = &chunk{entities: make([]query.EntityID, 0, arch.capacity)}
	}
	c.reset(w.nextSequence, len(arch.types), shared, w.version)
	w.nextSequence++

	for _, idx := range shared {
		w.shared.Retain(idx)
	}
	c.index = len(arch.chunks)
	arch.chunks = append(arch.chunks, c)
	w.queries.InvalidateArchetype(arch.id)
	return c
}

// freeChunk removes an empty chunk from its archetype and returns the slot to the pool.
func (w *World) freeChunk(arch *archetype, c *chunk) {
	assert.That(len(c.entities) == 0, "freeing a non-empty chunk")

	last := len(arch.chunks) - 1
	moved := arch.chunks[last]
	arch.chunks[c.index] = moved
	moved.index = c.index
	arch.chunks[last] = nil
	arch.chunks = arch.chunks[:last]

	for _, idx := range c.shared {
		w.shared.Release(idx)
	}
	c.index = -1
	w.freeChunks = append(w.freeChunks, c)
	w.queries.InvalidateArchetype(arch.id)
}

// place stores the entity in a chunk of arch with the given shared values.
func (w *World) place(arch *archetype, e query.EntityID, shared []query.SharedIndex) location {
	c := arch.findChunk(shared)
	if c == nil {
		c = w.allocChunk(arch, shared)
	}
	row := arch.addEntity(c, e, w.version)
	loc := location{arch: arch, chunk: c, row: row}
	w.entities.set(e, loc)
	return loc
}

// unplace removes the entity from its chunk, freeing the chunk when it becomes empty.
func (w *World) unplace(loc location) {
	moved, ok := loc.arch.removeRow(loc.chunk, loc.row, w.version)
	if ok {
		w.entities.setRow(moved, loc.row)
	}
	if len(loc.chunk.entities) == 0 {
		w.freeChunk(loc.arch, loc.chunk)
	}
}

func defaultShared(n int) []query.SharedIndex {
	return make([]query.SharedIndex, n)
}

// -------------------------------------------------------------------------------------------------
// Entity operations
// -------------------------------------------------------------------------------------------------

// Create creates an entity with the given component types.
func (w *World) Create(types ...query.TypeIndex) (query.EntityID, error) {
	sorted, err := w.normalizeTypes(types)
	if err != nil {
		return 0, err
	}
	e, err := w.entities.new()
	if err != nil {
		return 0, err
	}
	arch := w.findOrCreateArchetype(sorted)
	w.place(arch, e, defaultShared(len(sorted)))
	return e, nil
}

// CreateMany creates n entities with the same component types.
func (w *World) CreateMany(n int, types ...query.TypeIndex) ([]query.EntityID, error) {
	sorted, err := w.normalizeTypes(types)
	if err != nil {
		return nil, err
	}
	arch := w.findOrCreateArchetype(sorted)
	shared := defaultShared(len(sorted))
	entities := make([]query.EntityID, 0, n)
	for range n {
		e, err := w.entities.new()
		if err != nil {
			return entities, err
		}
		w.place(arch, e, shared)
		entities = append(entities, e)
	}
	return entities, nil
}

// Destroy deletes an entity.
func (w *World) Destroy(e query.EntityID) error {
	loc, err := w.entities.get(e)
	if err != nil {
		return err
	}
	w.unplace(loc)
	w.entities.remove(e)
	return nil
}

// Alive checks if an entity exists in the world.
func (w *World) Alive(e query.EntityID) bool {
	return w.entities.isAlive(e)
}

// Has reports whether the entity carries the component type.
func (w *World) Has(e query.EntityID, t query.TypeIndex) bool {
	loc, err := w.entities.get(e)
	if err != nil {
		return false
	}
	return loc.arch.column(t) >= 0
}

// AddComponent adds a component type to an entity, moving it to another archetype. Adding a type
// the entity already has is a no-op.
func (w *World) AddComponent(e query.EntityID, t query.TypeIndex) error {
	if t == query.EntityType {
		return ErrBuiltinType
	}
	loc, err := w.entities.get(e)
	if err != nil {
		return err
	}
	if loc.arch.column(t) >= 0 {
		return nil
	}
	types, err := w.normalizeTypes(append(slices.Clone(loc.arch.types), t))
	if err != nil {
		return err
	}
	w.move(e, loc, w.findOrCreateArchetype(types))
	return nil
}

// RemoveComponent removes a component type from an entity, moving it to another archetype.
func (w *World) RemoveComponent(e query.EntityID, t query.TypeIndex) error {
	if t == query.EntityType {
		return ErrBuiltinType
	}
	loc, err := w.entities.get(e)
	if err != nil {
		return err
	}
	col := loc.arch.column(t)
	if col < 0 {
		return eris.Wrapf(ErrComponentNotFound, "entity %d has no type %d", e, t)
	}
	types := slices.Delete(slices.Clone(loc.arch.types), col, col+1)
	w.move(e, loc, w.findOrCreateArchetype(types))
	return nil
}

// move moves an entity to another archetype, carrying shared values and enabled state of the
// types both archetypes have.
func (w *World) move(e query.EntityID, from location, to *archetype) {
	assert.That(from.arch.id != to.id, "entity moved into its existing archetype")

	shared := defaultShared(len(to.types))
	enabled := make([]bool, len(to.types))
	for col, t := range to.types {
		enabled[col] = true
		src := from.arch.column(t)
		if src < 0 {
			continue
		}
		shared[col] = from.chunk.shared[src]
		if from.arch.enableable[src] {
			enabled[col] = testBit(from.chunk.enabled[src], from.row)
		}
	}

	// Keep the shared values referenced while the source chunk may be freed.
	for _, idx := range shared {
		w.shared.Retain(idx)
	}
	w.unplace(from)
	loc := w.place(to, e, shared)
	for _, idx := range shared {
		w.shared.Release(idx)
	}

	for col := range to.types {
		if to.enableable[col] && !enabled[col] {
			setBit(&loc.chunk.enabled[col], loc.row, false)
		}
	}
}

// SetEnabled sets the enabled bit of an enableable component and marks the component changed.
// It does not change the entity's archetype.
func (w *World) SetEnabled(e query.EntityID, t query.TypeIndex, enabled bool) error {
	loc, col, err := w.column(e, t)
	if err != nil {
		return err
	}
	if !loc.arch.enableable[col] {
		return eris.Wrapf(ErrNotEnableable, "type %d", t)
	}
	setBit(&loc.chunk.enabled[col], loc.row, enabled)
	loc.chunk.changeVersions[col] = w.version
	return nil
}

// IsEnabled reports whether the component is present and enabled on the entity. Components without
// enabled bits are always enabled.
func (w *World) IsEnabled(e query.EntityID, t query.TypeIndex) (bool, error) {
	loc, col, err := w.column(e, t)
	if err != nil {
		return false, err
	}
	if !loc.arch.enableable[col] {
		return true, nil
	}
	return testBit(loc.chunk.enabled[col], loc.row), nil
}

// MarkChanged stamps the component column of the entity's chunk with the current version.
func (w *World) MarkChanged(e query.EntityID, t query.TypeIndex) error {
	loc, col, err := w.column(e, t)
	if err != nil {
		return err
	}
	loc.chunk.changeVersions[col] = w.version
	return nil
}

// SetShared sets the shared value of a shared component, moving the entity to a chunk holding that
// value.
func (w *World) SetShared(e query.EntityID, t query.TypeIndex, value any) error {
	loc, col, err := w.column(e, t)
	if err != nil {
		return err
	}
	if !loc.arch.sharedCols[col] {
		return eris.Wrapf(ErrNotShared, "type %d", t)
	}

	idx, err := w.shared.Intern(t, value)
	if err != nil {
		return eris.Wrap(err, "failed to intern shared value")
	}
	defer w.shared.Release(idx)
	if loc.chunk.shared[col] == idx {
		return nil
	}

	shared := slices.Clone(loc.chunk.shared)
	shared[col] = idx
	enabled := slices.Clone(loc.chunk.enabled)
	row := loc.row

	for _, s := range shared {
		w.shared.Retain(s)
	}
	w.unplace(loc)
	newLoc := w.place(loc.arch, e, shared)
	for _, s := range shared {
		w.shared.Release(s)
	}

	for c := range loc.arch.types {
		if loc.arch.enableable[c] {
			setBit(&newLoc.chunk.enabled[c], newLoc.row, testBit(enabled[c], row))
		}
	}
	return nil
}

// SharedValue returns the shared value of a component on the entity.
func (w *World) SharedValue(e query.EntityID, t query.TypeIndex) (any, error) {
	loc, col, err := w.column(e, t)
	if err != nil {
		return nil, err
	}
	if !loc.arch.sharedCols[col] {
		return nil, eris.Wrapf(ErrNotShared, "type %d", t)
	}
	value, _ := w.shared.Value(loc.chunk.shared[col])
	return value, nil
}

// Location returns the archetype, chunk index, and row of an entity.
func (w *World) Location(e query.EntityID) (query.ArchetypeID, int, int, error) {
	loc, err := w.entities.get(e)
	if err != nil {
		return 0, 0, 0, err
	}
	return loc.arch.id, loc.chunk.index, loc.row, nil
}

// DisabledEntities returns the entities carrying t with its enabled bit cleared.
func (w *World) DisabledEntities(t query.TypeIndex) *roaring.Bitmap {
	disabled := roaring.New()
	for _, arch := range w.archetypes {
		col := arch.column(t)
		if col < 0 || !arch.enableable[col] {
			continue
		}
		for _, c := range arch.chunks {
			for row, e := range c.entities {
				if !testBit(c.enabled[col], row) {
					disabled.Add(uint32(e))
				}
			}
		}
	}
	return disabled
}

func (w *World) column(e query.EntityID, t query.TypeIndex) (location, int, error) {
	loc, err := w.entities.get(e)
	if err != nil {
		return location{}, -1, err
	}
	col := loc.arch.column(t)
	if col < 0 {
		return location{}, -1, eris.Wrapf(ErrComponentNotFound, "entity %d has no type %d", e, t)
	}
	return loc, col, nil
}

// normalizeTypes validates the types and returns them sorted, deduplicated, and with the entity
// type first.
func (w *World) normalizeTypes(types []query.TypeIndex) ([]query.TypeIndex, error) {
	sorted := make([]query.TypeIndex, 0, len(types)+1)
	sorted = append(sorted, query.EntityType)
	for _, t := range types {
		if _, ok := w.types.TypeInfo(t); !ok {
			return nil, eris.Wrapf(ErrComponentNotFound, "type %d", t)
		}
		sorted = append(sorted, t)
	}
	slices.Sort(sorted)
	return slices.Compact(sorted), nil
}
