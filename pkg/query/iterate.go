package query

import (
	"iter"
	"slices"

	"github.com/rotisserie/eris"
)

// ChunkBatch is one chunk that passed the query's filter.
type ChunkBatch struct {
	Ref       ChunkRef
	Archetype Archetype
	Chunk     int // Index in the archetype chunk list
	Match     *MatchingArchetype
	// Mask holds the matching entities when UseMask is set. Otherwise every entity matches.
	Mask    EnabledMask
	UseMask bool
	Count   int // Number of matching entities
}

// Entities returns the chunk's entities as stored, including non-matching ones.
func (b ChunkBatch) Entities() []EntityID {
	return b.Archetype.ChunkEntities(b.Chunk)
}

// MatchingEntities yields the matching entities of the chunk in row order.
func (b ChunkBatch) MatchingEntities() iter.Seq[EntityID] {
	return func(yield func(EntityID) bool) {
		entities := b.Entities()
		if !b.UseMask {
			for _, e := range entities {
				if !yield(e) {
					return
				}
			}
			return
		}
		for begin, end := range b.Mask.Runs() {
			for _, e := range entities[begin:end] {
				if !yield(e) {
					return
				}
			}
		}
	}
}

// Chunks yields every cached chunk that passes the filter and holds at least one matching entity.
func (q *Query) Chunks() iter.Seq[ChunkBatch] {
	return func(yield func(ChunkBatch) bool) {
		q.completeDependencies()
		q.chunks(yield)
	}
}

// chunks walks the cache without waiting on dependencies.
func (q *Query) chunks(yield func(ChunkBatch) bool) {
	cache := q.Cache()
	useEnabled := q.HasEnableableComponents()
	store := q.registry.store
	for i := range cache.Len() {
		ref, mi, ci := cache.At(i)
		m := &q.matching[mi]
		arch := store.Archetype(ref.Archetype)
		if !q.filter.Empty() && !q.filter.matchesChunk(m, arch, ci) {
			continue
		}

		batch := ChunkBatch{Ref: ref, Archetype: arch, Chunk: ci, Match: m, Count: arch.ChunkEntityCount(ci)}
		if useEnabled && m.needsEnabledBits() {
			batch.Mask = NewEnabledMask(chunkEnabledWords(m, arch, ci, batch.Count), batch.Count)
			batch.UseMask = true
			batch.Count = batch.Mask.Count()
		}
		if batch.Count == 0 {
			continue
		}
		if !yield(batch) {
			return
		}
	}
}

// Entities yields every matching entity in chunk order.
func (q *Query) Entities() iter.Seq[EntityID] {
	return func(yield func(EntityID) bool) {
		for batch := range q.Chunks() {
			for e := range batch.MatchingEntities() {
				if !yield(e) {
					return
				}
			}
		}
	}
}

// Each calls fn for every matching entity until fn returns false.
func (q *Query) Each(fn func(EntityID) bool) {
	for e := range q.Entities() {
		if !fn(e) {
			return
		}
	}
}

// First returns the first matching entity.
func (q *Query) First() (EntityID, error) {
	var (
		first EntityID
		found bool
	)
	q.Each(func(e EntityID) bool {
		first, found = e, true
		return false
	})
	if !found {
		return 0, ErrNoSingleton
	}
	return first, nil
}

// Collect returns every matching entity sorted by ID.
func (q *Query) Collect() []EntityID {
	entities := q.ToEntityArray()
	slices.Sort(entities)
	return entities
}

// ToEntityArray returns every matching entity in chunk order.
func (q *Query) ToEntityArray() []EntityID {
	q.completeDependencies()
	q.registry.deps.CompleteDependencies(q.readers, q.writers)
	return q.collectEntities(make([]EntityID, 0, q.CalculateEntityCountWithoutFiltering()))
}

func (q *Query) collectEntities(out []EntityID) []EntityID {
	q.chunks(func(batch ChunkBatch) bool {
		for e := range batch.MatchingEntities() {
			out = append(out, e)
		}
		return true
	})
	return out
}

// ToChunkArray returns every chunk that passes the filter and holds a matching entity.
func (q *Query) ToChunkArray() []ChunkRef {
	q.completeDependencies()
	q.registry.deps.CompleteDependencies(q.readers, q.writers)
	return q.collectChunks(make([]ChunkRef, 0, q.CalculateChunkCountWithoutFiltering()))
}

func (q *Query) collectChunks(out []ChunkRef) []ChunkRef {
	q.chunks(func(batch ChunkBatch) bool {
		out = append(out, batch.Ref)
		return true
	})
	return out
}

// Singleton returns the only matching entity.
func (q *Query) Singleton() (EntityID, error) {
	var (
		found EntityID
		count int
	)
	for e := range q.Entities() {
		found = e
		count++
		if count > 1 {
			return 0, ErrMultipleSingletons
		}
	}
	if count == 0 {
		return 0, ErrNoSingleton
	}
	return found, nil
}

// -------------------------------------------------------------------------------------------------
// Counting
// -------------------------------------------------------------------------------------------------

// CalculateEntityCount returns the number of entities that pass the filter and enabled bits.
func (q *Query) CalculateEntityCount() int {
	q.completeDependencies()
	count := 0
	q.chunks(func(batch ChunkBatch) bool {
		count += batch.Count
		return true
	})
	return count
}

// CalculateEntityCountWithoutFiltering returns the number of entities in matching archetypes,
// ignoring filters and enabled bits.
func (q *Query) CalculateEntityCountWithoutFiltering() int {
	cache := q.Cache()
	store := q.registry.store
	count := 0
	for i := range cache.Len() {
		ref, _, ci := cache.At(i)
		count += store.Archetype(ref.Archetype).ChunkEntityCount(ci)
	}
	return count
}

// CalculateChunkCount returns the number of chunks that pass the filter and hold a matching entity.
func (q *Query) CalculateChunkCount() int {
	q.completeDependencies()
	count := 0
	q.chunks(func(ChunkBatch) bool {
		count++
		return true
	})
	return count
}

// CalculateChunkCountWithoutFiltering returns the number of non-empty chunks in matching archetypes.
func (q *Query) CalculateChunkCountWithoutFiltering() int {
	return q.Cache().Len()
}

// IsEmpty reports whether no entity passes the filter and enabled bits.
func (q *Query) IsEmpty() bool {
	q.completeDependencies()
	empty := true
	q.chunks(func(ChunkBatch) bool {
		empty = false
		return false
	})
	return empty
}

// IsEmptyIgnoreFilter reports whether the matching archetypes hold no entity at all.
func (q *Query) IsEmptyIgnoreFilter() bool {
	return q.Cache().Len() == 0
}

// EntityCountInChunk returns the matching entities of one cached chunk.
func (q *Query) EntityCountInChunk(cacheIndex int) (int, error) {
	cache := q.Cache()
	if cacheIndex < 0 || cacheIndex >= cache.Len() {
		return 0, eris.Errorf("cache index %d out of range [0, %d)", cacheIndex, cache.Len())
	}
	ref, mi, ci := cache.At(cacheIndex)
	arch := q.registry.store.Archetype(ref.Archetype)
	count := arch.ChunkEntityCount(ci)
	m := &q.matching[mi]
	if !q.HasEnableableComponents() || !m.needsEnabledBits() {
		return count, nil
	}
	q.completeEnabledDependencies()
	return NewEnabledMask(chunkEnabledWords(m, arch, ci, count), count).Count(), nil
}
