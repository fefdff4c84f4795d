package query

import (
	"time"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/argus-labs/archquery/pkg/assert"
	"github.com/argus-labs/archquery/pkg/statsd"
	"github.com/rotisserie/eris"
)

// ChunkRef identifies a chunk allocation. Chunk slots may be reused, so the sequence number tells
// two allocations of the same slot apart.
type ChunkRef struct {
	Archetype ArchetypeID
	Sequence  uint64
}

// ChunkCache is the flat list of non-empty chunks of a query's matching archetypes, in matching
// order and then archetype chunk order.
type ChunkCache struct {
	chunks     []ChunkRef
	matchIndex []int // Index into the query's matching archetypes
	chunkIndex []int // Index into the archetype's chunk list
	valid      bool
}

// Len returns the number of cached chunks.
func (c *ChunkCache) Len() int {
	return len(c.chunks)
}

// At returns the i-th cached chunk with its matching archetype index and chunk index.
func (c *ChunkCache) At(i int) (ref ChunkRef, matchIndex int, chunkIndex int) {
	return c.chunks[i], c.matchIndex[i], c.chunkIndex[i]
}

// Chunks returns a copy of the cached chunk references.
func (c *ChunkCache) Chunks() []ChunkRef {
	return append([]ChunkRef(nil), c.chunks...)
}

// Valid reports whether the cache reflects the current matching archetypes.
func (c *ChunkCache) Valid() bool {
	return c.valid
}

func (c *ChunkCache) invalidate() {
	c.valid = false
}

func (c *ChunkCache) reset() {
	c.chunks = c.chunks[:0]
	c.matchIndex = c.matchIndex[:0]
	c.chunkIndex = c.chunkIndex[:0]
}

// Cache returns the chunk cache, rebuilding it first if it was invalidated. The returned cache is
// owned by the query and is only valid until the next structural change.
func (q *Query) Cache() *ChunkCache {
	if !q.cache.valid {
		q.rebuildCache()
	}
	return &q.cache
}

// InvalidateCache marks the chunk cache stale so the next access rebuilds it.
func (q *Query) InvalidateCache() {
	q.cache.invalidate()
}

func (q *Query) rebuildCache() {
	start := time.Now()
	r := q.registry

	q.cache.reset()
	for mi := range q.matching {
		arch := r.store.Archetype(q.matching[mi].Archetype)
		for c := range arch.ChunkCount() {
			if arch.ChunkEntityCount(c) == 0 {
				continue
			}
			q.cache.chunks = append(q.cache.chunks, ChunkRef{Archetype: arch.ID(), Sequence: arch.ChunkSequence(c)})
			q.cache.matchIndex = append(q.cache.matchIndex, mi)
			q.cache.chunkIndex = append(q.cache.chunkIndex, c)
		}
	}
	q.cache.valid = true

	if r.checkCache && assert.Enabled {
		err := q.CheckCache()
		assert.That(err == nil, "chunk cache check failed after rebuild: %v", err)
	}

	r.logger.Trace().Int("query_id", q.id).Int("chunks", len(q.cache.chunks)).Msg("chunk cache rebuilt")
	statsd.EmitTiming("query.cache_rebuild", start)
}

// CheckCache recomputes the expected chunk layout from the matching archetypes and compares it with
// the cache. An invalid cache is not checked.
func (q *Query) CheckCache() error {
	c := &q.cache
	if !c.valid {
		return nil
	}
	if len(c.chunks) != len(c.matchIndex) || len(c.chunks) != len(c.chunkIndex) {
		return eris.Wrapf(ErrCacheInconsistent, "parallel rows differ in length: %d chunks, %d archetype rows, %d chunk rows",
			len(c.chunks), len(c.matchIndex), len(c.chunkIndex))
	}

	seen := roaring64.New()
	for i, ref := range c.chunks {
		if !seen.CheckedAdd(ref.Sequence) {
			return eris.Wrapf(ErrCacheInconsistent, "chunk sequence %d cached more than once (position %d)", ref.Sequence, i)
		}
	}

	pos := 0
	for mi := range q.matching {
		arch := q.registry.store.Archetype(q.matching[mi].Archetype)
		for ci := range arch.ChunkCount() {
			if arch.ChunkEntityCount(ci) == 0 {
				continue
			}
			if pos >= len(c.chunks) {
				return eris.Wrapf(ErrCacheInconsistent, "archetype %d chunk %d missing from cache", arch.ID(), ci)
			}
			ref, gotMatch, gotChunk := c.At(pos)
			switch {
			case gotMatch != mi || ref.Archetype != arch.ID():
				return eris.Wrapf(ErrCacheInconsistent, "position %d holds archetype %d, expected %d", pos, ref.Archetype, arch.ID())
			case gotChunk != ci:
				return eris.Wrapf(ErrCacheInconsistent, "position %d holds chunk %d, expected %d", pos, gotChunk, ci)
			case ref.Sequence != arch.ChunkSequence(ci):
				return eris.Wrapf(ErrCacheInconsistent, "position %d holds sequence %d, expected %d",
					pos, ref.Sequence, arch.ChunkSequence(ci))
			}
			pos++
		}
	}
	if pos != len(c.chunks) {
		return eris.Wrapf(ErrCacheInconsistent, "cache holds %d chunks, expected %d", len(c.chunks), pos)
	}
	return nil
}
