package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_OrderAndEmptyChunks(t *testing.T) {
	t.Parallel()

	f := newFixture(WithCacheChecks(true))
	first := f.store.addArchetype(typeA)
	f.store.addArchetype(typeB)
	second := f.store.addArchetype(typeA, typeC)

	c1 := f.store.addChunk(first, 3)
	f.store.addChunk(first, 0)
	c3 := f.store.addChunk(first, 5)
	c4 := f.store.addChunk(second, 1)

	q, err := NewBuilder().WithAll(Read(typeA)).Build(f.registry)
	require.NoError(t, err)

	cache := q.Cache()
	require.True(t, cache.Valid())
	assert.Equal(t, []ChunkRef{
		{Archetype: first.id, Sequence: c1.sequence},
		{Archetype: first.id, Sequence: c3.sequence},
		{Archetype: second.id, Sequence: c4.sequence},
	}, cache.Chunks())

	ref, mi, ci := cache.At(1)
	assert.Equal(t, first.id, ref.Archetype)
	assert.Equal(t, 0, mi)
	assert.Equal(t, 2, ci)
	require.NoError(t, q.CheckCache())
}

func TestCache_Idempotent(t *testing.T) {
	t.Parallel()

	f := newFixture()
	arch := f.store.addArchetype(typeA)
	f.store.addChunk(arch, 4)

	q, err := NewBuilder().WithAll(Read(typeA)).Build(f.registry)
	require.NoError(t, err)

	before := q.Cache().Chunks()
	q.InvalidateCache()
	assert.False(t, q.cache.Valid())
	after := q.Cache().Chunks()
	assert.Equal(t, before, after)
	assert.Equal(t, after, q.Cache().Chunks())
}

func TestCache_Invalidation(t *testing.T) {
	t.Parallel()

	f := newFixture()
	arch := f.store.addArchetype(typeA)
	other := f.store.addArchetype(typeB)

	qa, err := NewBuilder().WithAll(Read(typeA)).Build(f.registry)
	require.NoError(t, err)
	qb, err := NewBuilder().WithAll(Read(typeB)).Build(f.registry)
	require.NoError(t, err)
	assert.Equal(t, 0, qa.Cache().Len())
	assert.Equal(t, 0, qb.Cache().Len())

	f.store.addChunk(arch, 2)
	assert.False(t, qa.cache.Valid(), "chunk creation invalidates matching queries")
	assert.True(t, qb.cache.Valid(), "unrelated queries keep their cache")
	assert.Equal(t, 1, qa.Cache().Len())

	// A new matching archetype invalidates the cache too.
	f.store.addArchetype(typeA, typeB)
	assert.False(t, qa.cache.Valid())
	assert.False(t, qb.cache.Valid())

	f.store.addChunk(other, 1)
	assert.Equal(t, 1, qb.Cache().Len())
}

func TestCheckCache_DetectsCorruption(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		corrupt func(c *ChunkCache)
	}{
		{
			name:    "wrong sequence",
			corrupt: func(c *ChunkCache) { c.chunks[1].Sequence = 999 },
		},
		{
			name:    "duplicate sequence",
			corrupt: func(c *ChunkCache) { c.chunks[1].Sequence = c.chunks[0].Sequence },
		},
		{
			name:    "missing chunk",
			corrupt: func(c *ChunkCache) {
				c.chunks = c.chunks[:1]
				c.matchIndex = c.matchIndex[:1]
				c.chunkIndex = c.chunkIndex[:1]
			},
		},
		{
			name:    "extra chunk",
			corrupt: func(c *ChunkCache) {
				c.chunks = append(c.chunks, ChunkRef{Sequence: 77})
				c.matchIndex = append(c.matchIndex, 0)
				c.chunkIndex = append(c.chunkIndex, 0)
			},
		},
		{
			name:    "parallel rows out of sync",
			corrupt: func(c *ChunkCache) { c.chunkIndex = c.chunkIndex[:1] },
		},
		{
			name:    "wrong chunk index",
			corrupt: func(c *ChunkCache) { c.chunkIndex[0] = 1 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture()
			arch := f.store.addArchetype(typeA)
			f.store.addChunk(arch, 1)
			f.store.addChunk(arch, 1)

			q, err := NewBuilder().WithAll(Read(typeA)).Build(f.registry)
			require.NoError(t, err)
			require.Equal(t, 2, q.Cache().Len())
			require.NoError(t, q.CheckCache())

			tt.corrupt(&q.cache)
			require.ErrorIs(t, q.CheckCache(), ErrCacheInconsistent)

			q.InvalidateCache()
			require.NoError(t, q.CheckCache(), "an invalid cache is not checked")
		})
	}
}

func TestMask_Assignment(t *testing.T) {
	t.Parallel()

	f := newFixture()
	matching := f.store.addArchetype(typeA)
	other := f.store.addArchetype(typeB)
	c := f.store.addChunk(matching, 2)

	q, err := NewBuilder().WithAll(Read(typeA)).Build(f.registry)
	require.NoError(t, err)
	assert.Equal(t, 0, f.registry.MasksUsed())

	mask, err := q.Mask()
	require.NoError(t, err)
	assert.Equal(t, Mask{Index: 0, Bit: 1}, mask)
	assert.Equal(t, 1, f.registry.MasksUsed())

	again, err := q.Mask()
	require.NoError(t, err)
	assert.Equal(t, mask, again)
	assert.Equal(t, 1, f.registry.MasksUsed())

	assert.True(t, f.registry.MaskMatches(mask, matching.id))
	assert.False(t, f.registry.MaskMatches(mask, other.id))
	assert.False(t, f.registry.MaskMatches(mask, 42))
	assert.True(t, f.registry.MaskMatchesEntity(mask, c.entities[0]))
	assert.False(t, f.registry.MaskMatchesEntity(mask, 1000))

	later := f.store.addArchetype(typeA, typeC)
	assert.True(t, f.registry.MaskMatches(mask, later.id))

	// A second query gets the next bit.
	qb, err := NewBuilder().WithAll(Read(typeB)).Build(f.registry)
	require.NoError(t, err)
	maskB, err := qb.Mask()
	require.NoError(t, err)
	assert.Equal(t, Mask{Index: 0, Bit: 2}, maskB)
	assert.True(t, f.registry.MaskMatches(maskB, other.id))
	assert.False(t, f.registry.MaskMatches(maskB, matching.id))
}

func TestMask_Capacity(t *testing.T) {
	t.Parallel()

	f := newFixture(WithMaskCapacity(2))
	for i, ct := range []ComponentType{Read(typeA), Read(typeB)} {
		q, err := NewBuilder().WithAll(ct).Build(f.registry)
		require.NoError(t, err)
		_, err = q.Mask()
		require.NoError(t, err, "mask %d", i)
	}

	q, err := NewBuilder().WithAll(Read(typeC)).Build(f.registry)
	require.NoError(t, err)
	assert.Panics(t, func() { _, _ = q.Mask() }, "exhaustion is fatal in development builds")
	assert.Equal(t, 2, f.registry.MasksUsed())
}

func TestMaskFromSlot(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Mask{Index: 0, Bit: 1}, maskFromSlot(0))
	assert.Equal(t, Mask{Index: 0, Bit: 128}, maskFromSlot(7))
	assert.Equal(t, Mask{Index: 1, Bit: 2}, maskFromSlot(9))
	assert.Equal(t, Mask{Index: 127, Bit: 128}, maskFromSlot(MaxMasks-1))
}
