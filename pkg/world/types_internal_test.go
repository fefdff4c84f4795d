package world

import (
	"testing"

	"github.com/argus-labs/archquery/pkg/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeRegistry_Builtins(t *testing.T) {
	t.Parallel()

	r := NewTypeRegistry()
	assert.Equal(t, int(query.FirstUserType), r.Len())

	tests := []struct {
		name string
		idx  query.TypeIndex
	}{
		{EntityTypeName, query.EntityType},
		{DisabledTypeName, query.DisabledType},
		{PrefabTypeName, query.PrefabType},
		{SystemTypeName, query.SystemType},
		{ChunkHeaderTypeName, query.ChunkHeaderType},
	}
	for _, tt := range tests {
		idx, err := r.ID(tt.name)
		require.NoError(t, err)
		assert.Equal(t, tt.idx, idx)
	}
}

func TestTypeRegistry_Register(t *testing.T) {
	t.Parallel()

	r := NewTypeRegistry()
	idx, err := r.Register(query.TypeInfo{Name: "position", Size: 12, Index: 42})
	require.NoError(t, err)
	assert.Equal(t, query.FirstUserType, idx, "the index is assigned by the registry")

	again, err := r.Register(query.TypeInfo{Name: "position", Size: 99, Enableable: true})
	require.NoError(t, err)
	assert.Equal(t, idx, again)
	info, ok := r.TypeInfo(idx)
	require.True(t, ok)
	assert.Equal(t, 12, info.Size, "re-registering keeps the first definition")
	assert.False(t, info.Enableable)

	_, err = r.Register(query.TypeInfo{})
	require.Error(t, err)
	_, err = r.Register(query.TypeInfo{Name: "negative", Size: -1})
	require.Error(t, err)

	_, err = r.ID("missing")
	require.ErrorIs(t, err, ErrComponentNotFound)
	_, ok = r.TypeInfo(query.TypeIndex(100))
	assert.False(t, ok)
}

func TestTypeRegistry_SetWriteGroup(t *testing.T) {
	t.Parallel()

	r := NewTypeRegistry()
	a, err := r.Register(query.TypeInfo{Name: "a", Size: 4})
	require.NoError(t, err)
	b, err := r.Register(query.TypeInfo{Name: "b", Size: 4})
	require.NoError(t, err)
	c, err := r.Register(query.TypeInfo{Name: "c", Size: 4})
	require.NoError(t, err)

	require.NoError(t, r.SetWriteGroup(a, b))
	require.NoError(t, r.SetWriteGroup(b, c))

	infoA, _ := r.TypeInfo(a)
	infoB, _ := r.TypeInfo(b)
	infoC, _ := r.TypeInfo(c)
	assert.Equal(t, []query.TypeIndex{b}, infoA.WriteGroup)
	assert.Equal(t, []query.TypeIndex{a, c}, infoB.WriteGroup)
	assert.Equal(t, []query.TypeIndex{b}, infoC.WriteGroup)

	require.ErrorIs(t, r.SetWriteGroup(a, query.EntityType), ErrBuiltinType)
	require.ErrorIs(t, r.SetWriteGroup(a, 100), ErrComponentNotFound)
}
