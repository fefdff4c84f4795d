package world

import (
	"slices"

	"github.com/argus-labs/archquery/pkg/assert"
	"github.com/argus-labs/archquery/pkg/query"
	"github.com/rotisserie/eris"
)

// Names of the builtin types.
const (
	EntityTypeName      = "entity"
	DisabledTypeName    = "disabled"
	PrefabTypeName      = "prefab"
	SystemTypeName      = "system"
	ChunkHeaderTypeName = "chunk_header"
)

// TypeRegistry manages component type registration and lookup. The builtin types occupy the first
// indices.
type TypeRegistry struct {
	catalog map[string]query.TypeIndex // Component name -> type index
	infos   []query.TypeInfo           // Type index -> metadata
}

// NewTypeRegistry creates a type registry with the builtin types registered.
func NewTypeRegistry() *TypeRegistry {
	r := &TypeRegistry{
		catalog: make(map[string]query.TypeIndex),
		infos:   make([]query.TypeInfo, 0, int(query.FirstUserType)),
	}
	builtins := []query.TypeInfo{
		{Index: query.EntityType, Name: EntityTypeName, Size: 4},
		{Index: query.DisabledType, Name: DisabledTypeName},
		{Index: query.PrefabType, Name: PrefabTypeName},
		{Index: query.SystemType, Name: SystemTypeName},
		{Index: query.ChunkHeaderType, Name: ChunkHeaderTypeName},
	}
	for _, info := range builtins {
		idx, err := r.Register(info)
		assert.That(err == nil && idx == info.Index, "builtin type %s registered at %d", info.Name, idx)
	}
	return r
}

// Register registers a component type and returns its index. If a type with the same name is
// already registered, its index is returned and the new metadata is ignored.
func (r *TypeRegistry) Register(info query.TypeInfo) (query.TypeIndex, error) {
	if info.Name == "" {
		return 0, eris.New("component name cannot be empty")
	}
	if info.Size < 0 {
		return 0, eris.Errorf("component %s has negative size", info.Name)
	}

	// If component already exists, no-op.
	if idx, exists := r.catalog[info.Name]; exists {
		return idx, nil
	}

	idx := query.TypeIndex(len(r.infos)) //nolint:gosec // type count is small
	info.Index = idx
	info.WriteGroup = nil
	r.catalog[info.Name] = idx
	r.infos = append(r.infos, info)
	return idx, nil
}

// ID returns a component's type index given its name.
func (r *TypeRegistry) ID(name string) (query.TypeIndex, error) {
	idx, exists := r.catalog[name]
	if !exists {
		return 0, eris.Wrapf(ErrComponentNotFound, "component %s", name)
	}
	return idx, nil
}

// TypeInfo returns the metadata of a registered type.
func (r *TypeRegistry) TypeInfo(t query.TypeIndex) (query.TypeInfo, bool) {
	if int(t) >= len(r.infos) {
		return query.TypeInfo{}, false
	}
	return r.infos[t], true
}

// Len returns the number of registered types, builtins included.
func (r *TypeRegistry) Len() int {
	return len(r.infos)
}

// SetWriteGroup declares the given types as writers of the same logical value. Every member gets
// the others as write-group siblings.
func (r *TypeRegistry) SetWriteGroup(types ...query.TypeIndex) error {
	for _, t := range types {
		if int(t) >= len(r.infos) {
			return eris.Wrapf(ErrComponentNotFound, "type %d", t)
		}
		if t < query.FirstUserType {
			return eris.Wrapf(ErrBuiltinType, "type %s", r.infos[t].Name)
		}
	}
	for _, t := range types {
		for _, sibling := range types {
			if sibling == t || slices.Contains(r.infos[t].WriteGroup, sibling) {
				continue
			}
			r.infos[t].WriteGroup = append(r.infos[t].WriteGroup, sibling)
		}
	}
	return nil
}
