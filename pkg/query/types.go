package query

// TypeIndex is the stable integer identity of a component type, as handed out by a TypeRegistry.
// Sorting by TypeIndex is the canonical order used everywhere in this package.
type TypeIndex uint32

// Builtin type indices. Every TypeRegistry must reserve these slots.
const (
	EntityType      TypeIndex = iota // Identity component, implicitly required by every query
	DisabledType                     // Marks entities that are skipped unless explicitly requested
	PrefabType                       // Marks prefab entities
	SystemType                       // Marks system-instance entities
	ChunkHeaderType                  // Marks meta-chunk archetypes
	FirstUserType                    // First index available to user components
)

// ArchetypeID is the dense index of an archetype inside its store.
type ArchetypeID int

// EntityID identifies an entity.
type EntityID uint32

// SharedIndex is the interned handle of a shared-component value. DefaultSharedValue is used by
// chunks whose shared value was never set.
type SharedIndex int32

const DefaultSharedValue SharedIndex = 0

// AccessMode states how a query touches a component.
type AccessMode uint8

const (
	ReadWrite AccessMode = iota
	ReadOnly
	Exclude
)

func (m AccessMode) String() string {
	switch m {
	case ReadWrite:
		return "rw"
	case ReadOnly:
		return "ro"
	case Exclude:
		return "exclude"
	default:
		return "unknown"
	}
}

// ComponentType is a component type reference with an access mode. It is immutable once built.
type ComponentType struct {
	Index  TypeIndex
	Access AccessMode
}

// Read returns a read-only reference to t.
func Read(t TypeIndex) ComponentType {
	return ComponentType{Index: t, Access: ReadOnly}
}

// Write returns a read-write reference to t.
func Write(t TypeIndex) ComponentType {
	return ComponentType{Index: t, Access: ReadWrite}
}

// Excluded returns an exclude-mode reference to t. It is only accepted by Registry.CompileTypes,
// which converts it into a None constraint.
func Excluded(t TypeIndex) ComponentType {
	return ComponentType{Index: t, Access: Exclude}
}

// less orders component types by type index, then by access mode.
func (c ComponentType) less(other ComponentType) bool {
	if c.Index != other.Index {
		return c.Index < other.Index
	}
	return c.Access < other.Access
}

// compareComponentTypes is the comparison function used with slices.SortFunc.
func compareComponentTypes(a, b ComponentType) int {
	switch {
	case a.less(b):
		return -1
	case b.less(a):
		return 1
	default:
		return 0
	}
}

// TypeInfo is the metadata the type registry keeps for a component type.
type TypeInfo struct {
	Index      TypeIndex
	Name       string
	Size       int         // Size in bytes, 0 for tag components
	Enableable bool        // Presence is structural, the active state is a per-entity bit
	Shared     bool        // Value is stored once per chunk
	WriteGroup []TypeIndex // Other types writing to the same logical slot
}

// ZeroSized reports whether the type carries no data.
func (t TypeInfo) ZeroSized() bool {
	return t.Size == 0
}

// Options are per sub-query option flags.
type Options uint8

const (
	OptionDefault           Options = 0
	IncludePrefab           Options = 1 << 0
	IncludeDisabledEntities Options = 1 << 1
	FilterWriteGroup        Options = 1 << 2
	// IgnoreComponentEnabledState treats enableable components as plain components.
	IgnoreComponentEnabledState Options = 1 << 3
	IncludeSystems              Options = 1 << 4
	IncludeMetaChunks           Options = 1 << 5
)

// Has reports whether every bit of flag is set.
func (o Options) Has(flag Options) bool {
	return o&flag == flag
}

var optionNames = []struct {
	flag Options
	name string
}{
	{IncludePrefab, "include_prefab"},
	{IncludeDisabledEntities, "include_disabled_entities"},
	{FilterWriteGroup, "filter_write_group"},
	{IgnoreComponentEnabledState, "ignore_component_enabled_state"},
	{IncludeSystems, "include_systems"},
	{IncludeMetaChunks, "include_meta_chunks"},
}

// Names returns the names of the set flags in a fixed order.
func (o Options) Names() []string {
	names := make([]string, 0, len(optionNames))
	for _, opt := range optionNames {
		if o.Has(opt.flag) {
			names = append(names, opt.name)
		}
	}
	return names
}

// ParseOption returns the flag with the given name.
func ParseOption(name string) (Options, bool) {
	for _, opt := range optionNames {
		if opt.name == name {
			return opt.flag, true
		}
	}
	return OptionDefault, false
}
