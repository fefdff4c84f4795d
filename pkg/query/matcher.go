package query

import "slices"

// MatchingArchetype records how a compiled query maps onto one matching archetype.
type MatchingArchetype struct {
	Archetype ArchetypeID
	// SubQuery is the index of the first sub-query that matched.
	SubQuery int
	// Columns holds, per required component, the archetype column or -1 for excluded entries.
	Columns []int
	// Enabled holds one record per sub-query that matches the archetype, in sub-query order. An
	// entity matches when it satisfies any of them.
	Enabled []EnabledPositions
}

// EnabledPositions lists the memory-order positions of the enableable types one sub-query tests
// on an archetype. None and Any only record present types.
type EnabledPositions struct {
	SubQuery int
	All      []int
	None     []int
	Any      []int
	Disabled []int
	// AnyStructural is set when the Any constraint holds for every entity, either because it is
	// empty or because a present Any type is not enableable.
	AnyStructural bool
}

func (p *EnabledPositions) needsEnabledBits() bool {
	return len(p.All) > 0 || len(p.None) > 0 || len(p.Disabled) > 0 || !p.AnyStructural
}

// needsEnabledBits reports whether entities of this archetype are filtered by enabled bits. It is
// false as soon as one matching sub-query accepts every entity.
func (m *MatchingArchetype) needsEnabledBits() bool {
	for i := range m.Enabled {
		if !m.Enabled[i].needsEnabledBits() {
			return false
		}
	}
	return len(m.Enabled) > 0
}

// subQuery is a compiled sub-query descriptor together with the enableable metadata its matching
// record needs.
type subQuery struct {
	desc           Desc
	noneEnableable []bool // Parallel to desc.None
	anyEnableable  []bool // Parallel to desc.Any

	// Enableable type indices per set, sorted.
	enAll, enNone, enAny, enDisabled []TypeIndex
}

func newSubQuery(d Desc, types TypeRegistry) subQuery {
	sq := subQuery{
		desc:           d,
		noneEnableable: make([]bool, len(d.None)),
		anyEnableable:  make([]bool, len(d.Any)),
	}
	// Ignoring enabled state turns every enableable type into a plain structural one.
	ignoreEnabled := d.Options.Has(IgnoreComponentEnabledState)
	enableable := func(t TypeIndex) bool {
		info, _ := types.TypeInfo(t)
		return info.Enableable && !ignoreEnabled
	}
	for _, ct := range d.All {
		if enableable(ct.Index) {
			sq.enAll = append(sq.enAll, ct.Index)
		}
	}
	for i, ct := range d.None {
		if enableable(ct.Index) {
			sq.noneEnableable[i] = true
			sq.enNone = append(sq.enNone, ct.Index)
		}
	}
	for i, ct := range d.Any {
		if enableable(ct.Index) {
			sq.anyEnableable[i] = true
			sq.enAny = append(sq.enAny, ct.Index)
		}
	}
	for _, ct := range d.Disabled {
		if enableable(ct.Index) {
			sq.enDisabled = append(sq.enDisabled, ct.Index)
		}
	}
	return sq
}

// markerFlags tracks which implicit-exclusion marker types a sub-query lets through.
type markerFlags struct {
	disabled, prefab, system, chunkHeader bool
}

func newMarkerFlags(options Options) markerFlags {
	return markerFlags{
		disabled:    options.Has(IncludeDisabledEntities),
		prefab:      options.Has(IncludePrefab),
		system:      options.Has(IncludeSystems),
		chunkHeader: options.Has(IncludeMetaChunks),
	}
}

// matches tests an archetype's sorted type list against the sub-query.
func (sq *subQuery) matches(types []TypeIndex) bool {
	return sq.matchesAll(types) &&
		sq.matchesAny(types) &&
		sq.matchesNone(types) &&
		sq.matchesDisabled(types) &&
		sq.matchesAbsent(types)
}

// matchesAll checks that every All type is present. Marker types in the archetype reject it unless
// the sub-query asks for the marker explicitly in All or through its options.
func (sq *subQuery) matchesAll(types []TypeIndex) bool {
	all := sq.desc.All
	include := newMarkerFlags(sq.desc.Options)
	for _, ct := range all {
		switch ct.Index {
		case DisabledType:
			include.disabled = true
		case PrefabType:
			include.prefab = true
		case SystemType:
			include.system = true
		case ChunkHeaderType:
			include.chunkHeader = true
		}
	}

	found, j := 0, 0
	for _, t := range types {
		switch t {
		case DisabledType:
			if !include.disabled {
				return false
			}
		case PrefabType:
			if !include.prefab {
				return false
			}
		case SystemType:
			if !include.system {
				return false
			}
		case ChunkHeaderType:
			if !include.chunkHeader {
				return false
			}
		}
		// Both lists are sorted so the scan over All only moves forward.
		for j < len(all) && all[j].Index < t {
			j++
		}
		if j < len(all) && all[j].Index == t {
			found++
			j++
		}
	}
	return found == len(all)
}

func (sq *subQuery) matchesAny(types []TypeIndex) bool {
	if len(sq.desc.Any) == 0 {
		return true
	}
	for _, ct := range sq.desc.Any {
		if hasType(types, ct.Index) {
			return true
		}
	}
	return false
}

// matchesNone rejects archetypes holding a non-enableable None type. Enableable None types are
// left to the per-entity enabled bits.
func (sq *subQuery) matchesNone(types []TypeIndex) bool {
	for i, ct := range sq.desc.None {
		if !sq.noneEnableable[i] && hasType(types, ct.Index) {
			return false
		}
	}
	return true
}

func (sq *subQuery) matchesDisabled(types []TypeIndex) bool {
	for _, ct := range sq.desc.Disabled {
		if !hasType(types, ct.Index) {
			return false
		}
	}
	return true
}

func (sq *subQuery) matchesAbsent(types []TypeIndex) bool {
	for _, ct := range sq.desc.Absent {
		if hasType(types, ct.Index) {
			return false
		}
	}
	return true
}

// anyStructural reports whether Any holds without looking at enabled bits.
func (sq *subQuery) anyStructural(types []TypeIndex) bool {
	if len(sq.desc.Any) == 0 {
		return true
	}
	for i, ct := range sq.desc.Any {
		if !sq.anyEnableable[i] && hasType(types, ct.Index) {
			return true
		}
	}
	return false
}

func hasType(types []TypeIndex, t TypeIndex) bool {
	_, ok := slices.BinarySearch(types, t)
	return ok
}

// -------------------------------------------------------------------------------------------------
// Matching records
// -------------------------------------------------------------------------------------------------

// newMatchingArchetype builds the record for an archetype matched by the sub-query at index sub.
// Later sub-queries that also match add their enabled positions through addSubQuery.
func newMatchingArchetype(
	arch Archetype, sub int, sq *subQuery, required []ComponentType, ignoreEnabled bool,
) MatchingArchetype {
	m := MatchingArchetype{
		Archetype: arch.ID(),
		SubQuery:  sub,
		Columns:   resolveColumns(arch.Types(), required),
	}
	m.addSubQuery(arch, sub, sq, ignoreEnabled)
	return m
}

func (m *MatchingArchetype) addSubQuery(arch Archetype, sub int, sq *subQuery, ignoreEnabled bool) {
	p := EnabledPositions{SubQuery: sub, AnyStructural: true}
	if !ignoreEnabled {
		types := arch.Types()
		p.All = resolveMemoryOrder(arch, types, sq.enAll)
		p.None = resolveMemoryOrder(arch, types, sq.enNone)
		p.Disabled = resolveMemoryOrder(arch, types, sq.enDisabled)
		p.AnyStructural = sq.anyStructural(types)
		if !p.AnyStructural {
			p.Any = resolveMemoryOrder(arch, types, sq.enAny)
		}
	}
	m.Enabled = append(m.Enabled, p)
}

// resolveColumns maps each required component to its archetype column with a single forward scan.
func resolveColumns(types []TypeIndex, required []ComponentType) []int {
	columns := make([]int, len(required))
	k := 0
	for i, ct := range required {
		for k < len(types) && types[k] < ct.Index {
			k++
		}
		if ct.Access == Exclude || k == len(types) || types[k] != ct.Index {
			columns[i] = -1
			continue
		}
		columns[i] = k
	}
	return columns
}

// resolveMemoryOrder returns the memory-order positions of the given sorted types that are present
// in the archetype.
func resolveMemoryOrder(arch Archetype, types []TypeIndex, wanted []TypeIndex) []int {
	if len(wanted) == 0 {
		return nil
	}
	positions := make([]int, 0, len(wanted))
	k := 0
	for _, t := range wanted {
		for k < len(types) && types[k] < t {
			k++
		}
		if k < len(types) && types[k] == t {
			positions = append(positions, arch.MemoryOrder(k))
		}
	}
	return positions
}
