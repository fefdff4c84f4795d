package query

import "github.com/rotisserie/eris"

const (
	// MaxSharedFilters is the number of shared-component equality constraints a filter can hold.
	MaxSharedFilters = 2
	// MaxChangedFilters is the number of change-version constraints a filter can hold.
	MaxChangedFilters = 2
)

type sharedFilter struct {
	required int // Index into the query's required list
	typ      TypeIndex
	value    SharedIndex
}

type changedFilter struct {
	required int // Index into the query's required list
	typ      TypeIndex
	version  uint32
}

// Filter is the runtime chunk filter attached to a compiled query. The zero value matches every
// chunk.
type Filter struct {
	shared      [MaxSharedFilters]sharedFilter
	sharedCount int

	changed      [MaxChangedFilters]changedFilter
	changedCount int

	useOrder     bool
	orderVersion uint32
}

// Empty reports whether the filter has no constraint.
func (f *Filter) Empty() bool {
	return f.sharedCount == 0 && !f.hasVersionFilter()
}

func (f *Filter) hasVersionFilter() bool {
	return f.changedCount > 0 || f.useOrder
}

func (f *Filter) addShared(required int, t TypeIndex, value SharedIndex) error {
	if f.sharedCount == MaxSharedFilters {
		return eris.Wrapf(ErrFilterCapacity, "at most %d shared component filters", MaxSharedFilters)
	}
	f.shared[f.sharedCount] = sharedFilter{required: required, typ: t, value: value}
	f.sharedCount++
	return nil
}

func (f *Filter) addChanged(required int, t TypeIndex, version uint32) error {
	if f.changedCount == MaxChangedFilters {
		return eris.Wrapf(ErrFilterCapacity, "at most %d changed version filters", MaxChangedFilters)
	}
	f.changed[f.changedCount] = changedFilter{required: required, typ: t, version: version}
	f.changedCount++
	return nil
}

// DidChange reports whether changeVersion is newer than requiredVersion. The comparison tolerates
// wrap-around, and a required version of 0 always passes.
func DidChange(changeVersion, requiredVersion uint32) bool {
	return requiredVersion == 0 || int32(changeVersion-requiredVersion) > 0 //nolint:gosec // wrap-around intended
}

// matchesChunk evaluates the filter against one chunk of a matching archetype. Shared constraints
// are conjunctive. Version constraints are disjunctive among themselves.
func (f *Filter) matchesChunk(m *MatchingArchetype, arch Archetype, chunk int) bool {
	for i := range f.sharedCount {
		sf := &f.shared[i]
		if arch.SharedValue(m.Columns[sf.required], chunk) != sf.value {
			return false
		}
	}
	if !f.hasVersionFilter() {
		return true
	}
	if f.useOrder && DidChange(arch.OrderVersion(chunk), f.orderVersion) {
		return true
	}
	for i := range f.changedCount {
		cf := &f.changed[i]
		if DidChange(arch.ChangeVersion(m.Columns[cf.required], chunk), cf.version) {
			return true
		}
	}
	return false
}

// changedTypes returns the types with a change-version constraint.
func (f *Filter) changedTypes() []TypeIndex {
	types := make([]TypeIndex, f.changedCount)
	for i := range f.changedCount {
		types[i] = f.changed[i].typ
	}
	return types
}
