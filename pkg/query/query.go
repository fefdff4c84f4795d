package query

import (
	"slices"

	"github.com/rotisserie/eris"
)

// MaxEnableableTypes is the number of distinct enableable types a query can reference.
const MaxEnableableTypes = 8

// Query is a compiled, deduplicated query. Every caller asking for an equivalent query receives the
// same *Query, so filters set on it are shared.
type Query struct {
	registry *Registry
	id       int
	hash     uint64

	required []ComponentType // Sorted, EntityType first
	readers  []TypeIndex
	writers  []TypeIndex

	enableable      [MaxEnableableTypes]TypeIndex
	enableableCount int
	ignoreEnabled   bool

	subQueries []subQuery

	matching   []MatchingArchetype
	matchIndex map[ArchetypeID]int // Archetype ID -> index in matching

	cache   ChunkCache
	mask    Mask
	hasMask bool
	filter  Filter
}

func newQuery(r *Registry, id int, hash uint64, required []ComponentType, descs []Desc) (*Query, error) {
	q := &Query{
		registry:   r,
		id:         id,
		hash:       hash,
		required:   required,
		matchIndex: make(map[ArchetypeID]int),
	}

	for _, ct := range required {
		if ct.Access == Exclude {
			continue
		}
		info, ok := r.types.TypeInfo(ct.Index)
		if !ok {
			return nil, eris.Wrapf(ErrUnknownType, "type %d", ct.Index)
		}
		if info.ZeroSized() && !info.Enableable {
			continue
		}
		if ct.Access == ReadOnly {
			q.readers = append(q.readers, ct.Index)
		} else {
			q.writers = append(q.writers, ct.Index)
		}
	}

	for i := range descs {
		for _, list := range descs[i].lists() {
			for _, ct := range *list {
				info, _ := r.types.TypeInfo(ct.Index)
				if !info.Enableable || slices.Contains(q.enableable[:q.enableableCount], ct.Index) {
					continue
				}
				if q.enableableCount == MaxEnableableTypes {
					return nil, eris.Wrapf(ErrTooManyEnableableTypes, "at most %d", MaxEnableableTypes)
				}
				q.enableable[q.enableableCount] = ct.Index
				q.enableableCount++
			}
		}
	}

	q.ignoreEnabled = descs[0].Options.Has(IgnoreComponentEnabledState)
	for i := 1; i < len(descs); i++ {
		if descs[i].Options.Has(IgnoreComponentEnabledState) != q.ignoreEnabled {
			return nil, ErrInconsistentEnabledOption
		}
	}

	q.subQueries = make([]subQuery, len(descs))
	for i := range descs {
		q.subQueries[i] = newSubQuery(descs[i], r.types)
	}
	return q, nil
}

// ID returns the registry-local query ID.
func (q *Query) ID() int {
	return q.id
}

// Hash returns the structural hash the query was deduplicated under.
func (q *Query) Hash() uint64 {
	return q.hash
}

// Required returns the required component list.
func (q *Query) Required() []ComponentType {
	return slices.Clone(q.required)
}

// Readers returns the types the query reads.
func (q *Query) Readers() []TypeIndex {
	return slices.Clone(q.readers)
}

// Writers returns the types the query writes.
func (q *Query) Writers() []TypeIndex {
	return slices.Clone(q.writers)
}

// Descs returns copies of the compiled sub-query descriptors.
func (q *Query) Descs() []Desc {
	descs := make([]Desc, len(q.subQueries))
	for i := range q.subQueries {
		descs[i] = q.subQueries[i].desc.clone()
	}
	return descs
}

// EnableableTypes returns the enableable types referenced anywhere in the query.
func (q *Query) EnableableTypes() []TypeIndex {
	return slices.Clone(q.enableable[:q.enableableCount])
}

// HasEnableableComponents reports whether entity matching depends on enabled bits.
func (q *Query) HasEnableableComponents() bool {
	return q.enableableCount > 0 && !q.ignoreEnabled
}

// MatchingArchetypes returns the matching records in registration order.
func (q *Query) MatchingArchetypes() []MatchingArchetype {
	return slices.Clone(q.matching)
}

// MatchesArchetype reports whether the archetype structurally matches the query.
func (q *Query) MatchesArchetype(id ArchetypeID) bool {
	_, ok := q.matchIndex[id]
	return ok
}

// RequiredIndex returns the position of t in the required list.
func (q *Query) RequiredIndex(t TypeIndex) (int, error) {
	for i, ct := range q.required {
		if ct.Index == t && ct.Access != Exclude {
			return i, nil
		}
	}
	return -1, eris.Wrapf(ErrTypeNotInQuery, "type %d", t)
}

// -------------------------------------------------------------------------------------------------
// Filters
// -------------------------------------------------------------------------------------------------

// SetSharedComponentFilter replaces the shared-component constraints with a single equality
// constraint. Version constraints are kept. The filter is unchanged when t is rejected.
func (q *Query) SetSharedComponentFilter(t TypeIndex, value any) error {
	required, idx, err := q.internShared(t, value)
	if err != nil {
		return err
	}
	q.releaseShared()
	return q.filter.addShared(required, t, idx)
}

// AddSharedComponentFilter restricts the query to chunks whose shared value of t equals value.
func (q *Query) AddSharedComponentFilter(t TypeIndex, value any) error {
	if q.filter.sharedCount == MaxSharedFilters {
		return eris.Wrapf(ErrFilterCapacity, "at most %d shared component filters", MaxSharedFilters)
	}
	required, idx, err := q.internShared(t, value)
	if err != nil {
		return err
	}
	if err := q.filter.addShared(required, t, idx); err != nil {
		q.registry.shared.Release(idx)
		return err
	}
	return nil
}

// internShared checks that t is a shared required type and interns value.
func (q *Query) internShared(t TypeIndex, value any) (int, SharedIndex, error) {
	required, err := q.RequiredIndex(t)
	if err != nil {
		return -1, 0, err
	}
	info, _ := q.registry.types.TypeInfo(t)
	if !info.Shared {
		return -1, 0, eris.Wrapf(ErrNotSharedComponent, "type %s", info.Name)
	}
	if q.registry.shared == nil {
		return -1, 0, eris.New("query registry has no shared component store")
	}
	idx, err := q.registry.shared.Intern(t, value)
	if err != nil {
		return -1, 0, eris.Wrapf(err, "failed to intern shared value of %s", info.Name)
	}
	return required, idx, nil
}

// releaseShared drops every shared-component constraint.
func (q *Query) releaseShared() {
	if q.registry.shared != nil {
		for i := range q.filter.sharedCount {
			q.registry.shared.Release(q.filter.shared[i].value)
		}
	}
	q.filter.shared = [MaxSharedFilters]sharedFilter{}
	q.filter.sharedCount = 0
}

// AddChangedVersionFilter restricts the query to chunks whose change version of t is newer than
// requiredVersion.
func (q *Query) AddChangedVersionFilter(t TypeIndex, requiredVersion uint32) error {
	required, err := q.RequiredIndex(t)
	if err != nil {
		return err
	}
	return q.filter.addChanged(required, t, requiredVersion)
}

// SetChangedVersionFilter replaces the change-version constraints with one per given type. Shared
// and order-version constraints are kept. The filter is unchanged when any type is rejected.
func (q *Query) SetChangedVersionFilter(requiredVersion uint32, types ...TypeIndex) error {
	if len(types) > MaxChangedFilters {
		return eris.Wrapf(ErrFilterCapacity, "at most %d changed version filters", MaxChangedFilters)
	}
	var changed [MaxChangedFilters]changedFilter
	for i, t := range types {
		required, err := q.RequiredIndex(t)
		if err != nil {
			return err
		}
		changed[i] = changedFilter{required: required, typ: t, version: requiredVersion}
	}
	q.filter.changed = changed
	q.filter.changedCount = len(types)
	return nil
}

// SetOrderVersionFilter restricts the query to chunks whose order version is newer than
// requiredVersion.
func (q *Query) SetOrderVersionFilter(requiredVersion uint32) {
	q.filter.useOrder = true
	q.filter.orderVersion = requiredVersion
}

// ResetFilter clears every constraint and releases interned shared values.
func (q *Query) ResetFilter() {
	q.releaseShared()
	q.filter = Filter{}
}

// HasFilter reports whether any filter constraint is set.
func (q *Query) HasFilter() bool {
	return !q.filter.Empty()
}

// -------------------------------------------------------------------------------------------------
// Entity matching
// -------------------------------------------------------------------------------------------------

// MatchesEntity reports whether the entity matches the query, including filters and enabled bits.
func (q *Query) MatchesEntity(e EntityID) bool {
	return q.matchesEntity(e, true)
}

// MatchesEntityIgnoreFilter reports whether the entity matches the query's structure and enabled
// bits, ignoring filters.
func (q *Query) MatchesEntityIgnoreFilter(e EntityID) bool {
	return q.matchesEntity(e, false)
}

func (q *Query) matchesEntity(e EntityID, useFilter bool) bool {
	archID, chunk, row, ok := q.registry.store.Locate(e)
	if !ok {
		return false
	}
	mi, ok := q.matchIndex[archID]
	if !ok {
		return false
	}
	m := &q.matching[mi]
	arch := q.registry.store.Archetype(archID)

	if useFilter && !q.filter.Empty() {
		q.completeFilterDependencies()
		if !q.filter.matchesChunk(m, arch, chunk) {
			return false
		}
	}
	if !q.HasEnableableComponents() || !m.needsEnabledBits() {
		return true
	}
	q.completeEnabledDependencies()
	count := arch.ChunkEntityCount(chunk)
	return NewEnabledMask(chunkEnabledWords(m, arch, chunk, count), count).Test(row)
}

func (q *Query) completeFilterDependencies() {
	for _, t := range q.filter.changedTypes() {
		q.registry.deps.CompleteWriters(t)
	}
}

func (q *Query) completeEnabledDependencies() {
	if !q.HasEnableableComponents() {
		return
	}
	for _, t := range q.enableable[:q.enableableCount] {
		q.registry.deps.CompleteWriters(t)
	}
}

// completeDependencies waits for writers of every type whose state affects the result.
func (q *Query) completeDependencies() {
	q.completeFilterDependencies()
	q.completeEnabledDependencies()
}
