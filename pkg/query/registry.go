package query

import (
	"slices"

	"github.com/argus-labs/archquery/pkg/statsd"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// Registry compiles, deduplicates, and owns the queries of one archetype store. It is not safe for
// concurrent use; structural changes and compilation are expected to happen on the owning thread.
type Registry struct {
	types  TypeRegistry
	store  ArchetypeStore
	shared SharedComponentStore
	deps   DependencyTracker
	logger zerolog.Logger

	maskCapacity int
	checkCache   bool

	queries []*Query         // Query ID -> query
	byHash  map[uint64][]int // Descriptor hash -> query IDs

	// Archetype ID -> state. Grown as archetypes are registered.
	archQueries [][]int // IDs of the queries matching the archetype
	archMasks   []archetypeMasks
	nextMask    int

	disposed bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger.With().Str("component", "query_registry").Logger()
	}
}

// WithSharedStore sets the store used to intern shared-component filter values.
func WithSharedStore(store SharedComponentStore) Option {
	return func(r *Registry) {
		r.shared = store
	}
}

// WithDependencyTracker sets the tracker consulted before filter or enabled-bit sensitive reads.
func WithDependencyTracker(deps DependencyTracker) Option {
	return func(r *Registry) {
		r.deps = deps
	}
}

// WithMaskCapacity lowers the number of masks the registry hands out. Values outside
// [1, MaxMasks] are ignored.
func WithMaskCapacity(capacity int) Option {
	return func(r *Registry) {
		if capacity > 0 && capacity <= MaxMasks {
			r.maskCapacity = capacity
		}
	}
}

// WithCacheChecks verifies every chunk cache rebuild in development builds.
func WithCacheChecks(enabled bool) Option {
	return func(r *Registry) {
		r.checkCache = enabled
	}
}

// NewRegistry creates a registry over the given type registry and archetype store. Archetypes
// already in the store are registered immediately.
func NewRegistry(types TypeRegistry, store ArchetypeStore, opts ...Option) *Registry {
	r := &Registry{
		types:        types,
		store:        store,
		deps:         nopDependencies{},
		logger:       zerolog.Nop(),
		maskCapacity: MaxMasks,
		byHash:       make(map[uint64][]int),
	}
	for _, opt := range opts {
		opt(r)
	}
	for id := range store.ArchetypeCount() {
		r.OnArchetypeCreated(ArchetypeID(id))
	}
	return r
}

// NewBuilder returns an empty query builder.
func (r *Registry) NewBuilder() *Builder {
	return NewBuilder()
}

// Compile returns the compiled query for the given sub-queries, reusing an existing query when an
// identical one was compiled before.
func (r *Registry) Compile(descs ...Desc) (*Query, error) {
	if r.disposed {
		return nil, ErrRegistryDisposed
	}
	if len(descs) == 0 {
		descs = []Desc{{}}
	}

	canonical := make([]Desc, len(descs))
	for i := range descs {
		canonical[i] = descs[i].clone()
		canonical[i].canonicalize()
		if err := canonical[i].validate(r.types); err != nil {
			return nil, eris.Wrapf(err, "invalid sub-query %d", i)
		}
		if canonical[i].Options.Has(FilterWriteGroup) {
			expandWriteGroups(&canonical[i], r.types)
		}
	}
	return r.compile(requiredFromDescs(canonical), canonical)
}

// CompileTypes compiles a query from a flat component list. Exclude entries become None
// constraints and stay in the required list without a column.
func (r *Registry) CompileTypes(types ...ComponentType) (*Query, error) {
	if r.disposed {
		return nil, ErrRegistryDisposed
	}

	var desc Desc
	for _, ct := range types {
		if ct.Access == Exclude {
			desc.None = append(desc.None, Read(ct.Index))
			continue
		}
		desc.All = append(desc.All, ct)
	}
	desc.canonicalize()
	if err := desc.validate(r.types); err != nil {
		return nil, eris.Wrap(err, "invalid component list")
	}

	required := append([]ComponentType{Read(EntityType)}, types...)
	slices.SortFunc(required[1:], compareComponentTypes)
	return r.compile(required, []Desc{desc})
}

func (r *Registry) compile(required []ComponentType, descs []Desc) (*Query, error) {
	hash := hashDescs(required, descs)
	if q := r.lookup(hash, required, descs); q != nil {
		statsd.Incr("query.dedup_hit")
		return q, nil
	}

	q, err := newQuery(r, len(r.queries), hash, required, descs)
	if err != nil {
		return nil, err
	}

	for id := range r.archMasks {
		r.matchArchetype(q, r.store.Archetype(ArchetypeID(id)))
	}
	r.queries = append(r.queries, q)
	r.byHash[hash] = append(r.byHash[hash], q.id)

	logQueryCompiled(r.logger, r.types, q)
	statsd.Incr("query.compiled")
	return q, nil
}

// lookup returns the registered query structurally equal to the given one.
func (r *Registry) lookup(hash uint64, required []ComponentType, descs []Desc) *Query {
	for _, id := range r.byHash[hash] {
		q := r.queries[id]
		if !slices.Equal(q.required, required) || len(q.subQueries) != len(descs) {
			continue
		}
		equal := true
		for i := range descs {
			if !q.subQueries[i].desc.equal(&descs[i]) {
				equal = false
				break
			}
		}
		if equal {
			return q
		}
	}
	return nil
}

// OnArchetypeCreated registers a new archetype and adds it to every query it matches.
func (r *Registry) OnArchetypeCreated(id ArchetypeID) {
	for int(id) >= len(r.archMasks) {
		r.archMasks = append(r.archMasks, archetypeMasks{})
		r.archQueries = append(r.archQueries, nil)
	}
	arch := r.store.Archetype(id)
	for _, q := range r.queries {
		r.matchArchetype(q, arch)
	}
}

// InvalidateArchetype invalidates the chunk caches of every query matching the archetype. The
// store calls it whenever a chunk of the archetype is created, destroyed, or becomes empty or
// non-empty.
func (r *Registry) InvalidateArchetype(id ArchetypeID) {
	if id < 0 || int(id) >= len(r.archQueries) {
		return
	}
	for _, qid := range r.archQueries[id] {
		r.queries[qid].InvalidateCache()
	}
}

// matchArchetype adds arch to q when one of its sub-queries matches.
func (r *Registry) matchArchetype(q *Query, arch Archetype) {
	if _, ok := q.matchIndex[arch.ID()]; ok {
		return
	}
	types := arch.Types()
	var m *MatchingArchetype
	for i := range q.subQueries {
		sq := &q.subQueries[i]
		if !sq.matches(types) {
			continue
		}
		if m != nil {
			m.addSubQuery(arch, i, sq, q.ignoreEnabled)
			continue
		}
		q.matchIndex[arch.ID()] = len(q.matching)
		q.matching = append(q.matching, newMatchingArchetype(arch, i, sq, q.required, q.ignoreEnabled))
		m = &q.matching[len(q.matching)-1]
	}
	if m == nil {
		return
	}
	r.archQueries[arch.ID()] = append(r.archQueries[arch.ID()], q.id)
	if q.hasMask {
		r.setMaskBit(arch.ID(), q.mask)
	}
	q.InvalidateCache()
}

// Queries returns every compiled query in compilation order.
func (r *Registry) Queries() []*Query {
	return slices.Clone(r.queries)
}

// QueriesMatching returns the queries that match the archetype.
func (r *Registry) QueriesMatching(id ArchetypeID) []*Query {
	if id < 0 || int(id) >= len(r.archQueries) {
		return nil
	}
	queries := make([]*Query, len(r.archQueries[id]))
	for i, qid := range r.archQueries[id] {
		queries[i] = r.queries[qid]
	}
	return queries
}

// MasksUsed returns the number of masks handed out.
func (r *Registry) MasksUsed() int {
	return r.nextMask
}

// Dispose releases every query and the filter references they hold. The registry cannot compile
// queries afterwards.
func (r *Registry) Dispose() {
	if r.disposed {
		return
	}
	for _, q := range r.queries {
		q.ResetFilter()
	}
	r.queries = nil
	r.byHash = nil
	r.archQueries = nil
	r.archMasks = nil
	r.nextMask = 0
	r.disposed = true
	r.logger.Debug().Msg("query registry disposed")
}
