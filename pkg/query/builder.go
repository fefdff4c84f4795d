package query

// Builder accumulates sub-query descriptors. The zero value is ready to use.
//
// A sub-query is finished by FinishSubQuery. Descs and Build finish the pending sub-query
// implicitly when it has any content, or when no sub-query has been finished yet.
type Builder struct {
	pending Desc
	touched bool
	descs   []Desc
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// WithAll requires every given type to be present and enabled.
func (b *Builder) WithAll(types ...ComponentType) *Builder {
	b.pending.All = append(b.pending.All, types...)
	b.touched = true
	return b
}

// WithAny requires at least one of the given types to be present and enabled.
func (b *Builder) WithAny(types ...ComponentType) *Builder {
	b.pending.Any = append(b.pending.Any, types...)
	b.touched = true
	return b
}

// WithNone requires every given type to be absent or disabled.
func (b *Builder) WithNone(types ...TypeIndex) *Builder {
	b.pending.None = appendReadOnly(b.pending.None, types)
	b.touched = true
	return b
}

// WithDisabled requires every given enableable type to be present and disabled.
func (b *Builder) WithDisabled(types ...TypeIndex) *Builder {
	b.pending.Disabled = appendReadOnly(b.pending.Disabled, types)
	b.touched = true
	return b
}

// WithAbsent requires every given type to be structurally absent.
func (b *Builder) WithAbsent(types ...TypeIndex) *Builder {
	b.pending.Absent = appendReadOnly(b.pending.Absent, types)
	b.touched = true
	return b
}

// WithOptions sets the option flags of the pending sub-query.
func (b *Builder) WithOptions(options Options) *Builder {
	b.pending.Options = options
	b.touched = true
	return b
}

// FinishSubQuery closes the pending sub-query and starts a new one.
func (b *Builder) FinishSubQuery() *Builder {
	b.descs = append(b.descs, b.pending)
	b.pending = Desc{}
	b.touched = false
	return b
}

// Descs finishes the pending sub-query if needed and returns copies of all sub-queries.
func (b *Builder) Descs() []Desc {
	if b.touched || len(b.descs) == 0 {
		b.FinishSubQuery()
	}
	descs := make([]Desc, len(b.descs))
	for i := range b.descs {
		descs[i] = b.descs[i].clone()
	}
	return descs
}

// Build compiles the accumulated sub-queries against r.
func (b *Builder) Build(r *Registry) (*Query, error) {
	return r.Compile(b.Descs()...)
}

// Reset clears the builder so it can be reused.
func (b *Builder) Reset() {
	*b = Builder{}
}

func appendReadOnly(dst []ComponentType, types []TypeIndex) []ComponentType {
	for _, t := range types {
		dst = append(dst, Read(t))
	}
	return dst
}
