package query

import (
	"encoding/binary"
	"slices"

	"github.com/argus-labs/archquery/pkg/assert"
	"github.com/cespare/xxhash/v2"
	"github.com/rotisserie/eris"
)

// Desc describes one sub-query. A query is the disjunction of its sub-queries.
type Desc struct {
	All      []ComponentType // Must be present, and enabled if enableable
	Any      []ComponentType // At least one must be present, and enabled if enableable
	None     []ComponentType // Must be absent, or disabled if enableable
	Disabled []ComponentType // Must be present and disabled, enableable types only
	Absent   []ComponentType // Must be structurally absent
	Options  Options
}

// lists returns the constraint lists in a fixed order.
func (d *Desc) lists() [5]*[]ComponentType {
	return [5]*[]ComponentType{&d.All, &d.Any, &d.None, &d.Disabled, &d.Absent}
}

// clone returns a deep copy of d.
func (d *Desc) clone() Desc {
	return Desc{
		All:      slices.Clone(d.All),
		Any:      slices.Clone(d.Any),
		None:     slices.Clone(d.None),
		Disabled: slices.Clone(d.Disabled),
		Absent:   slices.Clone(d.Absent),
		Options:  d.Options,
	}
}

// canonicalize forces None, Disabled, and Absent entries to read-only and sorts every list.
func (d *Desc) canonicalize() {
	for i := range d.None {
		d.None[i].Access = ReadOnly
	}
	for _, list := range [][]ComponentType{d.Disabled, d.Absent} {
		for i := range list {
			if list[i].Access != Exclude {
				list[i].Access = ReadOnly
			}
		}
	}
	for _, list := range d.lists() {
		slices.SortFunc(*list, compareComponentTypes)
	}
}

// hashInto writes the canonical form of d into h.
func (d *Desc) hashInto(h *xxhash.Digest) {
	var buf [8]byte
	for _, list := range d.lists() {
		binary.LittleEndian.PutUint32(buf[:4], uint32(len(*list))) //nolint:gosec // list sizes are small
		_, _ = h.Write(buf[:4])
		for _, ct := range *list {
			binary.LittleEndian.PutUint32(buf[:4], uint32(ct.Index))
			buf[4] = byte(ct.Access)
			_, _ = h.Write(buf[:5])
		}
	}
	buf[0] = byte(d.Options)
	_, _ = h.Write(buf[:1])
}

func (d *Desc) equal(other *Desc) bool {
	if d.Options != other.Options {
		return false
	}
	a, b := d.lists(), other.lists()
	for i := range a {
		if !slices.Equal(*a[i], *b[i]) {
			return false
		}
	}
	return true
}

// validate runs the checks that depend only on the descriptor and type metadata. The duplicate,
// entity, and access mode checks are programming errors and only run in development builds.
func (d *Desc) validate(types TypeRegistry) error {
	if assert.Enabled {
		seen := make(map[TypeIndex]struct{})
		for _, list := range d.lists() {
			for _, ct := range *list {
				if ct.Index == EntityType {
					return ErrEntityTypeInQuery
				}
				if _, ok := seen[ct.Index]; ok {
					return eris.Wrapf(ErrDuplicateComponent, "type %d", ct.Index)
				}
				seen[ct.Index] = struct{}{}
			}
		}
		for _, list := range [][]ComponentType{d.All, d.Any, d.Disabled, d.Absent} {
			for _, ct := range list {
				if ct.Access == Exclude {
					return eris.Wrapf(ErrExcludeAccessMode, "type %d", ct.Index)
				}
			}
		}
	}

	for _, list := range d.lists() {
		for _, ct := range *list {
			if _, ok := types.TypeInfo(ct.Index); !ok {
				return eris.Wrapf(ErrUnknownType, "type %d", ct.Index)
			}
		}
	}
	for _, ct := range d.Disabled {
		info, _ := types.TypeInfo(ct.Index)
		if !info.Enableable {
			return eris.Wrapf(ErrDisabledNotEnableable, "type %s", info.Name)
		}
	}
	return nil
}

// hashDescs returns the dedup key of a compiled query.
func hashDescs(required []ComponentType, descs []Desc) uint64 {
	h := xxhash.New()
	var buf [5]byte
	binary.LittleEndian.PutUint32(buf[:4], uint32(len(required))) //nolint:gosec // list sizes are small
	_, _ = h.Write(buf[:4])
	for _, ct := range required {
		binary.LittleEndian.PutUint32(buf[:4], uint32(ct.Index))
		buf[4] = byte(ct.Access)
		_, _ = h.Write(buf[:])
	}
	for i := range descs {
		descs[i].hashInto(h)
	}
	return h.Sum64()
}

// requiredFromDescs derives the required component list: the entity type followed by the All
// entries, or by the intersection of the All sets when there is more than one sub-query.
func requiredFromDescs(descs []Desc) []ComponentType {
	required := []ComponentType{Read(EntityType)}
	if len(descs) == 0 {
		return required
	}
	if len(descs) == 1 {
		return append(required, descs[0].All...)
	}

	for _, ct := range descs[0].All {
		inAll := true
		for i := 1; i < len(descs); i++ {
			if !slices.Contains(descs[i].All, ct) {
				inAll = false
				break
			}
		}
		if inAll {
			required = append(required, ct)
		}
	}
	return required
}
