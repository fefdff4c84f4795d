package query

import (
	"strconv"

	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
)

// Description is the JSON form of a compiled query.
type Description struct {
	ID                 int             `json:"id"`
	Hash               string          `json:"hash"`
	Required           []ComponentJSON `json:"required"`
	Readers            []string        `json:"readers,omitempty"`
	Writers            []string        `json:"writers,omitempty"`
	EnableableTypes    []string        `json:"enableable_types,omitempty"`
	SubQueries         []SubQueryJSON  `json:"sub_queries"`
	MatchingArchetypes []ArchetypeID   `json:"matching_archetypes"`
	Mask               *MaskJSON       `json:"mask,omitempty"`
	Filter             *FilterJSON     `json:"filter,omitempty"`
}

type ComponentJSON struct {
	Name   string `json:"name"`
	Access string `json:"access"`
}

type SubQueryJSON struct {
	All      []ComponentJSON `json:"all,omitempty"`
	Any      []ComponentJSON `json:"any,omitempty"`
	None     []ComponentJSON `json:"none,omitempty"`
	Disabled []ComponentJSON `json:"disabled,omitempty"`
	Absent   []ComponentJSON `json:"absent,omitempty"`
	Options  []string        `json:"options,omitempty"`
}

type MaskJSON struct {
	Index uint8 `json:"index"`
	Bit   uint8 `json:"bit"`
}

type FilterJSON struct {
	Shared       []string `json:"shared,omitempty"`
	Changed      []string `json:"changed,omitempty"`
	OrderVersion *uint32  `json:"order_version,omitempty"`
}

// Description returns a serializable snapshot of the query.
func (q *Query) Description() Description {
	types := q.registry.types
	names := func(list []TypeIndex) []string {
		out := make([]string, len(list))
		for i, t := range list {
			out[i] = typeName(types, t)
		}
		return out
	}
	components := func(list []ComponentType) []ComponentJSON {
		if len(list) == 0 {
			return nil
		}
		out := make([]ComponentJSON, len(list))
		for i, ct := range list {
			out[i] = ComponentJSON{Name: typeName(types, ct.Index), Access: ct.Access.String()}
		}
		return out
	}

	d := Description{
		ID:                 q.id,
		Hash:               strconv.FormatUint(q.hash, 16),
		Required:           components(q.required),
		Readers:            names(q.readers),
		Writers:            names(q.writers),
		EnableableTypes:    names(q.enableable[:q.enableableCount]),
		MatchingArchetypes: make([]ArchetypeID, len(q.matching)),
	}
	for i := range q.subQueries {
		desc := &q.subQueries[i].desc
		d.SubQueries = append(d.SubQueries, SubQueryJSON{
			All:      components(desc.All),
			Any:      components(desc.Any),
			None:     components(desc.None),
			Disabled: components(desc.Disabled),
			Absent:   components(desc.Absent),
			Options:  desc.Options.Names(),
		})
	}
	for i := range q.matching {
		d.MatchingArchetypes[i] = q.matching[i].Archetype
	}
	if q.hasMask {
		d.Mask = &MaskJSON{Index: q.mask.Index, Bit: q.mask.Bit}
	}
	if !q.filter.Empty() {
		f := &FilterJSON{}
		for i := range q.filter.sharedCount {
			f.Shared = append(f.Shared, typeName(types, q.filter.shared[i].typ))
		}
		for i := range q.filter.changedCount {
			f.Changed = append(f.Changed, typeName(types, q.filter.changed[i].typ))
		}
		if q.filter.useOrder {
			version := q.filter.orderVersion
			f.OrderVersion = &version
		}
		d.Filter = f
	}
	return d
}

// Describe returns the query description encoded as JSON.
func (q *Query) Describe() ([]byte, error) {
	data, err := json.Marshal(q.Description())
	if err != nil {
		return nil, eris.Wrap(err, "failed to marshal query description")
	}
	return data, nil
}
