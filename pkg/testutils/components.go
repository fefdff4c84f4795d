package testutils

import (
	"github.com/argus-labs/archquery/pkg/query"
	"github.com/rotisserie/eris"
)

// TypeRegistrar is the part of a type registry the catalog needs.
type TypeRegistrar interface {
	Register(info query.TypeInfo) (query.TypeIndex, error)
	SetWriteGroup(types ...query.TypeIndex) error
}

// Catalog holds the indices of a fixed set of test component types.
type Catalog struct {
	Position  query.TypeIndex
	Velocity  query.TypeIndex
	Mass      query.TypeIndex
	Health    query.TypeIndex // Enableable
	Stunned   query.TypeIndex // Enableable, zero-sized
	Team      query.TypeIndex // Shared
	Player    query.TypeIndex // Zero-sized tag
	Scale     query.TypeIndex // Write group with Transform
	Transform query.TypeIndex
}

// CatalogTypes are the type definitions registered by RegisterCatalog, in registration order.
var CatalogTypes = []query.TypeInfo{ //nolint:gochecknoglobals // read-only test fixture
	{Name: "position", Size: 12},
	{Name: "velocity", Size: 12},
	{Name: "mass", Size: 4},
	{Name: "health", Size: 4, Enableable: true},
	{Name: "stunned", Size: 0, Enableable: true},
	{Name: "team", Size: 4, Shared: true},
	{Name: "player", Size: 0},
	{Name: "scale", Size: 12},
	{Name: "transform", Size: 64},
}

// RegisterCatalog registers the catalog types and the scale/transform write group.
func RegisterCatalog(r TypeRegistrar) (Catalog, error) {
	indices := make([]query.TypeIndex, len(CatalogTypes))
	for i, info := range CatalogTypes {
		idx, err := r.Register(info)
		if err != nil {
			return Catalog{}, eris.Wrapf(err, "failed to register %s", info.Name)
		}
		indices[i] = idx
	}
	c := Catalog{
		Position:  indices[0],
		Velocity:  indices[1],
		Mass:      indices[2],
		Health:    indices[3],
		Stunned:   indices[4],
		Team:      indices[5],
		Player:    indices[6],
		Scale:     indices[7],
		Transform: indices[8],
	}
	if err := r.SetWriteGroup(c.Scale, c.Transform); err != nil {
		return Catalog{}, eris.Wrap(err, "failed to set write group")
	}
	return c, nil
}

// All returns every catalog type in registration order.
func (c Catalog) All() []query.TypeIndex {
	return []query.TypeIndex{
		c.Position, c.Velocity, c.Mass, c.Health, c.Stunned, c.Team, c.Player, c.Scale, c.Transform,
	}
}

// Enableable returns the enableable catalog types.
func (c Catalog) Enableable() []query.TypeIndex {
	return []query.TypeIndex{c.Health, c.Stunned}
}
