package world

import "github.com/rotisserie/eris"

var (
	// ErrEntityNotFound is returned when operating on an entity that does not exist.
	ErrEntityNotFound = eris.New("entity does not exist")
	// ErrComponentNotFound is returned when a component name or type is not registered, or when an
	// entity does not carry the component.
	ErrComponentNotFound = eris.New("component not found")
	// ErrNotEnableable is returned when toggling a component that has no enabled bit.
	ErrNotEnableable = eris.New("component is not enableable")
	// ErrNotShared is returned when setting a shared value on a non-shared component.
	ErrNotShared = eris.New("component is not shared")
	// ErrBuiltinType is returned when adding or removing the entity identity type.
	ErrBuiltinType = eris.New("builtin type cannot be added or removed")
)
