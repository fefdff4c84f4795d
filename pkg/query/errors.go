package query

import "github.com/rotisserie/eris"

var (
	// Descriptor validation errors.
	ErrEntityTypeInQuery         = eris.New("the entity identity type cannot be listed in a query")
	ErrDuplicateComponent        = eris.New("component appears more than once in a sub-query")
	ErrExcludeAccessMode         = eris.New("exclude access mode is only valid for none constraints")
	ErrDisabledNotEnableable     = eris.New("disabled constraint requires an enableable component")
	ErrTooManyEnableableTypes    = eris.New("query references too many enableable component types")
	ErrInconsistentEnabledOption = eris.New("sub-queries disagree on ignoring component enabled state")
	ErrUnknownType               = eris.New("component type is not registered")

	// Capacity errors.
	ErrMaskCapacityExhausted = eris.New("query mask capacity exhausted")
	ErrFilterCapacity        = eris.New("query filter capacity exceeded")

	// Lookup misses.
	ErrTypeNotInQuery     = eris.New("component type is not a required component of the query")
	ErrNotSharedComponent = eris.New("component type is not a shared component")
	ErrNoSingleton        = eris.New("query matches no entity")
	ErrMultipleSingletons = eris.New("query matches more than one entity")

	// ErrCacheInconsistent is reported by Query.CheckCache. It is never expected in correct operation.
	ErrCacheInconsistent = eris.New("chunk cache is inconsistent with matching archetypes")

	ErrRegistryDisposed = eris.New("query registry is disposed")
)
