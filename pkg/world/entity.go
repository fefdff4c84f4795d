package world

import (
	"math"

	"github.com/argus-labs/archquery/pkg/assert"
	"github.com/argus-labs/archquery/pkg/query"
	"github.com/rotisserie/eris"
)

// MaxEntityID is the maximum entity ID that can be created.
const MaxEntityID = math.MaxUint32 - 1

// location is where an entity lives. The chunk pointer stays valid when the chunk moves inside the
// archetype chunk list.
type location struct {
	arch  *archetype
	chunk *chunk
	row   int
}

// entityManager manages entity IDs and references to their locations. This struct acts as an index
// from entity ID to its storage location to avoid iterating through all archetypes.
type entityManager struct {
	nextID    query.EntityID              // The next ID to allocate if no free IDs are available
	free      []query.EntityID            // A queue of free IDs
	locations map[query.EntityID]location // Maps entity IDs to locations
}

// newEntityManager creates a new entity manager.
func newEntityManager() entityManager {
	return entityManager{
		nextID:    0,
		free:      make([]query.EntityID, 0),
		locations: make(map[query.EntityID]location),
	}
}

// new returns a new entity ID. Freed IDs are reused first in FIFO order.
func (em *entityManager) new() (query.EntityID, error) {
	var id query.EntityID
	if len(em.free) > 0 {
		id = em.free[0]
		em.free = em.free[1:]
	} else {
		// No free IDs, use the next sequential ID.
		id = em.nextID
		if id > MaxEntityID {
			return 0, eris.New("max number of entities exceeded")
		}
		em.nextID++
	}
	return id, nil
}

// set records the location of an entity.
func (em *entityManager) set(id query.EntityID, loc location) {
	assert.That(loc.arch != nil && loc.chunk != nil, "location must not be empty")
	em.locations[id] = loc
}

// setRow updates the row of an entity that was moved inside its chunk.
func (em *entityManager) setRow(id query.EntityID, row int) {
	loc, ok := em.locations[id]
	assert.That(ok, "moved entity %d has no location", id)
	loc.row = row
	em.locations[id] = loc
}

// remove marks an entity ID as available for reuse.
func (em *entityManager) remove(id query.EntityID) {
	delete(em.locations, id)
	em.free = append(em.free, id)
}

// get returns the location of an entity.
func (em *entityManager) get(id query.EntityID) (location, error) {
	loc, exists := em.locations[id]
	if !exists {
		return location{}, eris.Wrapf(ErrEntityNotFound, "entity %d", id)
	}
	return loc, nil
}

// isAlive checks if an entity ID is currently active.
func (em *entityManager) isAlive(id query.EntityID) bool {
	_, exists := em.locations[id]
	return exists
}

func (em *entityManager) count() int {
	return len(em.locations)
}
