package query

import (
	"github.com/argus-labs/archquery/pkg/assert"
	"github.com/argus-labs/archquery/pkg/statsd"
	"github.com/rotisserie/eris"
)

// MaxMasks is the hard cap on query masks per registry.
const MaxMasks = 1024

// archetypeMasks is the per-archetype membership bitfield, one bit per assigned mask.
type archetypeMasks [MaxMasks / 8]byte

// Mask identifies one bit in the per-archetype membership bitfield.
type Mask struct {
	Index uint8 // Byte index
	Bit   uint8 // Single-bit value within the byte
}

func maskFromSlot(slot int) Mask {
	return Mask{Index: uint8(slot / 8), Bit: uint8(1) << uint(slot%8)} //nolint:gosec // slot < MaxMasks
}

// Mask returns the query's mask, assigning the next free slot on first use. Once assigned, every
// current and future matching archetype has the bit set. The mask ignores filters and enabled
// bits. Running out of masks is a configuration error: development builds panic, release builds
// return ErrMaskCapacityExhausted.
func (q *Query) Mask() (Mask, error) {
	if q.hasMask {
		return q.mask, nil
	}
	r := q.registry
	if r.nextMask >= r.maskCapacity {
		r.logger.Error().Int("capacity", r.maskCapacity).Int("query_id", q.id).Msg("query mask capacity exhausted")
		assert.That(false, "query mask capacity %d exhausted", r.maskCapacity)
		return Mask{}, eris.Wrapf(ErrMaskCapacityExhausted, "capacity %d", r.maskCapacity)
	}

	q.mask = maskFromSlot(r.nextMask)
	q.hasMask = true
	r.nextMask++
	for i := range q.matching {
		r.setMaskBit(q.matching[i].Archetype, q.mask)
	}
	statsd.Incr("query.mask_allocated")
	return q.mask, nil
}

// MaskMatches reports whether the archetype has the mask's bit set.
func (r *Registry) MaskMatches(mask Mask, id ArchetypeID) bool {
	if id < 0 || int(id) >= len(r.archMasks) {
		return false
	}
	return r.archMasks[id][mask.Index]&mask.Bit != 0
}

// MaskMatchesEntity reports whether the entity's archetype has the mask's bit set.
func (r *Registry) MaskMatchesEntity(mask Mask, e EntityID) bool {
	arch, _, _, ok := r.store.Locate(e)
	if !ok {
		return false
	}
	return r.MaskMatches(mask, arch)
}

func (r *Registry) setMaskBit(id ArchetypeID, mask Mask) {
	r.archMasks[id][mask.Index] |= mask.Bit
}
