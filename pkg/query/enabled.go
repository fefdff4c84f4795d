package query

import (
	"iter"

	"github.com/bits-and-blooms/bitset"
)

// MaxChunkCapacity is the largest number of entities a chunk may hold. Enabled bits of a chunk fit
// in two 64-bit words.
const MaxChunkCapacity = 128

// EnabledMask marks which entities of a chunk fully match a query once enabled bits are applied.
type EnabledMask struct {
	bits  *bitset.BitSet
	count int
}

// NewEnabledMask wraps two words of per-entity bits for a chunk holding count entities. Bits at or
// past count are ignored.
func NewEnabledMask(words [2]uint64, count int) EnabledMask {
	words = clampWords(words, count)
	return EnabledMask{
		bits:  bitset.From([]uint64{words[0], words[1]}),
		count: count,
	}
}

// Len is the number of entities in the chunk.
func (m EnabledMask) Len() int {
	return m.count
}

// Count returns the number of matching entities.
func (m EnabledMask) Count() int {
	if m.bits == nil {
		return 0
	}
	return int(m.bits.Count()) //nolint:gosec // at most 128
}

// Test reports whether the entity at row i matches.
func (m EnabledMask) Test(i int) bool {
	if m.bits == nil || i < 0 || i >= m.count {
		return false
	}
	return m.bits.Test(uint(i))
}

// NextRun returns the next maximal run [begin, end) of matching entities starting at or after
// from. ok is false when no matching entity remains.
func (m EnabledMask) NextRun(from int) (begin, end int, ok bool) {
	if m.bits == nil || from < 0 || from >= m.count {
		return 0, 0, false
	}
	start, found := m.bits.NextSet(uint(from))
	if !found || int(start) >= m.count { //nolint:gosec // at most 128
		return 0, 0, false
	}
	stop, found := m.bits.NextClear(start)
	if !found || int(stop) > m.count { //nolint:gosec // at most 128
		stop = uint(m.count)
	}
	return int(start), int(stop), true //nolint:gosec // at most 128
}

// Runs yields every run of matching entities in order.
func (m EnabledMask) Runs() iter.Seq2[int, int] {
	return func(yield func(int, int) bool) {
		for from := 0; ; {
			begin, end, ok := m.NextRun(from)
			if !ok || !yield(begin, end) {
				return
			}
			from = end
		}
	}
}

// fullWords returns the words with the first count bits set.
func fullWords(count int) [2]uint64 {
	return clampWords([2]uint64{^uint64(0), ^uint64(0)}, count)
}

func clampWords(words [2]uint64, count int) [2]uint64 {
	switch {
	case count <= 0:
		return [2]uint64{}
	case count < 64:
		words[0] &= (uint64(1) << uint(count)) - 1
		words[1] = 0
	case count == 64:
		words[1] = 0
	case count < 128:
		words[1] &= (uint64(1) << uint(count-64)) - 1
	}
	return words
}

// chunkEnabledWords combines the enabled bits of a chunk into the words of entities that satisfy
// at least one sub-query of the matching record.
func chunkEnabledWords(m *MatchingArchetype, arch Archetype, chunk, count int) [2]uint64 {
	if !m.needsEnabledBits() {
		return fullWords(count)
	}
	var words [2]uint64
	for i := range m.Enabled {
		w := subQueryEnabledWords(&m.Enabled[i], arch, chunk, count)
		words[0] |= w[0]
		words[1] |= w[1]
	}
	return words
}

func subQueryEnabledWords(p *EnabledPositions, arch Archetype, chunk, count int) [2]uint64 {
	words := fullWords(count)
	for _, pos := range p.All {
		bits := arch.EnabledBits(pos, chunk)
		words[0] &= bits[0]
		words[1] &= bits[1]
	}
	for _, pos := range p.None {
		bits := arch.EnabledBits(pos, chunk)
		words[0] &^= bits[0]
		words[1] &^= bits[1]
	}
	for _, pos := range p.Disabled {
		bits := arch.EnabledBits(pos, chunk)
		words[0] &^= bits[0]
		words[1] &^= bits[1]
	}
	if !p.AnyStructural {
		var anyWords [2]uint64
		for _, pos := range p.Any {
			bits := arch.EnabledBits(pos, chunk)
			anyWords[0] |= bits[0]
			anyWords[1] |= bits[1]
		}
		words[0] &= anyWords[0]
		words[1] &= anyWords[1]
	}
	return clampWords(words, count)
}
