package testutils

import "github.com/argus-labs/archquery/pkg/assert"

const maxGenDepth = 32

type genSlot struct {
	value, bound uint32
}

// Gen enumerates every combination of the bounded choices a test makes, one combination per
// iteration of `for !g.Done() { ... }`.
//
// Each iteration records the sequence of choices together with their bounds. Done advances to the
// next sequence by incrementing the rightmost choice that is still below its bound and dropping
// every choice after it, so later choices start from zero again on the following iteration.
//
// See: <https://matklad.github.io/2021/11/07/generate-all-the-things.html>
type Gen struct {
	started bool
	slots   [maxGenDepth]genSlot
	pos     int // Next choice of the current iteration
	depth   int // Number of choices recorded so far
}

// NewGen creates an exhaustive generator.
func NewGen() *Gen {
	return &Gen{}
}

// Done reports whether every combination has been produced. The first call always returns false.
func (g *Gen) Done() bool {
	if !g.started {
		g.started = true
		return false
	}
	for i := g.depth - 1; i >= 0; i-- {
		if g.slots[i].value < g.slots[i].bound {
			g.slots[i].value++
			g.depth = i + 1
			g.pos = 0
			return false
		}
	}
	return true
}

func (g *Gen) next(bound uint32) uint32 {
	assert.That(g.pos < maxGenDepth, "exhaustigen: more than %d choices", maxGenDepth)
	if g.pos == g.depth {
		g.slots[g.pos] = genSlot{}
		g.depth++
	}
	slot := &g.slots[g.pos]
	slot.bound = bound
	g.pos++
	return slot.value
}

// Intn returns a value in [0, bound].
func (g *Gen) Intn(bound int) int {
	return int(g.next(uint32(bound))) //nolint:gosec // bounds are small in tests
}

// Bool returns both booleans across iterations.
func (g *Gen) Bool() bool {
	return g.Intn(1) == 1
}

// Index returns an index into a slice of the given length.
func (g *Gen) Index(length int) int {
	assert.That(length > 0, "exhaustigen: empty slice")
	return g.Intn(length - 1)
}

// Pick returns an element of the slice.
func Pick[T any](g *Gen, slice []T) T {
	return slice[g.Index(len(slice))]
}

// Subset returns every subset of the slice across iterations, keeping the slice order.
func Subset[T any](g *Gen, slice []T) []T {
	var out []T
	for _, v := range slice {
		if g.Bool() {
			out = append(out, v)
		}
	}
	return out
}
