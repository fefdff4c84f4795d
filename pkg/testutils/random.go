package testutils

import "math/rand/v2"

// WeightedOp is a constraint for operation types that use their value as the weight.
type WeightedOp interface {
	~uint8 | ~uint16 | ~uint32 | ~int
}

// RandWeightedOp returns a random operation from a slice, using each op's value as its weight.
func RandWeightedOp[T WeightedOp](r *rand.Rand, ops []T) T {
	var total int
	for _, op := range ops {
		total += int(op)
	}

	pick := r.IntN(total)
	for _, op := range ops {
		weight := int(op)
		if pick < weight {
			return op
		}
		pick -= weight
	}
	panic("unreachable")
}

// RandElem returns a random element of a non-empty slice.
func RandElem[T any](r *rand.Rand, slice []T) T {
	return slice[r.IntN(len(slice))]
}

// RandSubset returns a random subset of the slice, keeping the slice order.
func RandSubset[T any](r *rand.Rand, slice []T) []T {
	var out []T
	for _, v := range slice {
		if r.IntN(2) == 1 {
			out = append(out, v)
		}
	}
	return out
}
