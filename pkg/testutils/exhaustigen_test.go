package testutils_test

import (
	"testing"

	"github.com/argus-labs/archquery/pkg/testutils"
	"github.com/stretchr/testify/assert"
)

func TestGen_EnumeratesEveryCombination(t *testing.T) {
	t.Parallel()

	seen := make(map[[2]int]int)
	g := testutils.NewGen()
	for !g.Done() {
		a := g.Intn(2)
		b := 0
		if a > 0 {
			b = g.Intn(1)
		}
		seen[[2]int{a, b}]++
	}
	assert.Equal(t, map[[2]int]int{{0, 0}: 1, {1, 0}: 1, {1, 1}: 1, {2, 0}: 1, {2, 1}: 1}, seen)
}

func TestGen_Subset(t *testing.T) {
	t.Parallel()

	count := 0
	g := testutils.NewGen()
	for !g.Done() {
		subset := testutils.Subset(g, []string{"a", "b", "c"})
		assert.LessOrEqual(t, len(subset), 3)
		count++
	}
	assert.Equal(t, 8, count)
}
