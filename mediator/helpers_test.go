package mediator_test

import (
	"sort"

	"github.com/google/go-cmp/cmp"
)

var sortInts = cmp.Transformer("sort", func(in []int) []int {
	out := append([]int(nil), in...)
	sort.Ints(out)

	return out
})
