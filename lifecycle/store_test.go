package lifecycle_test

import (
	"sort"
	"testing"

	"github.com/bobuhiro11/vmsr/lifecycle"
	"github.com/bobuhiro11/vmsr/topology"
	"github.com/google/go-cmp/cmp"
)

var sortInts = cmp.Transformer("sort", func(in []int) []int {
	out := append([]int(nil), in...)
	sort.Ints(out)

	return out
})

func TestStore(t *testing.T) {
	t.Parallel()

	s := lifecycle.NewStore()
	a := topology.Target{Thread: 0}
	b := topology.Target{Thread: 4}

	if _, ok := s.Get("X", a); ok {
		t.Fatal("empty store returned a value")
	}

	s.Put("Y", a, 2)
	s.Put("X", b, 3)
	s.Put("X", a, 1)
	s.Put("X", a, 5)

	if v, ok := s.Get("X", a); !ok || v != 5 {
		t.Errorf("Get(X, cpu0) = %#x, %v", v, ok)
	}

	want := []lifecycle.Entry{
		{Name: "X", Target: a, Value: 5},
		{Name: "X", Target: b, Value: 3},
		{Name: "Y", Target: a, Value: 2},
	}
	if diff := cmp.Diff(want, s.Entries()); diff != "" {
		t.Errorf("Entries (-want +got):\n%s", diff)
	}

	s.Clear()

	if s.Len() != 0 {
		t.Errorf("Len after Clear = %d", s.Len())
	}
}
