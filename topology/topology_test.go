package topology_test

import (
	"errors"
	"fmt"
	"testing"
	"testing/fstest"

	"github.com/bobuhiro11/vmsr/catalog"
	"github.com/bobuhiro11/vmsr/topology"
	"github.com/google/go-cmp/cmp"
)

// twoSockets is 2 packages x 2 cores x 2 threads, numbered the way Linux
// enumerates hyperthreads: siblings are n and n+4.
func twoSockets() fstest.MapFS {
	fsys := fstest.MapFS{
		"online": {Data: []byte("0-7\n")},
	}

	layout := []struct{ core, pkg string }{
		{"0", "0"}, {"1", "0"}, {"0", "1"}, {"1", "1"},
		{"0", "0"}, {"1", "0"}, {"0", "1"}, {"1", "1"},
	}

	for cpu, l := range layout {
		dir := fmt.Sprintf("cpu%d/topology/", cpu)
		fsys[dir+"core_id"] = &fstest.MapFile{Data: []byte(l.core + "\n")}
		fsys[dir+"physical_package_id"] = &fstest.MapFile{Data: []byte(l.pkg + "\n")}
	}

	return fsys
}

func load(t *testing.T) *topology.Topology {
	t.Helper()

	topo, err := topology.Load(twoSockets())
	if err != nil {
		t.Fatal(err)
	}

	return topo
}

func threads(tgs []topology.Target) []int {
	out := make([]int, len(tgs))
	for i, tg := range tgs {
		out[i] = tg.Thread
	}

	return out
}

func TestLoad(t *testing.T) {
	t.Parallel()

	topo := load(t)

	if diff := cmp.Diff([]int{0, 1, 2, 3, 4, 5, 6, 7}, topo.CPUs()); diff != "" {
		t.Errorf("CPUs (-want +got):\n%s", diff)
	}

	tg, err := topo.Target(6)
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(topology.Target{Thread: 6, Core: 0, Package: 1}, tg); diff != "" {
		t.Errorf("Target(6) (-want +got):\n%s", diff)
	}
}

func TestLoadFailure(t *testing.T) {
	t.Parallel()

	fsys := twoSockets()
	delete(fsys, "cpu3/topology/physical_package_id")

	if _, err := topology.Load(fsys); !errors.Is(err, topology.ErrUnknownTopology) {
		t.Fatalf("got %v, want ErrUnknownTopology", err)
	}

	if _, err := topology.Load(fstest.MapFS{}); !errors.Is(err, topology.ErrUnknownTopology) {
		t.Fatalf("empty sysfs: got %v, want ErrUnknownTopology", err)
	}
}

func TestResolve(t *testing.T) {
	t.Parallel()

	topo := load(t)

	tests := []struct {
		g    catalog.Granularity
		cpu  int
		want []int
	}{
		{catalog.Thread, 5, []int{5}},
		{catalog.Core, 5, []int{1, 5}},
		{catalog.Core, 2, []int{2, 6}},
		{catalog.Package, 0, []int{0, 1, 4, 5}},
		{catalog.Special, 7, []int{2, 3, 6, 7}},
	}

	for _, tt := range tests {
		got, err := topo.Resolve(tt.g, tt.cpu)
		if err != nil {
			t.Fatalf("Resolve(%s, %d): %v", tt.g, tt.cpu, err)
		}

		if diff := cmp.Diff(tt.want, threads(got)); diff != "" {
			t.Errorf("Resolve(%s, %d) (-want +got):\n%s", tt.g, tt.cpu, diff)
		}
	}
}

func TestResolveErrors(t *testing.T) {
	t.Parallel()

	topo := load(t)

	if _, err := topo.Resolve(catalog.Virtual, 0); !errors.Is(err, topology.ErrNotAddressable) {
		t.Errorf("virtual: got %v", err)
	}

	if _, err := topo.Resolve(catalog.Thread, 64); !errors.Is(err, topology.ErrUnknownCPU) {
		t.Errorf("offline cpu: got %v", err)
	}
}

func TestSpan(t *testing.T) {
	t.Parallel()

	topo := load(t)

	got, err := topo.Span(catalog.Core, []int{4, 0, 2})
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]int{0, 2, 4, 6}, threads(got)); diff != "" {
		t.Errorf("Span (-want +got):\n%s", diff)
	}
}

func TestNewRejectsDuplicates(t *testing.T) {
	t.Parallel()

	_, err := topology.New([]topology.Target{{Thread: 0}, {Thread: 0, Core: 1}})
	if !errors.Is(err, topology.ErrUnknownTopology) {
		t.Fatalf("got %v, want ErrUnknownTopology", err)
	}
}

func TestParseCPUList(t *testing.T) {
	t.Parallel()

	got, err := topology.ParseCPUList(" 8,0-3,2,10-11 ")
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]int{0, 1, 2, 3, 8, 10, 11}, got); diff != "" {
		t.Errorf("ParseCPUList (-want +got):\n%s", diff)
	}

	for _, bad := range []string{"", "a", "3-1", "1,,2", "-1", "0-100000"} {
		if _, err := topology.ParseCPUList(bad); err == nil {
			t.Errorf("ParseCPUList(%q) succeeded", bad)
		}
	}
}

func TestAffinity(t *testing.T) {
	t.Parallel()

	cpus, err := topology.Affinity()
	if err != nil {
		t.Fatal(err)
	}

	if len(cpus) == 0 {
		t.Fatal("process has no cpus")
	}
}
