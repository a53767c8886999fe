// Package topology maps a register's granularity onto the logical CPUs that
// have to be touched to read or write it.
package topology

import (
	"errors"
	"fmt"
	"sort"

	"github.com/bobuhiro11/vmsr/catalog"
)

var (
	// ErrUnknownTopology means the CPU layout could not be enumerated.
	// It is fatal at startup.
	ErrUnknownTopology = errors.New("unknown cpu topology")

	// ErrUnknownCPU is returned for a logical CPU that is not online.
	ErrUnknownCPU = errors.New("cpu not in topology")

	// ErrNotAddressable is returned when resolving a virtual command.
	ErrNotAddressable = errors.New("granularity has no physical targets")
)

// Target is one logical CPU and the core and package that own it.
// Core ids are only unique within a package.
type Target struct {
	Thread  int
	Core    int
	Package int
}

func (t Target) String() string {
	return fmt.Sprintf("cpu%d(core %d, package %d)", t.Thread, t.Core, t.Package)
}

func (t Target) sameCore(o Target) bool {
	return t.Package == o.Package && t.Core == o.Core
}

// Topology is the fixed thread/core/package layout of the node.
type Topology struct {
	byThread map[int]Target
	order    []Target
}

// New builds a Topology from explicit targets.
func New(targets []Target) (*Topology, error) {
	if len(targets) == 0 {
		return nil, fmt.Errorf("no cpus: %w", ErrUnknownTopology)
	}

	t := &Topology{
		byThread: make(map[int]Target, len(targets)),
		order:    append([]Target(nil), targets...),
	}

	for _, tg := range targets {
		if _, ok := t.byThread[tg.Thread]; ok {
			return nil, fmt.Errorf("cpu%d listed twice: %w", tg.Thread, ErrUnknownTopology)
		}

		t.byThread[tg.Thread] = tg
	}

	sortTargets(t.order)

	return t, nil
}

// CPUs returns every online logical CPU in ascending order.
func (t *Topology) CPUs() []int {
	out := make([]int, len(t.order))
	for i, tg := range t.order {
		out[i] = tg.Thread
	}

	return out
}

// Target returns the coordinates of a logical CPU.
func (t *Topology) Target(cpu int) (Target, error) {
	tg, ok := t.byThread[cpu]
	if !ok {
		return Target{}, fmt.Errorf("cpu%d: %w", cpu, ErrUnknownCPU)
	}

	return tg, nil
}

// Resolve returns the targets a register of granularity g covers when
// accessed from cpu, ordered by thread id.
func (t *Topology) Resolve(g catalog.Granularity, cpu int) ([]Target, error) {
	self, err := t.Target(cpu)
	if err != nil {
		return nil, err
	}

	var match func(Target) bool

	switch g {
	case catalog.Thread:
		return []Target{self}, nil
	case catalog.Core:
		match = self.sameCore
	case catalog.Package, catalog.Special:
		match = func(o Target) bool { return o.Package == self.Package }
	default:
		return nil, fmt.Errorf("%s: %w", g, ErrNotAddressable)
	}

	var out []Target

	for _, tg := range t.order {
		if match(tg) {
			out = append(out, tg)
		}
	}

	return out, nil
}

// Span is the union of Resolve over a set of CPUs, typically the CPUs a job
// was given.
func (t *Topology) Span(g catalog.Granularity, cpus []int) ([]Target, error) {
	seen := make(map[int]bool)

	var out []Target

	for _, cpu := range cpus {
		tgs, err := t.Resolve(g, cpu)
		if err != nil {
			return nil, err
		}

		for _, tg := range tgs {
			if !seen[tg.Thread] {
				seen[tg.Thread] = true
				out = append(out, tg)
			}
		}
	}

	sortTargets(out)

	return out, nil
}

func sortTargets(tgs []Target) {
	sort.Slice(tgs, func(i, j int) bool { return tgs[i].Thread < tgs[j].Thread })
}
