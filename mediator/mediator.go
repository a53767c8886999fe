// Package mediator brokers register access against the whitelist.
//
// Every request is checked against the catalog before the device is
// touched. Policy details such as granularity and bit masks are applied
// only after that check passes.
package mediator

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bobuhiro11/vmsr/catalog"
	"github.com/bobuhiro11/vmsr/msr"
	"github.com/bobuhiro11/vmsr/topology"
	"golang.org/x/sync/errgroup"
)

// Mediator serves reads and writes of whitelisted registers.
type Mediator struct {
	cat  *catalog.Catalog
	topo *topology.Topology
	dev  msr.Device

	// One lock per register, so the fan-outs of two writes to the same
	// register never interleave.
	locks map[string]*sync.Mutex
}

// New returns a Mediator over dev. cat and topo must not change afterwards.
func New(cat *catalog.Catalog, topo *topology.Topology, dev msr.Device) *Mediator {
	m := &Mediator{
		cat:   cat,
		topo:  topo,
		dev:   dev,
		locks: make(map[string]*sync.Mutex, cat.Len()),
	}

	for d := range cat.All() {
		m.locks[d.Name] = new(sync.Mutex)
	}

	return m
}

// Catalog returns the whitelist m enforces.
func (m *Mediator) Catalog() *catalog.Catalog {
	return m.cat
}

// Topology returns the layout m resolves targets against.
func (m *Mediator) Topology() *topology.Topology {
	return m.topo
}

// IsWhitelisted reports whether addr is a hardware register in the
// catalog. It is for callers that only hold a raw address.
func (m *Mediator) IsWhitelisted(addr uint32) bool {
	_, ok := m.cat.ByAddress(addr)

	return ok
}

// whitelisted checks d against the catalog entry at its address.
func (m *Mediator) whitelisted(d catalog.Descriptor) error {
	if w, ok := m.cat.ByAddress(d.Address); !ok || w != d {
		return fmt.Errorf("%s (%#x): %w", d.Name, d.Address, ErrNotWhitelisted)
	}

	return nil
}

func (m *Mediator) readable(name string) (catalog.Descriptor, error) {
	d, err := m.cat.Lookup(name)
	if err != nil {
		return d, err
	}

	if d.IsVirtual() {
		return d, fmt.Errorf("%s: %w", name, ErrNotReadable)
	}

	return d, nil
}

func (m *Mediator) writable(name string) (catalog.Descriptor, error) {
	d, err := m.cat.Lookup(name)
	if err != nil {
		return d, err
	}

	if !d.Writable() {
		slog.Warn("msr write denied", "register", name, "permission", d.Permission, "granularity", d.Granularity)

		return d, fmt.Errorf("%s: %w", name, ErrPermissionDenied)
	}

	return d, nil
}

// target checks that tg is a CPU of this node, exactly as the topology
// describes it.
func (m *Mediator) target(tg topology.Target) error {
	known, err := m.topo.Target(tg.Thread)
	if err != nil {
		return err
	}

	if known != tg {
		return fmt.Errorf("%s does not match %s: %w", tg, known, topology.ErrUnknownCPU)
	}

	return nil
}

// Read returns the value of a register as seen from cpu. Thread, core and
// special registers are read on cpu itself; package registers are read on
// the lowest numbered CPU of the package.
func (m *Mediator) Read(name string, cpu int) (uint64, error) {
	d, err := m.readable(name)
	if err != nil {
		return 0, err
	}

	tgs, err := m.topo.Resolve(d.Granularity, cpu)
	if err != nil {
		return 0, err
	}

	tg := tgs[0]

	if d.Granularity != catalog.Package {
		if tg, err = m.topo.Target(cpu); err != nil {
			return 0, err
		}
	}

	return m.read(d, tg)
}

// ReadTarget reads a register on one specific target.
func (m *Mediator) ReadTarget(name string, tg topology.Target) (uint64, error) {
	d, err := m.readable(name)
	if err != nil {
		return 0, err
	}

	if err := m.target(tg); err != nil {
		return 0, err
	}

	return m.read(d, tg)
}

func (m *Mediator) read(d catalog.Descriptor, tg topology.Target) (uint64, error) {
	if err := m.whitelisted(d); err != nil {
		return 0, err
	}

	v, err := m.dev.Read(tg.Thread, d.Address)
	if err != nil {
		return 0, &HardwareError{Op: "read", Name: d.Name, Addr: d.Address, Target: tg, Err: err}
	}

	return v, nil
}

// Write stores value in a register on every target its granularity covers
// from cpu. Special registers only have their masked bits replaced.
func (m *Mediator) Write(name string, cpu int, value uint64) error {
	d, err := m.writable(name)
	if err != nil {
		return err
	}

	tgs, err := m.topo.Resolve(d.Granularity, cpu)
	if err != nil {
		return err
	}

	return m.write(d, tgs, value)
}

// WriteTargets stores value in a register on exactly the given targets,
// all of which must belong to this node.
func (m *Mediator) WriteTargets(name string, tgs []topology.Target, value uint64) error {
	d, err := m.writable(name)
	if err != nil {
		return err
	}

	for _, tg := range tgs {
		if err := m.target(tg); err != nil {
			return err
		}
	}

	return m.write(d, tgs, value)
}

func (m *Mediator) write(d catalog.Descriptor, tgs []topology.Target, value uint64) error {
	mu := m.locks[d.Name]
	mu.Lock()
	defer mu.Unlock()

	mask, masked := m.cat.Mask(d.Name)

	var (
		g    errgroup.Group
		emu  sync.Mutex
		errs []error
	)

	for _, tg := range tgs {
		g.Go(func() error {
			err := m.writeOne(d, tg, value, mask, masked)
			if err != nil {
				emu.Lock()
				errs = append(errs, err)
				emu.Unlock()
			}

			return err
		})
	}

	if g.Wait() == nil {
		return nil
	}

	return errors.Join(errs...)
}

func (m *Mediator) writeOne(d catalog.Descriptor, tg topology.Target, value, mask uint64, masked bool) error {
	if err := m.whitelisted(d); err != nil {
		return err
	}

	if masked {
		old, err := m.dev.Read(tg.Thread, d.Address)
		if err != nil {
			return &HardwareError{Op: "read", Name: d.Name, Addr: d.Address, Target: tg, Err: err}
		}

		value = catalog.Merge(old, value, mask)
	}

	if err := m.dev.Write(tg.Thread, d.Address, value); err != nil {
		return &HardwareError{Op: "write", Name: d.Name, Addr: d.Address, Target: tg, Err: err}
	}

	return nil
}
