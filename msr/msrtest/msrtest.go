// Package msrtest provides an in-memory msr.Device for tests.
package msrtest

import (
	"sync"
)

// AnyCPU matches every cpu in Fail.
const AnyCPU = -1

// Access is one journaled register access.
type Access struct {
	CPU   int
	Addr  uint32
	Value uint64
}

type key struct {
	cpu  int
	addr uint32
}

// Device is a register file per CPU. Unset registers read as zero.
type Device struct {
	mu     sync.Mutex
	regs   map[key]uint64
	faults map[key]error
	writes []Access
	reads  int
}

// New returns an empty Device.
func New() *Device {
	return &Device{
		regs:   make(map[key]uint64),
		faults: make(map[key]error),
	}
}

// Set stores a value without journaling it.
func (d *Device) Set(cpu int, addr uint32, value uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.regs[key{cpu, addr}] = value
}

// Get returns the current value without journaling the read.
func (d *Device) Get(cpu int, addr uint32) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.regs[key{cpu, addr}]
}

// Fail makes every access to addr on cpu return err. cpu may be AnyCPU.
// A nil err clears the fault.
func (d *Device) Fail(cpu int, addr uint32, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err == nil {
		delete(d.faults, key{cpu, addr})

		return
	}

	d.faults[key{cpu, addr}] = err
}

func (d *Device) fault(cpu int, addr uint32) error {
	if err, ok := d.faults[key{cpu, addr}]; ok {
		return err
	}

	return d.faults[key{AnyCPU, addr}]
}

// Read implements msr.Device.
func (d *Device) Read(cpu int, addr uint32) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.fault(cpu, addr); err != nil {
		return 0, err
	}

	d.reads++

	return d.regs[key{cpu, addr}], nil
}

// Write implements msr.Device. Failed writes are not journaled.
func (d *Device) Write(cpu int, addr uint32, value uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.fault(cpu, addr); err != nil {
		return err
	}

	d.regs[key{cpu, addr}] = value
	d.writes = append(d.writes, Access{CPU: cpu, Addr: addr, Value: value})

	return nil
}

// Writes returns the journal of successful writes, oldest first.
func (d *Device) Writes() []Access {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]Access(nil), d.writes...)
}

// WritesTo returns the journaled writes to addr.
func (d *Device) WritesTo(addr uint32) []Access {
	var out []Access

	for _, w := range d.Writes() {
		if w.Addr == addr {
			out = append(out, w)
		}
	}

	return out
}

// Reads returns how many reads succeeded.
func (d *Device) Reads() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.reads
}

// ResetJournal forgets journaled writes and the read count.
func (d *Device) ResetJournal() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.writes = nil
	d.reads = 0
}
