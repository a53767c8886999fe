// Package catalog holds the register whitelist: every MSR a job may touch,
// how it may touch it, and what happens to it when the job ends.
//
// A Catalog is built once at startup from a Table and never changes
// afterwards. Construction runs the integrity checks, so a broken table
// stops the process before any register is accessed.
package catalog

import (
	"errors"
	"fmt"
	"iter"
)

var (
	// ErrNotFound is returned for a register name that is not whitelisted.
	ErrNotFound = errors.New("register not in whitelist")

	// ErrIntegrity marks a catalog table that violates its own invariants.
	ErrIntegrity = errors.New("catalog integrity violation")
)

// Permission is the access a job has to a register.
type Permission uint8

const (
	ReadOnly  Permission = 0
	ReadWrite Permission = 1
)

func (p Permission) String() string {
	switch p {
	case ReadOnly:
		return "ro"
	case ReadWrite:
		return "rw"
	}

	return fmt.Sprintf("Permission(%d)", uint8(p))
}

// Granularity is the topological scope a register value is shared over.
// The numeric values are part of the exported table format.
type Granularity uint8

const (
	Virtual Granularity = 0
	Thread  Granularity = 1
	Core    Granularity = 2
	Package Granularity = 3
	// Special registers mix scopes per bit field. They fan out over the
	// package and are written through the register's mask only.
	Special Granularity = 4
)

func (g Granularity) String() string {
	switch g {
	case Virtual:
		return "virtual"
	case Thread:
		return "thread"
	case Core:
		return "core"
	case Package:
		return "package"
	case Special:
		return "special"
	}

	return fmt.Sprintf("Granularity(%d)", uint8(g))
}

// ExitAction says what RestoreSaneValues does with a register.
// Negative is NoWriteOnExit, zero is ZeroOnExit and any positive value is an
// index into the catalog's sane value table.
type ExitAction int

const (
	NoWriteOnExit ExitAction = -1
	ZeroOnExit    ExitAction = 0
)

// RestoreToIndex returns the exit action that writes sane value i.
func RestoreToIndex(i int) ExitAction {
	return ExitAction(i)
}

// SaneIndex returns the sane value index of a RestoreToIndex action.
func (a ExitAction) SaneIndex() (int, bool) {
	if a > 0 {
		return int(a), true
	}

	return 0, false
}

func (a ExitAction) String() string {
	switch {
	case a < 0:
		return "no-write"
	case a == 0:
		return "zero"
	}

	return fmt.Sprintf("sane[%d]", int(a))
}

// Descriptor describes one whitelisted register or virtual command.
type Descriptor struct {
	Name        string
	Address     uint32
	Permission  Permission
	ReadOnStart bool
	ExitAction  ExitAction
	Granularity Granularity
}

// IsVirtual reports whether d is a control signal rather than hardware.
func (d Descriptor) IsVirtual() bool {
	return d.Granularity == Virtual
}

// Writable reports whether jobs may write d.
func (d Descriptor) Writable() bool {
	return !d.IsVirtual() && d.Permission == ReadWrite
}

// Table is the raw material of a Catalog.
type Table struct {
	// Registers in table order. Virtual commands are listed here too.
	Registers []Descriptor
	// Sane maps a RestoreToIndex index to the value written on exit.
	Sane map[int]uint64
	// Masks maps the name of each Special register to its writable bits.
	Masks map[string]uint64
}

// Catalog is an immutable, validated whitelist.
type Catalog struct {
	regs   []Descriptor
	byName map[string]int
	byAddr map[uint32]int
	sane   map[int]uint64
	masks  map[string]uint64
}

// New validates t and builds a Catalog from a private copy of it.
func New(t Table) (*Catalog, error) {
	if err := Validate(t); err != nil {
		return nil, err
	}

	c := &Catalog{
		regs:   append([]Descriptor(nil), t.Registers...),
		byName: make(map[string]int, len(t.Registers)),
		byAddr: make(map[uint32]int, len(t.Registers)),
		sane:   make(map[int]uint64, len(t.Sane)),
		masks:  make(map[string]uint64, len(t.Masks)),
	}

	for i, d := range c.regs {
		c.byName[d.Name] = i

		if !d.IsVirtual() {
			c.byAddr[d.Address] = i
		}
	}

	for k, v := range t.Sane {
		c.sane[k] = v
	}

	for k, v := range t.Masks {
		c.masks[k] = v
	}

	return c, nil
}

// MustNew is New for compiled-in tables. It panics on an invalid table.
func MustNew(t Table) *Catalog {
	c, err := New(t)
	if err != nil {
		panic(err)
	}

	return c
}

// Lookup returns the descriptor registered under name.
func (c *Catalog) Lookup(name string) (Descriptor, error) {
	i, ok := c.byName[name]
	if !ok {
		return Descriptor{}, fmt.Errorf("%q: %w", name, ErrNotFound)
	}

	return c.regs[i], nil
}

// ByAddress returns the hardware register at addr. Virtual command
// addresses never match.
func (c *Catalog) ByAddress(addr uint32) (Descriptor, bool) {
	i, ok := c.byAddr[addr]
	if !ok {
		return Descriptor{}, false
	}

	return c.regs[i], true
}

// All yields every descriptor in table order. The sequence can be ranged
// over any number of times.
func (c *Catalog) All() iter.Seq[Descriptor] {
	return func(yield func(Descriptor) bool) {
		for _, d := range c.regs {
			if !yield(d) {
				return
			}
		}
	}
}

// Len is the number of entries, virtual commands included.
func (c *Catalog) Len() int {
	return len(c.regs)
}

// SaneValue returns the value for sane index i.
func (c *Catalog) SaneValue(i int) (uint64, bool) {
	v, ok := c.sane[i]

	return v, ok
}

// Mask returns the writable bits of a Special register.
func (c *Catalog) Mask(name string) (uint64, bool) {
	m, ok := c.masks[name]

	return m, ok
}
