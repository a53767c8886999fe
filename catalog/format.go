package catalog

import (
	"errors"
	"fmt"
)

// LastEntry is the address of the end-of-table sentinel.
const LastEntry uint32 = ^uint32(0)

// ErrUnsupportedCPU is returned when no table exists for a processor.
var ErrUnsupportedCPU = errors.New("no register catalog for this cpu")

// Tuple is one row of the exported table format:
// (address, permission, read on start, exit action index, granularity).
type Tuple struct {
	Address     uint32
	Permission  int
	ReadOnStart int
	ExitIndex   int
	Granularity int
}

func (t Tuple) String() string {
	return fmt.Sprintf("%#x, %d, %d, %d, %d",
		t.Address, t.Permission, t.ReadOnStart, t.ExitIndex, t.Granularity)
}

// Tuples exports the catalog in table order, terminated by the sentinel
// entry whose address is LastEntry.
func (c *Catalog) Tuples() []Tuple {
	out := make([]Tuple, 0, len(c.regs)+1)

	for _, d := range c.regs {
		t := Tuple{
			Address:     d.Address,
			Permission:  int(d.Permission),
			ExitIndex:   int(d.ExitAction),
			Granularity: int(d.Granularity),
		}

		if d.ReadOnStart {
			t.ReadOnStart = 1
		}

		out = append(out, t)
	}

	return append(out, Tuple{Address: LastEntry})
}

// ForModel returns the built-in catalog for an Intel family/model pair.
func ForModel(family, model uint32) (*Catalog, error) {
	if family == 0x06 && model == 0x2D {
		return SandyBridgeEP(), nil
	}

	return nil, fmt.Errorf("family %#02x model %#02x: %w", family, model, ErrUnsupportedCPU)
}
