package catalog

import (
	"errors"
	"fmt"
)

var virtualCommands = map[string]bool{
	SaveCurrentValues:     true,
	RestorePreviousValues: true,
	RestoreSaneValues:     true,
}

// Validate checks t against the catalog invariants and reports every
// violation it finds, each wrapping ErrIntegrity.
func Validate(t Table) error {
	var errs []error

	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrIntegrity))
	}

	names := make(map[string]bool, len(t.Registers))
	addrs := make(map[uint32]string, len(t.Registers))

	for _, d := range t.Registers {
		if d.Name == "" {
			fail("register at %#x has no name", d.Address)

			continue
		}

		if names[d.Name] {
			fail("%s: duplicate name", d.Name)
		}

		names[d.Name] = true

		if d.Address == LastEntry {
			fail("%s: address %#x is reserved for the end-of-table sentinel", d.Name, d.Address)
		}

		if d.Permission != ReadOnly && d.Permission != ReadWrite {
			fail("%s: bad permission %d", d.Name, d.Permission)
		}

		if d.Granularity > Special {
			fail("%s: bad granularity %d", d.Name, d.Granularity)
		}

		if d.IsVirtual() {
			if !virtualCommands[d.Name] {
				fail("%s: unknown virtual command", d.Name)
			}

			if d.ExitAction != NoWriteOnExit || d.Permission != ReadOnly || d.ReadOnStart {
				fail("%s: virtual command must be read-only, no-write on exit and not read on start", d.Name)
			}

			continue
		}

		if other, ok := addrs[d.Address]; ok {
			fail("%s: address %#x already used by %s", d.Name, d.Address, other)
		}

		addrs[d.Address] = d.Name

		if d.ExitAction < NoWriteOnExit {
			fail("%s: bad exit action %d", d.Name, d.ExitAction)
		}

		switch d.Permission {
		case ReadOnly:
			if d.ExitAction != NoWriteOnExit || d.ReadOnStart {
				fail("%s: read-only register cannot be saved or written on exit", d.Name)
			}
		case ReadWrite:
			if d.ReadOnStart && d.ExitAction == NoWriteOnExit {
				fail("%s: saved on start but never restored", d.Name)
			}
		}

		if i, ok := d.ExitAction.SaneIndex(); ok {
			if _, ok := t.Sane[i]; !ok {
				fail("%s: no sane value for index %d", d.Name, i)
			}
		}

		mask, hasMask := t.Masks[d.Name]

		switch {
		case d.Granularity == Special && (!hasMask || mask == 0):
			fail("%s: special register has no bit mask", d.Name)
		case d.Granularity != Special && hasMask:
			fail("%s: bit mask on a %s register", d.Name, d.Granularity)
		}
	}

	for name := range t.Masks {
		if !names[name] {
			fail("mask for unknown register %s", name)
		}
	}

	return errors.Join(errs...)
}
