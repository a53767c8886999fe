// Package cpuid identifies the processor so the matching register catalog
// can be chosen.
package cpuid

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Intel is the vendor string of Intel processors.
const Intel = "GenuineIntel"

var errNoProcessor = errors.New("no processor entry in cpuinfo")

// Signature is the vendor, family, model and stepping of a processor, as
// decoded by the kernel from CPUID leaf 1.
type Signature struct {
	Vendor   string
	Family   uint32
	Model    uint32
	Stepping uint32
	Flags    []string
}

// String formats the signature the way Intel names models, e.g.
// "GenuineIntel 06_2DH".
func (s Signature) String() string {
	return fmt.Sprintf("%s %02X_%02XH", s.Vendor, s.Family, s.Model)
}

// HasFlag reports whether the kernel lists feature flag f.
func (s Signature) HasFlag(f string) bool {
	for _, x := range s.Flags {
		if x == f {
			return true
		}
	}

	return false
}

// Parse reads the first processor of /proc/cpuinfo. All processors of a
// node are assumed identical.
func Parse(r io.Reader) (Signature, error) {
	var (
		sig  Signature
		seen bool
	)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			if seen {
				break
			}

			continue
		}

		key, val, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}

		key, val = strings.TrimSpace(key), strings.TrimSpace(val)

		var err error

		switch key {
		case "processor":
			seen = true
		case "vendor_id":
			sig.Vendor = val
		case "cpu family":
			sig.Family, err = parseUint(val)
		case "model":
			sig.Model, err = parseUint(val)
		case "stepping":
			sig.Stepping, err = parseUint(val)
		case "flags":
			sig.Flags = strings.Fields(val)
		}

		if err != nil {
			return Signature{}, fmt.Errorf("cpuinfo %q: %w", key, err)
		}
	}

	if err := sc.Err(); err != nil {
		return Signature{}, err
	}

	if !seen || sig.Vendor == "" {
		return Signature{}, errNoProcessor
	}

	return sig, nil
}

func parseUint(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)

	return uint32(v), err
}

// ParseModel parses an Intel model name such as "06_2DH" or "06_2D".
func ParseModel(s string) (family, model uint32, err error) {
	f, m, ok := strings.Cut(strings.TrimSuffix(strings.ToUpper(s), "H"), "_")
	if !ok {
		return 0, 0, fmt.Errorf("%q: want FF_MM: %w", s, strconv.ErrSyntax)
	}

	fv, err := strconv.ParseUint(f, 16, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("%q: %w", s, err)
	}

	mv, err := strconv.ParseUint(m, 16, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("%q: %w", s, err)
	}

	return uint32(fv), uint32(mv), nil
}
