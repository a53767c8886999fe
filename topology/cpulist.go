package topology

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

var errBadCPUList = errors.New("bad cpu list")

// maxCPU bounds cpu ids accepted from a list, well above CONFIG_NR_CPUS.
const maxCPU = 1 << 16

// ParseCPUList parses the kernel's cpulist format ("0-3,8,10-11") into a
// sorted list without duplicates.
func ParseCPUList(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty: %w", errBadCPUList)
	}

	seen := make(map[int]bool)

	var out []int

	for _, part := range strings.Split(s, ",") {
		lo, hi, isRange := strings.Cut(strings.TrimSpace(part), "-")

		first, err := strconv.Atoi(lo)
		if err != nil || first < 0 || first >= maxCPU {
			return nil, fmt.Errorf("%q: %w", part, errBadCPUList)
		}

		last := first

		if isRange {
			if last, err = strconv.Atoi(hi); err != nil || last < first || last >= maxCPU {
				return nil, fmt.Errorf("%q: %w", part, errBadCPUList)
			}
		}

		for cpu := first; cpu <= last; cpu++ {
			if !seen[cpu] {
				seen[cpu] = true
				out = append(out, cpu)
			}
		}
	}

	sort.Ints(out)

	return out, nil
}
