package topology

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Affinity returns the CPUs the calling process may run on. Under a
// scheduler that confines jobs with cpusets these are the job's CPUs.
func Affinity() ([]int, error) {
	var set unix.CPUSet

	if err := unix.SchedGetaffinity(0, &set); err != nil {
		return nil, fmt.Errorf("sched_getaffinity: %w", err)
	}

	n := set.Count()
	out := make([]int, 0, n)

	for cpu := 0; len(out) < n; cpu++ {
		if set.IsSet(cpu) {
			out = append(out, cpu)
		}
	}

	return out, nil
}
