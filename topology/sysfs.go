package topology

import (
	"fmt"
	"io/fs"
	"strconv"
	"strings"
)

// SysfsRoot is where Linux exposes the CPU topology.
const SysfsRoot = "/sys/devices/system/cpu"

// Load reads the topology of every online CPU from a sysfs tree rooted at
// SysfsRoot, e.g. os.DirFS(SysfsRoot).
func Load(fsys fs.FS) (*Topology, error) {
	online, err := readString(fsys, "online")
	if err != nil {
		return nil, err
	}

	cpus, err := ParseCPUList(online)
	if err != nil {
		return nil, fmt.Errorf("%w: online: %w", ErrUnknownTopology, err)
	}

	targets := make([]Target, 0, len(cpus))

	for _, cpu := range cpus {
		core, err := readInt(fsys, fmt.Sprintf("cpu%d/topology/core_id", cpu))
		if err != nil {
			return nil, err
		}

		pkg, err := readInt(fsys, fmt.Sprintf("cpu%d/topology/physical_package_id", cpu))
		if err != nil {
			return nil, err
		}

		targets = append(targets, Target{Thread: cpu, Core: core, Package: pkg})
	}

	return New(targets)
}

func readString(fsys fs.FS, name string) (string, error) {
	b, err := fs.ReadFile(fsys, name)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnknownTopology, err)
	}

	return strings.TrimSpace(string(b)), nil
}

func readInt(fsys fs.FS, name string) (int, error) {
	s, err := readString(fsys, name)
	if err != nil {
		return 0, err
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrUnknownTopology, name, err)
	}

	return n, nil
}
