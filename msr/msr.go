// Package msr is the privileged register primitive: raw 64-bit reads and
// writes of a model-specific register on one logical CPU. It applies no
// policy of its own.
package msr

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

const (
	// SafePath is the msr-safe driver's device, which enforces its own
	// kernel-side allowlist.
	SafePath = "/dev/cpu/%d/msr_safe"

	// KernelPath is the stock msr driver's device. It needs CAP_SYS_RAWIO.
	KernelPath = "/dev/cpu/%d/msr"
)

var errShortAccess = errors.New("short msr access")

// Device reads and writes registers on a logical CPU.
type Device interface {
	Read(cpu int, addr uint32) (uint64, error)
	Write(cpu int, addr uint32, value uint64) error
}

// DevCPU is a Device backed by the per-CPU character devices. The register
// address is the file offset and every access is exactly 8 bytes.
type DevCPU struct {
	path string

	mu    sync.Mutex
	files map[int]*os.File
}

// Open returns a DevCPU for a path format such as SafePath. Device files
// are opened on first use.
func Open(path string) *DevCPU {
	return &DevCPU{
		path:  path,
		files: make(map[int]*os.File),
	}
}

func (d *DevCPU) file(cpu int) (*os.File, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if f, ok := d.files[cpu]; ok {
		return f, nil
	}

	f, err := os.OpenFile(fmt.Sprintf(d.path, cpu), os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}

	d.files[cpu] = f

	return f, nil
}

// Read returns the value of addr on cpu.
func (d *DevCPU) Read(cpu int, addr uint32) (uint64, error) {
	f, err := d.file(cpu)
	if err != nil {
		return 0, err
	}

	buf := make([]byte, 8)

	n, err := unix.Pread(int(f.Fd()), buf, int64(addr))
	if err != nil {
		return 0, fmt.Errorf("rdmsr %#x on cpu%d: %w", addr, cpu, err)
	}

	if n != len(buf) {
		return 0, fmt.Errorf("rdmsr %#x on cpu%d: %d bytes: %w", addr, cpu, n, errShortAccess)
	}

	return binary.LittleEndian.Uint64(buf), nil
}

// Write stores value in addr on cpu.
func (d *DevCPU) Write(cpu int, addr uint32, value uint64) error {
	f, err := d.file(cpu)
	if err != nil {
		return err
	}

	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, value)

	n, err := unix.Pwrite(int(f.Fd()), buf, int64(addr))
	if err != nil {
		return fmt.Errorf("wrmsr %#x on cpu%d: %w", addr, cpu, err)
	}

	if n != len(buf) {
		return fmt.Errorf("wrmsr %#x on cpu%d: %d bytes: %w", addr, cpu, n, errShortAccess)
	}

	return nil
}

// Close closes every device file opened so far.
func (d *DevCPU) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error

	for cpu, f := range d.files {
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}

		delete(d.files, cpu)
	}

	return errors.Join(errs...)
}
