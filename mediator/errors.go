package mediator

import (
	"errors"
	"fmt"

	"github.com/bobuhiro11/vmsr/topology"
)

var (
	// ErrNotReadable is returned when reading a virtual command.
	ErrNotReadable = errors.New("not readable")

	// ErrPermissionDenied is returned when writing a register the
	// whitelist does not make writable.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotWhitelisted is returned when a descriptor does not match the
	// catalog entry at its address. The device is never touched.
	ErrNotWhitelisted = errors.New("not whitelisted")

	// ErrHardwareAccess wraps every failure of the physical primitive.
	ErrHardwareAccess = errors.New("hardware access error")
)

// HardwareError is a failed physical read or write. It matches both
// ErrHardwareAccess and the primitive's own error with errors.Is.
type HardwareError struct {
	Op     string
	Name   string
	Addr   uint32
	Target topology.Target
	Err    error
}

func (e *HardwareError) Error() string {
	return fmt.Sprintf("%s %s (%#x) on %s: %v", e.Op, e.Name, e.Addr, e.Target, e.Err)
}

func (e *HardwareError) Unwrap() []error {
	return []error{ErrHardwareAccess, e.Err}
}
