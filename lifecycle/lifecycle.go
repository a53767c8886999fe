// Package lifecycle drives the save / restore cycle around a job.
//
// The scheduler saves at job start and restores at job end. Restoring to
// sane values never looks at saved state, so it also recovers a node whose
// job died before it could save anything.
package lifecycle

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bobuhiro11/vmsr/catalog"
	"github.com/bobuhiro11/vmsr/mediator"
	"github.com/bobuhiro11/vmsr/topology"
)

var (
	// ErrNoSnapshotAvailable is returned by RestorePreviousValues before
	// anything was saved.
	ErrNoSnapshotAvailable = errors.New("no snapshot available")

	// ErrUnknownCommand is returned by Execute for a name that is not a
	// virtual command.
	ErrUnknownCommand = errors.New("unknown virtual command")
)

// State is the controller's position in the lifecycle.
type State int

const (
	Uninitialized State = iota
	Saved
)

func (s State) String() string {
	if s == Saved {
		return "saved"
	}

	return "uninitialized"
}

// Controller runs the three virtual commands for one set of CPUs. It owns
// the only Store.
type Controller struct {
	med  *mediator.Mediator
	cpus []int

	// mu makes every command one critical section.
	mu    sync.Mutex
	state State
	snap  *Store
}

// New returns a Controller acting on cpus, or on every online CPU when
// cpus is empty.
func New(med *mediator.Mediator, cpus []int) (*Controller, error) {
	topo := med.Topology()

	if len(cpus) == 0 {
		cpus = topo.CPUs()
	}

	for _, cpu := range cpus {
		if _, err := topo.Target(cpu); err != nil {
			return nil, err
		}
	}

	return &Controller{
		med:  med,
		cpus: append([]int(nil), cpus...),
		snap: NewStore(),
	}, nil
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// Snapshot returns a copy of the saved values.
func (c *Controller) Snapshot() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.snap.Entries()
}

// Execute runs the virtual command called name.
func (c *Controller) Execute(name string) (Result, error) {
	switch name {
	case catalog.SaveCurrentValues:
		return c.SaveCurrentValues(), nil
	case catalog.RestorePreviousValues:
		return c.RestorePreviousValues()
	case catalog.RestoreSaneValues:
		return c.RestoreSaneValues(), nil
	}

	return Result{Command: name}, fmt.Errorf("%q: %w", name, ErrUnknownCommand)
}

func (c *Controller) span(d catalog.Descriptor) ([]topology.Target, error) {
	return c.med.Topology().Span(d.Granularity, c.cpus)
}

// SaveCurrentValues captures every read-on-start register on every target
// the controller's CPUs cover. The new snapshot replaces the old one.
func (c *Controller) SaveCurrentValues() Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	res := Result{Command: catalog.SaveCurrentValues}
	snap := NewStore()

	for d := range c.med.Catalog().All() {
		if !d.ReadOnStart || d.IsVirtual() {
			continue
		}

		res.Attempted++

		tgs, err := c.span(d)
		if err != nil {
			res.fail(d.Name, err)

			continue
		}

		var errs []error

		for _, tg := range tgs {
			v, err := c.med.ReadTarget(d.Name, tg)
			if err != nil {
				errs = append(errs, err)

				continue
			}

			snap.Put(d.Name, tg, v)
		}

		if err := errors.Join(errs...); err != nil {
			res.fail(d.Name, err)
		}
	}

	c.snap = snap
	c.state = Saved

	logResult(res, "entries", snap.Len())

	return res
}

// RestorePreviousValues writes every saved value back to the target it was
// read from. Without a prior save it writes nothing and fails.
func (c *Controller) RestorePreviousValues() (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	res := Result{Command: catalog.RestorePreviousValues}

	if c.state != Saved {
		return res, ErrNoSnapshotAvailable
	}

	entries := c.snap.Entries()

	var (
		errs []error
		last string
	)

	flush := func() {
		if err := errors.Join(errs...); err != nil {
			res.fail(last, err)
		}

		errs = nil
	}

	for _, e := range entries {
		if e.Name != last {
			if last != "" {
				flush()
			}

			last = e.Name
			res.Attempted++
		}

		if err := c.med.WriteTargets(e.Name, []topology.Target{e.Target}, e.Value); err != nil {
			errs = append(errs, err)
		}
	}

	flush()

	logResult(res, "entries", len(entries))

	return res, nil
}

// RestoreSaneValues applies every writable register's exit action on the
// controller's CPUs: zero, a catalog sane value, or nothing.
func (c *Controller) RestoreSaneValues() Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	cat := c.med.Catalog()
	res := Result{Command: catalog.RestoreSaneValues}

	for d := range cat.All() {
		if !d.Writable() || d.ExitAction == catalog.NoWriteOnExit {
			continue
		}

		var value uint64

		if i, ok := d.ExitAction.SaneIndex(); ok {
			// Validated when the catalog was built.
			value, _ = cat.SaneValue(i)
		}

		res.Attempted++

		tgs, err := c.span(d)
		if err != nil {
			res.fail(d.Name, err)

			continue
		}

		if err := c.med.WriteTargets(d.Name, tgs, value); err != nil {
			res.fail(d.Name, err)
		}
	}

	logResult(res)

	return res
}

func logResult(res Result, args ...any) {
	for _, f := range res.Failures {
		slog.Warn("msr lifecycle failure", "command", res.Command, "register", f.Name, "error", f.Err)
	}

	args = append(args, "command", res.Command, "registers", res.Attempted, "failures", len(res.Failures))
	slog.Info("msr lifecycle command done", args...)
}
