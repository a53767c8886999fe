package lifecycle

import (
	"errors"
	"fmt"
)

// Failure is a register a command could not handle.
type Failure struct {
	Name string
	Err  error
}

// Result is the outcome of one lifecycle command. A failed register never
// stops the command; it is listed here instead.
type Result struct {
	Command   string
	Attempted int
	Failures  []Failure
}

// OK reports whether every attempted register succeeded.
func (r Result) OK() bool {
	return len(r.Failures) == 0
}

// Err joins the failures, or returns nil.
func (r Result) Err() error {
	errs := make([]error, 0, len(r.Failures))
	for _, f := range r.Failures {
		errs = append(errs, fmt.Errorf("%s: %w", f.Name, f.Err))
	}

	return errors.Join(errs...)
}

func (r *Result) fail(name string, err error) {
	r.Failures = append(r.Failures, Failure{Name: name, Err: err})
}
