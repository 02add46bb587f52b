package bootstrap

import "fmt"

// Error reports a failed bootstrap step. Bootstrap failures are fatal: a step
// only runs once its predecessors succeeded, so the first failure aborts.
type Error struct {
	Step string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("bootstrap %s: %v", e.Step, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func stepErr(step string, err error) *Error {
	return &Error{Step: step, Err: err}
}
