package migrator

import (
	"errors"
	"fmt"

	goerrors "github.com/go-errors/errors"
)

// ErrConfirmationDeclined is returned when the operator declines a gated
// step. It is a graceful abort: nothing destructive has run, and callers
// should report it distinctly from an internal failure.
var ErrConfirmationDeclined = errors.New("confirmation declined by operator")

// PreflightError means the environment is not usable; nothing below
// preflight may run.
type PreflightError struct {
	Check string
	Cause error
}

func (e *PreflightError) Error() string {
	return fmt.Sprintf("preflight check %q failed: %v", e.Check, e.Cause)
}

func (e *PreflightError) Unwrap() error {
	return e.Cause
}

// StepError is a fatal failure of a pipeline step. The pipeline halts; no
// later step executes. The wrapped error carries a stack trace for
// operator diagnosis.
type StepError struct {
	Step string
	Err  *goerrors.Error
}

func newStepError(step string, err error) *StepError {
	return &StepError{Step: step, Err: goerrors.Wrap(err, 2)}
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s failed: %v", e.Step, e.Err.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err.Err
}
