package orchestrator

import (
	"errors"
	"fmt"
)

// Phase names the step of an operation that failed.
type Phase string

const (
	PhaseValidate Phase = "validate"
	PhaseLookup   Phase = "lookup"
	PhaseEstimate Phase = "estimate"
	PhaseSubmit   Phase = "submit"
	PhaseRecover  Phase = "recover"
	PhaseStatus   Phase = "status"
	PhaseRead     Phase = "read"
)

// OpError attaches a phase to a failure. Its message is the underlying
// error text, unchanged, so callers see what the ledger said.
type OpError struct {
	Phase Phase
	Err   error
}

func (e *OpError) Error() string { return e.Err.Error() }

func (e *OpError) Unwrap() error { return e.Err }

// PhaseOf returns the phase recorded on err, if any.
func PhaseOf(err error) (Phase, bool) {
	var op *OpError
	if errors.As(err, &op) {
		return op.Phase, true
	}
	return "", false
}

func opErr(phase Phase, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Phase: phase, Err: err}
}

func invalidf(format string, args ...interface{}) error {
	return &OpError{Phase: PhaseValidate, Err: fmt.Errorf(format, args...)}
}
