package hmm

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidParameter reports malformed, non-stochastic or non positive
	// definite model parameters. It is only returned when parameters are
	// constructed or set, never while fitting.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrInvalidArgument reports a bad shape or size passed to sample, fit,
	// decode or scoring calls.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNumericalInstability reports a non-finite intermediate value, such as
	// an emission density from a collapsed covariance.
	ErrNumericalInstability = errors.New("numerical instability")
)

// NumericalInstabilityError locates the value that stopped a computation.
type NumericalInstabilityError struct {
	Sequence int
	Time     int
	State    int
	Value    float64
	Op       string
	// Cause is the lower level failure, if any. It is reported in the
	// message but not unwrapped.
	Cause error
}

func (e *NumericalInstabilityError) Error() string {
	msg := fmt.Sprintf("%s: %s produced %v at sequence %d, time %d, state %d",
		ErrNumericalInstability, e.Op, e.Value, e.Sequence, e.Time, e.State)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *NumericalInstabilityError) Unwrap() error {
	return ErrNumericalInstability
}

func invalidParameter(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidParameter, fmt.Sprintf(format, args...))
}

func invalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
