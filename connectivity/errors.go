package connectivity

import (
	"errors"
	"fmt"
	"time"
)

// ErrCallTimeout is returned when a call exceeds the per-call timeout set by
// WithTimeout.
type ErrCallTimeout struct {
	After time.Duration
	Cause error
}

func (e *ErrCallTimeout) Error() string {
	return fmt.Sprintf("connectivity: call timed out after %s", e.After)
}

func (e *ErrCallTimeout) Unwrap() error { return e.Cause }

// ErrCircuitOpen is returned when the circuit breaker for a service is open,
// rejecting the call without attempting it.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("connectivity: circuit open: %s", e.Service)
}

// ErrPanic wraps a recovered panic value as an error.
type ErrPanic struct {
	Value any
}

func (e *ErrPanic) Error() string {
	return fmt.Sprintf("connectivity: handler panicked: %v", e.Value)
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying. WithRetry returns it on the
// first attempt and WithCircuitBreaker does not count it as a failure.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err, or anything it wraps, was marked with
// Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
