// ABOUTME: Error values returned by the machine and its collector
// ABOUTME: Stack contract violations carry the required and available depth

package vm

import (
	"errors"
	"fmt"
)

var (
	// ErrStackOverflow is returned when a push would exceed the stack capacity
	ErrStackOverflow = errors.New("stack overflow")

	// ErrStackUnderflow is returned when an operation needs more roots than are present
	ErrStackUnderflow = errors.New("stack underflow")

	// ErrOutOfMemory is returned when the heap limit is reached even after a collection
	ErrOutOfMemory = errors.New("out of memory")

	// ErrInvalidRef is returned for Nil refs and refs to reclaimed objects
	ErrInvalidRef = errors.New("invalid object reference")

	// ErrNotPair is returned when a link operation targets a scalar
	ErrNotPair = errors.New("object is not a pair")

	// ErrNotInt is returned when a scalar read targets a pair
	ErrNotInt = errors.New("object is not an int")

	// ErrInvalidPayload is returned for payloads not built with Int or Pair
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrClosed is returned by any mutating operation after Close
	ErrClosed = errors.New("machine is closed")

	// ErrInvalidConfig is returned by Config.Validate
	ErrInvalidConfig = errors.New("invalid config")
)

// StackError describes a root stack contract violation. Both overflow and
// underflow are caller bugs; the failed operation leaves the machine untouched.
type StackError struct {
	Err      error // ErrStackOverflow or ErrStackUnderflow
	Required int
	Have     int
}

func (e *StackError) Error() string {
	return fmt.Sprintf("%v: require %d, have %d", e.Err, e.Required, e.Have)
}

func (e *StackError) Unwrap() error {
	return e.Err
}
