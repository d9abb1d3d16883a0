package functions

import (
	"errors"
	"fmt"
)

var (
	// ErrRootNotFound is returned when the handler root does not exist or is not a directory
	ErrRootNotFound = errors.New("functions root not found")

	// ErrRouteConflict is returned when two sources derive the same route
	ErrRouteConflict = errors.New("route conflict")

	// ErrNoHandlerExport is returned when a module exposes no handler
	ErrNoHandlerExport = errors.New("module exposes no handler")

	// ErrNotExecutable is returned when an exec module has no execute bit
	ErrNotExecutable = errors.New("module is not executable")

	// ErrReservedRoute is returned when a derived route contains router pattern characters
	ErrReservedRoute = errors.New("route contains reserved characters")

	// ErrBodyTooLarge is returned when the request body exceeds the configured limit
	ErrBodyTooLarge = errors.New("request body too large")

	// ErrOutputTooLarge is returned when an exec handler writes more than its output limit
	ErrOutputTooLarge = errors.New("handler output too large")

	// ErrInvalidBody is returned when a JSON request body cannot be decoded
	ErrInvalidBody = errors.New("invalid request body")
)

// PanicError is returned in place of a handler that panicked
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("handler panicked: %v", e.Value)
}
