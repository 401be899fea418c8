package gdb

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTimeout matches errors for commands that got no reply in time.
	ErrTimeout = errors.New("command timeout")

	// ErrBackend matches errors gdb reported with an ^error result.
	ErrBackend = errors.New("gdb error")

	// ErrClosed is returned for commands issued after the client was closed.
	ErrClosed = errors.New("client closed")

	// ErrInvalidLocation is returned for a breakpoint with neither an address nor a file and line.
	ErrInvalidLocation = errors.New("breakpoint needs an address or a file and line")

	// ErrUnexpectedClass is returned when a command succeeds with a result class the operation does not accept.
	ErrUnexpectedClass = errors.New("unexpected result class")
)

// TimeoutError is returned when no result record arrives within the client's timeout.
type TimeoutError struct {
	Command string
	After   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("no reply to %q within %s", e.Command, e.After)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// CommandError carries the message of an ^error result.
type CommandError struct {
	Command string
	Message string
	Code    string
}

func (e *CommandError) Error() string {
	return e.Message
}

func (e *CommandError) Is(target error) bool {
	return target == ErrBackend
}

// IsTimeout reports whether err came from a command timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsBackendError reports whether err was reported by gdb itself.
func IsBackendError(err error) bool {
	return errors.Is(err, ErrBackend)
}
