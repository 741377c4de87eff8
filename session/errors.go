package session

import (
	"errors"

	gwerrors "github.com/agrisense/geogateway/internal/errors"
)

// TerminalError is an unrecoverable session failure. The UI layer reacts to
// it by forcing a re-login; nothing in the gateway retries past it.
type TerminalError struct {
	Cause error
}

func (e *TerminalError) Error() string {
	return "terminal session error: " + e.Cause.Error()
}

func (e *TerminalError) Unwrap() error {
	return e.Cause
}

// Is lets errors.Is match both the terminal sentinel and the concrete cause.
func (e *TerminalError) Is(target error) bool {
	return target == gwerrors.ErrTerminalSession
}

func terminal(cause error) error {
	return &TerminalError{Cause: cause}
}

// IsTerminal reports whether err represents an unrecoverable session error.
func IsTerminal(err error) bool {
	return errors.Is(err, gwerrors.ErrTerminalSession)
}
