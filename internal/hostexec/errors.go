package hostexec

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTimeout is returned when a command does not finish within its budget.
	ErrTimeout = errors.New("host command timed out")

	// ErrUnreachable is returned when the privileged execution channel cannot be used.
	ErrUnreachable = errors.New("host bridge unreachable")
)

// ValidationError is returned when a command is rejected by the allow-list.
// No execution is attempted for a rejected command.
type ValidationError struct {
	Command string
	Reason  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("command %q not allowed: %s", e.Command, e.Reason)
}

// ExitError reports a command that ran but exited with a non-zero status.
type ExitError struct {
	Command string
	Code    int
	Stderr  string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("command %q exited with status %d", e.Command, e.Code)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}
