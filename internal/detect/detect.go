// Package detect lists host processes and picks out interactive terminal
// sessions.
package detect

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fakeyudi/promptwatch/internal/hostexec"
)

// ListCommand is the process listing sent to the host.
const ListCommand = "ps auxww"

// DefaultTimeout bounds a single process listing.
const DefaultTimeout = 10 * time.Second

// Process is one row of the host process table.
type Process struct {
	PID     int
	User    string
	TTY     string // terminal label as printed by ps, e.g. "pts/3"
	Command string
	// TTYGuessed is set when ps printed no terminal column and TTY is a
	// best guess.
	TTYGuessed bool
}

// DevicePath returns the /dev path of the process's terminal, or "" when
// it has none.
func (p Process) DevicePath() string {
	if !hasTerminal(p.TTY) {
		return ""
	}
	if strings.HasPrefix(p.TTY, "/dev/") {
		return p.TTY
	}
	return "/dev/" + p.TTY
}

// Detector lists processes through the host bridge.
type Detector struct {
	exec    hostexec.Executor
	timeout time.Duration
	log     *slog.Logger
}

// New returns a Detector that runs its listing through exec.
func New(exec hostexec.Executor, log *slog.Logger) *Detector {
	if log == nil {
		log = slog.Default()
	}
	return &Detector{exec: exec, timeout: DefaultTimeout, log: log.With("component", "detect")}
}

// ListSessions returns the host's processes, restricted to interactive
// terminal sessions when interactiveOnly is set. Unparseable lines are
// skipped. A bridge failure is returned so callers can tell an empty host
// from a failed listing.
func (d *Detector) ListSessions(ctx context.Context, interactiveOnly bool) ([]Process, error) {
	out, err := d.exec.Execute(ctx, ListCommand, d.timeout)
	if err != nil {
		return nil, fmt.Errorf("listing processes: %w", err)
	}

	procs, skipped := ParseProcessList(strings.NewReader(out))
	for _, pe := range skipped {
		d.log.Debug("skipping process line", "line", pe.Line, "reason", pe.Reason)
	}
	if !interactiveOnly {
		return procs, nil
	}

	var sessions []Process
	for _, p := range procs {
		if IsInteractive(p) {
			sessions = append(sessions, p)
		}
	}
	return sessions, nil
}
