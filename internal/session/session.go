// Package session holds the terminal session model shared by the tracker,
// the monitor and the CLI, plus the on-disk status snapshot.
package session

import "time"

// State is a terminal session's position in its lifecycle.
type State string

const (
	StateDiscovered State = "discovered"
	StateActive     State = "active"
	StateClosed     State = "closed"
)

// TerminalSession is one host terminal-attached process being watched.
type TerminalSession struct {
	// ID is derived from PID and primary device, so it is stable for as
	// long as both persist.
	ID           string     `json:"id"`
	PID          int        `json:"pid"`
	User         string     `json:"user"`
	Command      string     `json:"command"`
	TTY          string     `json:"tty"`
	Devices      []string   `json:"devices"`
	TerminalType string     `json:"terminal_type"`
	Readable     bool       `json:"readable"`
	State        State      `json:"state"`
	DiscoveredAt time.Time  `json:"discovered_at"`
	LastSeen     time.Time  `json:"last_seen"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
}

// PrimaryDevice returns the first device path, or "" if there is none.
func (s *TerminalSession) PrimaryDevice() string {
	if len(s.Devices) == 0 {
		return ""
	}
	return s.Devices[0]
}

// Clone returns a deep copy of s.
func (s *TerminalSession) Clone() *TerminalSession {
	cp := *s
	cp.Devices = append([]string(nil), s.Devices...)
	if s.ClosedAt != nil {
		t := *s.ClosedAt
		cp.ClosedAt = &t
	}
	return &cp
}
