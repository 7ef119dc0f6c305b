// Package tracker keeps the table of live terminal sessions up to date by
// diffing successive process listings.
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fakeyudi/promptwatch/internal/detect"
	"github.com/fakeyudi/promptwatch/internal/device"
	"github.com/fakeyudi/promptwatch/internal/session"
)

// DefaultHistorySize is how many closed sessions are remembered.
const DefaultHistorySize = 50

// Lister reports the host's current terminal sessions.
type Lister interface {
	ListSessions(ctx context.Context, interactiveOnly bool) ([]detect.Process, error)
}

// Resolver fills in device details for a newly seen process.
type Resolver interface {
	DevicesFor(ctx context.Context, pid int) []device.Device
	Readable(ctx context.Context, path string) bool
	TerminalType(ctx context.Context, pid int) string
}

// Options configures a Tracker.
type Options struct {
	HistorySize int
	// OnOpened and OnClosed run synchronously inside Scan, in discovery
	// order. They receive copies and may call back into the Tracker.
	OnOpened func(*session.TerminalSession)
	OnClosed func(*session.TerminalSession)
	Now      func() time.Time
}

// Tracker owns the active-session table.
type Tracker struct {
	lister   Lister
	resolver Resolver
	opts     Options
	log      *slog.Logger

	scanMu sync.Mutex

	mu     sync.RWMutex
	active map[string]*session.TerminalSession
	order  []string
	closed []*session.TerminalSession
}

// New returns a Tracker with an empty table.
func New(lister Lister, resolver Resolver, opts Options, log *slog.Logger) *Tracker {
	if opts.HistorySize <= 0 {
		opts.HistorySize = DefaultHistorySize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if log == nil {
		log = slog.Default()
	}
	return &Tracker{
		lister:   lister,
		resolver: resolver,
		opts:     opts,
		log:      log.With("component", "tracker"),
		active:   map[string]*session.TerminalSession{},
	}
}

// Scan lists the interactive sessions once and reconciles the table with
// it: new sessions are opened, missing ones closed, the rest refreshed.
// When the listing fails the table is left as it was and the error is
// returned.
func (t *Tracker) Scan(ctx context.Context) error {
	t.scanMu.Lock()
	defer t.scanMu.Unlock()

	procs, err := t.lister.ListSessions(ctx, true)
	if err != nil {
		t.log.Warn("session scan failed", "error", err)
		return fmt.Errorf("scanning sessions: %w", err)
	}
	now := t.opts.Now()

	seen := make(map[string]bool, len(procs))
	var opened []*session.TerminalSession
	for _, p := range procs {
		id := SessionID(p.PID, p.DevicePath())
		if seen[id] {
			continue
		}
		seen[id] = true

		t.mu.Lock()
		existing, ok := t.active[id]
		if ok {
			existing.User = p.User
			existing.Command = p.Command
			existing.LastSeen = now
		}
		t.mu.Unlock()
		if ok {
			continue
		}

		s := t.open(ctx, id, p, now)
		t.mu.Lock()
		t.active[id] = s
		t.order = append(t.order, id)
		t.mu.Unlock()
		opened = append(opened, s.Clone())
	}

	var closedNow []*session.TerminalSession
	t.mu.Lock()
	kept := t.order[:0]
	for _, id := range t.order {
		if seen[id] {
			kept = append(kept, id)
			continue
		}
		s := t.active[id]
		delete(t.active, id)
		closedAt := now
		s.State = session.StateClosed
		s.ClosedAt = &closedAt
		t.closed = append(t.closed, s)
		closedNow = append(closedNow, s.Clone())
	}
	t.order = kept
	if over := len(t.closed) - t.opts.HistorySize; over > 0 {
		t.closed = append([]*session.TerminalSession(nil), t.closed[over:]...)
	}
	t.mu.Unlock()

	for _, s := range opened {
		t.log.Info("session opened", "session_id", s.ID, "pid", s.PID, "devices", s.Devices)
		if t.opts.OnOpened != nil {
			t.opts.OnOpened(s)
		}
	}
	for _, s := range closedNow {
		t.log.Info("session closed", "session_id", s.ID, "pid", s.PID)
		if t.opts.OnClosed != nil {
			t.opts.OnClosed(s)
		}
	}
	return nil
}

// open builds the table entry for a newly discovered process.
func (t *Tracker) open(ctx context.Context, id string, p detect.Process, now time.Time) *session.TerminalSession {
	s := &session.TerminalSession{
		ID:           id,
		PID:          p.PID,
		User:         p.User,
		Command:      p.Command,
		TTY:          p.TTY,
		State:        session.StateDiscovered,
		DiscoveredAt: now,
		LastSeen:     now,
	}

	primary := p.DevicePath()
	devices := t.resolver.DevicesFor(ctx, p.PID)
	for _, d := range devices {
		if d.Path == primary {
			s.Devices = append([]string{d.Path}, s.Devices...)
		} else {
			s.Devices = append(s.Devices, d.Path)
		}
		s.Readable = s.Readable || d.Readable
	}
	if len(devices) == 0 && primary != "" {
		s.Devices = []string{primary}
		s.Readable = t.resolver.Readable(ctx, primary)
	}

	s.TerminalType = t.resolver.TerminalType(ctx, p.PID)
	s.State = session.StateActive
	return s
}

// Sessions returns copies of the active sessions in discovery order.
func (t *Tracker) Sessions() []*session.TerminalSession {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*session.TerminalSession, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.active[id].Clone())
	}
	return out
}

// Session returns a copy of the active session with id.
func (t *Tracker) Session(id string) (*session.TerminalSession, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.active[id]
	if !ok {
		return nil, false
	}
	return s.Clone(), true
}

// Closed returns copies of the remembered closed sessions, oldest first.
func (t *Tracker) Closed() []*session.TerminalSession {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*session.TerminalSession, len(t.closed))
	for i, s := range t.closed {
		out[i] = s.Clone()
	}
	return out
}

// Len returns the number of active sessions.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.active)
}

// Reset closes every active session without firing callbacks. It is used
// when the owning monitor stops.
func (t *Tracker) Reset() {
	t.scanMu.Lock()
	defer t.scanMu.Unlock()
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.opts.Now()
	for _, id := range t.order {
		s := t.active[id]
		s.State = session.StateClosed
		closedAt := now
		s.ClosedAt = &closedAt
		t.closed = append(t.closed, s)
	}
	if over := len(t.closed) - t.opts.HistorySize; over > 0 {
		t.closed = append([]*session.TerminalSession(nil), t.closed[over:]...)
	}
	t.active = map[string]*session.TerminalSession{}
	t.order = nil
}
