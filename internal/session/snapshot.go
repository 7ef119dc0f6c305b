package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrNoSnapshot is returned by Load when no monitor has written a snapshot.
var ErrNoSnapshot = errors.New("no running monitor")

// Snapshot is the status a running monitor process publishes for the
// status, stop and view commands.
type Snapshot struct {
	PID       int               `json:"pid"`
	UpdatedAt time.Time         `json:"updated_at"`
	Monitors  []MonitorSnapshot `json:"monitors"`
}

// MonitorSnapshot is one monitor instance's status at UpdatedAt.
type MonitorSnapshot struct {
	ID                  string             `json:"id"`
	Status              string             `json:"status"`
	StartTime           time.Time          `json:"start_time"`
	Uptime              time.Duration      `json:"uptime"`
	ActiveSessions      int                `json:"active_sessions"`
	SessionsSeen        int64              `json:"sessions_seen"`
	ConversationsStored int64              `json:"conversations_stored"`
	ErrorCount          int64              `json:"error_count"`
	Error               string             `json:"error,omitempty"`
	Sessions            []*TerminalSession `json:"sessions"`
	Closed              []*TerminalSession `json:"closed,omitempty"`
}

// SnapshotStore persists a Snapshot to disk.
type SnapshotStore interface {
	Save(s *Snapshot) error
	Load() (*Snapshot, error) // returns ErrNoSnapshot if none exists
	Delete() error
}

// diskStore is the concrete SnapshotStore that writes to the XDG data directory.
type diskStore struct {
	path string // full path to status.json
}

// NewSnapshotStore returns a SnapshotStore backed by the XDG data directory.
// Path: $XDG_DATA_HOME/promptwatch/status.json or ~/.local/share/promptwatch/status.json
func NewSnapshotStore() (SnapshotStore, error) {
	dir, err := DataDir()
	if err != nil {
		return nil, fmt.Errorf("resolving data directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return &diskStore{path: filepath.Join(dir, "status.json")}, nil
}

// DataDir returns the promptwatch-specific XDG data directory.
func DataDir() (string, error) {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "promptwatch"), nil
}

// Save marshals s to JSON and writes it atomically via a temp file + os.Rename.
func (d *diskStore) Save(s *Snapshot) (err error) {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to persist status snapshot: %w", err)
	}

	// Write to a temp file in the same directory so os.Rename is atomic.
	tmp, err := os.CreateTemp(filepath.Dir(d.path), "status-*.json.tmp")
	if err != nil {
		return fmt.Errorf("failed to persist status snapshot: %w", err)
	}
	tmpName := tmp.Name()

	defer func() {
		if err != nil {
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to persist status snapshot: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to persist status snapshot: %w", err)
	}
	if err = os.Rename(tmpName, d.path); err != nil {
		return fmt.Errorf("failed to persist status snapshot: %w", err)
	}
	return nil
}

// Load reads and unmarshals the snapshot file.
// Returns ErrNoSnapshot if the file does not exist.
func (d *diskStore) Load() (*Snapshot, error) {
	data, err := os.ReadFile(d.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoSnapshot
		}
		return nil, fmt.Errorf("failed to read status snapshot: %w", err)
	}

	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse status snapshot: %w", err)
	}
	return &s, nil
}

// Delete removes the snapshot file. Deleting a missing snapshot is not an error.
func (d *diskStore) Delete() error {
	if err := os.Remove(d.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete status snapshot: %w", err)
	}
	return nil
}
