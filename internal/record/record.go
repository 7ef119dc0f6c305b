// Package record defines the persisted prompt record and the repositories
// that store it.
package record

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Get when no record has the requested id.
var ErrNotFound = errors.New("prompt record not found")

// Metadata keys set on records produced by the terminal monitor.
const (
	MetaSource            = "source"
	MetaTerminalSessionID = "terminal_session_id"
	MetaCaptureTime       = "capture_time"
	MetaFingerprint       = "fingerprint"
	MetaMonitorID         = "monitor_id"
	MetaDevice            = "device"

	SourceTerminalMonitor = "terminal_monitor"
)

// PromptRecord is one captured prompt and its response.
type PromptRecord struct {
	ID           string            `json:"id" bson:"_id"`
	PromptText   string            `json:"prompt_text" bson:"prompt_text"`
	ResponseText string            `json:"response_text" bson:"response_text"`
	ProjectName  string            `json:"project_name,omitempty" bson:"project_name,omitempty"`
	ProjectGoal  string            `json:"project_goal,omitempty" bson:"project_goal,omitempty"`
	Timestamp    time.Time         `json:"timestamp" bson:"timestamp"`
	TerminalType string            `json:"terminal_type,omitempty" bson:"terminal_type,omitempty"`
	SessionID    string            `json:"session_id,omitempty" bson:"session_id,omitempty"`
	Labels       []string          `json:"labels,omitempty" bson:"labels,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty" bson:"metadata,omitempty"`
}

// ListOptions filters and pages List. Zero values mean no filter; a zero
// Limit means no limit.
type ListOptions struct {
	Limit       int
	Offset      int
	ProjectName string
	SessionID   string
}

// Repository stores prompt records.
type Repository interface {
	// Add persists r, assigning an ID and timestamp when they are unset,
	// and returns the stored record.
	Add(ctx context.Context, r *PromptRecord) (*PromptRecord, error)
	Get(ctx context.Context, id string) (*PromptRecord, error)
	// FindBySession returns every record captured from one terminal
	// session, oldest first.
	FindBySession(ctx context.Context, sessionID string) ([]*PromptRecord, error)
	// List returns records newest first.
	List(ctx context.Context, opts ListOptions) ([]*PromptRecord, error)
	Close() error
}

// prepare fills in ID and Timestamp and returns a copy safe to store.
func prepare(r *PromptRecord, now time.Time) *PromptRecord {
	cp := *r
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if cp.Timestamp.IsZero() {
		cp.Timestamp = now
	}
	cp.Timestamp = cp.Timestamp.UTC()
	cp.Labels = append([]string(nil), r.Labels...)
	if r.Metadata != nil {
		cp.Metadata = make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}
