// Package convstore deduplicates extracted conversations and persists the
// new ones as prompt records.
package convstore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/fakeyudi/promptwatch/internal/record"
)

const (
	// DefaultCacheSize is the number of fingerprints remembered per session.
	DefaultCacheSize = 100
	// DefaultRetention is how long an idle session's fingerprints are kept.
	DefaultRetention = 24 * time.Hour
)

// Conversation is one extracted exchange ready to be stored.
type Conversation struct {
	SessionID    string
	Prompt       string
	Response     string
	TerminalType string
	Timestamp    time.Time
}

// Provenance describes where a conversation was captured.
type Provenance struct {
	MonitorID   string
	Device      string
	ProjectName string
	ProjectGoal string
	Labels      []string
}

// Outcome reports what Store did with a conversation.
type Outcome int

const (
	OutcomeStored Outcome = iota
	OutcomeDuplicate
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeStored:
		return "stored"
	case OutcomeDuplicate:
		return "duplicate"
	default:
		return "failed"
	}
}

// StorageError wraps a repository failure.
type StorageError struct {
	SessionID string
	Err       error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storing conversation for session %s: %v", e.SessionID, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Options configures an Adapter.
type Options struct {
	CacheSize int
	Retention time.Duration
	Logger    *slog.Logger
}

// Adapter stores each distinct conversation of a session once.
// Deduplication is per session: identical text from two sessions is
// stored twice.
type Adapter struct {
	repo record.Repository
	size int
	log  *slog.Logger

	mu     sync.Mutex
	caches *cache.Cache // session id -> *fingerprintSet
}

// NewAdapter returns an Adapter writing to repo.
func NewAdapter(repo record.Repository, opts Options) *Adapter {
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Adapter{
		repo:   repo,
		size:   opts.CacheSize,
		log:    opts.Logger.With("component", "convstore"),
		caches: cache.New(opts.Retention, opts.Retention/2),
	}
}

// setFor returns the fingerprint set of sessionID, extending its retention.
func (a *Adapter) setFor(sessionID string) *fingerprintSet {
	a.mu.Lock()
	defer a.mu.Unlock()
	if v, ok := a.caches.Get(sessionID); ok {
		set := v.(*fingerprintSet)
		a.caches.SetDefault(sessionID, set)
		return set
	}
	set := newFingerprintSet(a.size)
	a.caches.SetDefault(sessionID, set)
	return set
}

// Store persists conv unless the session already has a conversation with
// the same fingerprint. The session's cache is checked first, then the
// records already persisted for the session. Repository failures are
// logged and reported as OutcomeFailed.
func (a *Adapter) Store(ctx context.Context, conv Conversation, prov Provenance) (*record.PromptRecord, Outcome) {
	fp := Fingerprint(conv.Prompt, conv.Response)
	set := a.setFor(conv.SessionID)
	if set.Contains(fp) {
		return nil, OutcomeDuplicate
	}

	existing, err := a.repo.FindBySession(ctx, conv.SessionID)
	if err != nil {
		a.log.Warn("dedup lookup failed, storing without it", "session_id", conv.SessionID, "error", err)
	}
	duplicate := false
	for _, r := range existing {
		efp := Fingerprint(r.PromptText, r.ResponseText)
		if efp == fp {
			duplicate = true
			continue
		}
		set.Add(efp)
	}
	if duplicate {
		set.Add(fp)
		return nil, OutcomeDuplicate
	}

	ts := conv.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	rec := &record.PromptRecord{
		PromptText:   conv.Prompt,
		ResponseText: conv.Response,
		ProjectName:  prov.ProjectName,
		ProjectGoal:  prov.ProjectGoal,
		Timestamp:    ts,
		TerminalType: conv.TerminalType,
		SessionID:    conv.SessionID,
		Labels:       prov.Labels,
		Metadata: map[string]string{
			record.MetaSource:            record.SourceTerminalMonitor,
			record.MetaTerminalSessionID: conv.SessionID,
			record.MetaCaptureTime:       ts.UTC().Format(time.RFC3339),
			record.MetaFingerprint:       fp,
		},
	}
	if prov.MonitorID != "" {
		rec.Metadata[record.MetaMonitorID] = prov.MonitorID
	}
	if prov.Device != "" {
		rec.Metadata[record.MetaDevice] = prov.Device
	}

	stored, err := a.repo.Add(ctx, rec)
	if err != nil {
		serr := &StorageError{SessionID: conv.SessionID, Err: err}
		a.log.Warn("conversation not stored", "error", serr)
		return nil, OutcomeFailed
	}
	set.Add(fp)
	a.log.Debug("conversation stored", "session_id", conv.SessionID, "record_id", stored.ID)
	return stored, OutcomeStored
}

// Forget drops the cached fingerprints of sessionID. Later duplicates are
// still caught by the repository lookup.
func (a *Adapter) Forget(sessionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.caches.Delete(sessionID)
}

// CachedSessions returns how many sessions currently have a fingerprint cache.
func (a *Adapter) CachedSessions() int {
	return a.caches.ItemCount()
}
