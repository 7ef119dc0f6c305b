package record

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepository keeps records in process memory.
type MemoryRepository struct {
	mu      sync.RWMutex
	records []*PromptRecord
	byID    map[string]*PromptRecord
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: map[string]*PromptRecord{}}
}

func (m *MemoryRepository) Add(_ context.Context, r *PromptRecord) (*PromptRecord, error) {
	stored := prepare(r, time.Now())
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, stored)
	m.byID[stored.ID] = stored
	return prepare(stored, stored.Timestamp), nil
}

func (m *MemoryRepository) Get(_ context.Context, id string) (*PromptRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return prepare(r, r.Timestamp), nil
}

func (m *MemoryRepository) FindBySession(_ context.Context, sessionID string) ([]*PromptRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*PromptRecord
	for _, r := range m.records {
		if r.SessionID == sessionID {
			out = append(out, prepare(r, r.Timestamp))
		}
	}
	return out, nil
}

func (m *MemoryRepository) List(_ context.Context, opts ListOptions) ([]*PromptRecord, error) {
	m.mu.RLock()
	var matched []*PromptRecord
	for _, r := range m.records {
		if opts.ProjectName != "" && r.ProjectName != opts.ProjectName {
			continue
		}
		if opts.SessionID != "" && r.SessionID != opts.SessionID {
			continue
		}
		matched = append(matched, prepare(r, r.Timestamp))
	}
	m.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})
	if opts.Offset >= len(matched) {
		return nil, nil
	}
	matched = matched[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(matched) {
		matched = matched[:opts.Limit]
	}
	return matched, nil
}

// Len returns the number of stored records.
func (m *MemoryRepository) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func (m *MemoryRepository) Close() error { return nil }
