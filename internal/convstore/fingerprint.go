package convstore

import (
	"container/list"
	"encoding/hex"
	"strings"
	"sync"

	"github.com/zeebo/blake3"
)

// Fingerprint identifies a conversation by its content, ignoring case and
// surrounding whitespace.
func Fingerprint(prompt, response string) string {
	normalized := strings.ToLower(strings.TrimSpace(prompt)) + ":" + strings.ToLower(strings.TrimSpace(response))
	sum := blake3.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// fingerprintSet is a bounded set of fingerprints with least-recently-used
// eviction.
type fingerprintSet struct {
	mu    sync.Mutex
	max   int
	order *list.List // front is most recent
	items map[string]*list.Element
}

func newFingerprintSet(max int) *fingerprintSet {
	return &fingerprintSet{max: max, order: list.New(), items: map[string]*list.Element{}}
}

// Contains reports whether fp is present, marking it recently used.
func (s *fingerprintSet) Contains(fp string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.items[fp]
	if ok {
		s.order.MoveToFront(el)
	}
	return ok
}

// Add inserts fp, evicting the least recently used entry when full.
func (s *fingerprintSet) Add(fp string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.items[fp]; ok {
		s.order.MoveToFront(el)
		return
	}
	s.items[fp] = s.order.PushFront(fp)
	for s.order.Len() > s.max {
		oldest := s.order.Back()
		s.order.Remove(oldest)
		delete(s.items, oldest.Value.(string))
	}
}

func (s *fingerprintSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}
