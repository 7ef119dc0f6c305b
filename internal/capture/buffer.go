package capture

import (
	"strings"
	"sync"
)

// DefaultBufferSize is the per-session byte budget.
const DefaultBufferSize = 256 * 1024

// Buffer is a fixed-capacity ring of captured terminal bytes. Once full,
// each write evicts the oldest bytes. Buffer is safe for concurrent use.
type Buffer struct {
	mu       sync.Mutex
	data     []byte
	capacity int
	// writePos is the next position to write within data.
	writePos int
	// total is the number of bytes ever written. The retained bytes span
	// offsets [total-stored, total) where stored = min(total, capacity).
	total uint64

	lines      []string
	linesValid bool
}

// NewBuffer returns a Buffer holding at most capacity bytes. A
// non-positive capacity means DefaultBufferSize.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultBufferSize
	}
	return &Buffer{data: make([]byte, capacity), capacity: capacity}
}

// Write appends p, dropping the oldest retained bytes if p does not fit.
// It never fails.
func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	src := p
	if len(src) > b.capacity {
		// Only the tail can survive; skip straight to it.
		skipped := len(src) - b.capacity
		b.writePos = (b.writePos + skipped) % b.capacity
		b.total += uint64(skipped)
		src = src[skipped:]
	}
	for off := 0; off < len(src); {
		n := copy(b.data[b.writePos:], src[off:])
		b.writePos = (b.writePos + n) % b.capacity
		off += n
	}
	b.total += uint64(len(src))
	b.linesValid = false
	return len(p), nil
}

// WriteString appends s.
func (b *Buffer) WriteString(s string) (int, error) {
	return b.Write([]byte(s))
}

func (b *Buffer) stored() int {
	if b.total < uint64(b.capacity) {
		return int(b.total)
	}
	return b.capacity
}

// bytesLocked returns the retained bytes, oldest first.
func (b *Buffer) bytesLocked() []byte {
	n := b.stored()
	out := make([]byte, n)
	start := (b.writePos - n + b.capacity) % b.capacity
	first := copy(out, b.data[start:min(start+n, b.capacity)])
	copy(out[first:], b.data[:n-first])
	return out
}

// Bytes returns a copy of the retained bytes, oldest first.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bytesLocked()
}

// String returns the retained bytes as a string.
func (b *Buffer) String() string {
	return string(b.Bytes())
}

// Lines returns the retained content split into lines. A partial first
// line left behind by eviction is kept as is.
func (b *Buffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.linesValid {
		b.lines = splitLines(string(b.bytesLocked()))
		b.linesValid = true
	}
	return append([]string(nil), b.lines...)
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.Split(strings.TrimSuffix(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// Len returns the number of retained bytes.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stored()
}

// Cap returns the byte budget.
func (b *Buffer) Cap() int {
	return b.capacity
}

// Offset returns the total number of bytes ever written.
func (b *Buffer) Offset() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}
