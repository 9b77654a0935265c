// Package cardinality estimates how many distinct series pass through an
// inserter.
package cardinality

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// Tracker records series keys and reports how many distinct keys it has seen.
type Tracker interface {
	// Add records key and reports whether it was new. Probabilistic
	// trackers may answer wrongly.
	Add(key []byte) bool

	// Count returns the number of distinct keys, exact or estimated.
	Count() int64

	// Reset forgets every key.
	Reset()

	// MemoryUsage returns the approximate footprint in bytes.
	MemoryUsage() uint64
}

// BloomTracker counts keys the first time its filter does not contain them.
type BloomTracker struct {
	mu     sync.Mutex
	filter *bloom.BloomFilter
	count  int64
}

// NewBloomTracker sizes the filter from cfg.
func NewBloomTracker(cfg Config) *BloomTracker {
	return &BloomTracker{
		filter: bloom.NewWithEstimates(cfg.ExpectedItems, cfg.FalsePositiveRate),
	}
}

func (t *BloomTracker) Add(key []byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.filter.TestAndAdd(key) {
		return false
	}
	t.count++
	return true
}

func (t *BloomTracker) Count() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

func (t *BloomTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.filter.ClearAll()
	t.count = 0
}

func (t *BloomTracker) MemoryUsage() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return uint64(t.filter.Cap()) / 8
}

// ExactTracker keeps every key in a set.
type ExactTracker struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func NewExactTracker() *ExactTracker {
	return &ExactTracker{keys: make(map[string]struct{})}
}

func (t *ExactTracker) Add(key []byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.keys[string(key)]; ok {
		return false
	}
	t.keys[string(key)] = struct{}{}
	return true
}

func (t *ExactTracker) Count() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return int64(len(t.keys))
}

func (t *ExactTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.keys = make(map[string]struct{})
}

// MemoryUsage assumes 8-byte series keys plus map overhead.
func (t *ExactTracker) MemoryUsage() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return uint64(len(t.keys)) * 48
}
