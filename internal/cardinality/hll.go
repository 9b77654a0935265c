package cardinality

import (
	"sync"

	"github.com/axiomhq/hyperloglog"
)

// HLLTracker estimates distinct keys in fixed memory. It cannot answer
// membership, so Add always reports true.
type HLLTracker struct {
	mu     sync.Mutex
	sketch *hyperloglog.Sketch
}

func NewHLLTracker() *HLLTracker {
	return &HLLTracker{sketch: hyperloglog.New()}
}

func (t *HLLTracker) Add(key []byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sketch.Insert(key)
	return true
}

// Count takes the full lock: Estimate may merge the sparse representation.
func (t *HLLTracker) Count() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return int64(t.sketch.Estimate())
}

func (t *HLLTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sketch = hyperloglog.New()
}

// MemoryUsage reports the dense size at precision 14.
func (t *HLLTracker) MemoryUsage() uint64 {
	return 12288
}
