// Package buffer holds work units between producers and the single sender.
package buffer

import (
	"errors"
	"fmt"
	"sync"
)

// DefaultCapacity is the element capacity used when none is configured.
const DefaultCapacity = 1_000_000

// ErrClosed is returned when a unit is offered after Close.
var ErrClosed = errors.New("buffer closed")

// Sized is anything with a serialized byte size.
type Sized interface {
	Size() int
}

// Pending is a bounded FIFO of work units with many producers and one
// consumer. Push blocks while the buffer is full; PopBatch blocks while it is
// empty and not closed.
type Pending[T Sized] struct {
	mu       sync.Mutex
	notFull  *sync.Cond
	notEmpty *sync.Cond

	items    []T
	head     int
	capacity int
	closed   bool
}

// New creates a buffer holding at most capacity units.
func New[T Sized](capacity int) *Pending[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	p := &Pending[T]{capacity: capacity}
	p.notFull = sync.NewCond(&p.mu)
	p.notEmpty = sync.NewCond(&p.mu)
	pendingCapacity.Set(float64(capacity))
	return p
}

// length must be called with p.mu held.
func (p *Pending[T]) length() int {
	return len(p.items) - p.head
}

// Push appends one unit, blocking while the buffer is full. It returns
// ErrClosed if the buffer is closed before the unit is admitted.
func (p *Pending[T]) Push(unit T) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pushLocked(unit)
}

func (p *Pending[T]) pushLocked(unit T) error {
	if !p.closed && p.length() >= p.capacity {
		pendingBlockedTotal.Inc()
		for !p.closed && p.length() >= p.capacity {
			p.notFull.Wait()
		}
	}
	if p.closed {
		return ErrClosed
	}
	p.items = append(p.items, unit)
	pendingAdmittedTotal.Inc()
	pendingLength.Set(float64(p.length()))
	p.notEmpty.Signal()
	return nil
}

// PushAll appends units as one contiguous group when they all fit. A group
// that does not fit is admitted unit by unit, so other producers may
// interleave with it and it never needs more than one free slot at a time.
func (p *Pending[T]) PushAll(units []T) error {
	if len(units) == 0 {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	if p.length()+len(units) <= p.capacity {
		p.items = append(p.items, units...)
		pendingAdmittedTotal.Add(float64(len(units)))
		pendingLength.Set(float64(p.length()))
		p.notEmpty.Signal()
		return nil
	}

	pendingSplitGroupsTotal.Inc()
	for i, unit := range units {
		if err := p.pushLocked(unit); err != nil {
			return fmt.Errorf("%w after admitting %d of %d units", err, i, len(units))
		}
	}
	return nil
}

// PopBatch removes units from the front while their summed size stays within
// ceiling. At least one unit is returned whenever the buffer is non-empty,
// even if that unit alone exceeds ceiling. It blocks while the buffer is
// empty and open, and returns ok=false once it is closed and drained.
//
// Size is called on each candidate unit with the lock held, so producers
// wait while a large unit is measured. Sizes are not cached because a unit's
// encoding may change until it is dequeued.
func (p *Pending[T]) PopBatch(ceiling int) (batch []T, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for p.length() == 0 && !p.closed {
		p.notEmpty.Wait()
	}
	if p.length() == 0 {
		return nil, false
	}

	total := 0
	for p.length() > 0 {
		size := p.items[p.head].Size()
		if len(batch) > 0 && total+size > ceiling {
			break
		}
		batch = append(batch, p.items[p.head])
		var zero T
		p.items[p.head] = zero
		p.head++
		total += size
	}
	p.compact()

	pendingLength.Set(float64(p.length()))
	p.notFull.Broadcast()
	return batch, true
}

// compact reclaims the consumed prefix. Must be called with p.mu held.
func (p *Pending[T]) compact() {
	if p.head == len(p.items) {
		p.items = p.items[:0]
		p.head = 0
		return
	}
	if p.head > 64 && p.head > len(p.items)/2 {
		n := copy(p.items, p.items[p.head:])
		var zero T
		for i := n; i < len(p.items); i++ {
			p.items[i] = zero
		}
		p.items = p.items[:n]
		p.head = 0
	}
}

// Close marks the buffer closed. The consumer drains what remains; producers
// still waiting for space return ErrClosed. Close is idempotent.
func (p *Pending[T]) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.notEmpty.Broadcast()
	p.notFull.Broadcast()
}

// Closed reports whether Close has been called.
func (p *Pending[T]) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Len returns the number of buffered units.
func (p *Pending[T]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.length()
}

// Cap returns the configured capacity.
func (p *Pending[T]) Cap() int {
	return p.capacity
}
