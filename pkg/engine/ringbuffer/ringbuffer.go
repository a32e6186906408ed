// Package ringbuffer provides a fixed-capacity circular queue safe for use
// by one producer and one consumer without external locking. Push and Pop
// never block; callers get explicit full/empty results instead.
package ringbuffer

import (
	"go.uber.org/atomic"
)

const minCapacity = 2

// RingBuffer is a single-producer single-consumer bounded queue.
// Capacity is always a power of two so that index wrapping is a mask.
type RingBuffer[T any] struct {
	slots []T
	mask  uint64

	head atomic.Uint64 // next slot to pop, advanced only by the consumer
	tail atomic.Uint64 // next slot to push, advanced only by the producer
}

// New returns a ring buffer able to hold at least capacity elements.
// The requested capacity is rounded up to the next power of two.
func New[T any](capacity int) *RingBuffer[T] {
	if capacity < minCapacity {
		capacity = minCapacity
	}

	n := 1
	for n < capacity {
		n <<= 1
	}

	return &RingBuffer[T]{
		slots: make([]T, n),
		mask:  uint64(n - 1),
	}
}

// Push appends v to the queue. It returns false when the queue is full.
func (r *RingBuffer[T]) Push(v T) bool {
	tail := r.tail.Load()
	if tail-r.head.Load() > r.mask {
		return false
	}

	r.slots[tail&r.mask] = v
	r.tail.Store(tail + 1)
	return true
}

// Pop removes and returns the oldest element. It returns false when the
// queue is empty.
func (r *RingBuffer[T]) Pop() (T, bool) {
	var zero T

	head := r.head.Load()
	if head == r.tail.Load() {
		return zero, false
	}

	v := r.slots[head&r.mask]
	r.slots[head&r.mask] = zero
	r.head.Store(head + 1)
	return v, true
}

// Peek returns the oldest element without removing it.
func (r *RingBuffer[T]) Peek() (T, bool) {
	var zero T

	head := r.head.Load()
	if head == r.tail.Load() {
		return zero, false
	}

	return r.slots[head&r.mask], true
}

// Len returns the number of queued elements.
func (r *RingBuffer[T]) Len() int {
	return int(r.tail.Load() - r.head.Load())
}

// Cap returns the fixed capacity.
func (r *RingBuffer[T]) Cap() int {
	return len(r.slots)
}

// Clear discards all queued elements. Only safe when neither producer nor
// consumer is active.
func (r *RingBuffer[T]) Clear() {
	var zero T
	for i := range r.slots {
		r.slots[i] = zero
	}
	r.head.Store(0)
	r.tail.Store(0)
}
