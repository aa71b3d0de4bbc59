// Package workqueue provides a blocking, multi-producer multi-consumer
// priority queue. The build and push pools both pull from one.
package workqueue

import (
	"container/heap"
	"context"
	"sync"
)

// Queue is an unbounded priority queue. Items are popped in `less` order;
// Pop blocks until an item is available, the queue is closed, or the
// context is done.
type Queue[T any] struct {
	mu     sync.Mutex
	items  *itemHeap[T]
	wake   chan struct{}
	closed bool
}

// New creates a queue ordered by less.
func New[T any](less func(a, b T) bool) *Queue[T] {
	return &Queue[T]{
		items: &itemHeap[T]{less: less},
		wake:  make(chan struct{}),
	}
}

// Push adds an item. Pushing to a closed queue panics.
func (q *Queue[T]) Push(item T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		panic("workqueue: push on closed queue")
	}
	heap.Push(q.items, item)
	close(q.wake)
	q.wake = make(chan struct{})
}

// Pop removes the smallest item. ok is false once the queue is closed and
// drained, or when ctx is done.
func (q *Queue[T]) Pop(ctx context.Context) (item T, ok bool) {
	for {
		q.mu.Lock()
		if q.items.Len() > 0 {
			item = heap.Pop(q.items).(T)
			q.mu.Unlock()
			return item, true
		}
		if q.closed {
			q.mu.Unlock()
			return item, false
		}
		wake := q.wake
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return item, false
		case <-wake:
		}
	}
}

// Close stops the queue. Remaining items can still be popped.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.wake)
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

type itemHeap[T any] struct {
	data []T
	less func(a, b T) bool
}

func (h *itemHeap[T]) Len() int           { return len(h.data) }
func (h *itemHeap[T]) Less(i, j int) bool { return h.less(h.data[i], h.data[j]) }
func (h *itemHeap[T]) Swap(i, j int)      { h.data[i], h.data[j] = h.data[j], h.data[i] }
func (h *itemHeap[T]) Push(x any)         { h.data = append(h.data, x.(T)) }

func (h *itemHeap[T]) Pop() any {
	n := len(h.data)
	item := h.data[n-1]
	var zero T
	h.data[n-1] = zero
	h.data = h.data[:n-1]
	return item
}
