package util

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// node is a single element of the queue
type node[T any] struct {
	value T
	next  atomic.Pointer[node[T]]
}

// MPSC is an unbounded multi-producer single-consumer queue. Producers append
// to a linked list with atomic operations and never block, a feeder goroutine
// hands the items to the consumer through the Recv channel.
//
// Items of one producer are received in push order. Items of concurrent
// producers are ordered by which Push completes first.
type MPSC[T any] struct {
	head    atomic.Pointer[node[T]] // sentinel, only moved by the feeder
	tail    atomic.Pointer[node[T]]
	out     chan T
	closed  atomic.Bool
	pending atomic.Int64

	// mu and cond park the feeder while the list is empty
	mu   sync.Mutex
	cond *sync.Cond
}

// NewMPSC creates a queue and starts its feeder goroutine. The feeder exits
// after Close once every pushed item was received.
func NewMPSC[T any]() *MPSC[T] {
	sentinel := &node[T]{}

	q := &MPSC[T]{
		out: make(chan T),
	}
	q.cond = sync.NewCond(&q.mu)
	q.head.Store(sentinel)
	q.tail.Store(sentinel)

	go q.feed()
	return q
}

// Push appends value. It returns false if the queue is closed.
func (q *MPSC[T]) Push(value T) bool {
	if q.closed.Load() {
		return false
	}

	n := &node[T]{value: value}
	q.pending.Add(1)
	var backoff uint8

	for {
		tail := q.tail.Load()
		next := tail.next.Load()
		if next == nil {
			if tail.next.CompareAndSwap(nil, n) {
				// another producer may have moved the tail already
				q.tail.CompareAndSwap(tail, n)
				q.wake()
				return true
			}
		} else {
			// help a producer that appended but did not move the tail yet
			q.tail.CompareAndSwap(tail, next)
		}

		// spin while contention is low, then yield
		if backoff < 10 {
			backoff++
			for i := 0; i < 1<<backoff; i++ {
				runtime.Gosched()
			}
		}
		runtime.Gosched()
	}
}

// Recv returns the channel delivering the items. It is closed after Close
// once the queue is drained.
func (q *MPSC[T]) Recv() <-chan T {
	return q.out
}

// Close stops accepting items. Items pushed before are still delivered, an
// item pushed concurrently with Close may be dropped.
func (q *MPSC[T]) Close() {
	q.closed.Store(true)
	q.wake()
}

// IsClosed reports whether Close was called
func (q *MPSC[T]) IsClosed() bool {
	return q.closed.Load()
}

// Len returns the number of items not yet handed to the consumer
func (q *MPSC[T]) Len() int {
	return int(q.pending.Load())
}

// wake signals the feeder. Taking mu orders the signal after the feeder's
// emptiness check, so no wakeup is lost.
func (q *MPSC[T]) wake() {
	q.mu.Lock()
	q.cond.Signal()
	q.mu.Unlock()
}

// feed moves items from the list to the out channel until the queue is closed and empty
func (q *MPSC[T]) feed() {
	defer close(q.out)

	var zero T
	for {
		head := q.head.Load()
		next := head.next.Load()

		if next != nil {
			value := next.value
			q.head.Store(next)
			q.out <- value
			q.pending.Add(-1)
			// the new sentinel must not keep the value alive
			next.value = zero
			continue
		}

		if q.closed.Load() {
			// a Push racing with Close may have appended after the check above
			if head.next.Load() == nil {
				return
			}
			continue
		}

		q.mu.Lock()
		if head.next.Load() == nil && !q.closed.Load() {
			q.cond.Wait()
		}
		q.mu.Unlock()
	}
}
