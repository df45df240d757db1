package kernel

import (
	"sync/atomic"
	"time"
)

// WaitForever makes a blocking queue operation wait without bound.
const WaitForever time.Duration = -1

// Queue is a bounded FIFO channel between one producer side and exactly one
// consumer context. Capacity is fixed at construction; an element accepted by
// Send is delivered at most once and in order.
//
// All methods are safe for concurrent use. The *FromISR variant never blocks
// and is the only send allowed from interrupt-style callers.
type Queue[T any] struct {
	ch  chan T
	set atomic.Pointer[QueueSet[T]]
}

// NewQueue returns a queue holding at most capacity elements. Capacity must
// be at least one.
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue[T]{ch: make(chan T, capacity)}
}

// Send enqueues v, waiting up to timeout for space. A negative timeout waits
// forever, zero does not wait. It reports whether v was enqueued.
func (q *Queue[T]) Send(v T, timeout time.Duration) bool {
	select {
	case q.ch <- v:
		q.notify()
		return true
	default:
	}
	if timeout == 0 {
		return false
	}
	if timeout < 0 {
		q.ch <- v
		q.notify()
		return true
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case q.ch <- v:
		q.notify()
		return true
	case <-t.C:
		return false
	}
}

// TrySend enqueues v only if space is immediately available.
func (q *Queue[T]) TrySend(v T) bool {
	return q.Send(v, 0)
}

// SendFromISR is the interrupt-safe send: it never blocks. Kept distinct
// from TrySend so interrupt call sites are auditable.
func (q *Queue[T]) SendFromISR(v T) bool {
	return q.Send(v, 0)
}

// Receive dequeues the oldest element, waiting up to timeout for one to
// arrive. A negative timeout waits forever, zero does not wait.
func (q *Queue[T]) Receive(timeout time.Duration) (T, bool) {
	var zero T
	select {
	case v := <-q.ch:
		return v, true
	default:
	}
	if timeout == 0 {
		return zero, false
	}
	if timeout < 0 {
		return <-q.ch, true
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case v := <-q.ch:
		return v, true
	case <-t.C:
		return zero, false
	}
}

// TryReceive dequeues the oldest element only if one is immediately
// available.
func (q *Queue[T]) TryReceive() (T, bool) {
	return q.Receive(0)
}

// Drain removes every queued element, calling fn (if non-nil) on each so
// owned payloads can be released. It returns the number drained.
func (q *Queue[T]) Drain(fn func(T)) int {
	n := 0
	for {
		v, ok := q.TryReceive()
		if !ok {
			return n
		}
		if fn != nil {
			fn(v)
		}
		n++
	}
}

func (q *Queue[T]) Len() int { return len(q.ch) }
func (q *Queue[T]) Cap() int { return cap(q.ch) }

func (q *Queue[T]) notify() {
	if s := q.set.Load(); s != nil {
		s.note()
	}
}
