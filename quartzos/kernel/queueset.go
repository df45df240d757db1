package kernel

import (
	"sync"
	"time"
)

// QueueSet multiplexes several member queues for one consumer: Wait blocks
// until any member has an element, then services members in the order they
// were added. The first member added is therefore the highest-priority
// source; order across distinct members is priority order, not arrival
// order.
//
// Membership may change while the consumer is waiting. A removed member's
// pending notification costs at most one empty rescan; it can never wedge
// the consumer or deliver from a removed queue.
type QueueSet[T any] struct {
	mu      sync.Mutex
	members []*Queue[T]
	ch      chan struct{}
}

func NewQueueSet[T any]() *QueueSet[T] {
	return &QueueSet[T]{ch: make(chan struct{}, 1)}
}

// Add appends q to the scan order. A queue belongs to at most one set.
func (s *QueueSet[T]) Add(q *Queue[T]) {
	s.mu.Lock()
	s.members = append(s.members, q)
	s.mu.Unlock()
	q.set.Store(s)
	if q.Len() > 0 {
		s.note()
	}
}

// Remove detaches q from the set. Elements still queued in q stay there; they
// are the caller's to drain.
func (s *QueueSet[T]) Remove(q *Queue[T]) {
	q.set.Store(nil)
	s.mu.Lock()
	// Copy on write: scan snapshots must stay intact.
	next := make([]*Queue[T], 0, len(s.members))
	for _, m := range s.members {
		if m != q {
			next = append(next, m)
		}
	}
	s.members = next
	s.mu.Unlock()
}

// Wait returns the next element from the highest-priority non-empty member,
// blocking up to timeout for one to appear. A negative timeout waits
// forever, zero performs a single scan.
func (s *QueueSet[T]) Wait(timeout time.Duration) (T, bool) {
	var zero T
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		if v, ok := s.scan(); ok {
			return v, true
		}
		if timeout == 0 {
			return zero, false
		}
		if timeout < 0 {
			<-s.ch
			continue
		}
		remain := time.Until(deadline)
		if remain <= 0 {
			return zero, false
		}
		t := time.NewTimer(remain)
		select {
		case <-s.ch:
			t.Stop()
		case <-t.C:
			return zero, false
		}
	}
}

// scan polls each member once, in priority order.
func (s *QueueSet[T]) scan() (T, bool) {
	s.mu.Lock()
	members := s.members
	s.mu.Unlock()
	for _, q := range members {
		if v, ok := q.TryReceive(); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

// note is the edge-triggered wakeup: senders call it after enqueueing. The
// channel holds one pending token, so concurrent senders collapse into a
// single wake and the consumer rescans every member on each wake.
func (s *QueueSet[T]) note() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}
