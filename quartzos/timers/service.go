// Package timers provides the deadline side of the OS core: a single
// dedicated service context that owns every armed timer, and the evented
// layer that lets other contexts receive timer callbacks on themselves.
package timers

import (
	"sync"
	"time"

	"github.com/emirpasic/gods/trees/redblacktree"
	"github.com/joeycumines/logiface"

	"quartz/quartzos/kernel"
)

// TimerID is a stable handle for an armed timer, valid from Create until
// Delete. Zero is never a valid id.
type TimerID uint32

// InvalidTimer is the zero handle.
const InvalidTimer TimerID = 0

// Callback runs when a timer fires or a work item executes.
type Callback func(data any)

// ServiceConfig sizes the timer service at construction.
type ServiceConfig struct {
	// WorkCapacity bounds the high-priority work-item queue. Zero means the
	// built-in default.
	WorkCapacity int
	// PutTimeout bounds AddWork before it escalates. Zero means
	// kernel.DefaultPutTimeout.
	PutTimeout time.Duration
}

// Service owns the ordered set of armed timers and fires them, plus queued
// work items, on its own goroutine. That goroutine is the system's notional
// highest-priority context: callbacks run there must stay short.
//
// All methods are safe from any context; AddWorkFromISR is additionally
// interrupt-safe.
type Service struct {
	mu        sync.Mutex
	byID      map[TimerID]*timer
	tree      *redblacktree.Tree
	nextID    TimerID
	executing TimerID

	work chan workItem
	wake chan struct{}
	quit chan struct{}
	once sync.Once

	putTimeout time.Duration
	reporter   kernel.FatalReporter
	log        *logiface.Logger[logiface.Event]
}

type timer struct {
	id        TimerID
	expiry    time.Time
	period    time.Duration
	repeating bool
	cb        Callback
	data      any
	armed     bool
	deleted   bool
}

type workItem struct {
	cb   Callback
	data any
}

// timerKey orders the tree by expiry, ties broken by id so keys are unique.
type timerKey struct {
	expiry time.Time
	id     TimerID
}

func compareTimerKeys(a, b any) int {
	ka, kb := a.(timerKey), b.(timerKey)
	switch {
	case ka.expiry.Before(kb.expiry):
		return -1
	case ka.expiry.After(kb.expiry):
		return 1
	case ka.id < kb.id:
		return -1
	case ka.id > kb.id:
		return 1
	default:
		return 0
	}
}

// NewService builds a stopped service; call Run on a dedicated goroutine.
// The reporter must be non-nil.
func NewService(cfg ServiceConfig, reporter kernel.FatalReporter, log *logiface.Logger[logiface.Event]) *Service {
	if reporter == nil {
		panic("timers: service requires a fatal reporter")
	}
	if cfg.WorkCapacity <= 0 {
		cfg.WorkCapacity = 32
	}
	if cfg.PutTimeout <= 0 {
		cfg.PutTimeout = kernel.DefaultPutTimeout
	}
	return &Service{
		byID:       make(map[TimerID]*timer),
		tree:       redblacktree.NewWith(compareTimerKeys),
		work:       make(chan workItem, cfg.WorkCapacity),
		wake:       make(chan struct{}, 1),
		quit:       make(chan struct{}),
		putTimeout: cfg.PutTimeout,
		reporter:   reporter,
		log:        log,
	}
}

// Create allocates a timer identity. The timer is not armed until Start.
func (s *Service) Create() TimerID {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		s.nextID++
		if s.nextID == InvalidTimer {
			continue
		}
		if _, exists := s.byID[s.nextID]; exists {
			continue
		}
		break
	}
	id := s.nextID
	s.byID[id] = &timer{id: id}
	return id
}

// Start (re)arms id to fire after timeout. For a repeating timer the timeout
// is also the period. It reports false for an unknown or deleted handle.
func (s *Service) Start(id TimerID, timeout time.Duration, cb Callback, data any, repeating bool) bool {
	s.mu.Lock()
	tm := s.byID[id]
	if tm == nil || tm.deleted {
		s.mu.Unlock()
		s.log.Warning().Uint64("timer", uint64(id)).Log("start on unknown timer")
		return false
	}
	if tm.armed {
		s.tree.Remove(timerKey{tm.expiry, tm.id})
	}
	tm.expiry = time.Now().Add(timeout)
	tm.period = timeout
	tm.repeating = repeating
	tm.cb = cb
	tm.data = data
	tm.armed = true
	s.tree.Put(timerKey{tm.expiry, tm.id}, tm)
	s.mu.Unlock()
	s.note()
	return true
}

// Stop cancels a pending fire. It reports false when the callback is
// currently executing: that invocation cannot be recalled and may complete
// after Stop returns. Future occurrences of a repeating timer are always
// cancelled.
func (s *Service) Stop(id TimerID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	tm := s.byID[id]
	if tm == nil {
		return true
	}
	if tm.armed {
		s.tree.Remove(timerKey{tm.expiry, tm.id})
		tm.armed = false
	}
	return s.executing != id
}

// Delete stops the timer and releases its identity. If its callback is
// executing the release is deferred until the callback returns.
func (s *Service) Delete(id TimerID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tm := s.byID[id]
	if tm == nil {
		return
	}
	if tm.armed {
		s.tree.Remove(timerKey{tm.expiry, tm.id})
		tm.armed = false
	}
	if s.executing == id {
		tm.deleted = true
		return
	}
	delete(s.byID, id)
}

// Scheduled reports the time remaining until id fires, and whether it is
// armed at all.
func (s *Service) Scheduled(id TimerID) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tm := s.byID[id]
	if tm == nil || !tm.armed {
		return 0, false
	}
	d := time.Until(tm.expiry)
	if d < 0 {
		d = 0
	}
	return d, true
}

// Count reports live timer identities; diagnostics only.
func (s *Service) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

// AddWork queues a work item to run on the service context ahead of timer
// waits. It blocks up to the configured timeout; persistent overflow is
// resource exhaustion and escalates.
func (s *Service) AddWork(cb Callback, data any) {
	select {
	case s.work <- workItem{cb: cb, data: data}:
		return
	default:
	}
	t := time.NewTimer(s.putTimeout)
	defer t.Stop()
	select {
	case s.work <- workItem{cb: cb, data: data}:
	case <-t.C:
		pc, fn := kernel.CallerPC(1)
		s.log.Crit().Str("func", fn).Log("timer work queue full")
		s.reporter.Fatal(kernel.Report{
			Kind:   kernel.FatalQueueFull,
			Dest:   kernel.ContextTimer,
			PC:     pc,
			Func:   fn,
			Reason: "timer work queue full",
		})
	}
}

// AddWorkFromISR queues a work item without ever blocking.
func (s *Service) AddWorkFromISR(cb Callback, data any) bool {
	select {
	case s.work <- workItem{cb: cb, data: data}:
		return true
	default:
		return false
	}
}

// Run services timers and work items until Shutdown. It must have a
// goroutine to itself.
func (s *Service) Run() {
	s.log.Debug().Log("timer service running")
	t := time.NewTimer(time.Hour)
	defer t.Stop()
	for {
		if !t.Stop() {
			select {
			case <-t.C:
			default:
			}
		}
		t.Reset(s.nextWait())

		select {
		case <-s.quit:
			s.log.Debug().Log("timer service stopped")
			return
		case w := <-s.work:
			w.cb(w.data)
		case <-s.wake:
		case <-t.C:
		}

		s.fireDue()
		s.drainWork()
	}
}

// Shutdown stops Run. Armed timers stay in the set but no longer fire.
func (s *Service) Shutdown() {
	s.once.Do(func() { close(s.quit) })
}

// nextWait is the bounded sleep until the nearest expiry.
func (s *Service) nextWait() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	node := s.tree.Left()
	if node == nil {
		return time.Hour
	}
	d := time.Until(node.Key.(timerKey).expiry)
	if d < 0 {
		return 0
	}
	return d
}

// fireDue pops and fires every timer whose expiry has passed. A repeating
// timer is rearmed for expiry+period before its callback runs, so a slow
// callback cannot starve the next occurrence.
func (s *Service) fireDue() {
	for {
		s.mu.Lock()
		node := s.tree.Left()
		if node == nil {
			s.mu.Unlock()
			return
		}
		key := node.Key.(timerKey)
		if key.expiry.After(time.Now()) {
			s.mu.Unlock()
			return
		}
		tm := node.Value.(*timer)
		s.tree.Remove(key)
		if tm.repeating {
			tm.expiry = tm.expiry.Add(tm.period)
			s.tree.Put(timerKey{tm.expiry, tm.id}, tm)
		} else {
			tm.armed = false
		}
		s.executing = tm.id
		cb, data := tm.cb, tm.data
		s.mu.Unlock()

		cb(data)

		s.mu.Lock()
		s.executing = 0
		if tm.deleted {
			if tm.armed {
				s.tree.Remove(timerKey{tm.expiry, tm.id})
				tm.armed = false
			}
			delete(s.byID, tm.id)
		}
		s.mu.Unlock()
	}
}

func (s *Service) drainWork() {
	for {
		select {
		case w := <-s.work:
			w.cb(w.data)
		default:
			return
		}
	}
}

func (s *Service) note() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
