package timers

import (
	"sync"
	"time"

	"github.com/joeycumines/logiface"

	"quartz/quartzos/kernel"
)

// EventedConfig wires the evented layer into the event fabric.
type EventedConfig struct {
	// Kind tags the callback events posted to target inboxes.
	Kind kernel.Kind
	// PostTimeout bounds the trampoline's inbox delivery. Zero means
	// kernel.DefaultPutTimeout.
	PostTimeout time.Duration
}

// Evented lets a client context own timers whose callbacks run on that
// context instead of the timer service. The service fires a fixed trampoline
// which posts an id-carrying event to the target's inbox; the target later
// resolves the id back to the callback under the registry lock. Only the id
// ever rides through a queue.
//
// Records live in one registry guarded by one mutex. The lock is never held
// across a user callback, so callbacks may freely re-enter Register, Cancel
// and Reschedule.
type Evented struct {
	mu   sync.Mutex
	recs map[TimerID]*record

	svc         *Service
	router      *kernel.Router
	kind        kernel.Kind
	postTimeout time.Duration
	reporter    kernel.FatalReporter
	log         *logiface.Logger[logiface.Event]
}

type record struct {
	target    kernel.ContextID
	cb        Callback
	data      any
	repeating bool
	expired   bool
}

// NewEvented builds the registry. The reporter must be non-nil.
func NewEvented(svc *Service, router *kernel.Router, cfg EventedConfig, reporter kernel.FatalReporter, log *logiface.Logger[logiface.Event]) *Evented {
	if reporter == nil {
		panic("timers: evented registry requires a fatal reporter")
	}
	if cfg.PostTimeout <= 0 {
		cfg.PostTimeout = kernel.DefaultPutTimeout
	}
	return &Evented{
		recs:        make(map[TimerID]*record),
		svc:         svc,
		router:      router,
		kind:        cfg.Kind,
		postTimeout: cfg.PostTimeout,
		reporter:    reporter,
		log:         log,
	}
}

// Register arms a timer owned by the calling context; when it fires, the
// callback event lands in that context's inbox and Consume runs cb there.
// The returned id is the handle for Cancel and Reschedule.
func (e *Evented) Register(from kernel.ContextID, timeout time.Duration, repeating bool, cb Callback, data any) TimerID {
	if cb == nil || !from.Valid() {
		pc, fn := kernel.CallerPC(1)
		e.reporter.Fatal(kernel.Report{
			Kind:   kernel.FatalMisuse,
			Dest:   from,
			PC:     pc,
			Func:   fn,
			Reason: "evented register with nil callback or invalid context",
		})
		return InvalidTimer
	}
	id := e.svc.Create()
	e.mu.Lock()
	e.recs[id] = &record{target: from, cb: cb, data: data, repeating: repeating}
	e.mu.Unlock()
	e.svc.Start(id, timeout, e.fire, id, repeating)
	return id
}

// fire is the trampoline; it runs on the timer service context. It posts the
// id, never the callback: by the time the target consumes the event the
// record may be gone, and a stale id resolves to a clean no-op where a stale
// pointer would not.
func (e *Evented) fire(data any) {
	id := data.(TimerID)
	e.mu.Lock()
	rec := e.recs[id]
	if rec == nil {
		// Cancelled after the service committed to firing.
		e.mu.Unlock()
		return
	}
	if !rec.repeating {
		rec.expired = true
	}
	target := rec.target
	e.mu.Unlock()

	e.router.PostToContext(target, kernel.Event{
		Kind:   e.kind,
		Source: kernel.ContextTimer,
		A:      uint32(id),
	}, e.postTimeout)
}

// Consume resolves a callback event on the target context and runs the
// callback. It reports false when the record is gone, which means a
// concurrent Cancel won the race; that is a normal no-op.
func (e *Evented) Consume(id TimerID) bool {
	e.mu.Lock()
	rec := e.recs[id]
	if rec == nil {
		e.mu.Unlock()
		return false
	}
	cb, data := rec.cb, rec.data
	if !rec.repeating {
		delete(e.recs, id)
		e.svc.Delete(id)
	}
	e.mu.Unlock()

	cb(data)
	return true
}

// Cancel stops and releases the timer. A missing record means the timer was
// already consumed; that is a no-op and reports false. Only the owning
// context may cancel.
func (e *Evented) Cancel(from kernel.ContextID, id TimerID) bool {
	e.mu.Lock()
	rec := e.recs[id]
	if rec == nil {
		e.mu.Unlock()
		return false
	}
	if rec.target != from {
		e.mu.Unlock()
		e.misuse(from, id, "evented cancel from non-owning context")
		return false
	}
	e.svc.Stop(id)
	e.svc.Delete(id)
	delete(e.recs, id)
	e.mu.Unlock()
	return true
}

// Reschedule rearms the timer with a new timeout. It fails once the firing
// event is in flight (expired) or the record is gone; the caller must
// register a fresh timer instead. Only the owning context may reschedule.
func (e *Evented) Reschedule(from kernel.ContextID, id TimerID, timeout time.Duration) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec := e.recs[id]
	if rec == nil {
		return false
	}
	if rec.target != from {
		e.misuse(from, id, "evented reschedule from non-owning context")
		return false
	}
	if rec.expired {
		return false
	}
	return e.svc.Start(id, timeout, e.fire, id, rec.repeating)
}

// CancelContext releases every record owned by target; context teardown
// calls it before Router.ResetContextQueue so nothing keeps firing into a
// drained inbox. It returns the number of records released.
func (e *Evented) CancelContext(target kernel.ContextID) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for id, rec := range e.recs {
		if rec.target != target {
			continue
		}
		e.svc.Stop(id)
		e.svc.Delete(id)
		delete(e.recs, id)
		n++
	}
	if n > 0 {
		e.log.Debug().Stringer("context", target).Int("cancelled", n).Log("evented timers released")
	}
	return n
}

// Count reports live records; diagnostics only.
func (e *Evented) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.recs)
}

func (e *Evented) misuse(from kernel.ContextID, id TimerID, reason string) {
	pc, fn := kernel.CallerPC(2)
	e.log.Warning().Stringer("context", from).Uint64("timer", uint64(id)).Log(reason)
	e.reporter.Fatal(kernel.Report{
		Kind:   kernel.FatalMisuse,
		Dest:   from,
		PC:     pc,
		Func:   fn,
		Reason: reason,
	})
}
