package kernel

import (
	"sync"
	"time"

	"github.com/joeycumines/logiface"
)

// DefaultPutTimeout bounds blocking sends toward the kernel. A producer that
// cannot deliver within this window has hit resource exhaustion, not a
// transient stall.
const DefaultPutTimeout = 3 * time.Second

// RouterConfig fixes the queue topology at construction.
type RouterConfig struct {
	// Clients are the contexts with dedicated outbound and inbox queues.
	Clients []ContextID
	// Capacities, in events. Zero means the built-in default.
	LoopbackCapacity int
	CommonCapacity   int
	ClientCapacity   int
	InboxCapacity    int
	// PutTimeout bounds Put and the fatal escalation. Zero means
	// DefaultPutTimeout.
	PutTimeout time.Duration
}

// Router is the event fabric: per-producer bounded queues merged for the
// kernel consumer, plus the symmetric inbox queues toward client contexts.
//
// Topology, fixed at construction:
//
//	loopback    kernel -> kernel, drained before anything else
//	common      ISRs and untracked producers -> kernel, highest priority
//	            member of the kernel's queue set
//	fromClient  one per client context -> kernel
//	toClient    kernel (or the timer context) -> that client
//
// Failure policy: a full queue past its timeout is resource exhaustion and
// escalates through the FatalReporter. Only the Try* paths and the
// indefinitely blocking PutFromContext are exempt.
type Router struct {
	loopback   *Queue[Event]
	common     *Queue[Event]
	set        *QueueSet[Event]
	putTimeout time.Duration

	mu         sync.Mutex
	fromClient map[ContextID]*Queue[Event]
	toClient   map[ContextID]*Queue[Event]

	curMu   sync.Mutex
	current Event

	cleanup  *CleanupRegistry
	reporter FatalReporter
	log      *logiface.Logger[logiface.Event]
}

// NewRouter builds the fixed queue topology. The reporter must be non-nil;
// cleanup and log may be nil.
func NewRouter(cfg RouterConfig, cleanup *CleanupRegistry, reporter FatalReporter, log *logiface.Logger[logiface.Event]) *Router {
	if reporter == nil {
		panic("kernel: router requires a fatal reporter")
	}
	if cfg.LoopbackCapacity <= 0 {
		cfg.LoopbackCapacity = 32
	}
	if cfg.CommonCapacity <= 0 {
		cfg.CommonCapacity = 64
	}
	if cfg.ClientCapacity <= 0 {
		cfg.ClientCapacity = 32
	}
	if cfg.InboxCapacity <= 0 {
		cfg.InboxCapacity = 32
	}
	if cfg.PutTimeout <= 0 {
		cfg.PutTimeout = DefaultPutTimeout
	}

	r := &Router{
		loopback:   NewQueue[Event](cfg.LoopbackCapacity),
		common:     NewQueue[Event](cfg.CommonCapacity),
		set:        NewQueueSet[Event](),
		putTimeout: cfg.PutTimeout,
		fromClient: make(map[ContextID]*Queue[Event], len(cfg.Clients)),
		toClient:   make(map[ContextID]*Queue[Event], len(cfg.Clients)),
		cleanup:    cleanup,
		reporter:   reporter,
		log:        log,
	}
	r.set.Add(r.common)
	for _, c := range cfg.Clients {
		out := NewQueue[Event](cfg.ClientCapacity)
		r.fromClient[c] = out
		r.set.Add(out)
		r.toClient[c] = NewQueue[Event](cfg.InboxCapacity)
	}
	return r
}

// Put submits an event toward the kernel consumer, blocking up to the
// configured put timeout. From the kernel context itself it never blocks:
// waiting on the consumer's own loopback would deadlock it, so a full
// loopback escalates immediately.
func (r *Router) Put(from ContextID, ev Event) {
	if from == ContextKernelMain {
		if !r.loopback.TrySend(ev) {
			pc, fn := CallerPC(1)
			r.fatal(FatalQueueFull, ContextKernelMain, pc, fn, ev, "loopback queue full")
		}
		return
	}
	if !r.producerQueue(from).Send(ev, r.putTimeout) {
		pc, fn := CallerPC(1)
		r.fatal(FatalQueueFull, ContextKernelMain, pc, fn, ev, "kernel queue full")
	}
}

// PutFromISR submits toward the kernel without ever blocking; interrupt
// context cannot wait. A full queue escalates immediately.
func (r *Router) PutFromISR(ev Event) {
	if !r.common.SendFromISR(ev) {
		pc, fn := CallerPC(1)
		r.fatal(FatalQueueFull, ContextKernelMain, pc, fn, ev, "kernel queue full from isr")
	}
}

// PutFromContext delivers into the calling client's dedicated outbound
// queue, blocking the caller until space frees up. The backpressure is the
// point: only the caller's own progress is at stake, so there is no timeout
// and no fatal escalation.
func (r *Router) PutFromContext(from ContextID, ev Event) {
	q := r.clientOutbound(from)
	if q == nil {
		pc, fn := CallerPC(1)
		r.fatal(FatalMisuse, from, pc, fn, ev, "no outbound queue for context")
		return
	}
	q.Send(ev, WaitForever)
}

// TryPutFromContext is the non-blocking form for callers with a fallback. It
// never escalates on a full queue.
func (r *Router) TryPutFromContext(from ContextID, ev Event) bool {
	q := r.clientOutbound(from)
	if q == nil {
		pc, fn := CallerPC(1)
		r.fatal(FatalMisuse, from, pc, fn, ev, "no outbound queue for context")
		return false
	}
	return q.TrySend(ev)
}

// Take is the kernel's single receive. The loopback is drained first, always,
// so the kernel can message itself regardless of external queue state; only
// then does it wait on the merged external queues, common first.
func (r *Router) Take(timeout time.Duration) (Event, bool) {
	if ev, ok := r.loopback.TryReceive(); ok {
		r.setCurrent(ev)
		return ev, true
	}
	ev, ok := r.set.Wait(timeout)
	if ok {
		r.setCurrent(ev)
	}
	return ev, ok
}

// PostToContext delivers into a target context's inbox: the client inbox for
// client contexts, the common kernel queue for KernelMain. Zero timeout means
// a single attempt. Full past the timeout escalates; a negative timeout
// blocks until delivered and never escalates.
func (r *Router) PostToContext(target ContextID, ev Event, timeout time.Duration) bool {
	var dst *Queue[Event]
	if target == ContextKernelMain {
		dst = r.common
	} else {
		dst = r.clientInbox(target)
	}
	if dst == nil {
		pc, fn := CallerPC(1)
		r.fatal(FatalMisuse, target, pc, fn, ev, "no inbox for context")
		return false
	}
	if !dst.Send(ev, timeout) {
		pc, fn := CallerPC(1)
		r.fatal(FatalQueueFull, target, pc, fn, ev, "context inbox full")
		return false
	}
	return true
}

// ClientInbox returns the receive side for a client context, or nil if the
// context has none.
func (r *Router) ClientInbox(ctx ContextID) *Queue[Event] {
	return r.clientInbox(ctx)
}

// ResetContextQueue tears down a client context's queues: both directions
// are drained with owned payloads released, and the outbound queue leaves
// the kernel's queue set. Call it from the kernel context once the client
// has stopped producing.
func (r *Router) ResetContextQueue(ctx ContextID) {
	r.mu.Lock()
	out := r.fromClient[ctx]
	in := r.toClient[ctx]
	delete(r.fromClient, ctx)
	delete(r.toClient, ctx)
	r.mu.Unlock()

	dropped := 0
	if out != nil {
		r.set.Remove(out)
		dropped += out.Drain(r.release)
	}
	if in != nil {
		dropped += in.Drain(r.release)
	}
	r.log.Debug().
		Stringer("context", ctx).
		Int("dropped", dropped).
		Log("context queues reset")
}

func (r *Router) producerQueue(from ContextID) *Queue[Event] {
	r.mu.Lock()
	q := r.fromClient[from]
	r.mu.Unlock()
	if q != nil {
		return q
	}
	return r.common
}

func (r *Router) clientOutbound(from ContextID) *Queue[Event] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fromClient[from]
}

func (r *Router) clientInbox(ctx ContextID) *Queue[Event] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.toClient[ctx]
}

func (r *Router) setCurrent(ev Event) {
	r.curMu.Lock()
	r.current = ev.stripped()
	r.curMu.Unlock()
}

func (r *Router) currentEvent() Event {
	r.curMu.Lock()
	defer r.curMu.Unlock()
	return r.current
}

func (r *Router) release(ev Event) {
	r.cleanup.Release(&ev)
}

func (r *Router) fatal(kind FatalKind, dest ContextID, pc uintptr, fn string, dropped Event, reason string) {
	rep := Report{
		Kind:    kind,
		Dest:    dest,
		PC:      pc,
		Func:    fn,
		Current: r.currentEvent(),
		Dropped: dropped.stripped(),
		Reason:  reason,
	}
	r.log.Crit().
		Stringer("kind", kind).
		Stringer("dest", dest).
		Str("func", fn).
		Uint64("pc", uint64(pc)).
		Int("droppedKind", int(dropped.Kind)).
		Str("reason", reason).
		Log("unrecoverable event delivery failure")
	r.reporter.Fatal(rep)
	// The reporter returned, so this run continues (test strategy). The
	// event is gone either way; release what it owned.
	r.cleanup.Release(&dropped)
}
