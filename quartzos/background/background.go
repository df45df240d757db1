// Package background runs the lower-priority deferred-work context.
//
// Work arrives on two queues joined by a queue set: an internal queue for
// trusted producers and a second queue fed by the app context. The internal
// queue registers first, so its items win whenever both hold work. The loop
// feeds the context watchdog after every completed item, and a repeating
// timer keeps the feed alive while the queues sit idle.
package background

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/logiface"

	"quartz/quartzos/kernel"
	"quartz/quartzos/timers"
)

// Task is one unit of deferred work.
type Task func(data any)

type item struct {
	fn   Task
	data any
}

// Watchdog receives a liveness signal after every completed work item.
type Watchdog interface {
	Feed()
}

type Config struct {
	// InternalCapacity and AppCapacity size the two work queues.
	InternalCapacity int
	AppCapacity      int
	// PutTimeout bounds Enqueue before it is treated as fatal exhaustion.
	PutTimeout time.Duration
}

// Worker owns the background context's queues and loop.
type Worker struct {
	internal *kernel.Queue[item]
	fromApp  *kernel.Queue[item]
	set      *kernel.QueueSet[item]

	putTimeout time.Duration
	boosted    atomic.Bool

	wd       Watchdog
	reporter kernel.FatalReporter
	log      *logiface.Logger[logiface.Event]

	quit chan struct{}
	once sync.Once
}

func New(cfg Config, wd Watchdog, reporter kernel.FatalReporter, log *logiface.Logger[logiface.Event]) *Worker {
	if reporter == nil {
		panic("background: nil reporter")
	}
	if cfg.InternalCapacity <= 0 {
		cfg.InternalCapacity = 32
	}
	if cfg.AppCapacity <= 0 {
		cfg.AppCapacity = 32
	}
	if cfg.PutTimeout <= 0 {
		cfg.PutTimeout = kernel.DefaultPutTimeout
	}
	w := &Worker{
		internal:   kernel.NewQueue[item](cfg.InternalCapacity),
		fromApp:    kernel.NewQueue[item](cfg.AppCapacity),
		set:        kernel.NewQueueSet[item](),
		putTimeout: cfg.PutTimeout,
		wd:         wd,
		reporter:   reporter,
		log:        log,
	}
	w.set.Add(w.internal)
	w.set.Add(w.fromApp)
	w.quit = make(chan struct{})
	return w
}

// Enqueue adds work from a trusted producer. It blocks up to the configured
// timeout; a queue still full after that is unrecoverable exhaustion and is
// handed to the fatal reporter.
func (w *Worker) Enqueue(fn Task, data any) {
	if w.internal.Send(item{fn: fn, data: data}, w.putTimeout) {
		return
	}
	pc, fname := kernel.CallerPC(1)
	rep := kernel.Report{
		Kind:   kernel.FatalQueueFull,
		Dest:   kernel.ContextBackground,
		PC:     pc,
		Func:   fname,
		Reason: "background work queue full",
	}
	w.log.Crit().
		Stringer("dest", rep.Dest).
		Str("func", rep.Func).
		Uint64("pc", uint64(rep.PC)).
		Log("background work queue full")
	w.reporter.Fatal(rep)
}

// EnqueueFromApp adds work on the app queue, blocking the caller until space
// frees. The app stalling here is backpressure, not failure.
func (w *Worker) EnqueueFromApp(fn Task, data any) {
	w.fromApp.Send(item{fn: fn, data: data}, kernel.WaitForever)
}

// TryEnqueue adds work on the internal queue only if space is free.
func (w *Worker) TryEnqueue(fn Task, data any) bool {
	return w.internal.TrySend(item{fn: fn, data: data})
}

// Boost raises the context's effective priority. It is a single toggle, not
// a stack; callers pairing Boost with Restore must not nest them.
func (w *Worker) Boost() {
	w.boosted.Store(true)
}

// Restore undoes Boost.
func (w *Worker) Restore() {
	w.boosted.Store(false)
}

func (w *Worker) Boosted() bool {
	return w.boosted.Load()
}

// Depths reports the current backlog of the two queues.
func (w *Worker) Depths() (internal, app int) {
	return w.internal.Len(), w.fromApp.Len()
}

// StartIdleFeed arms a repeating timer that keeps the watchdog fed while the
// queues are idle. The timer posts a no-op item; the feed happens in the
// loop, so a wedged loop stops feeding and the watchdog fires as intended.
func (w *Worker) StartIdleFeed(svc *timers.Service, period time.Duration) timers.TimerID {
	id := svc.Create()
	svc.Start(id, period, func(any) {
		w.TryEnqueue(func(any) {}, nil)
	}, nil, true)
	return id
}

// Run services the queues until Shutdown. Internal items win over app items
// whenever both queues hold work; the watchdog is fed after every item no
// matter how long its callback ran.
func (w *Worker) Run() {
	w.log.Debug().Log("background loop running")
	for {
		select {
		case <-w.quit:
			return
		default:
		}
		it, ok := w.set.Wait(100 * time.Millisecond)
		if !ok {
			continue
		}
		it.fn(it.data)
		if w.wd != nil {
			w.wd.Feed()
		}
		if !w.boosted.Load() {
			runtime.Gosched()
		}
	}
}

// Shutdown stops the loop. Pending items are abandoned.
func (w *Worker) Shutdown() {
	w.once.Do(func() { close(w.quit) })
}
