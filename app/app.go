// Package app assembles the OS: the event fabric, the timer services, the
// background worker and the built-in tasks, wired to a HAL and supervised
// from the kernel main loop.
package app

import (
	"context"
	"sync"
	"time"

	"github.com/joeycumines/logiface"

	"quartz/hal"
	"quartz/internal/crashrec"
	"quartz/quartzos/apps/stressmon"
	"quartz/quartzos/apps/watchface"
	"quartz/quartzos/background"
	"quartz/quartzos/kernel"
	"quartz/quartzos/proto"
	"quartz/quartzos/timers"
)

// takePoll bounds each kernel Take so the loop feeds the watchdog and
// notices ctx cancellation between events.
const takePoll = 100 * time.Millisecond

// Watchdog context names. The HAL keys contexts by string; these bind the
// names to the OS contexts that feed.
const (
	wdKernel     = "kernel"
	wdBackground = "background"
)

// System is the assembled OS. Construct with New, then Run once.
type System struct {
	h   hal.HAL
	cfg Config
	log *logiface.Logger[logiface.Event]
	rep *resetReporter

	cleanup *kernel.CleanupRegistry
	router  *kernel.Router
	svc     *timers.Service
	evented *timers.Evented
	worker  *background.Worker

	face    *watchface.Task
	monitor *stressmon.Task
}

// New wires the system onto h. Nothing runs until Run.
func New(h hal.HAL, cfg Config, log *logiface.Logger[logiface.Event]) *System {
	rep := &resetReporter{h: h, log: log}

	cleanup := kernel.NewCleanupRegistry()
	router := kernel.NewRouter(kernel.RouterConfig{
		Clients:          []kernel.ContextID{kernel.ContextApp, kernel.ContextWorker},
		LoopbackCapacity: cfg.LoopbackQueue,
		CommonCapacity:   cfg.CommonQueue,
		ClientCapacity:   cfg.ClientQueue,
		InboxCapacity:    cfg.InboxQueue,
		PutTimeout:       cfg.PutTimeout(),
	}, cleanup, rep, log)

	svc := timers.NewService(timers.ServiceConfig{
		WorkCapacity: cfg.TimerWorkQueue,
		PutTimeout:   cfg.PutTimeout(),
	}, rep, log)

	evented := timers.NewEvented(svc, router, timers.EventedConfig{
		Kind:        proto.KindTimerCallback,
		PostTimeout: cfg.PutTimeout(),
	}, rep, log)

	worker := background.New(background.Config{
		InternalCapacity: cfg.BackgroundQueue,
		AppCapacity:      cfg.BackgroundQueue,
		PutTimeout:       cfg.PutTimeout(),
	}, wdFeeder{wd: h.Watchdog(), name: wdBackground}, rep, log)

	return &System{
		h:       h,
		cfg:     cfg,
		log:     log,
		rep:     rep,
		cleanup: cleanup,
		router:  router,
		svc:     svc,
		evented: evented,
		worker:  worker,
		face:    watchface.New(h.Display(), router, evented, log),
		monitor: stressmon.New(router, evented, worker, cfg.SamplePeriod(), log),
	}
}

// Run starts every context and blocks in the kernel main loop until a
// shutdown event arrives or ctx ends. The fatal path resets instead of
// returning; anything Run returns is an orderly stop.
func (s *System) Run(ctx context.Context) error {
	s.reportLastCrash()

	wd := s.h.Watchdog()
	wd.Start(s.cfg.WatchdogInterval(), s.cfg.WatchdogTimeout(), s.onBark)
	defer wd.Stop()

	go s.svc.Run()
	defer s.svc.Shutdown()

	go s.worker.Run()
	defer s.worker.Shutdown()
	s.worker.StartIdleFeed(s.svc, s.cfg.WatchdogInterval())

	// Tasks stop first on the way out: quit closes, they cancel their
	// timers against the still-running service, then the services go.
	quit := make(chan struct{})
	var tasks sync.WaitGroup
	tasks.Add(2)
	go func() { defer tasks.Done(); s.face.Run(quit) }()
	go func() { defer tasks.Done(); s.monitor.Run(quit) }()
	defer tasks.Wait()
	defer close(quit)

	go s.pumpButtons(ctx, quit)

	s.log.Info().Log("quartz up")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		wd.Feed(wdKernel)
		ev, ok := s.router.Take(takePoll)
		if !ok {
			continue
		}
		switch ev.Kind {
		case proto.KindTimerCallback:
			s.evented.Consume(timers.TimerID(ev.A))
		case proto.KindButton:
			s.router.PostToContext(kernel.ContextApp, ev, s.cfg.PutTimeout())
		case proto.KindShutdown:
			s.log.Info().Stringer("from", ev.Source).Log("shutdown requested")
			return nil
		default:
			s.cleanup.Release(&ev)
		}
	}
}

// pumpButtons plays the interrupt handler: each hardware button edge becomes
// an event on the common queue.
func (s *System) pumpButtons(ctx context.Context, quit <-chan struct{}) {
	btn := s.h.Input().Buttons()
	if btn == nil {
		return
	}
	ch := btn.Events()
	if ch == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-quit:
			return
		case be, ok := <-ch:
			if !ok {
				return
			}
			s.router.PutFromISR(proto.ButtonEvent(proto.Button(be.Button), be.Pressed))
		}
	}
}

// onBark runs on the watchdog goroutine when a context stops feeding. It
// routes through the same fatal path as queue exhaustion.
func (s *System) onBark(name string) {
	dest := kernel.ContextNone
	switch name {
	case wdKernel:
		dest = kernel.ContextKernelMain
	case wdBackground:
		dest = kernel.ContextBackground
	}
	s.rep.Fatal(kernel.Report{
		Kind:   kernel.FatalWatchdog,
		Dest:   dest,
		Reason: "context stopped feeding: " + name,
	})
}

// reportLastCrash surfaces the record a previous fatal persisted, then
// clears it so one crash reports once.
func (s *System) reportLastCrash() {
	cl := s.h.CrashLog()
	raw, err := cl.ReadLast()
	if err != nil || raw == nil {
		return
	}
	defer cl.Clear()
	rec, err := crashrec.Decode(raw)
	if err != nil {
		s.log.Warning().Err(err).Log("stored crash record unreadable")
		return
	}
	s.log.Notice().
		Str("kind", kernel.FatalKind(rec.Kind).String()).
		Stringer("dest", kernel.ContextID(rec.Dest)).
		Str("func", rec.Func).
		Str("reason", rec.Reason).
		Time("at", rec.Time).
		Log("previous boot crashed")
}

// wdFeeder binds one watchdog context name for collaborators that feed
// without knowing the HAL naming.
type wdFeeder struct {
	wd   hal.Watchdog
	name string
}

func (f wdFeeder) Feed() { f.wd.Feed(f.name) }

// resetReporter is the hardware fatal path: persist a crash record, then
// reset. Reset does not return on real hardware; the host stub exits the
// process.
type resetReporter struct {
	h   hal.HAL
	log *logiface.Logger[logiface.Event]
}

func (r *resetReporter) Fatal(rep kernel.Report) {
	rec := crashrec.Record{
		Time:    time.Now(),
		Kind:    uint8(rep.Kind),
		Dest:    uint8(rep.Dest),
		PC:      uint64(rep.PC),
		Func:    rep.Func,
		Current: eventID(rep.Current),
		Dropped: eventID(rep.Dropped),
		Reason:  rep.Reason,
	}
	if err := r.h.CrashLog().Persist(rec.Encode()); err != nil {
		r.log.Err().Err(err).Log("crash record not persisted")
	}
	r.log.Crit().
		Stringer("kind", rep.Kind).
		Stringer("dest", rep.Dest).
		Str("func", rep.Func).
		Str("reason", rep.Reason).
		Log("fatal")
	r.h.Resetter().Reset(rep.Kind.String() + ": " + rep.Reason)
}

func eventID(ev kernel.Event) crashrec.EventID {
	return crashrec.EventID{
		Kind:   uint16(ev.Kind),
		Source: uint8(ev.Source),
		A:      ev.A,
		B:      ev.B,
	}
}
