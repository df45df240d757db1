// Package stressmon runs on the worker context: a repeating evented timer
// samples the system and defers the reporting work to the background queue.
package stressmon

import (
	"time"

	"github.com/joeycumines/logiface"

	"quartz/quartzos/background"
	"quartz/quartzos/kernel"
	"quartz/quartzos/proto"
	"quartz/quartzos/timers"
)

type Task struct {
	router  *kernel.Router
	evented *timers.Evented
	worker  *background.Worker
	log     *logiface.Logger[logiface.Event]

	period time.Duration
}

func New(router *kernel.Router, evented *timers.Evented, worker *background.Worker, period time.Duration, log *logiface.Logger[logiface.Event]) *Task {
	if period <= 0 {
		period = 5 * time.Second
	}
	return &Task{
		router:  router,
		evented: evented,
		worker:  worker,
		log:     log,
		period:  period,
	}
}

// Run owns the worker context: it consumes its own timer callbacks, so the
// sampling always executes here, never on the timer goroutine.
func (t *Task) Run(quit <-chan struct{}) {
	t.evented.Register(kernel.ContextWorker, t.period, true, t.onSample, nil)

	inbox := t.router.ClientInbox(kernel.ContextWorker)
	for {
		select {
		case <-quit:
			t.evented.CancelContext(kernel.ContextWorker)
			return
		default:
		}
		ev, ok := inbox.Receive(50 * time.Millisecond)
		if !ok {
			continue
		}
		if ev.Kind == proto.KindTimerCallback {
			t.evented.Consume(timers.TimerID(ev.A))
		}
	}
}

// onSample defers the actual reporting; a full queue drops the sample rather
// than stalling the worker context.
func (t *Task) onSample(any) {
	if !t.worker.TryEnqueue(t.report, nil) {
		t.log.Warning().Log("stressmon: background queue full, sample dropped")
	}
}

func (t *Task) report(any) {
	internal, app := t.worker.Depths()
	t.log.Info().
		Int("internal", internal).
		Int("app", app).
		Int("timers", t.evented.Count()).
		Log("stressmon: queue depths")
}
