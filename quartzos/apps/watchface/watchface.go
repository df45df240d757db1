// Package watchface is the demo app on the app context: a clock face redrawn
// by a repeating evented timer, with button-driven display toggles.
package watchface

import (
	"time"

	"github.com/joeycumines/logiface"
	"tinygo.org/x/tinyfont"

	"quartz/hal"
	"quartz/quartzos/kernel"
	"quartz/quartzos/proto"
	"quartz/quartzos/timers"
)

type Task struct {
	fb      hal.Framebuffer
	router  *kernel.Router
	evented *timers.Evented
	log     *logiface.Logger[logiface.Event]

	face tinyfont.Fonter

	showSeconds bool
	inverted    bool
}

func New(disp hal.Display, router *kernel.Router, evented *timers.Evented, log *logiface.Logger[logiface.Event]) *Task {
	var fb hal.Framebuffer
	if disp != nil {
		fb = disp.Framebuffer()
	}
	return &Task{
		fb:          fb,
		router:      router,
		evented:     evented,
		log:         log,
		showSeconds: true,
	}
}

// Run owns the app context. It arms the redraw timer, then serves the app
// inbox until quit closes. Timer callbacks are consumed here, so they always
// execute on this goroutine.
func (t *Task) Run(quit <-chan struct{}) {
	if t.fb == nil || !t.initFont() {
		t.log.Warning().Log("watchface: no usable framebuffer, app context idle")
		<-quit
		return
	}

	t.redraw(time.Now())
	t.evented.Register(kernel.ContextApp, time.Second, true, t.onTick, nil)

	inbox := t.router.ClientInbox(kernel.ContextApp)
	for {
		select {
		case <-quit:
			t.evented.CancelContext(kernel.ContextApp)
			return
		default:
		}
		ev, ok := inbox.Receive(50 * time.Millisecond)
		if !ok {
			continue
		}
		switch ev.Kind {
		case proto.KindTimerCallback:
			t.evented.Consume(timers.TimerID(ev.A))
		case proto.KindButton:
			b, pressed := proto.DecodeButton(ev)
			if pressed {
				t.handleButton(b)
			}
		}
	}
}

func (t *Task) onTick(any) {
	t.redraw(time.Now())
}

func (t *Task) handleButton(b proto.Button) {
	switch b {
	case proto.ButtonBack:
		t.log.Info().Log("watchface: back pressed, requesting shutdown")
		t.router.Put(kernel.ContextApp, proto.ShutdownEvent(kernel.ContextApp))
	case proto.ButtonSelect:
		t.showSeconds = !t.showSeconds
		t.redraw(time.Now())
	case proto.ButtonUp, proto.ButtonDown:
		t.inverted = !t.inverted
		t.redraw(time.Now())
	}
}
