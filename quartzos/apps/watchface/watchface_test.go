package watchface

import (
	"sync"
	"testing"
	"time"

	"quartz/hal"
	"quartz/quartzos/kernel"
	"quartz/quartzos/proto"
	"quartz/quartzos/timers"
)

type recordingReporter struct {
	mu      sync.Mutex
	reports []kernel.Report
}

func (r *recordingReporter) Fatal(rep kernel.Report) {
	r.mu.Lock()
	r.reports = append(r.reports, rep)
	r.mu.Unlock()
}

// fakeFB snapshots the buffer on Present so tests read frames without racing
// the drawing goroutine.
type fakeFB struct {
	w, h int
	buf  []byte

	mu        sync.Mutex
	snapshot  []byte
	presented chan struct{}
}

func newFakeFB(w, h int) *fakeFB {
	return &fakeFB{
		w:         w,
		h:         h,
		buf:       make([]byte, w*2*h),
		presented: make(chan struct{}, 16),
	}
}

func (f *fakeFB) Width() int              { return f.w }
func (f *fakeFB) Height() int             { return f.h }
func (f *fakeFB) Format() hal.PixelFormat { return hal.PixelFormatRGB565 }
func (f *fakeFB) StrideBytes() int        { return f.w * 2 }
func (f *fakeFB) Buffer() []byte          { return f.buf }

func (f *fakeFB) ClearRGB(r, g, b uint8) {
	pixel := rgb565From888(r, g, b)
	lo := byte(pixel)
	hi := byte(pixel >> 8)
	for i := 0; i < len(f.buf); i += 2 {
		f.buf[i] = lo
		f.buf[i+1] = hi
	}
}

func (f *fakeFB) Present() error {
	f.mu.Lock()
	if f.snapshot == nil {
		f.snapshot = make([]byte, len(f.buf))
	}
	copy(f.snapshot, f.buf)
	f.mu.Unlock()
	select {
	case f.presented <- struct{}{}:
	default:
	}
	return nil
}

func (f *fakeFB) lastFrame() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]byte, len(f.snapshot))
	copy(out, f.snapshot)
	return out
}

type fakeDisplay struct {
	fb *fakeFB
}

func (d fakeDisplay) Framebuffer() hal.Framebuffer { return d.fb }

func startTask(t *testing.T) (*fakeFB, *kernel.Router, *timers.Evented, func()) {
	t.Helper()
	rep := &recordingReporter{}
	svc := timers.NewService(timers.ServiceConfig{}, rep, nil)
	go svc.Run()
	t.Cleanup(svc.Shutdown)

	r := kernel.NewRouter(kernel.RouterConfig{
		Clients: []kernel.ContextID{kernel.ContextApp, kernel.ContextWorker},
	}, kernel.NewCleanupRegistry(), rep, nil)
	e := timers.NewEvented(svc, r, timers.EventedConfig{Kind: proto.KindTimerCallback}, rep, nil)

	fb := newFakeFB(144, 168)
	task := New(fakeDisplay{fb: fb}, r, e, nil)
	quit := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		task.Run(quit)
	}()
	var once sync.Once
	stop := func() {
		once.Do(func() { close(quit) })
		<-done
	}
	t.Cleanup(stop)
	return fb, r, e, stop
}

func waitPresent(t *testing.T, fb *fakeFB) {
	t.Helper()
	select {
	case <-fb.presented:
	case <-time.After(3 * time.Second):
		t.Fatalf("no frame presented")
	}
}

func TestWatchfaceDrawsFace(t *testing.T) {
	fb, _, _, _ := startTask(t)

	waitPresent(t, fb)

	// White face with dark glyphs: some bytes must differ from the clear
	// fill.
	drawn := false
	for _, b := range fb.lastFrame() {
		if b != 0xff {
			drawn = true
			break
		}
	}
	if !drawn {
		t.Fatalf("framebuffer untouched after present")
	}
}

func TestWatchfaceInvertOnUp(t *testing.T) {
	fb, r, _, _ := startTask(t)

	waitPresent(t, fb)

	if !r.PostToContext(kernel.ContextApp, proto.ButtonEvent(proto.ButtonUp, true), time.Second) {
		t.Fatalf("PostToContext(button) = false")
	}

	// The corner stays clear of glyphs, so it shows the background: dark
	// once the invert lands. Ticks may present uninverted frames first.
	deadline := time.Now().Add(3 * time.Second)
	for {
		waitPresent(t, fb)
		frame := fb.lastFrame()
		if frame[0] != 0xff || frame[1] != 0xff {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("corner pixel still light after invert")
		}
	}
}

func TestWatchfaceBackRequestsShutdown(t *testing.T) {
	fb, r, _, _ := startTask(t)

	waitPresent(t, fb)

	if !r.PostToContext(kernel.ContextApp, proto.ButtonEvent(proto.ButtonBack, true), time.Second) {
		t.Fatalf("PostToContext(button) = false")
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		ev, ok := r.Take(100 * time.Millisecond)
		if ok && ev.Kind == proto.KindShutdown {
			if ev.Source != kernel.ContextApp {
				t.Fatalf("shutdown source = %v, want %v", ev.Source, kernel.ContextApp)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("kernel never received the shutdown event")
		}
	}
}

func TestWatchfaceQuitCancelsTimers(t *testing.T) {
	fb, _, e, stop := startTask(t)

	waitPresent(t, fb)
	stop()

	if c := e.Count(); c != 0 {
		t.Fatalf("evented Count() = %d after quit, want 0", c)
	}
}
