package kernel

import (
	"sync"
	"testing"
	"time"
)

// recordingReporter captures fatal reports instead of resetting, standing in
// for the hardware strategy.
type recordingReporter struct {
	mu      sync.Mutex
	reports []Report
}

func (r *recordingReporter) Fatal(rep Report) {
	r.mu.Lock()
	r.reports = append(r.reports, rep)
	r.mu.Unlock()
}

func (r *recordingReporter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reports)
}

func (r *recordingReporter) last() Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reports[len(r.reports)-1]
}

func newTestRouter(t *testing.T, cfg RouterConfig) (*Router, *recordingReporter) {
	t.Helper()
	rep := &recordingReporter{}
	if cfg.Clients == nil {
		cfg.Clients = []ContextID{ContextApp, ContextWorker}
	}
	return NewRouter(cfg, NewCleanupRegistry(), rep, nil), rep
}

func TestRouterLoopbackDrainedFirst(t *testing.T) {
	r, _ := newTestRouter(t, RouterConfig{})

	r.PutFromISR(Event{Kind: 1, A: 10})
	r.Put(ContextApp, Event{Kind: 2, A: 20})
	r.Put(ContextKernelMain, Event{Kind: 3, A: 30})

	ev, ok := r.Take(time.Second)
	if !ok {
		t.Fatalf("Take() ok = false, want true")
	}
	if ev.Kind != 3 {
		t.Fatalf("Take() kind = %d, want loopback event 3", ev.Kind)
	}
}

func TestRouterCommonBeforeClients(t *testing.T) {
	r, _ := newTestRouter(t, RouterConfig{})

	r.Put(ContextApp, Event{Kind: 2})
	r.PutFromISR(Event{Kind: 1})

	ev, ok := r.Take(time.Second)
	if !ok {
		t.Fatalf("Take() ok = false, want true")
	}
	if ev.Kind != 1 {
		t.Fatalf("Take() kind = %d, want common event 1", ev.Kind)
	}
	ev, ok = r.Take(time.Second)
	if !ok {
		t.Fatalf("Take() ok = false, want true")
	}
	if ev.Kind != 2 {
		t.Fatalf("Take() kind = %d, want client event 2", ev.Kind)
	}
}

func TestRouterPerProducerFIFO(t *testing.T) {
	r, rep := newTestRouter(t, RouterConfig{})

	const perProd = 200
	producers := []ContextID{ContextApp, ContextWorker}

	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(len(producers))
	for _, p := range producers {
		go func(p ContextID) {
			defer wg.Done()
			<-start
			for i := 0; i < perProd; i++ {
				r.Put(p, Event{Source: p, A: uint32(i)})
			}
		}(p)
	}
	close(start)

	next := map[ContextID]uint32{}
	for i := 0; i < perProd*len(producers); i++ {
		ev, ok := r.Take(5 * time.Second)
		if !ok {
			t.Fatalf("Take() timed out after %d events", i)
		}
		if ev.A != next[ev.Source] {
			t.Fatalf("producer %v out of order: got %d, want %d", ev.Source, ev.A, next[ev.Source])
		}
		next[ev.Source]++
	}
	wg.Wait()

	if rep.count() != 0 {
		t.Fatalf("reporter.count() = %d, want 0", rep.count())
	}
}

func TestRouterISROverflowFatal(t *testing.T) {
	r, rep := newTestRouter(t, RouterConfig{CommonCapacity: 2})

	r.PutFromISR(Event{Kind: 1, A: 1})
	r.PutFromISR(Event{Kind: 1, A: 2})

	done := make(chan struct{})
	go func() {
		r.PutFromISR(Event{Kind: 9, A: 3})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("PutFromISR() blocked on a full queue")
	}

	if rep.count() != 1 {
		t.Fatalf("reporter.count() = %d, want 1", rep.count())
	}
	got := rep.last()
	if got.Kind != FatalQueueFull {
		t.Fatalf("report kind = %v, want %v", got.Kind, FatalQueueFull)
	}
	if got.Dest != ContextKernelMain {
		t.Fatalf("report dest = %v, want %v", got.Dest, ContextKernelMain)
	}
	if got.Dropped.Kind != 9 || got.Dropped.A != 3 {
		t.Fatalf("report dropped = %+v, want kind 9 A 3", got.Dropped)
	}
	if got.PC == 0 || got.Func == "" {
		t.Fatalf("report pc/func = %#x %q, want resolved call site", got.PC, got.Func)
	}

	// The queued events survive the failed send untouched.
	for i := uint32(1); i <= 2; i++ {
		ev, ok := r.Take(time.Second)
		if !ok || ev.A != i {
			t.Fatalf("Take() = %+v %v, want A=%d", ev, ok, i)
		}
	}
}

func TestRouterLoopbackOverflowFatalImmediate(t *testing.T) {
	r, rep := newTestRouter(t, RouterConfig{LoopbackCapacity: 1})

	r.Put(ContextKernelMain, Event{A: 1})

	begin := time.Now()
	r.Put(ContextKernelMain, Event{A: 2})
	if elapsed := time.Since(begin); elapsed > time.Second {
		t.Fatalf("kernel self put blocked %v on full loopback", elapsed)
	}
	if rep.count() != 1 {
		t.Fatalf("reporter.count() = %d, want 1", rep.count())
	}
	if got := rep.last(); got.Dropped.A != 2 {
		t.Fatalf("report dropped A = %d, want 2", got.Dropped.A)
	}
}

func TestRouterPutOverflowReleasesPayload(t *testing.T) {
	const kind Kind = 5
	rep := &recordingReporter{}
	reg := NewCleanupRegistry()
	released := 0
	reg.Register(kind, func(ptr any) { released++ })
	r := NewRouter(RouterConfig{
		Clients:        []ContextID{ContextApp},
		CommonCapacity: 1,
		PutTimeout:     10 * time.Millisecond,
	}, reg, rep, nil)

	r.PutFromISR(Event{Kind: kind})
	r.PutFromISR(Event{Kind: kind, Ptr: new(int)})

	if rep.count() != 1 {
		t.Fatalf("reporter.count() = %d, want 1", rep.count())
	}
	if released != 1 {
		t.Fatalf("released %d payloads, want 1", released)
	}
}

func TestRouterTryPutFromContextNoFatal(t *testing.T) {
	r, rep := newTestRouter(t, RouterConfig{ClientCapacity: 1})

	if ok := r.TryPutFromContext(ContextApp, Event{A: 1}); !ok {
		t.Fatalf("TryPutFromContext() ok = false on empty queue, want true")
	}
	if ok := r.TryPutFromContext(ContextApp, Event{A: 2}); ok {
		t.Fatalf("TryPutFromContext() ok = true when full, want false")
	}
	if rep.count() != 0 {
		t.Fatalf("reporter.count() = %d, want 0", rep.count())
	}
}

func TestRouterPutFromContextBlocksUntilSpace(t *testing.T) {
	r, rep := newTestRouter(t, RouterConfig{ClientCapacity: 1})

	r.PutFromContext(ContextApp, Event{A: 1})

	done := make(chan struct{})
	go func() {
		r.PutFromContext(ContextApp, Event{A: 2})
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	select {
	case <-done:
		t.Fatalf("PutFromContext() returned while queue was full")
	default:
	}

	if ev, ok := r.Take(time.Second); !ok || ev.A != 1 {
		t.Fatalf("Take() = %+v %v, want A=1", ev, ok)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("PutFromContext() still blocked after space freed")
	}
	if rep.count() != 0 {
		t.Fatalf("reporter.count() = %d, want 0", rep.count())
	}
}

func TestRouterPostToContext(t *testing.T) {
	r, _ := newTestRouter(t, RouterConfig{})

	if ok := r.PostToContext(ContextApp, Event{Kind: 4, A: 7}, time.Second); !ok {
		t.Fatalf("PostToContext() ok = false, want true")
	}
	inbox := r.ClientInbox(ContextApp)
	if inbox == nil {
		t.Fatalf("ClientInbox() = nil, want queue")
	}
	ev, ok := inbox.Receive(time.Second)
	if !ok || ev.Kind != 4 || ev.A != 7 {
		t.Fatalf("inbox Receive() = %+v %v, want kind 4 A 7", ev, ok)
	}

	// KernelMain posts land on the kernel's own consumer path.
	if ok := r.PostToContext(ContextKernelMain, Event{Kind: 5}, time.Second); !ok {
		t.Fatalf("PostToContext(kernel) ok = false, want true")
	}
	ev, ok = r.Take(time.Second)
	if !ok || ev.Kind != 5 {
		t.Fatalf("Take() = %+v %v, want kind 5", ev, ok)
	}
}

func TestRouterPostToContextOverflowFatal(t *testing.T) {
	r, rep := newTestRouter(t, RouterConfig{InboxCapacity: 1})

	if ok := r.PostToContext(ContextApp, Event{A: 1}, 10*time.Millisecond); !ok {
		t.Fatalf("PostToContext() ok = false on empty inbox, want true")
	}
	if ok := r.PostToContext(ContextApp, Event{A: 2}, 10*time.Millisecond); ok {
		t.Fatalf("PostToContext() ok = true on full inbox, want false")
	}
	if rep.count() != 1 {
		t.Fatalf("reporter.count() = %d, want 1", rep.count())
	}
	got := rep.last()
	if got.Kind != FatalQueueFull {
		t.Fatalf("report kind = %v, want %v", got.Kind, FatalQueueFull)
	}
	if got.Dest != ContextApp {
		t.Fatalf("report dest = %v, want %v", got.Dest, ContextApp)
	}
	if got.Dropped.A != 2 {
		t.Fatalf("report dropped A = %d, want 2", got.Dropped.A)
	}
}

func TestRouterPostToUnknownContextMisuse(t *testing.T) {
	r, rep := newTestRouter(t, RouterConfig{})

	if ok := r.PostToContext(ContextBackground, Event{}, 0); ok {
		t.Fatalf("PostToContext() ok = true for unknown context, want false")
	}
	if rep.count() != 1 {
		t.Fatalf("reporter.count() = %d, want 1", rep.count())
	}
	if got := rep.last(); got.Kind != FatalMisuse {
		t.Fatalf("report kind = %v, want %v", got.Kind, FatalMisuse)
	}
}

func TestRouterResetContextQueue(t *testing.T) {
	const kind Kind = 6
	rep := &recordingReporter{}
	reg := NewCleanupRegistry()
	released := 0
	reg.Register(kind, func(ptr any) { released++ })
	r := NewRouter(RouterConfig{Clients: []ContextID{ContextApp, ContextWorker}}, reg, rep, nil)

	r.PutFromContext(ContextApp, Event{Kind: kind, Ptr: new(int)})
	r.PostToContext(ContextApp, Event{Kind: kind, Ptr: new(int)}, time.Second)
	r.PutFromContext(ContextWorker, Event{Kind: kind, A: 42})

	r.ResetContextQueue(ContextApp)

	if released != 2 {
		t.Fatalf("released %d payloads, want 2", released)
	}

	// The surviving worker event is still routed; the app events are gone.
	ev, ok := r.Take(time.Second)
	if !ok || ev.A != 42 {
		t.Fatalf("Take() = %+v %v, want worker event A=42", ev, ok)
	}
	if _, ok := r.Take(20 * time.Millisecond); ok {
		t.Fatalf("Take() ok = true after reset, want false")
	}

	// The torn-down context no longer has an outbound queue.
	if ok := r.TryPutFromContext(ContextApp, Event{}); ok {
		t.Fatalf("TryPutFromContext() ok = true after reset, want false")
	}
	if rep.count() == 0 {
		t.Fatalf("reporter.count() = 0, want misuse report after reset")
	}
}

func TestRouterCurrentEventInReport(t *testing.T) {
	r, rep := newTestRouter(t, RouterConfig{CommonCapacity: 1, PutTimeout: 10 * time.Millisecond})

	r.PutFromISR(Event{Kind: 11, A: 1})
	if ev, ok := r.Take(time.Second); !ok || ev.Kind != 11 {
		t.Fatalf("Take() = %+v %v, want kind 11", ev, ok)
	}

	r.PutFromISR(Event{Kind: 12, A: 2})
	r.PutFromISR(Event{Kind: 13, A: 3})

	if rep.count() != 1 {
		t.Fatalf("reporter.count() = %d, want 1", rep.count())
	}
	got := rep.last()
	if got.Current.Kind != 11 {
		t.Fatalf("report current kind = %d, want 11 (in-progress event)", got.Current.Kind)
	}
	if got.Dropped.Kind != 13 {
		t.Fatalf("report dropped kind = %d, want 13", got.Dropped.Kind)
	}
}
