//go:build !tinygo

package hal

import (
	"bytes"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestWatchdogBarksOnSilence(t *testing.T) {
	w := newHostWatchdog()
	defer w.Stop()

	var mu sync.Mutex
	var barked []string
	w.Start(10*time.Millisecond, 50*time.Millisecond, func(ctx string) {
		mu.Lock()
		barked = append(barked, ctx)
		mu.Unlock()
	})

	w.Feed("quiet")
	stop := make(chan struct{})
	go func() {
		tick := time.NewTicker(10 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-stop:
				return
			case <-tick.C:
				w.Feed("chatty")
			}
		}
	}()
	defer close(stop)

	deadline := time.Now().Add(3 * time.Second)
	for {
		mu.Lock()
		n := len(barked)
		mu.Unlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("expected a bark for the silent context")
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	for _, ctx := range barked {
		if ctx != "quiet" {
			t.Fatalf("bark for %q, want only %q", ctx, "quiet")
		}
	}
}

func TestWatchdogFedContextStaysQuiet(t *testing.T) {
	w := newHostWatchdog()
	defer w.Stop()

	var barks sync.Map
	w.Start(5*time.Millisecond, 30*time.Millisecond, func(ctx string) {
		barks.Store(ctx, true)
	})

	stop := make(chan struct{})
	go func() {
		tick := time.NewTicker(10 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-stop:
				return
			case <-tick.C:
				w.Feed("loop")
			}
		}
	}()

	time.Sleep(150 * time.Millisecond)
	close(stop)
	if _, ok := barks.Load("loop"); ok {
		t.Fatal("fed context barked")
	}
}

func TestCrashLogRoundTrip(t *testing.T) {
	t.Setenv("QUARTZ_CRASH_PATH", filepath.Join(t.TempDir(), "crash.bin"))
	cl := newHostCrashLog()

	if b, err := cl.ReadLast(); err != nil || b != nil {
		t.Fatalf("ReadLast() on empty log = %v, %v, want nil, nil", b, err)
	}

	rec := []byte{0xde, 0xad, 0xbe, 0xef}
	if err := cl.Persist(rec); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	got, err := cl.ReadLast()
	if err != nil {
		t.Fatalf("ReadLast: %v", err)
	}
	if !bytes.Equal(got, rec) {
		t.Fatalf("ReadLast() = %x, want %x", got, rec)
	}

	if err := cl.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if b, err := cl.ReadLast(); err != nil || b != nil {
		t.Fatalf("ReadLast() after clear = %v, %v, want nil, nil", b, err)
	}
	if err := cl.Clear(); err != nil {
		t.Fatalf("Clear() on empty log: %v", err)
	}
}
