//go:build !tinygo

package hal

import (
	"sync"
	"time"
)

type hostWatchdog struct {
	mu   sync.Mutex
	last map[string]time.Time

	quit chan struct{}
	once sync.Once
}

func newHostWatchdog() *hostWatchdog {
	return &hostWatchdog{
		last: make(map[string]time.Time),
		quit: make(chan struct{}),
	}
}

// Start scans feeds every interval. A context that registered itself by
// feeding and then stayed silent past timeout triggers onBark once and is
// dropped from scanning; the bark handler is expected to reset the system.
func (w *hostWatchdog) Start(interval, timeout time.Duration, onBark func(ctx string)) {
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-w.quit:
				return
			case <-t.C:
				var bark string
				now := time.Now()
				w.mu.Lock()
				for ctx, at := range w.last {
					if now.Sub(at) > timeout {
						bark = ctx
						delete(w.last, ctx)
						break
					}
				}
				w.mu.Unlock()
				if bark != "" && onBark != nil {
					onBark(bark)
				}
			}
		}
	}()
}

func (w *hostWatchdog) Feed(ctx string) {
	w.mu.Lock()
	w.last[ctx] = time.Now()
	w.mu.Unlock()
}

func (w *hostWatchdog) Stop() {
	w.once.Do(func() { close(w.quit) })
}
