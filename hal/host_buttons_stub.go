//go:build !tinygo && !cgo

package hal

type hostButtons struct {
	ch chan ButtonEvent
}

func newHostButtons() *hostButtons {
	return &hostButtons{ch: make(chan ButtonEvent, 16)}
}

func (b *hostButtons) Events() <-chan ButtonEvent { return b.ch }

func (b *hostButtons) poll() {
	// No button input without the window backend.
}
