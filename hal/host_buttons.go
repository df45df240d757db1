//go:build !tinygo && cgo

package hal

import (
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
)

type hostButtons struct {
	ch chan ButtonEvent
}

func newHostButtons() *hostButtons {
	return &hostButtons{ch: make(chan ButtonEvent, 16)}
}

func (b *hostButtons) Events() <-chan ButtonEvent { return b.ch }

// poll runs on the window thread once per frame. A full channel drops the
// edge, the same way a masked interrupt would.
func (b *hostButtons) poll() {
	emit := func(btn Button, pressed bool) {
		select {
		case b.ch <- ButtonEvent{Button: btn, Pressed: pressed}:
		default:
		}
	}

	keys := [...]struct {
		key ebiten.Key
		btn Button
	}{
		{ebiten.KeyEscape, ButtonBack},
		{ebiten.KeyArrowUp, ButtonUp},
		{ebiten.KeyEnter, ButtonSelect},
		{ebiten.KeyArrowDown, ButtonDown},
	}
	for _, m := range keys {
		if inpututil.IsKeyJustPressed(m.key) {
			emit(m.btn, true)
		}
		if inpututil.IsKeyJustReleased(m.key) {
			emit(m.btn, false)
		}
	}
}
