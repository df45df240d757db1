// Package proto fixes the event Kind space shared across contexts, so
// collaborators never collide on Kind values.
package proto

import "quartz/quartzos/kernel"

// Core event kinds.
const (
	KindNone kernel.Kind = iota
	KindTimerCallback
	KindButton
	KindShutdown
)

// KindAppBase is the first Kind free for app-defined events.
const KindAppBase kernel.Kind = 0x100

// Button identifies one of the four physical buttons.
type Button uint8

const (
	ButtonBack Button = iota
	ButtonUp
	ButtonSelect
	ButtonDown

	buttonCount
)

func (b Button) String() string {
	switch b {
	case ButtonBack:
		return "back"
	case ButtonUp:
		return "up"
	case ButtonSelect:
		return "select"
	case ButtonDown:
		return "down"
	}
	return "invalid"
}

func (b Button) Valid() bool {
	return b < buttonCount
}

// ButtonEvent builds the event the input poller posts for a button edge.
func ButtonEvent(b Button, pressed bool) kernel.Event {
	ev := kernel.Event{Kind: KindButton, Source: kernel.ContextISR, A: uint32(b)}
	if pressed {
		ev.B = 1
	}
	return ev
}

// DecodeButton unpacks a KindButton event.
func DecodeButton(ev kernel.Event) (b Button, pressed bool) {
	return Button(ev.A), ev.B != 0
}

// ShutdownEvent asks the kernel loop to stop the system.
func ShutdownEvent(from kernel.ContextID) kernel.Event {
	return kernel.Event{Kind: KindShutdown, Source: from}
}
