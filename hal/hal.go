package hal

import (
	"errors"
	"time"
)

var ErrNotImplemented = errors.New("not implemented")

// PixelFormat defines the framebuffer pixel encoding.
type PixelFormat uint8

const (
	// PixelFormatRGB565 is 16bpp: rrrrrggggggbbbbb.
	PixelFormatRGB565 PixelFormat = iota + 1
)

// Framebuffer is a simple pixel buffer plus a "present" hook.
type Framebuffer interface {
	Width() int
	Height() int
	Format() PixelFormat
	StrideBytes() int
	Buffer() []byte
	ClearRGB(r, g, b uint8)
	Present() error
}

// Button identifies one of the four physical buttons.
type Button uint8

const (
	ButtonBack Button = iota
	ButtonUp
	ButtonSelect
	ButtonDown
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

// ButtonEvent is one pressed/released edge.
type ButtonEvent struct {
	Button  Button
	Pressed bool
}

// Buttons provides button edges (best-effort on each platform).
type Buttons interface {
	Events() <-chan ButtonEvent
}

// Display provides access to the framebuffer (if available).
type Display interface {
	Framebuffer() Framebuffer
}

// Input provides access to input devices (if available).
type Input interface {
	Buttons() Buttons
}

// Watchdog detects execution contexts that stopped feeding.
//
// Contexts are named by string so the layer below the OS needs no knowledge
// of the OS's context identifiers.
type Watchdog interface {
	Start(interval, timeout time.Duration, onBark func(ctx string))
	Feed(ctx string)
	Stop()
}

// CrashLog persists one fatal record across reset.
type CrashLog interface {
	Persist(rec []byte) error
	// ReadLast returns the stored record, or nil when none exists.
	ReadLast() ([]byte, error)
	Clear() error
}

// Resetter restarts the system after a fatal report has been persisted.
type Resetter interface {
	Reset(reason string)
}

// HAL provides the only contact point between the OS and the outside world.
type HAL interface {
	Display() Display
	Input() Input
	Watchdog() Watchdog
	CrashLog() CrashLog
	Resetter() Resetter
}
