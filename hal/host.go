//go:build !tinygo

package hal

import (
	"fmt"
	"os"
)

// Panel dimensions of the simulated watch display.
const (
	DisplayWidth  = 144
	DisplayHeight = 168
)

type hostHAL struct {
	fb  *hostFramebuffer
	btn *hostButtons
	wd  *hostWatchdog
	cl  *hostCrashLog
	rst hostResetter
}

// New returns a host HAL implementation.
func New() HAL {
	return &hostHAL{
		fb:  newHostFramebuffer(DisplayWidth, DisplayHeight),
		btn: newHostButtons(),
		wd:  newHostWatchdog(),
		cl:  newHostCrashLog(),
	}
}

func (h *hostHAL) Display() Display   { return hostDisplay{fb: h.fb} }
func (h *hostHAL) Input() Input       { return hostInput{btn: h.btn} }
func (h *hostHAL) Watchdog() Watchdog { return h.wd }
func (h *hostHAL) CrashLog() CrashLog { return h.cl }
func (h *hostHAL) Resetter() Resetter { return h.rst }

type hostDisplay struct {
	fb *hostFramebuffer
}

func (d hostDisplay) Framebuffer() Framebuffer { return d.fb }

type hostInput struct {
	btn *hostButtons
}

func (in hostInput) Buttons() Buttons { return in.btn }

type hostResetter struct{}

// Reset exits the process. The crash record is already persisted by the
// fatal path; a relaunch plays the part of the post-reset boot.
func (hostResetter) Reset(reason string) {
	fmt.Fprintln(os.Stderr, "reset:", reason)
	os.Exit(1)
}
