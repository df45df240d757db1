// Package buildinfo exposes the version stamped at build time.
package buildinfo

import "runtime/debug"

// Version is set via -ldflags; the default marks a source build.
var Version = "dev"

// Short returns a compact identifier for the window title and logs. Without
// an ldflags version it falls back to the VCS revision baked into the
// binary, when there is one.
func Short() string {
	if Version != "" && Version != "dev" {
		return Version
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			if s.Key == "vcs.revision" && len(s.Value) >= 8 {
				return s.Value[:8]
			}
		}
	}
	return "dev"
}
