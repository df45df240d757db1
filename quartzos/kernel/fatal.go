package kernel

import "runtime"

// FatalKind classifies why the system is being taken down.
type FatalKind uint8

const (
	// FatalQueueFull is resource exhaustion: an event could not be delivered
	// within its timeout. Capacity is provisioned so this does not happen on
	// a healthy system; once it does, continuing risks corrupting state every
	// context depends on.
	FatalQueueFull FatalKind = iota
	// FatalMisuse is a programmer error: invalid handle, wrong calling
	// context, operation on a torn-down queue.
	FatalMisuse
	// FatalWatchdog is a wedged context: it stopped feeding its watchdog
	// within the deadline. The report's Reason names the context.
	FatalWatchdog
)

func (k FatalKind) String() string {
	switch k {
	case FatalQueueFull:
		return "queue full"
	case FatalMisuse:
		return "api misuse"
	case FatalWatchdog:
		return "watchdog timeout"
	}
	return "unknown"
}

// Report carries the diagnostics persisted across the reset.
//
// Current and Dropped are identities only; owned payloads are never retained
// here.
type Report struct {
	Kind    FatalKind
	Dest    ContextID
	PC      uintptr
	Func    string
	Current Event
	Dropped Event
	Reason  string
}

// FatalReporter is the reset strategy invoked on unrecoverable failures.
//
// On hardware this persists the report and resets the device, never
// returning. Test doubles may record the report and return; callers treat a
// return as "discard and continue", releasing any owned payload of the
// dropped event themselves.
type FatalReporter interface {
	Fatal(Report)
}

// CallerPC resolves the program counter and function name of the frame skip
// levels above the caller of CallerPC. It feeds the return-address field of
// fatal reports.
func CallerPC(skip int) (uintptr, string) {
	pc, _, _, ok := runtime.Caller(skip + 1)
	if !ok {
		return 0, ""
	}
	name := ""
	if fn := runtime.FuncForPC(pc); fn != nil {
		name = fn.Name()
	}
	return pc, name
}
