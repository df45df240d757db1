package kernel

// ContextID names one of the fixed execution contexts.
//
// The set is closed at system construction; there is no runtime creation of
// contexts, and IDs are never reused for something else.
type ContextID uint8

const (
	ContextNone ContextID = iota
	ContextKernelMain
	ContextBackground
	ContextApp
	ContextWorker
	ContextTimer
	ContextISR

	contextCount
)

func (c ContextID) String() string {
	switch c {
	case ContextNone:
		return "none"
	case ContextKernelMain:
		return "kernel-main"
	case ContextBackground:
		return "background"
	case ContextApp:
		return "app"
	case ContextWorker:
		return "worker"
	case ContextTimer:
		return "timer"
	case ContextISR:
		return "isr"
	}
	return "invalid"
}

// Valid reports whether c names a real context (ContextNone excluded).
func (c ContextID) Valid() bool {
	return c > ContextNone && c < contextCount
}
