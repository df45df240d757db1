package kernel

import "sync"

// Kind is the event type discriminant. Values are allocated centrally (see
// quartzos/proto) so collaborators cannot collide.
type Kind uint16

// Event is the fixed-shape envelope routed between contexts.
//
// A and B carry variant-specific inline payload. Ptr optionally carries an
// owned pointer; ownership transfers with the event and the holder must
// release it exactly once, either by consuming it or through
// CleanupRegistry.Release when the event is discarded.
type Event struct {
	Kind   Kind
	Source ContextID
	A, B   uint32
	Ptr    any
}

// stripped returns the identity of the event for diagnostics, without
// prolonging the life of any owned payload.
func (ev Event) stripped() Event {
	ev.Ptr = nil
	return ev
}

// Cleanup releases an owned event payload.
type Cleanup func(ptr any)

// CleanupRegistry maps event kinds to the cleanup routine for their owned
// payloads. Collaborators register a routine for each kind they produce that
// carries a Ptr; the router invokes it for events it has to discard.
//
// Constructed once at startup and shared by reference; there is no package
// global.
type CleanupRegistry struct {
	mu  sync.RWMutex
	fns map[Kind]Cleanup
}

func NewCleanupRegistry() *CleanupRegistry {
	return &CleanupRegistry{fns: make(map[Kind]Cleanup)}
}

// Register installs the cleanup routine for kind. The last registration for
// a kind wins.
func (r *CleanupRegistry) Register(kind Kind, fn Cleanup) {
	r.mu.Lock()
	r.fns[kind] = fn
	r.mu.Unlock()
}

// Release invokes the registered cleanup for the event's owned payload, if
// any, and clears the Ptr slot so a second Release is a no-op.
func (r *CleanupRegistry) Release(ev *Event) {
	if r == nil || ev == nil || ev.Ptr == nil {
		return
	}
	r.mu.RLock()
	fn := r.fns[ev.Kind]
	r.mu.RUnlock()
	if fn != nil {
		fn(ev.Ptr)
	}
	ev.Ptr = nil
}
