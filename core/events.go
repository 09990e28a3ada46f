package core

import "sync"

// EventName identifies one of the named events from spec.md §4.3.
type EventName string

const (
	EventDeputyInfoReceived   EventName = "deputy-info-received"
	EventCommandAdded         EventName = "command-added"
	EventCommandRemoved       EventName = "command-removed"
	EventCommandStatusChanged EventName = "command-status-changed"
	EventCommandGroupChanged  EventName = "command-group-changed"
	EventScriptAdded          EventName = "script-added"
	EventScriptRemoved        EventName = "script-removed"
	EventScriptStarted        EventName = "script-started"
	EventScriptFinished       EventName = "script-finished"
	EventScriptActionExecuting EventName = "script-action-executing"
)

// Callback receives the positional arguments documented for its event
// name in spec.md §4.3. Dispatch is synchronous on whatever goroutine
// calls Emit, matching the single-threaded event-loop contract (spec.md
// §5).
type Callback func(args ...interface{})

// EventRegistry is a name -> callback-list registry with synchronous
// dispatch, the mechanism spec.md §9 "Design notes" describes as option
// (a): "a registry event_name -> list of callbacks with synchronous
// dispatch".
type EventRegistry struct {
	mu        sync.Mutex
	listeners map[EventName][]Callback
}

// NewEventRegistry constructs an empty registry.
func NewEventRegistry() *EventRegistry {
	return &EventRegistry{listeners: make(map[EventName][]Callback)}
}

// On registers a callback for an event name.
func (r *EventRegistry) On(name EventName, cb Callback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners[name] = append(r.listeners[name], cb)
}

// Emit synchronously invokes every callback registered for name, in
// registration order.
func (r *EventRegistry) Emit(name EventName, args ...interface{}) {
	r.mu.Lock()
	cbs := append([]Callback(nil), r.listeners[name]...)
	r.mu.Unlock()
	for _, cb := range cbs {
		cb(args...)
	}
}
