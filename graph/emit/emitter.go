package emit

// Emitter receives observability events from the engine.
//
// Implementations should be non-blocking, thread-safe (events for
// distinct runs may arrive concurrently), and resilient: Emit must not
// panic, and a failing backend must not take the run down with it.
type Emitter interface {
	// Emit delivers one event to the backend.
	Emit(event Event)
}
