// File: api/waiter.go
// Author: momentics <momentics@gmail.com>
//
// Waiter and sink contracts of the notification substrate.
//
// A resource that runs dry (buffer pool empty, reader FIFO drained,
// writer FIFO full) records the caller as waiting. When the resource
// becomes available again, exactly one signal is delivered per
// registration: direct waiters get a callback, sinks get a posted
// BufferAvailableEvent.

package api

// Event is anything posted to a Sink. Concrete event types are plain
// structs, matched by type assertion on the receiving side.
type Event any

// Waiter receives the direct availability callback.
type Waiter interface {
	// OnBufferAvailability is invoked from an unspecified goroutine.
	// Only use it to signal the target goroutine; in particular, never
	// call back into the signalling object from here.
	OnBufferAvailability(src any)
}

// Sink is an event-handler waiter: instead of a callback it receives a
// BufferAvailableEvent posted to its event queue.
type Sink interface {
	// Post enqueues an event for the sink.
	Post(ev Event)

	// Filter retains only queued events for which keep returns true.
	// Needed when a waitable removes a sink: an availability event may
	// already have been posted and must not be delivered afterwards.
	Filter(keep func(Event) bool)
}

// BufferAvailableEvent tells a sink that the identified resource has
// something available again. Source is the waitable that signalled,
// e.g. a *aio.BufferPool or a reader.
type BufferAvailableEvent struct {
	Source any
}
