// File: aio/waitable.go
// Author: momentics <momentics@gmail.com>
//
// Notification substrate: one availability signal per waiter
// registration, cancellation-safe.

package aio

import (
	"runtime"
	"sync"

	"github.com/momentics/hioload-aio/api"
)

// Waitable is embedded by everything that can be waited on: the buffer
// pool, readers and writers. Each AddWaiter/AddSink registration is an
// independent entitlement to exactly one signal.
//
// The embedding type must call initWaitable with itself so that
// signals identify the outer object, not the embedded struct.
type Waitable struct {
	wmu        sync.Mutex
	waiters    []api.Waiter
	sinks      []api.Sink
	signalling api.Waiter
	self       any
}

func (w *Waitable) initWaitable(self any) {
	w.self = self
}

// AddWaiter records a direct waiter. Duplicates are permitted; each
// registration yields one signal.
func (w *Waitable) AddWaiter(h api.Waiter) {
	w.wmu.Lock()
	w.waiters = append(w.waiters, h)
	w.wmu.Unlock()
}

// AddSink records an event-handler waiter.
func (w *Waitable) AddSink(s api.Sink) {
	w.wmu.Lock()
	w.sinks = append(w.sinks, s)
	w.wmu.Unlock()
}

// RemoveWaiter erases every registration of h. If h is being signalled
// right now, RemoveWaiter blocks until the callback has returned, so
// that after return no signal can reach h.
func (w *Waitable) RemoveWaiter(h api.Waiter) {
	w.wmu.Lock()
	for w.signalling == h {
		w.wmu.Unlock()
		runtime.Gosched()
		w.wmu.Lock()
	}
	kept := w.waiters[:0]
	for _, r := range w.waiters {
		if r != h {
			kept = append(kept, r)
		}
	}
	w.waiters = kept
	w.wmu.Unlock()
}

// RemoveSink erases every registration of s and drops any
// availability event from this waitable still queued at s.
func (w *Waitable) RemoveSink(s api.Sink) {
	w.wmu.Lock()
	w.dropPendingEvents(s)
	kept := w.sinks[:0]
	for _, r := range w.sinks {
		if r != s {
			kept = append(kept, r)
		}
	}
	w.sinks = kept
	w.wmu.Unlock()
}

// RemoveWaiters detaches all waiters and sinks. Call during teardown of
// the embedding object, before it becomes invalid.
func (w *Waitable) RemoveWaiters() {
	w.wmu.Lock()
	for w.signalling != nil {
		w.wmu.Unlock()
		runtime.Gosched()
		w.wmu.Lock()
	}
	w.waiters = w.waiters[:0]
	for _, s := range w.sinks {
		w.dropPendingEvents(s)
	}
	w.sinks = w.sinks[:0]
	w.wmu.Unlock()
}

func (w *Waitable) dropPendingEvents(s api.Sink) {
	s.Filter(func(ev api.Event) bool {
		if bae, ok := ev.(api.BufferAvailableEvent); ok {
			return bae.Source != w.self
		}
		return true
	})
}

// SignalAvailability delivers at most one signal. The most recently
// registered direct waiter wins; failing that, the most recently
// registered sink gets a BufferAvailableEvent. Call once per resource
// transition, with the embedding object's own mutex held if the
// transition must stay ordered; the waitable lock is dropped around
// the callback itself.
func (w *Waitable) SignalAvailability() {
	w.wmu.Lock()
	if n := len(w.waiters); n > 0 {
		h := w.waiters[n-1]
		w.waiters = w.waiters[:n-1]
		w.signalling = h
		w.wmu.Unlock()
		h.OnBufferAvailability(w.self)
		w.wmu.Lock()
		w.signalling = nil
		w.wmu.Unlock()
		return
	}
	if n := len(w.sinks); n > 0 {
		s := w.sinks[n-1]
		w.sinks = w.sinks[:n-1]
		s.Post(api.BufferAvailableEvent{Source: w.self})
	}
	w.wmu.Unlock()
}
