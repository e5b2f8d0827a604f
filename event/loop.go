// File: event/loop.go
// Package event implements the single-consumer cooperative event loop
// the aio demo and the sink waiters run on.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Handlers own no queue of their own: all deliveries go through one
// loop FIFO, and per-handler filtering rewrites that FIFO. This is
// what makes sink-waiter cancellation exact: removing a sink from a
// waitable drops availability events that were posted but not yet
// delivered.

package event

import (
	"sync"

	"github.com/eapache/queue"

	"github.com/momentics/hioload-aio/api"
)

type delivery struct {
	h  *Handler
	ev api.Event
}

// Loop dispatches posted events to their handlers, one at a time, on
// the goroutine that calls Run.
type Loop struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending *queue.Queue
	active  *Handler
	stopped bool
}

// NewLoop creates an idle loop; call Run to start dispatching.
func NewLoop() *Loop {
	l := &Loop{pending: queue.New()}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Run dispatches until Stop. It is the single consumer; handlers run
// on this goroutine.
func (l *Loop) Run() {
	l.mu.Lock()
	for {
		for l.pending.Length() == 0 && !l.stopped {
			l.cond.Wait()
		}
		if l.stopped {
			l.mu.Unlock()
			return
		}
		d := l.pending.Remove().(delivery)
		l.active = d.h
		l.mu.Unlock()
		d.h.fn(d.ev)
		l.mu.Lock()
		l.active = nil
		l.cond.Broadcast()
	}
}

// Stop wakes Run and makes it return. Pending events are dropped.
func (l *Loop) Stop() {
	l.mu.Lock()
	l.stopped = true
	l.cond.Broadcast()
	l.mu.Unlock()
}

func (l *Loop) post(h *Handler, ev api.Event) {
	l.mu.Lock()
	if !l.stopped {
		l.pending.Add(delivery{h: h, ev: ev})
		l.cond.Broadcast()
	}
	l.mu.Unlock()
}

// filter retains only h's events for which keep returns true. Events
// of other handlers pass through untouched.
func (l *Loop) filter(h *Handler, keep func(api.Event) bool) {
	l.mu.Lock()
	n := l.pending.Length()
	for i := 0; i < n; i++ {
		d := l.pending.Remove().(delivery)
		if d.h != h || keep(d.ev) {
			l.pending.Add(d)
		}
	}
	l.mu.Unlock()
}

// Handler receives events posted to it via the owning loop. It
// implements api.Sink, so it can be registered as an event-handler
// waiter on any waitable.
type Handler struct {
	loop *Loop
	fn   func(api.Event)
}

// NewHandler binds fn to the loop. fn runs on the loop goroutine.
func NewHandler(l *Loop, fn func(api.Event)) *Handler {
	return &Handler{loop: l, fn: fn}
}

// Post enqueues ev for this handler.
func (h *Handler) Post(ev api.Event) {
	h.loop.post(h, ev)
}

// Filter retains only queued events for which keep returns true.
func (h *Handler) Filter(keep func(api.Event) bool) {
	h.loop.filter(h, keep)
}

// Detach drops all queued events for this handler and waits for an
// in-flight delivery to finish. Call before the handler's owner is
// torn down, from outside the loop goroutine.
func (h *Handler) Detach() {
	l := h.loop
	l.mu.Lock()
	n := l.pending.Length()
	for i := 0; i < n; i++ {
		d := l.pending.Remove().(delivery)
		if d.h != h {
			l.pending.Add(d)
		}
	}
	for l.active == h {
		l.cond.Wait()
	}
	l.mu.Unlock()
}

var _ api.Sink = (*Handler)(nil)
