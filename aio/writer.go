// File: aio/writer.go
// Author: momentics <momentics@gmail.com>
//
// Writer base: bounded FIFO of pending leases, the finalize tri-state
// and the shared threaded-writer push path.

package aio

import (
	"sync"
	"time"

	"github.com/eapache/queue"

	"github.com/momentics/hioload-aio/api"
)

// ProgressFunc is invoked after every successful write chunk with the
// number of bytes just written. It must not call back into the
// writer; update counters, optionally post an event.
type ProgressFunc func(written uint64)

// Writer drains filled buffer leases to a sink, in exactly the order
// AddBuffer accepted them.
type Writer interface {
	// AddBuffer hands a lease over. Nil and empty leases are accepted
	// and ignored. After ResultWait, do not call again until w has
	// been signalled; the lease was still taken.
	AddBuffer(l *BufferLease, w api.Waiter) api.Result
	AddBufferEvent(l *BufferLease, s api.Sink) api.Result

	// Finalize drains pending data and completes the sink. ResultOK
	// means everything is on the sink; repeat after a signal on
	// ResultWait. Once finalized, further AddBuffer calls fail.
	Finalize(w api.Waiter) api.Result
	FinalizeEvent(s api.Sink) api.Result

	// Preallocate reserves sink space. Valid only before the first
	// buffer and before finalize.
	Preallocate(size uint64) api.Result

	// SetMtime stamps the sink; only valid after Finalize returned
	// ResultOK.
	SetMtime(t time.Time) bool

	Name() string
	Error() bool
	Close()

	RemoveWaiter(w api.Waiter)
	RemoveSink(s api.Sink)
}

// writerHooks are the subclass points of the writer base; all run
// with the writer mutex held.
type writerHooks interface {
	doAddBuffer(l *BufferLease) api.Result
	doFinalize() api.Result
	doClose()
}

type writerBase struct {
	Waitable

	mu   sync.Mutex
	pool *BufferPool
	name string

	maxBuffers int
	buffers    *queue.Queue // of *BufferLease

	errored    bool
	closed     bool
	finalizing uint8 // 0 running, 1 drain requested, 2 drained

	progress ProgressFunc
	hooks    writerHooks
}

func (w *writerBase) initWriter(self writerHooks, name string, pool *BufferPool, progress ProgressFunc, maxBuffers int) {
	if maxBuffers < 1 {
		maxBuffers = 1
	}
	w.pool = pool
	w.name = name
	w.maxBuffers = maxBuffers
	w.buffers = queue.New()
	w.progress = progress
	w.hooks = self
	w.initWaitable(self)
}

func (w *writerBase) Name() string { return w.name }

func (w *writerBase) Error() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.errored
}

func (w *writerBase) AddBuffer(l *BufferLease, waiter api.Waiter) api.Result {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.errored || w.finalizing != 0 {
		// Ownership transfers on the call even when rejected.
		l.Release()
		return api.ResultError
	}
	if !l.Valid() || l.Buf.Empty() {
		l.Release()
		return api.ResultOK
	}
	r := w.hooks.doAddBuffer(l)
	if r == api.ResultWait {
		w.AddWaiter(waiter)
	}
	return r
}

func (w *writerBase) AddBufferEvent(l *BufferLease, s api.Sink) api.Result {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.errored || w.finalizing != 0 {
		l.Release()
		return api.ResultError
	}
	if !l.Valid() || l.Buf.Empty() {
		l.Release()
		return api.ResultOK
	}
	r := w.hooks.doAddBuffer(l)
	if r == api.ResultWait {
		w.AddSink(s)
	}
	return r
}

func (w *writerBase) Finalize(waiter api.Waiter) api.Result {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		panic("aio: finalize on closed writer")
	}
	r := w.hooks.doFinalize()
	if r == api.ResultWait {
		w.AddWaiter(waiter)
	}
	return r
}

func (w *writerBase) FinalizeEvent(s api.Sink) api.Result {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		panic("aio: finalize on closed writer")
	}
	r := w.hooks.doFinalize()
	if r == api.ResultWait {
		w.AddSink(s)
	}
	return r
}

// Preallocate is rejected by sinks without storage reservation.
func (w *writerBase) Preallocate(uint64) api.Result { return api.ResultError }

// SetMtime is unsupported on the base.
func (w *writerBase) SetMtime(time.Time) bool { return false }

// Close tears the writer down and returns pending leases. Idempotent.
func (w *writerBase) Close() {
	w.mu.Lock()
	w.closed = true
	w.hooks.doClose()
	w.RemoveWaiters()
	w.clearBuffersLocked()
	w.mu.Unlock()
}

func (w *writerBase) clearBuffersLocked() {
	for w.buffers.Length() > 0 {
		w.buffers.Remove().(*BufferLease).Release()
	}
}

// threadedWriter adds the worker wake channel and the shared push
// path for writers that drain on a background worker.
type threadedWriter struct {
	writerBase
	wake chan struct{}
	quit bool
}

func (w *threadedWriter) initThreaded() {
	w.wake = make(chan struct{}, 1)
}

func (w *threadedWriter) wakeup() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *threadedWriter) condWait() {
	w.mu.Unlock()
	<-w.wake
	w.mu.Lock()
}

func (w *threadedWriter) doAddBuffer(l *BufferLease) api.Result {
	w.buffers.Add(l)
	if w.buffers.Length() == 1 {
		w.wakeup()
	}
	if w.buffers.Length() >= w.maxBuffers {
		return api.ResultWait
	}
	return api.ResultOK
}

// continueFinalize decides how far along the drain is; overridden by
// subclasses with post-drain work.
type finalizeHooks interface {
	continueFinalize() api.Result
}

func (w *threadedWriter) doFinalize() api.Result {
	if w.errored {
		return api.ResultError
	}
	if w.finalizing == 2 {
		return api.ResultOK
	}
	w.finalizing = 1
	if h, ok := w.hooks.(finalizeHooks); ok {
		return h.continueFinalize()
	}
	if w.buffers.Length() > 0 {
		return api.ResultWait
	}
	return api.ResultOK
}
