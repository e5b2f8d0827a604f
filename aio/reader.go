// File: aio/reader.go
// Author: momentics <momentics@gmail.com>
//
// Reader base: bounded FIFO of filled leases, the seek/rewind state
// machine and the shared threaded-reader pull path.

package aio

import (
	"sync"
	"time"

	"github.com/eapache/queue"

	"github.com/momentics/hioload-aio/api"
)

// Reader produces a lazy sequence of filled buffer leases from some
// source. Payloads arrive in strictly ascending source-byte order.
type Reader interface {
	// GetBuffer returns the next chunk. ResultOK with a nil lease
	// means end of data. After ResultWait, do not call again until w
	// has been signalled.
	GetBuffer(w api.Waiter) (api.Result, *BufferLease)
	GetBufferEvent(s api.Sink) (api.Result, *BufferLease)

	// Seek repositions the read window to [offset, offset+size).
	// A failed seek leaves the reader in an undefined state; close it.
	Seek(offset, size uint64) bool

	// Rewind restarts the current window. Only seekable readers can
	// rewind after data was delivered.
	Rewind() bool

	Seekable() bool
	Size() uint64
	Mtime() time.Time
	Name() string
	Error() bool
	Close()

	RemoveWaiter(w api.Waiter)
	RemoveSink(s api.Sink)
}

// readerHooks are the subclass points of the reader base. All hooks
// run with the reader mutex held.
type readerHooks interface {
	doGetBuffer() (api.Result, *BufferLease)
	doSeek() bool
	doClose()
	Seekable() bool
}

type readerBase struct {
	Waitable

	mu   sync.Mutex
	pool *BufferPool
	name string

	maxBuffers int
	buffers    *queue.Queue // of *BufferLease

	size        uint64
	maxSize     uint64
	startOffset uint64
	remaining   uint64

	getBufferCalled bool
	errored         bool
	eof             bool

	hooks      readerHooks
	selfWaiter api.Waiter
}

// initReader wires the embedding reader. self must be the outermost
// type; it doubles as the pool waiter identity.
func (r *readerBase) initReader(self readerHooks, name string, pool *BufferPool, maxBuffers int) {
	if maxBuffers < 1 {
		maxBuffers = 1
	}
	r.pool = pool
	r.name = name
	r.maxBuffers = maxBuffers
	r.buffers = queue.New()
	r.size = api.NoSize
	r.maxSize = api.NoSize
	r.startOffset = api.NoSize
	r.remaining = api.NoSize
	r.hooks = self
	r.selfWaiter, _ = self.(api.Waiter)
	r.initWaitable(self)
}

func (r *readerBase) Name() string { return r.name }

func (r *readerBase) Error() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errored
}

// Size returns the size of the current read window, NoSize if
// indetermined.
func (r *readerBase) Size() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Mtime is indetermined on the base; factories report source mtimes.
func (r *readerBase) Mtime() time.Time { return time.Time{} }

func (r *readerBase) GetBuffer(w api.Waiter) (api.Result, *BufferLease) {
	r.mu.Lock()
	res, l := r.hooks.doGetBuffer()
	if res == api.ResultWait {
		r.AddWaiter(w)
	}
	r.mu.Unlock()
	return res, l
}

func (r *readerBase) GetBufferEvent(s api.Sink) (api.Result, *BufferLease) {
	r.mu.Lock()
	res, l := r.hooks.doGetBuffer()
	if res == api.ResultWait {
		r.AddSink(s)
	}
	r.mu.Unlock()
	return res, l
}

func (r *readerBase) Seekable() bool { return false }

// Rewind restarts the current window from its beginning.
func (r *readerBase) Rewind() bool {
	r.mu.Lock()
	offset, size := r.startOffset, r.size
	r.mu.Unlock()
	return r.Seek(offset, size)
}

// Seek validates and installs a new read window. When nothing
// effectively changes, buffered data is preserved. Non-seekable
// readers only accept a first seek to offset 0.
func (r *readerBase) Seek(offset, size uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if offset == api.NoSize {
		if r.startOffset == api.NoSize {
			offset = 0
		} else {
			offset = r.startOffset
		}
		if size == api.NoSize {
			size = r.size
		}
	}

	if size != api.NoSize && api.NoSize-size <= offset {
		// offset+size overflows into the sentinel
		return false
	}
	if size != api.NoSize && offset+size > r.maxSize {
		return false
	}

	if r.errored {
		return false
	}

	change := r.getBufferCalled
	if offset != r.startOffset {
		change = true
	}
	if size == api.NoSize {
		if offset+r.size != r.maxSize {
			change = true
		}
	} else if size != r.size {
		change = true
	}
	if !change {
		return true
	}

	if !r.hooks.Seekable() {
		if r.startOffset != api.NoSize || offset != 0 {
			return false
		}
	}

	r.pool.RemoveWaiter(r.selfWaiter)
	r.RemoveWaiters()
	r.clearBuffersLocked()

	r.startOffset = offset
	if size != api.NoSize {
		r.size = size
	} else {
		r.size = r.maxSize
		if r.size != api.NoSize {
			r.size -= r.startOffset
		}
	}
	r.remaining = r.size
	r.eof = r.remaining == 0
	r.getBufferCalled = false

	return r.hooks.doSeek()
}

// Close tears the reader down: stops the subclass, detaches from the
// pool, drops all waiters and returns buffered leases. Idempotent.
func (r *readerBase) Close() {
	r.mu.Lock()
	r.hooks.doClose()
	r.pool.RemoveWaiter(r.selfWaiter)
	r.RemoveWaiters()
	r.clearBuffersLocked()
	r.mu.Unlock()
}

func (r *readerBase) clearBuffersLocked() {
	for r.buffers.Length() > 0 {
		r.buffers.Remove().(*BufferLease).Release()
	}
}

// threadedReader adds the worker wake channel and the shared pull
// path for readers that fill buffers on a background worker.
type threadedReader struct {
	readerBase
	wake chan struct{}
	quit bool
}

func (r *threadedReader) initThreaded() {
	r.wake = make(chan struct{}, 1)
}

// wakeup nudges the worker; safe to call with or without the mutex.
func (r *threadedReader) wakeup() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// condWait parks until the next wakeup. Caller holds the mutex.
func (r *threadedReader) condWait() {
	r.mu.Unlock()
	<-r.wake
	r.mu.Lock()
}

func (r *threadedReader) doGetBuffer() (api.Result, *BufferLease) {
	if r.buffers.Length() == 0 {
		if r.errored {
			return api.ResultError, nil
		}
		if r.eof {
			return api.ResultOK, nil
		}
		return api.ResultWait, nil
	}
	wasFull := r.buffers.Length() == r.maxBuffers
	b := r.buffers.Remove().(*BufferLease)
	if wasFull {
		r.wakeup()
	}
	r.getBufferCalled = true
	return api.ResultOK, b
}
