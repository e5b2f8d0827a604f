// File: aio/reader_view.go
// Author: momentics <momentics@gmail.com>
//
// Non-threaded readers over in-memory bytes: ViewReader borrows the
// bytes, StringReader owns a copy. Both are seekable and use a single
// buffer at a time.

package aio

import (
	"github.com/momentics/hioload-aio/api"
)

// ViewReader reads an externally-owned byte view. The view must stay
// alive and unchanged for the lifetime of the reader.
type ViewReader struct {
	readerBase
	view []byte
}

// NewViewReader creates a reader over data.
func NewViewReader(name string, pool *BufferPool, data []byte) *ViewReader {
	r := &ViewReader{view: data}
	r.initReader(r, name, pool, 1)
	r.initView(uint64(len(data)))
	return r
}

func (r *readerBase) initView(n uint64) {
	r.size = n
	r.maxSize = n
	r.remaining = n
	r.startOffset = 0
	if n == 0 {
		r.eof = true
	}
}

func (r *ViewReader) Seekable() bool { return true }

func (r *ViewReader) doClose() {}
func (r *ViewReader) doSeek() bool {
	return true
}

// OnBufferAvailability propagates pool availability to this reader's
// own waiters.
func (r *ViewReader) OnBufferAvailability(any) {
	r.SignalAvailability()
}

func (r *ViewReader) doGetBuffer() (api.Result, *BufferLease) {
	return copyOutLocked(&r.readerBase, r.view)
}

// copyOutLocked serves one buffer worth of bytes from data according
// to the base window state. Reader mutex held.
func copyOutLocked(r *readerBase, data []byte) (api.Result, *BufferLease) {
	if r.errored {
		return api.ResultError, nil
	}
	if r.eof {
		return api.ResultOK, nil
	}

	b := r.pool.GetBuffer(r.selfWaiter)
	if b == nil {
		return api.ResultWait, nil
	}

	toRead := uint64(b.Buf.Capacity())
	if r.remaining < toRead {
		toRead = r.remaining
	}
	consumed := r.size - r.remaining
	from := r.startOffset + consumed
	b.Buf.Append(data[from : from+toRead])
	r.remaining -= toRead
	if r.remaining == 0 {
		r.eof = true
	}
	r.getBufferCalled = true
	return api.ResultOK, b
}

// StringReader owns a copy of its bytes.
type StringReader struct {
	readerBase
	data []byte
}

// NewStringReader creates a reader over a copy of data.
func NewStringReader(name string, pool *BufferPool, data string) *StringReader {
	r := &StringReader{data: []byte(data)}
	r.initReader(r, name, pool, 1)
	r.initView(uint64(len(data)))
	return r
}

func (r *StringReader) Seekable() bool { return true }

func (r *StringReader) doClose() {}
func (r *StringReader) doSeek() bool {
	return true
}

func (r *StringReader) OnBufferAvailability(any) {
	r.SignalAvailability()
}

func (r *StringReader) doGetBuffer() (api.Result, *BufferLease) {
	return copyOutLocked(&r.readerBase, r.data)
}

var (
	_ Reader = (*ViewReader)(nil)
	_ Reader = (*StringReader)(nil)
)
