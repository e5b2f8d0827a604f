// File: aio/writer_buffer.go
// Author: momentics <momentics@gmail.com>
//
// In-memory sink writer: appends incoming leases into a caller-owned
// buffer, bounded by a size limit. Runs entirely on the calling
// goroutine.

package aio

import (
	"bytes"
	"time"

	"github.com/momentics/hioload-aio/api"
)

// BufferWriter appends lease payloads into sink. The sink must live
// longer than the writer, and must not be touched from other
// goroutines while the writer exists.
type BufferWriter struct {
	writerBase
	sink      *bytes.Buffer
	sizeLimit int
}

// NewBufferWriter creates a writer over sink with the given limit.
func NewBufferWriter(sink *bytes.Buffer, name string, pool *BufferPool, sizeLimit int, progress ProgressFunc) *BufferWriter {
	w := &BufferWriter{sink: sink, sizeLimit: sizeLimit}
	w.initWriter(w, name, pool, progress, 1)
	return w
}

// Preallocate reserves capacity in the sink, bounded by the limit.
func (w *BufferWriter) Preallocate(size uint64) api.Result {
	if size > uint64(w.sizeLimit) {
		return api.ResultError
	}
	w.sink.Grow(int(size))
	return api.ResultOK
}

func (w *BufferWriter) doAddBuffer(l *BufferLease) api.Result {
	defer l.Release()
	n := l.Buf.Size()
	if w.sizeLimit-w.sink.Len() < n {
		w.errored = true
		return api.ResultError
	}
	w.sink.Write(l.Buf.Readable())
	if w.pool.metrics != nil {
		w.pool.metrics.BytesWritten.Add(uint64(n))
	}
	if w.progress != nil {
		w.progress(uint64(n))
	}
	return api.ResultOK
}

func (w *BufferWriter) doFinalize() api.Result {
	if w.errored {
		return api.ResultError
	}
	w.finalizing = 2
	return api.ResultOK
}

func (w *BufferWriter) doClose() {}

// BufferWriterFactory opens BufferWriters over one caller-owned sink.
// Never open two writers over the same sink at the same time.
type BufferWriterFactory struct {
	Sink        *bytes.Buffer
	FactoryName string
	SizeLimit   int
}

func NewBufferWriterFactory(sink *bytes.Buffer, name string, sizeLimit int) *BufferWriterFactory {
	return &BufferWriterFactory{Sink: sink, FactoryName: name, SizeLimit: sizeLimit}
}

func (f *BufferWriterFactory) Clone() WriterFactory {
	c := *f
	return &c
}

func (f *BufferWriterFactory) Name() string { return f.FactoryName }

func (f *BufferWriterFactory) Open(pool *BufferPool, offset uint64, progress ProgressFunc, _ int) (Writer, error) {
	if offset != 0 {
		return nil, api.NewError(api.ErrCodeNotSupported, "buffer sink is not offsetable").WithContext("name", f.FactoryName)
	}
	return NewBufferWriter(f.Sink, f.FactoryName, pool, f.SizeLimit, progress), nil
}

func (f *BufferWriterFactory) Offsetable() bool          { return false }
func (f *BufferWriterFactory) Size() uint64              { return api.NoSize }
func (f *BufferWriterFactory) Mtime() time.Time          { return time.Time{} }
func (f *BufferWriterFactory) SetMtime(time.Time) bool   { return false }
func (f *BufferWriterFactory) MinBufferUsage() int       { return 1 }
func (f *BufferWriterFactory) MultipleBufferUsage() bool { return false }
func (f *BufferWriterFactory) PreferredBufferCount() int { return 1 }

var (
	_ Writer        = (*BufferWriter)(nil)
	_ WriterFactory = (*BufferWriterFactory)(nil)
)
