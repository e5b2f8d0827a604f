// File: aio/factory.go
// Author: momentics <momentics@gmail.com>
//
// Clone-able reader/writer descriptors and their value-like holders.

package aio

import (
	"time"

	"github.com/momentics/hioload-aio/api"
)

// ReaderFactory describes a source and opens readers over it. A
// factory is a value object; Clone returns an independent copy.
type ReaderFactory interface {
	Clone() ReaderFactory

	// Open creates a reader positioned at offset with a window of
	// size bytes (NoSize: to the end). maxBuffers <= 0 picks the
	// factory's preferred count.
	Open(pool *BufferPool, offset, size uint64, maxBuffers int) (Reader, error)

	Name() string
	Seekable() bool
	Size() uint64
	Mtime() time.Time

	// MinBufferUsage is the least number of pool buffers the reader
	// needs to make progress. Size the pool to at least the sum over
	// all endpoints or the pipeline may stall.
	MinBufferUsage() int

	// MultipleBufferUsage reports whether more than MinBufferUsage
	// buffers can help.
	MultipleBufferUsage() bool

	PreferredBufferCount() int
}

// WriterFactory describes a sink and opens writers over it.
type WriterFactory interface {
	Clone() WriterFactory

	// Open creates a writer. A non-zero offset requires an offsetable
	// sink; the sink is truncated at offset before the writer starts.
	Open(pool *BufferPool, offset uint64, progress ProgressFunc, maxBuffers int) (Writer, error)

	Name() string
	Offsetable() bool
	Size() uint64
	Mtime() time.Time

	// SetMtime stamps the target entity itself. Writers still open on
	// the entity may change the mtime again as they close.
	SetMtime(t time.Time) bool

	MinBufferUsage() int
	MultipleBufferUsage() bool
	PreferredBufferCount() int
}

// ViewReaderFactory opens ViewReaders over externally-owned bytes.
// The bytes must outlive the factory and all readers opened from it.
type ViewReaderFactory struct {
	FactoryName string
	View        []byte
}

func NewViewReaderFactory(name string, view []byte) *ViewReaderFactory {
	return &ViewReaderFactory{FactoryName: name, View: view}
}

func (f *ViewReaderFactory) Clone() ReaderFactory {
	c := *f
	return &c
}

func (f *ViewReaderFactory) Name() string { return f.FactoryName }

func (f *ViewReaderFactory) Open(pool *BufferPool, offset, size uint64, _ int) (Reader, error) {
	r := NewViewReader(f.FactoryName, pool, f.View)
	if offset != 0 || size != api.NoSize {
		if !r.Seek(offset, size) {
			r.Close()
			return nil, api.NewError(api.ErrCodeRange, "requested window not readable").WithContext("name", f.FactoryName)
		}
	}
	return r, nil
}

func (f *ViewReaderFactory) Seekable() bool            { return true }
func (f *ViewReaderFactory) Size() uint64              { return uint64(len(f.View)) }
func (f *ViewReaderFactory) Mtime() time.Time          { return time.Time{} }
func (f *ViewReaderFactory) MinBufferUsage() int       { return 1 }
func (f *ViewReaderFactory) MultipleBufferUsage() bool { return false }
func (f *ViewReaderFactory) PreferredBufferCount() int { return 1 }

// StringReaderFactory opens StringReaders; it owns a copy of the data.
type StringReaderFactory struct {
	FactoryName string
	Data        string
}

func NewStringReaderFactory(name, data string) *StringReaderFactory {
	return &StringReaderFactory{FactoryName: name, Data: data}
}

func (f *StringReaderFactory) Clone() ReaderFactory {
	c := *f
	return &c
}

func (f *StringReaderFactory) Name() string { return f.FactoryName }

func (f *StringReaderFactory) Open(pool *BufferPool, offset, size uint64, _ int) (Reader, error) {
	r := NewStringReader(f.FactoryName, pool, f.Data)
	if offset != 0 || size != api.NoSize {
		if !r.Seek(offset, size) {
			r.Close()
			return nil, api.NewError(api.ErrCodeRange, "requested window not readable").WithContext("name", f.FactoryName)
		}
	}
	return r, nil
}

func (f *StringReaderFactory) Seekable() bool            { return true }
func (f *StringReaderFactory) Size() uint64              { return uint64(len(f.Data)) }
func (f *StringReaderFactory) Mtime() time.Time          { return time.Time{} }
func (f *StringReaderFactory) MinBufferUsage() int       { return 1 }
func (f *StringReaderFactory) MultipleBufferUsage() bool { return false }
func (f *StringReaderFactory) PreferredBufferCount() int { return 1 }

// ReaderFactoryHolder is a nullable value wrapper around a reader
// factory: deep-clones on Copy, moves on Move.
type ReaderFactoryHolder struct {
	impl ReaderFactory
}

func NewReaderFactoryHolder(f ReaderFactory) ReaderFactoryHolder {
	return ReaderFactoryHolder{impl: f}
}

// Copy returns an independent holder with a cloned factory.
func (h ReaderFactoryHolder) Copy() ReaderFactoryHolder {
	if h.impl == nil {
		return ReaderFactoryHolder{}
	}
	return ReaderFactoryHolder{impl: h.impl.Clone()}
}

// Move transfers the factory out of h.
func (h *ReaderFactoryHolder) Move() ReaderFactoryHolder {
	out := ReaderFactoryHolder{impl: h.impl}
	h.impl = nil
	return out
}

func (h ReaderFactoryHolder) Valid() bool          { return h.impl != nil }
func (h ReaderFactoryHolder) Get() ReaderFactory   { return h.impl }
func (h ReaderFactoryHolder) Name() string {
	if h.impl == nil {
		return ""
	}
	return h.impl.Name()
}
func (h ReaderFactoryHolder) Size() uint64 {
	if h.impl == nil {
		return api.NoSize
	}
	return h.impl.Size()
}
func (h ReaderFactoryHolder) Mtime() time.Time {
	if h.impl == nil {
		return time.Time{}
	}
	return h.impl.Mtime()
}

// WriterFactoryHolder is the writer-side holder.
type WriterFactoryHolder struct {
	impl WriterFactory
}

func NewWriterFactoryHolder(f WriterFactory) WriterFactoryHolder {
	return WriterFactoryHolder{impl: f}
}

func (h WriterFactoryHolder) Copy() WriterFactoryHolder {
	if h.impl == nil {
		return WriterFactoryHolder{}
	}
	return WriterFactoryHolder{impl: h.impl.Clone()}
}

func (h *WriterFactoryHolder) Move() WriterFactoryHolder {
	out := WriterFactoryHolder{impl: h.impl}
	h.impl = nil
	return out
}

func (h WriterFactoryHolder) Valid() bool        { return h.impl != nil }
func (h WriterFactoryHolder) Get() WriterFactory { return h.impl }
func (h WriterFactoryHolder) Name() string {
	if h.impl == nil {
		return ""
	}
	return h.impl.Name()
}
func (h WriterFactoryHolder) Size() uint64 {
	if h.impl == nil {
		return api.NoSize
	}
	return h.impl.Size()
}
func (h WriterFactoryHolder) Mtime() time.Time {
	if h.impl == nil {
		return time.Time{}
	}
	return h.impl.Mtime()
}

var (
	_ ReaderFactory = (*ViewReaderFactory)(nil)
	_ ReaderFactory = (*StringReaderFactory)(nil)
)
