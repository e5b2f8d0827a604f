// File: aio/reader_file.go
// Author: momentics <momentics@gmail.com>
//
// Threaded file reader: one worker goroutine fills pool buffers from
// the file and feeds the bounded FIFO the foreground drains.

package aio

import (
	"io"
	"os"
	"time"

	"github.com/zhihanii/zlog"

	"github.com/momentics/hioload-aio/api"
	"github.com/momentics/hioload-aio/internal/concurrency"
)

// FileReader reads a window of a file through pool buffers. The
// worker is spawned on open and re-spawned after seeks; reads happen
// with the reader mutex released so the foreground can drain
// concurrently.
type FileReader struct {
	threadedReader
	file  *os.File
	tasks *concurrency.TaskPool
	task  *concurrency.Task
}

// NewFileReader wraps an open file. The reader takes ownership of f.
// offset/size bound the read window; size NoSize means "to the end".
func NewFileReader(name string, pool *BufferPool, f *os.File, tasks *concurrency.TaskPool, offset, size uint64, maxBuffers int) *FileReader {
	r := &FileReader{file: f, tasks: tasks}
	r.initReader(r, name, pool, maxBuffers)
	r.initThreaded()

	if f == nil {
		r.errored = true
		return r
	}
	if fi, err := f.Stat(); err == nil && fi.Mode().IsRegular() {
		r.maxSize = uint64(fi.Size())
	}
	if !r.Seek(offset, size) {
		r.mu.Lock()
		r.errored = true
		r.mu.Unlock()
	}
	return r
}

// Seekable reports whether the underlying source has a known size.
func (r *FileReader) Seekable() bool {
	return r.maxSize != api.NoSize
}

// OnBufferAvailability wakes the worker when the pool refills.
func (r *FileReader) OnBufferAvailability(any) {
	r.wakeup()
}

func (r *FileReader) doClose() {
	r.stopWorkerLocked()
	if r.file != nil {
		r.file.Close()
		r.file = nil
	}
}

func (r *FileReader) doSeek() bool {
	r.stopWorkerLocked()
	r.quit = false

	// Pipe-like sources reject lseek even at offset 0; reading such a
	// source from the start needs no repositioning.
	if r.startOffset != 0 || r.Seekable() {
		if _, err := r.file.Seek(int64(r.startOffset), io.SeekStart); err != nil {
			return false
		}
	}
	if !r.eof {
		r.task = r.tasks.Spawn(r.entry)
	}
	return true
}

// stopWorkerLocked joins the worker with the mutex dropped around the
// join so the worker can finish its current iteration.
func (r *FileReader) stopWorkerLocked() {
	r.quit = true
	r.wakeup()
	task := r.task
	r.task = nil
	r.mu.Unlock()
	task.Join()
	r.mu.Lock()
}

func (r *FileReader) entry() {
	r.mu.Lock()
	for !r.quit && !r.errored {
		if r.buffers.Length() >= r.maxBuffers {
			r.condWait()
			continue
		}
		b := r.pool.GetBuffer(r)
		if b == nil {
			r.condWait()
			continue
		}

		for b.Buf.Size() < b.Buf.Capacity() {
			toRead := uint64(b.Buf.Capacity() - b.Buf.Size())
			if r.remaining != api.NoSize && toRead > r.remaining {
				toRead = r.remaining
			}
			r.mu.Unlock()
			var n int
			var err error
			if toRead > 0 {
				n, err = r.file.Read(b.Buf.Writable(int(toRead)))
			}
			r.mu.Lock()
			if r.quit || r.errored {
				b.Release()
				r.mu.Unlock()
				return
			}
			if err != nil && err != io.EOF {
				zlog.Errorf("reader %s: read failed: %v", r.name, err)
				r.errored = true
				break
			}
			if n == 0 {
				if r.remaining != 0 && r.remaining != api.NoSize {
					zlog.Errorf("reader %s: source ended %d bytes short", r.name, r.remaining)
					r.errored = true
				} else {
					r.eof = true
				}
				break
			}
			b.Buf.Add(n)
			if r.remaining != api.NoSize {
				r.remaining -= uint64(n)
			}
			if r.pool.metrics != nil {
				r.pool.metrics.BytesRead.Add(uint64(n))
			}
		}

		if !b.Buf.Empty() {
			r.buffers.Add(b)
			if r.buffers.Length() == 1 {
				r.SignalAvailability()
			}
		} else {
			b.Release()
		}
		if (r.eof || r.errored) && !r.quit && r.buffers.Length() == 0 {
			r.SignalAvailability()
			break
		}
		if r.eof || r.errored {
			break
		}
	}
	r.mu.Unlock()
}

// FileReaderFactory opens FileReaders over one path. The file itself
// is opened inside Open.
type FileReaderFactory struct {
	Path  string
	Tasks *concurrency.TaskPool
}

// NewFileReaderFactory uses the shared task pool.
func NewFileReaderFactory(path string) *FileReaderFactory {
	return &FileReaderFactory{Path: path, Tasks: concurrency.Default()}
}

func (f *FileReaderFactory) Clone() ReaderFactory {
	c := *f
	return &c
}

func (f *FileReaderFactory) Name() string { return f.Path }

func (f *FileReaderFactory) Open(pool *BufferPool, offset, size uint64, maxBuffers int) (Reader, error) {
	if maxBuffers <= 0 {
		maxBuffers = f.PreferredBufferCount()
	}
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, api.NewError(api.ErrCodeInit, "could not open file for reading").WithContext("path", f.Path).WithContext("cause", err)
	}
	r := NewFileReader(f.Path, pool, file, f.Tasks, offset, size, maxBuffers)
	if r.Error() {
		r.Close()
		return nil, api.NewError(api.ErrCodeRange, "requested window not readable").WithContext("path", f.Path)
	}
	return r, nil
}

func (f *FileReaderFactory) Seekable() bool { return true }

func (f *FileReaderFactory) Size() uint64 {
	fi, err := os.Stat(f.Path)
	if err != nil {
		return api.NoSize
	}
	return uint64(fi.Size())
}

func (f *FileReaderFactory) Mtime() time.Time {
	fi, err := os.Stat(f.Path)
	if err != nil {
		return time.Time{}
	}
	return fi.ModTime()
}

func (f *FileReaderFactory) MinBufferUsage() int       { return 1 }
func (f *FileReaderFactory) MultipleBufferUsage() bool { return true }
func (f *FileReaderFactory) PreferredBufferCount() int { return 4 }

var (
	_ Reader        = (*FileReader)(nil)
	_ ReaderFactory = (*FileReaderFactory)(nil)
)
