// File: aio/writer_file.go
// Author: momentics <momentics@gmail.com>
//
// Threaded file writer: one worker goroutine drains the pending FIFO
// to the file; finalize optionally fsyncs; close truncates away a
// preallocated tail and deletes a never-written fresh file.

package aio

import (
	"io"
	"os"
	"time"

	"github.com/zhihanii/zlog"

	"github.com/momentics/hioload-aio/api"
	"github.com/momentics/hioload-aio/internal/concurrency"
)

// FileWriterFlags adjust how file writers open and complete sinks.
type FileWriterFlags uint

const (
	// FileWriterFsync syncs file contents to disk during finalize.
	FileWriterFsync FileWriterFlags = 1 << iota

	// FileWriterCurrentUserOnly restricts the sink to the owning user.
	FileWriterCurrentUserOnly
)

// FileWriter drains leases into a file. Writes happen with the writer
// mutex released so the foreground can enqueue concurrently.
type FileWriter struct {
	threadedWriter
	file         *os.File
	fsync        bool
	preallocated bool
	task         *concurrency.Task
}

// NewFileWriter wraps an open file positioned where writing should
// start. The writer takes ownership of f and spawns its worker.
func NewFileWriter(name string, pool *BufferPool, f *os.File, tasks *concurrency.TaskPool, fsync bool, progress ProgressFunc, maxBuffers int) *FileWriter {
	w := &FileWriter{file: f, fsync: fsync}
	w.initWriter(w, name, pool, progress, maxBuffers)
	w.initThreaded()
	if f == nil {
		w.errored = true
		return w
	}
	w.task = tasks.Spawn(w.entry)
	return w
}

func (w *FileWriter) continueFinalize() api.Result {
	if w.file == nil {
		w.errored = true
		return api.ResultError
	}
	if w.fsync && w.buffers.Length() == 0 {
		w.wakeup()
	}
	if w.buffers.Length() > 0 || w.fsync {
		return api.ResultWait
	}
	// Every lease has been written; the parked worker will not run the
	// drain step, so complete the finalize here.
	w.finalizing = 2
	return api.ResultOK
}

func (w *FileWriter) doClose() {
	w.stopWorkerLocked()
	if w.file == nil {
		return
	}
	remove := false
	pos, perr := w.file.Seek(0, io.SeekCurrent)
	if w.finalizing == 0 && perr == nil && pos == 0 {
		// Freshly created file to which nothing has been written.
		remove = true
	} else if w.preallocated {
		// Writing may have stopped before the preallocated region was
		// filled; never leave the tail garbage behind.
		if perr == nil {
			w.file.Truncate(pos)
		}
	}
	w.file.Close()
	w.file = nil
	if remove {
		zlog.Infof("writer %s: deleting empty file", w.name)
		os.Remove(w.name)
	}
}

func (w *FileWriter) stopWorkerLocked() {
	w.quit = true
	w.wakeup()
	task := w.task
	w.task = nil
	w.mu.Unlock()
	task.Join()
	w.mu.Lock()
}

func (w *FileWriter) entry() {
	w.mu.Lock()
	for !w.quit && !w.errored {
		if w.buffers.Length() == 0 {
			if w.finalizing == 1 {
				w.finalizing = 2
				if w.fsync {
					if err := w.file.Sync(); err != nil {
						zlog.Errorf("writer %s: could not sync to disk: %v", w.name, err)
						w.errored = true
					}
				}
				w.SignalAvailability()
				break
			}
			w.condWait()
			continue
		}
		b := w.buffers.Peek().(*BufferLease)
		for !b.Buf.Empty() {
			w.mu.Unlock()
			n, err := w.file.Write(b.Buf.Readable())
			w.mu.Lock()
			if w.quit || w.errored {
				w.mu.Unlock()
				return
			}
			if n <= 0 || err != nil {
				zlog.Errorf("writer %s: write failed: %v", w.name, err)
				w.errored = true
				w.mu.Unlock()
				return
			}
			b.Buf.Consume(n)
			if w.pool.metrics != nil {
				w.pool.metrics.BytesWritten.Add(uint64(n))
			}
			if w.progress != nil {
				w.progress(uint64(n))
			}
		}
		signal := w.buffers.Length() == w.maxBuffers
		w.buffers.Remove()
		b.Release()
		if signal {
			w.SignalAvailability()
		}
	}
	w.mu.Unlock()
}

// Preallocate reserves size bytes past the current position. Only
// valid before the first buffer and before finalize.
func (w *FileWriter) Preallocate(size uint64) api.Result {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.errored || w.buffers.Length() > 0 || w.finalizing != 0 {
		return api.ResultError
	}

	zlog.Infof("writer %s: preallocating %d bytes", w.name, size)

	pos, err := w.file.Seek(0, io.SeekCurrent)
	if err != nil {
		return api.ResultError
	}
	end := pos + int64(size)
	if _, err := w.file.Seek(end, io.SeekStart); err == nil {
		if terr := w.file.Truncate(end); terr != nil {
			zlog.Errorf("writer %s: could not preallocate: %v", w.name, terr)
		}
	}
	if _, err := w.file.Seek(pos, io.SeekStart); err != nil {
		zlog.Errorf("writer %s: could not seek back to %d: %v", w.name, pos, err)
		w.errored = true
		return api.ResultError
	}
	w.preallocated = true
	return api.ResultOK
}

// SetMtime stamps the sink file; only valid after a completed
// finalize.
func (w *FileWriter) SetMtime(t time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.errored || w.finalizing != 2 || w.file == nil {
		return false
	}
	return os.Chtimes(w.name, t, t) == nil
}

// FileWriterFactory opens FileWriters over one path.
type FileWriterFactory struct {
	Path  string
	Tasks *concurrency.TaskPool
	Flags FileWriterFlags
}

// NewFileWriterFactory uses the shared task pool.
func NewFileWriterFactory(path string, flags FileWriterFlags) *FileWriterFactory {
	return &FileWriterFactory{Path: path, Tasks: concurrency.Default(), Flags: flags}
}

func (f *FileWriterFactory) Clone() WriterFactory {
	c := *f
	return &c
}

func (f *FileWriterFactory) Name() string { return f.Path }

func (f *FileWriterFactory) Open(pool *BufferPool, offset uint64, progress ProgressFunc, maxBuffers int) (Writer, error) {
	if maxBuffers <= 0 {
		maxBuffers = f.PreferredBufferCount()
	}

	perm := os.FileMode(0o644)
	if f.Flags&FileWriterCurrentUserOnly != 0 {
		perm = 0o600
	}
	mode := os.O_WRONLY | os.O_CREATE
	if offset == 0 {
		mode |= os.O_TRUNC
	}
	file, err := os.OpenFile(f.Path, mode, perm)
	if err != nil {
		return nil, api.NewError(api.ErrCodeInit, "could not open file for writing").WithContext("path", f.Path).WithContext("cause", err)
	}
	if offset != 0 {
		if _, err := file.Seek(int64(offset), io.SeekStart); err != nil {
			zlog.Errorf("writer %s: could not seek to offset %d: %v", f.Path, offset, err)
			file.Close()
			return nil, api.NewError(api.ErrCodeIO, "could not seek to offset").WithContext("path", f.Path)
		}
		if err := file.Truncate(int64(offset)); err != nil {
			zlog.Errorf("writer %s: could not truncate to offset %d: %v", f.Path, offset, err)
			file.Close()
			return nil, api.NewError(api.ErrCodeIO, "could not truncate to offset").WithContext("path", f.Path)
		}
	}
	return NewFileWriter(f.Path, pool, file, f.Tasks, f.Flags&FileWriterFsync != 0, progress, maxBuffers), nil
}

func (f *FileWriterFactory) Offsetable() bool { return true }

func (f *FileWriterFactory) Size() uint64 {
	fi, err := os.Stat(f.Path)
	if err != nil {
		return api.NoSize
	}
	return uint64(fi.Size())
}

func (f *FileWriterFactory) Mtime() time.Time {
	fi, err := os.Stat(f.Path)
	if err != nil {
		return time.Time{}
	}
	return fi.ModTime()
}

func (f *FileWriterFactory) SetMtime(t time.Time) bool {
	return os.Chtimes(f.Path, t, t) == nil
}

func (f *FileWriterFactory) MinBufferUsage() int       { return 1 }
func (f *FileWriterFactory) MultipleBufferUsage() bool { return true }
func (f *FileWriterFactory) PreferredBufferCount() int { return 4 }

var (
	_ Writer        = (*FileWriter)(nil)
	_ WriterFactory = (*FileWriterFactory)(nil)
)
