package aio

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/momentics/hioload-aio/api"
)

func TestBufferWriter_RoundTrip(t *testing.T) {
	pool := newTestPool(t, 2, 4096)
	data := []byte("roundtrip through the in-memory sink")
	r := NewViewReader("src", pool, data)
	defer r.Close()

	var sink bytes.Buffer
	w := NewBufferWriter(&sink, "sink", pool, 1<<20, nil)
	defer w.Close()

	total := pump(t, r, w)
	if total != uint64(len(data)) {
		t.Fatalf("moved %d bytes", total)
	}
	if !bytes.Equal(sink.Bytes(), data) {
		t.Fatalf("sink mismatch: %q", sink.Bytes())
	}
}

func TestBufferWriter_QuotaExceeded(t *testing.T) {
	pool := newTestPool(t, 1, 4096)
	r := NewViewReader("src", pool, []byte("0123456789"))
	defer r.Close()

	var sink bytes.Buffer
	w := NewBufferWriter(&sink, "sink", pool, 4, nil)
	defer w.Close()

	rw := newCountingWaiter()
	ww := newCountingWaiter()
	res, b := r.GetBuffer(rw)
	if res != api.ResultOK || b == nil {
		t.Fatalf("get: %v", res)
	}
	if got := w.AddBuffer(b, ww); got != api.ResultError {
		t.Fatalf("expected quota error, got %v", got)
	}
	if !w.Error() {
		t.Fatal("writer must be errored")
	}
	if got := w.AddBuffer(nil, ww); got != api.ResultError {
		t.Fatal("errored writer must reject further buffers")
	}
}

func TestBufferWriter_Preallocate(t *testing.T) {
	pool := newTestPool(t, 1, 4096)
	var sink bytes.Buffer
	w := NewBufferWriter(&sink, "sink", pool, 100, nil)
	defer w.Close()

	if w.Preallocate(50) != api.ResultOK {
		t.Fatal("preallocate within limit must succeed")
	}
	if w.Preallocate(200) != api.ResultError {
		t.Fatal("preallocate beyond limit must fail")
	}
}

func TestWriter_NilAndEmptyLeasesAccepted(t *testing.T) {
	pool := newTestPool(t, 1, 4096)
	var sink bytes.Buffer
	w := NewBufferWriter(&sink, "sink", pool, 100, nil)
	defer w.Close()

	ww := newCountingWaiter()
	if got := w.AddBuffer(nil, ww); got != api.ResultOK {
		t.Fatalf("nil lease: %v", got)
	}
	empty := pool.GetBuffer(ww)
	if got := w.AddBuffer(empty, ww); got != api.ResultOK {
		t.Fatalf("empty lease: %v", got)
	}
	if empty.Valid() {
		t.Fatal("empty lease must have been returned to the pool")
	}
}

func TestFileWriter_CopyPipeline(t *testing.T) {
	pool := newTestPool(t, 8, 64*1024)
	src, data := writeTempFile(t, 1_000_000)
	dst := filepath.Join(t.TempDir(), "out.bin")

	r, err := NewFileReaderFactory(src).Open(pool, 0, api.NoSize, 4)
	if err != nil {
		t.Fatalf("open reader: %v", err)
	}
	defer r.Close()

	var progressed uint64
	w, err := NewFileWriterFactory(dst, 0).Open(pool, 0, func(n uint64) {
		progressed += n
	}, 4)
	if err != nil {
		t.Fatalf("open writer: %v", err)
	}

	total := pump(t, r, w)
	w.Close()

	if total != uint64(len(data)) {
		t.Fatalf("moved %d bytes", total)
	}
	if progressed != uint64(len(data)) {
		t.Fatalf("progress callback saw %d bytes", progressed)
	}
	out, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !bytes.Equal(out, data) {
		t.Fatal("output mismatch")
	}
}

func TestFileWriter_EmptyCopy(t *testing.T) {
	pool := newTestPool(t, 2, 4096)
	src, _ := writeTempFile(t, 0)
	dst := filepath.Join(t.TempDir(), "empty.bin")

	r, err := NewFileReaderFactory(src).Open(pool, 0, api.NoSize, 2)
	if err != nil {
		t.Fatalf("open reader: %v", err)
	}
	defer r.Close()
	w, err := NewFileWriterFactory(dst, 0).Open(pool, 0, nil, 2)
	if err != nil {
		t.Fatalf("open writer: %v", err)
	}

	rw := newCountingWaiter()
	res, b := r.GetBuffer(rw)
	if res != api.ResultOK || b != nil {
		t.Fatalf("empty source: res=%v", res)
	}

	ww := newCountingWaiter()
	for {
		fres := w.Finalize(ww)
		if fres == api.ResultOK {
			break
		}
		if fres != api.ResultWait {
			t.Fatalf("finalize: %v", fres)
		}
		waitSig(t, ww)
	}
	w.Close()

	fi, err := os.Stat(dst)
	if err != nil {
		t.Fatalf("output missing: %v", err)
	}
	if fi.Size() != 0 {
		t.Fatalf("output size %d", fi.Size())
	}
}

func TestFileWriter_FinalizeTerminal(t *testing.T) {
	pool := newTestPool(t, 2, 4096)
	dst := filepath.Join(t.TempDir(), "out.bin")
	w, err := NewFileWriterFactory(dst, 0).Open(pool, 0, nil, 2)
	if err != nil {
		t.Fatalf("open writer: %v", err)
	}
	defer w.Close()

	ww := newCountingWaiter()
	for {
		res := w.Finalize(ww)
		if res == api.ResultOK {
			break
		}
		if res != api.ResultWait {
			t.Fatalf("finalize: %v", res)
		}
		waitSig(t, ww)
	}

	l := pool.GetBuffer(ww)
	l.Buf.Append([]byte("late"))
	if got := w.AddBuffer(l, ww); got != api.ResultError {
		t.Fatalf("add after finalize: %v", got)
	}
	l.Release()
}

func TestFileWriter_FsyncFinalize(t *testing.T) {
	pool := newTestPool(t, 2, 4096)
	dst := filepath.Join(t.TempDir(), "out.bin")

	r := NewStringReader("src", pool, "data to sync")
	defer r.Close()
	w, err := NewFileWriterFactory(dst, FileWriterFsync).Open(pool, 0, nil, 2)
	if err != nil {
		t.Fatalf("open writer: %v", err)
	}
	pump(t, r, w)
	w.Close()

	out, _ := os.ReadFile(dst)
	if string(out) != "data to sync" {
		t.Fatalf("output: %q", out)
	}
}

func TestFileWriter_TruncateOnAbort(t *testing.T) {
	pool := newTestPool(t, 2, 4096)
	dst := filepath.Join(t.TempDir(), "out.bin")
	w, err := NewFileWriterFactory(dst, 0).Open(pool, 0, nil, 2)
	if err != nil {
		t.Fatalf("open writer: %v", err)
	}

	if w.Preallocate(1 << 20) != api.ResultOK {
		t.Fatal("preallocate failed")
	}

	ww := newCountingWaiter()
	l := pool.GetBuffer(ww)
	l.Buf.Append([]byte("0123456789"))
	if res := w.AddBuffer(l, ww); res == api.ResultError {
		t.Fatal("add failed")
	}
	// Close without finalize: the preallocated tail must be cut back
	// to the bytes actually written.
	waitForDrain(t, pool, 2)
	w.Close()

	fi, err := os.Stat(dst)
	if err != nil {
		t.Fatalf("output missing: %v", err)
	}
	if fi.Size() != 10 {
		t.Fatalf("output size %d, want 10", fi.Size())
	}
}

// waitForDrain polls until all pool buffers are back in the free list.
func waitForDrain(t *testing.T, p *BufferPool, want int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		p.mu.Lock()
		n := len(p.free)
		p.mu.Unlock()
		if n == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("pool buffers did not drain back")
}

func TestFileWriter_DeletesUntouchedFile(t *testing.T) {
	pool := newTestPool(t, 1, 4096)
	dst := filepath.Join(t.TempDir(), "never-written.bin")
	w, err := NewFileWriterFactory(dst, 0).Open(pool, 0, nil, 1)
	if err != nil {
		t.Fatalf("open writer: %v", err)
	}
	w.Close()

	if _, err := os.Stat(dst); !os.IsNotExist(err) {
		t.Fatal("freshly created, never-written file must be deleted on close")
	}
}

func TestFileWriter_OpenAtOffsetTruncates(t *testing.T) {
	pool := newTestPool(t, 2, 4096)
	dst := filepath.Join(t.TempDir(), "out.bin")
	if err := os.WriteFile(dst, []byte("0123456789"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	f := NewFileWriterFactory(dst, 0)
	if !f.Offsetable() {
		t.Fatal("file writer factory must be offsetable")
	}
	w, err := f.Open(pool, 4, nil, 2)
	if err != nil {
		t.Fatalf("open writer: %v", err)
	}

	r := NewStringReader("src", pool, "AB")
	defer r.Close()
	pump(t, r, w)
	w.Close()

	out, _ := os.ReadFile(dst)
	if string(out) != "0123AB" {
		t.Fatalf("output: %q", out)
	}
}

func TestFileWriter_SetMtimeOnlyAfterFinalize(t *testing.T) {
	pool := newTestPool(t, 2, 4096)
	dst := filepath.Join(t.TempDir(), "out.bin")
	w, err := NewFileWriterFactory(dst, 0).Open(pool, 0, nil, 2)
	if err != nil {
		t.Fatalf("open writer: %v", err)
	}
	defer w.Close()

	stamp := time.Date(2020, 5, 4, 3, 2, 1, 0, time.UTC)
	if w.SetMtime(stamp) {
		t.Fatal("set mtime before finalize must fail")
	}

	r := NewStringReader("src", pool, "content")
	defer r.Close()
	pump(t, r, w)

	if !w.SetMtime(stamp) {
		t.Fatal("set mtime after finalize failed")
	}
	fi, err := os.Stat(dst)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if !fi.ModTime().Equal(stamp) {
		t.Fatalf("mtime %v, want %v", fi.ModTime(), stamp)
	}
}

func TestWriter_CloseIdempotent(t *testing.T) {
	pool := newTestPool(t, 1, 4096)
	var sink bytes.Buffer
	w := NewBufferWriter(&sink, "sink", pool, 100, nil)
	w.Close()
	w.Close()

	dst := filepath.Join(t.TempDir(), "out.bin")
	fw, err := NewFileWriterFactory(dst, 0).Open(pool, 0, nil, 1)
	if err != nil {
		t.Fatalf("open writer: %v", err)
	}
	fw.Close()
	fw.Close()
}

func TestWriter_FinalizeAfterClosePanics(t *testing.T) {
	pool := newTestPool(t, 1, 4096)
	var sink bytes.Buffer
	w := NewBufferWriter(&sink, "sink", pool, 100, nil)
	w.Close()

	defer func() {
		if recover() == nil {
			t.Error("finalize on a closed writer must panic")
		}
	}()
	w.Finalize(newCountingWaiter())
}

func TestWriterFactory_SetMtime(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "out.bin")
	if err := os.WriteFile(dst, []byte("x"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	f := NewFileWriterFactory(dst, 0)
	stamp := time.Date(2021, 1, 2, 3, 4, 5, 0, time.UTC)
	if !f.SetMtime(stamp) {
		t.Fatal("factory set mtime failed")
	}
	if !f.Mtime().Equal(stamp) {
		t.Fatalf("factory mtime %v", f.Mtime())
	}
	if f.Size() != 1 {
		t.Fatalf("factory size %d", f.Size())
	}
}
