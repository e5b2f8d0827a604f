package aio

import (
	"testing"
	"time"

	"github.com/momentics/hioload-aio/api"
	"github.com/momentics/hioload-aio/internal/concurrency"
)

// testTasks returns the shared worker pool used by directly
// constructed readers/writers in tests.
func testTasks() *concurrency.TaskPool {
	return concurrency.Default()
}

// waitSig blocks until the waiter is signalled or the test times out.
func waitSig(t *testing.T, w *countingWaiter) {
	t.Helper()
	select {
	case <-w.ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for availability signal")
	}
}

// readAll drains a reader to completion, returning the concatenated
// payload bytes.
func readAll(t *testing.T, r Reader) []byte {
	t.Helper()
	w := newCountingWaiter()
	var out []byte
	for {
		res, b := r.GetBuffer(w)
		switch res {
		case api.ResultWait:
			waitSig(t, w)
		case api.ResultOK:
			if b == nil {
				return out
			}
			out = append(out, b.Buf.Readable()...)
			b.Release()
		default:
			t.Fatalf("reader failed with %v", res)
		}
	}
}

// pump moves every byte from r into wr and finalizes, returning the
// total payload moved.
func pump(t *testing.T, r Reader, wr Writer) uint64 {
	t.Helper()
	rw := newCountingWaiter()
	ww := newCountingWaiter()
	var total uint64
	for {
		res, b := r.GetBuffer(rw)
		if res == api.ResultWait {
			waitSig(t, rw)
			continue
		}
		if res != api.ResultOK {
			t.Fatalf("reader failed with %v", res)
		}
		if b == nil {
			break
		}
		total += uint64(b.Buf.Size())
		ares := wr.AddBuffer(b, ww)
		if ares == api.ResultWait {
			// Lease was accepted; wait before producing more.
			waitSig(t, ww)
			continue
		}
		if ares != api.ResultOK {
			t.Fatalf("writer failed with %v", ares)
		}
	}
	for {
		res := wr.Finalize(ww)
		if res == api.ResultOK {
			return total
		}
		if res != api.ResultWait {
			t.Fatalf("finalize failed with %v", res)
		}
		waitSig(t, ww)
	}
}
