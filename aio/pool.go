// File: aio/pool.go
// Author: momentics <momentics@gmail.com>
//
// Fixed-capacity pool of page-aligned buffer slabs, optionally backed
// by shared memory so leases can be loaned to a child process.

package aio

import (
	"os"
	"sync"
	"unsafe"

	"github.com/zhihanii/zlog"

	"github.com/momentics/hioload-aio/api"
	"github.com/momentics/hioload-aio/control"
)

// DefaultBufferSize is used when PoolOptions.BufferSize is zero.
const DefaultBufferSize = 256 * 1024

// PoolOptions parameterize NewBufferPool.
type PoolOptions struct {
	// BufferCount is the fixed number of buffers. Zero means one.
	BufferCount int

	// BufferSize is the usable capacity of each buffer. It is rounded
	// up to a whole number of pages for placement. Zero picks
	// DefaultBufferSize.
	BufferSize int

	// UseShm backs the pool with a kernel shared memory object whose
	// handle can be passed to a child process.
	UseShm bool

	// AppGroupID prefixes the shm object name on sandboxed systems
	// that require names inside an application group.
	AppGroupID string

	// Metrics receives lease accounting if non-nil.
	Metrics *control.Metrics
}

// BufferPool owns one contiguous memory region carved into
// page-aligned slabs. Consecutive slabs are separated by one padding
// page, and one more page brackets the region on each side, so that
// automatic hardware prefetch on one buffer never touches another.
//
// The free list is a LIFO stack: the most recently released buffer is
// handed out first.
type BufferPool struct {
	Waitable

	mu   sync.Mutex
	free []*Buf

	mem     []byte
	memSize uint64
	shm     *shmRegion

	bufferCount int
	bufferSize  int
	metrics     *control.Metrics
}

// NewBufferPool creates a pool per opts. The returned pool must be
// Closed once every lease has been returned.
func NewBufferPool(opts PoolOptions) (*BufferPool, error) {
	if opts.BufferCount <= 0 {
		opts.BufferCount = 1
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}

	psz := os.Getpagesize()
	adjusted := opts.BufferSize
	if rem := adjusted % psz; rem != 0 {
		adjusted += psz - rem
	}

	// Pad with one page between buffers and around the region to
	// prevent false sharing under automatic prefetch.
	memSize := uint64(adjusted+psz)*uint64(opts.BufferCount) + uint64(psz)

	p := &BufferPool{
		memSize:     memSize,
		bufferCount: opts.BufferCount,
		bufferSize:  opts.BufferSize,
		metrics:     opts.Metrics,
	}
	p.initWaitable(p)

	if opts.UseShm {
		region, err := createShmRegion(memSize, opts.AppGroupID)
		if err != nil {
			zlog.Errorf("buffer pool: shared memory setup failed: %v", err)
			return nil, api.NewError(api.ErrCodeInit, "shared memory setup failed").WithContext("cause", err)
		}
		p.shm = region
		p.mem = region.mem
	} else {
		p.mem = make([]byte, memSize)
	}

	stride := adjusted + psz
	p.free = make([]*Buf, 0, opts.BufferCount)
	for i := 0; i < opts.BufferCount; i++ {
		off := psz + i*stride
		p.free = append(p.free, &Buf{mem: p.mem[off : off+opts.BufferSize]})
	}
	return p, nil
}

// GetBuffer returns a lease on a free buffer, or nil after registering
// w as waiting. Once nil is returned, do not call GetBuffer again
// until w has been signalled.
func (p *BufferPool) GetBuffer(w api.Waiter) *BufferLease {
	p.mu.Lock()
	if len(p.free) == 0 {
		p.mu.Unlock()
		p.AddWaiter(w)
		return nil
	}
	l := p.takeLocked()
	p.mu.Unlock()
	return l
}

// GetBufferEvent is GetBuffer for event-handler waiters.
func (p *BufferPool) GetBufferEvent(s api.Sink) *BufferLease {
	p.mu.Lock()
	if len(p.free) == 0 {
		p.mu.Unlock()
		p.AddSink(s)
		return nil
	}
	l := p.takeLocked()
	p.mu.Unlock()
	return l
}

func (p *BufferPool) takeLocked() *BufferLease {
	b := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	if p.metrics != nil {
		p.metrics.BuffersLeased.Add(1)
	}
	return &BufferLease{Buf: b, pool: p}
}

// release is called by BufferLease.Release.
func (p *BufferPool) release(b *Buf) {
	p.mu.Lock()
	b.Clear()
	p.free = append(p.free, b)
	p.mu.Unlock()
	if p.metrics != nil {
		p.metrics.BuffersReleased.Add(1)
	}
	p.SignalAvailability()
}

// BufferCount returns the fixed number of buffers.
func (p *BufferPool) BufferCount() int {
	return p.bufferCount
}

// BufferSize returns the usable capacity of each buffer.
func (p *BufferPool) BufferSize() int {
	return p.bufferSize
}

// SharedMemoryInfo exposes the backing mapping: the shm handle (a file
// descriptor on unix, a file mapping handle on Windows), the base of
// the mapping and its total size. For heap-backed pools the handle is
// ShmHandleNone and the base is the private allocation.
//
// To loan a lease to a child process, send the handle and total size
// once, then per loan the offset obtained from BufferOffset and the
// buffer size. The parent keeps the lease until the child signals
// completion. Any child holding the handle has write access to all
// buffers in the region.
func (p *BufferPool) SharedMemoryInfo() (ShmHandle, []byte, uint64) {
	if p.shm != nil {
		return p.shm.handle, p.mem, p.memSize
	}
	return ShmHandleNone, p.mem, p.memSize
}

// BufferOffset returns the offset of the leased buffer from the base
// of the mapping, for the cross-process lease exchange.
func (p *BufferPool) BufferOffset(l *BufferLease) uint64 {
	if !l.Valid() || len(l.Buf.mem) == 0 || len(p.mem) == 0 {
		return 0
	}
	// Both slices share the region's backing array.
	return uint64(uintptr(unsafe.Pointer(&l.Buf.mem[0])) - uintptr(unsafe.Pointer(&p.mem[0])))
}

// Close tears the pool down. Every lease must have been returned;
// closing with outstanding leases is an invariant violation and
// panics. Close is idempotent.
func (p *BufferPool) Close() {
	p.mu.Lock()
	if p.mem == nil {
		p.mu.Unlock()
		return
	}
	if len(p.free) != p.bufferCount {
		p.mu.Unlock()
		panic("aio: buffer pool closed with outstanding leases")
	}
	p.free = nil
	p.mem = nil
	p.mu.Unlock()

	p.RemoveWaiters()

	if p.shm != nil {
		if err := p.shm.unmap(); err != nil {
			zlog.Errorf("buffer pool: unmap failed: %v", err)
		}
		p.shm = nil
	}
}
