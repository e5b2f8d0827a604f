//go:build linux

// File: aio/shm_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux shared memory backend: sealed memfd, mapped shared.

package aio

import (
	"golang.org/x/sys/unix"
)

type shmRegion struct {
	handle ShmHandle
	mem    []byte
}

func createShmRegion(size uint64, _ string) (*shmRegion, error) {
	fd, err := unix.MemfdCreate("aio_buffer_pool", unix.MFD_CLOEXEC|unix.MFD_ALLOW_SEALING)
	if err != nil {
		return nil, err
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		unix.Close(fd)
		return nil, err
	}
	// Consumers of the fd must not be able to truncate the region out
	// from under the pool.
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_ADD_SEALS, unix.F_SEAL_SHRINK); err != nil {
		unix.Close(fd)
		return nil, err
	}
	mem, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	return &shmRegion{handle: fd, mem: mem}, nil
}

func (r *shmRegion) unmap() error {
	err := unix.Munmap(r.mem)
	if cerr := unix.Close(r.handle); err == nil {
		err = cerr
	}
	return err
}
