//go:build windows

// File: aio/shm_windows.go
// Author: momentics <momentics@gmail.com>
//
// Windows shared memory backend: pagefile-backed file mapping. The
// handle is duplicable into a child process.

package aio

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

// ShmHandle is the kernel object backing a shared pool region: a
// duplicable handle to a file mapping.
type ShmHandle = windows.Handle

// ShmHandleNone marks a pool without a shared memory backing.
const ShmHandleNone = windows.InvalidHandle

type shmRegion struct {
	handle ShmHandle
	addr   uintptr
	mem    []byte
}

func createShmRegion(size uint64, _ string) (*shmRegion, error) {
	h, err := windows.CreateFileMapping(windows.InvalidHandle, nil,
		windows.PAGE_READWRITE, uint32(size>>32), uint32(size), nil)
	if err != nil {
		return nil, err
	}
	addr, err := windows.MapViewOfFile(h, windows.FILE_MAP_READ|windows.FILE_MAP_WRITE, 0, 0, uintptr(size))
	if err != nil {
		windows.CloseHandle(h)
		return nil, err
	}
	mem := unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
	return &shmRegion{handle: h, addr: addr, mem: mem}, nil
}

func (r *shmRegion) unmap() error {
	err := windows.UnmapViewOfFile(r.addr)
	if cerr := windows.CloseHandle(r.handle); err == nil {
		err = cerr
	}
	return err
}
