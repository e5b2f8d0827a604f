//go:build unix && !linux

// File: aio/shm_posix.go
// Author: momentics <momentics@gmail.com>
//
// Fallback unix shared memory backend: an unlinked, randomly named
// object mapped shared. The fd stays valid after the unlink and can
// be passed over a domain socket like any other descriptor.

package aio

import (
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

type shmRegion struct {
	handle ShmHandle
	mem    []byte
	file   *os.File
}

func createShmRegion(size uint64, groupID string) (*shmRegion, error) {
	name := strings.TrimPrefix(randomShmName(groupID), "/")
	path := filepath.Join(os.TempDir(), filepath.FromSlash(name))
	if dir := filepath.Dir(path); dir != os.TempDir() {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, err
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	os.Remove(path)

	// ftruncate on a shared memory object is one-shot on some
	// systems; skip it when the object is already large enough.
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if st.Size() < int64(size) {
		if err := f.Truncate(int64(size)); err != nil {
			f.Close()
			return nil, err
		}
	}

	mem, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &shmRegion{handle: int(f.Fd()), mem: mem, file: f}, nil
}

func (r *shmRegion) unmap() error {
	err := unix.Munmap(r.mem)
	if cerr := r.file.Close(); err == nil {
		err = cerr
	}
	return err
}
