//go:build unix

// File: aio/shm_unix.go
// Author: momentics <momentics@gmail.com>
//
// Shared declarations for unix shared memory backends.

package aio

import (
	"crypto/rand"
	"encoding/base32"
)

// ShmHandle is the kernel object backing a shared pool region: a file
// descriptor that may be sent to a child over a domain socket.
type ShmHandle = int

// ShmHandleNone marks a pool without a shared memory backing.
const ShmHandleNone ShmHandle = -1

var shmNameEncoding = base32.NewEncoding("abcdefghijklmnopqrstuvwxyz234567").WithPadding(base32.NoPadding)

// randomShmName produces the object name for named shm fallbacks.
// Sandboxed systems require names inside the application group.
func randomShmName(groupID string) string {
	if groupID != "" {
		b := make([]byte, 10)
		rand.Read(b)
		return groupID + "/" + shmNameEncoding.EncodeToString(b)
	}
	b := make([]byte, 16)
	rand.Read(b)
	return "/" + shmNameEncoding.EncodeToString(b)
}
