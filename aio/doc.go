// Package aio
// Author: momentics <momentics@gmail.com>
//
// Asynchronous I/O buffer brokering for hioload-aio.
// Implements a fixed-capacity, page-aligned buffer pool (optionally
// backed by shared memory for cross-process leases), pull-style readers
// and push-style writers (the file variants run one worker goroutine
// each; the in-memory variants run on the calling goroutine), and the
// cooperative waiter/notification protocol that ties them together.
// See pool.go, reader.go, writer.go for implementation details.
package aio
