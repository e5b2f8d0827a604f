// Package api
// Author: momentics <momentics@gmail.com>
//
// Public contracts of the hioload-aio library: result codes, the
// waiter/sink notification contracts, buffer-availability events and
// structured errors. The concrete pool, reader and writer types live
// in the aio package; everything here is dependency-free so that any
// package can speak the protocol.
package api
