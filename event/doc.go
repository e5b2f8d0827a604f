// Package event
// Author: momentics <momentics@gmail.com>
//
// Cooperative single-consumer event loop used by sink waiters: one
// delivery FIFO, per-handler filtering, detach that waits out an
// in-flight delivery.
package event
