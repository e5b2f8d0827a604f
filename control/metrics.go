// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Runtime counters for the aio pipeline: lease traffic and byte flow.
// Thread-safe; a snapshot view is exposed for monitoring probes.

package control

import (
	"sync/atomic"
)

// Metrics aggregates counters across one pool and its readers/writers.
type Metrics struct {
	BuffersLeased   atomic.Uint64
	BuffersReleased atomic.Uint64
	BytesRead       atomic.Uint64
	BytesWritten    atomic.Uint64
}

// NewMetrics creates an empty counter set.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// LeasesOutstanding returns currently held leases.
func (m *Metrics) LeasesOutstanding() uint64 {
	return m.BuffersLeased.Load() - m.BuffersReleased.Load()
}

// GetSnapshot returns the latest counter values.
func (m *Metrics) GetSnapshot() map[string]any {
	return map[string]any{
		"buffers_leased":   m.BuffersLeased.Load(),
		"buffers_released": m.BuffersReleased.Load(),
		"bytes_read":       m.BytesRead.Load(),
		"bytes_written":    m.BytesWritten.Load(),
	}
}
