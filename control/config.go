// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Typed configuration for the aio pipeline with JSON load and
// hot-reload propagation.

package control

import (
	"sync"

	"github.com/sugawarayuuta/sonnet"
)

// Config holds the tunables of a buffer brokering session.
type Config struct {
	// BufferCount is the fixed pool capacity.
	BufferCount int `json:"buffer_count"`

	// BufferSize is the usable capacity of one buffer in bytes.
	BufferSize int `json:"buffer_size"`

	// UseShm backs the pool with shared memory.
	UseShm bool `json:"use_shm"`

	// AppGroupID is the sandbox group prefix for named shm objects.
	AppGroupID string `json:"app_group_id"`

	// FileBuffers is the per-file-reader/-writer FIFO depth.
	FileBuffers int `json:"file_buffers"`

	// Fsync forces file writers to sync on finalize.
	Fsync bool `json:"fsync"`
}

// DefaultConfig returns the defaults: one 256 KiB buffer, private
// memory, four buffers per file endpoint.
func DefaultConfig() Config {
	return Config{
		BufferCount: 1,
		BufferSize:  256 * 1024,
		FileBuffers: 4,
	}
}

// ConfigStore is a thread-safe configuration holder with listener
// support. SetConfig replaces the snapshot and dispatches reload
// hooks.
type ConfigStore struct {
	mu        sync.RWMutex
	config    Config
	listeners []func(Config)
}

// NewConfigStore initializes a store with the defaults.
func NewConfigStore() *ConfigStore {
	return &ConfigStore{config: DefaultConfig()}
}

// GetSnapshot returns a copy of the current configuration.
func (cs *ConfigStore) GetSnapshot() Config {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.config
}

// SetConfig replaces the configuration and dispatches reload hooks.
func (cs *ConfigStore) SetConfig(cfg Config) {
	cs.mu.Lock()
	cs.config = cfg
	listeners := append([]func(Config){}, cs.listeners...)
	cs.mu.Unlock()
	for _, fn := range listeners {
		go fn(cfg)
	}
}

// LoadJSON merges a JSON document over the current configuration and
// dispatches reload hooks.
func (cs *ConfigStore) LoadJSON(data []byte) error {
	cs.mu.RLock()
	cfg := cs.config
	cs.mu.RUnlock()
	if err := sonnet.Unmarshal(data, &cfg); err != nil {
		return err
	}
	cs.SetConfig(cfg)
	return nil
}

// OnReload registers a listener hook called on config changes.
func (cs *ConfigStore) OnReload(fn func(Config)) {
	cs.mu.Lock()
	cs.listeners = append(cs.listeners, fn)
	cs.mu.Unlock()
}
