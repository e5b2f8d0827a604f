// File: internal/concurrency/taskpool.go
// Package concurrency provides joinable task spawning for the aio
// worker discipline.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Each threaded reader/writer owns exactly one worker; the worker is
// spawned here and joined on close/seek. Execution is delegated to a
// shared gopool so worker goroutines are recycled across endpoints.

package concurrency

import (
	"sync"

	"github.com/bytedance/gopkg/util/gopool"
)

// Task is a joinable handle on one spawned worker.
type Task struct {
	done chan struct{}
}

// Join blocks until the worker has returned. Join on a nil task is a
// no-op, so teardown paths need not track whether a spawn happened.
func (t *Task) Join() {
	if t == nil {
		return
	}
	<-t.done
}

// Done reports whether the worker has returned without blocking.
func (t *Task) Done() bool {
	if t == nil {
		return true
	}
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// TaskPool spawns joinable tasks on recycled goroutines.
type TaskPool struct {
	pool gopool.Pool
}

// NewTaskPool creates a pool with the given worker cap.
func NewTaskPool(name string, cap int) *TaskPool {
	return &TaskPool{pool: gopool.NewPool(name, int32(cap), gopool.NewConfig())}
}

// Spawn runs fn on a pool goroutine and returns its join handle.
func (p *TaskPool) Spawn(fn func()) *Task {
	t := &Task{done: make(chan struct{})}
	p.pool.Go(func() {
		defer close(t.done)
		fn()
	})
	return t
}

var (
	defaultPool     *TaskPool
	defaultPoolOnce sync.Once
)

// Default returns the shared process-wide task pool.
func Default() *TaskPool {
	defaultPoolOnce.Do(func() {
		defaultPool = NewTaskPool("hioload-aio", 128)
	})
	return defaultPool
}
