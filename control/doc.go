// Package control
// Author: momentics <momentics@gmail.com>
//
// Configuration and runtime counters for the aio pipeline: typed
// config with JSON load and hot-reload listeners, plus lease/byte
// metrics the pool and endpoints feed.
// See config.go and metrics.go for implementation details.
package control
