//go:build !deadlock

// Package syncutil holds the mutex types used across the module. The
// default build uses the standard library types; -tags=deadlock switches
// to github.com/sasha-s/go-deadlock.
package syncutil

import "sync"

// Mutex is a plain sync.Mutex in the default build.
//
//nolint:gocritic // embedding exposes Lock/Unlock directly
type Mutex struct {
	sync.Mutex
}

// RWMutex is a plain sync.RWMutex in the default build.
//
//nolint:gocritic // embedding exposes the full RWMutex API
type RWMutex struct {
	sync.RWMutex
}
