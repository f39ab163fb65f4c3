//go:build deadlock

// Package syncutil holds the mutex types used across the module. Building
// with -tags=deadlock swaps them for github.com/sasha-s/go-deadlock so lock
// ordering bugs between the device and its transport surface in tests.
package syncutil

import deadlock "github.com/sasha-s/go-deadlock"

// Mutex is a deadlock-detecting mutex.
type Mutex struct {
	deadlock.Mutex
}

// RWMutex is a deadlock-detecting read/write mutex.
type RWMutex struct {
	deadlock.RWMutex
}
