// Copyright The Pyrite Authors
// SPDX-License-Identifier: Apache-2.0

package xsync // import "github.com/pyrite-profiler/pyrite/xsync"

import "sync"

// RWMutex is a thin wrapper around sync.RWMutex that hides away the data it
// protects. Access is only possible through the pointer returned by RLock or
// WLock, and the unlock functions invalidate that pointer again. There is no
// direct path to the guarded value, so forgetting to take the lock does not
// compile, and use after unlock crashes immediately instead of racing.
type RWMutex[T any] struct {
	guarded T
	mutex   sync.RWMutex
}

// NewRWMutex creates a new read-write mutex guarding the given value.
func NewRWMutex[T any](guarded T) RWMutex[T] {
	return RWMutex[T]{
		guarded: guarded,
	}
}

// RLock locks the mutex for reading, returning a pointer to the protected
// data. The caller must not write through the returned pointer and must not
// retain it beyond the matching RUnlock.
func (mtx *RWMutex[T]) RLock() *T {
	mtx.mutex.RLock()
	return &mtx.guarded
}

// RUnlock unlocks the mutex after a previous RLock. Pass a reference to the
// pointer returned from RLock so it can be invalidated.
func (mtx *RWMutex[T]) RUnlock(ref **T) {
	*ref = nil
	mtx.mutex.RUnlock()
}

// WLock locks the mutex for writing, returning a pointer to the protected
// data. The caller must not retain the pointer beyond the matching WUnlock.
func (mtx *RWMutex[T]) WLock() *T {
	mtx.mutex.Lock()
	return &mtx.guarded
}

// WUnlock unlocks the mutex after a previous WLock. Pass a reference to the
// pointer returned from WLock so it can be invalidated.
func (mtx *RWMutex[T]) WUnlock(ref **T) {
	*ref = nil
	mtx.mutex.Unlock()
}
