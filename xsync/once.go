// Copyright The Pyrite Authors
// SPDX-License-Identifier: Apache-2.0

package xsync // import "github.com/pyrite-profiler/pyrite/xsync"

import (
	"sync"
	"sync/atomic"
)

// OnceValue caches a lazily computed value. The init function passed to
// GetOrInit runs at most once, even under concurrent access; all callers
// observe the same cached result afterwards.
type OnceValue[T any] struct {
	fn atomic.Pointer[func() T]
}

// GetOrInit returns the value, initializing it exactly once using the
// provided init function.
func (o *OnceValue[T]) GetOrInit(init func() T) T {
	fn := o.fn.Load()
	if fn == nil {
		newFn := sync.OnceValue(init)
		if !o.fn.CompareAndSwap(nil, &newFn) {
			fn = o.fn.Load()
		} else {
			fn = &newFn
		}
	}
	return (*fn)()
}

// Get returns a pointer to the cached value, or nil if GetOrInit has not
// been called yet.
func (o *OnceValue[T]) Get() *T {
	fn := o.fn.Load()
	if fn == nil {
		return nil
	}
	val := (*fn)()
	return &val
}
