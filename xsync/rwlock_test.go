// Copyright The Pyrite Authors
// SPDX-License-Identifier: Apache-2.0

package xsync

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRWMutexWLock(t *testing.T) {
	mtx := NewRWMutex(map[string]int{})

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 100 {
				m := mtx.WLock()
				(*m)["counter"] += i
				mtx.WUnlock(&m)
			}
		}()
	}
	wg.Wait()

	m := mtx.RLock()
	defer mtx.RUnlock(&m)
	assert.Equal(t, 16*4950, (*m)["counter"])
}

func TestRWMutexUnlockInvalidatesPointer(t *testing.T) {
	mtx := NewRWMutex(42)

	v := mtx.RLock()
	require.NotNil(t, v)
	mtx.RUnlock(&v)
	assert.Nil(t, v)

	w := mtx.WLock()
	require.NotNil(t, w)
	mtx.WUnlock(&w)
	assert.Nil(t, w)
}
