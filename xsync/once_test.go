// Copyright The Pyrite Authors
// SPDX-License-Identifier: Apache-2.0

package xsync

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOnceValueGetOrInit(t *testing.T) {
	var once OnceValue[int]
	var calls atomic.Int64

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v := once.GetOrInit(func() int {
				calls.Add(1)
				return 1234
			})
			assert.Equal(t, 1234, v)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), calls.Load())
}

func TestOnceValueGet(t *testing.T) {
	var once OnceValue[string]
	assert.Nil(t, once.Get())

	once.GetOrInit(func() string { return "ready" })
	v := once.Get()
	require.NotNil(t, v)
	assert.Equal(t, "ready", *v)
}
