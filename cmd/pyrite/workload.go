// Copyright The Pyrite Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"math/rand/v2"
	"runtime/pprof"
	"slices"
	"sync"

	"github.com/zeebo/xxh3"

	"github.com/pyrite-profiler/pyrite/sampler"
)

// startWorkload spawns a few CPU-bound goroutines with distinct worker
// labels, so the exported profiles show recognizable per-worker stacks.
// The returned function stops the workload and waits for it to exit.
func startWorkload(ctx context.Context) func() {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup

	workers := map[string]func(){
		"hasher": hashChunk,
		"sorter": sortChunk,
	}
	for name, work := range workers {
		wg.Add(1)
		go pprof.Do(ctx, pprof.Labels(sampler.WorkerLabel, name),
			func(ctx context.Context) {
				defer wg.Done()
				for ctx.Err() == nil {
					work()
				}
			})
	}

	return func() {
		cancel()
		wg.Wait()
	}
}

func hashChunk() {
	var buf [4096]byte
	var sum uint64
	for i := 0; i < 100; i++ {
		sum ^= xxh3.Hash(buf[:])
		buf[sum%uint64(len(buf))]++
	}
}

func sortChunk() {
	data := make([]int, 2048)
	for i := range data {
		data[i] = rand.Int()
	}
	slices.Sort(data)
}
