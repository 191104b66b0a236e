// Copyright The Pyrite Authors
// SPDX-License-Identifier: Apache-2.0

package sampler_test

import (
	"context"
	"runtime/pprof"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pyrite-profiler/pyrite/config"
	"github.com/pyrite-profiler/pyrite/profile"
	"github.com/pyrite-profiler/pyrite/sampler"
)

// observableWalker builds walkers that do not filter out this module's own
// frames, so the tests can observe themselves in captures.
func observableConfig() config.Config {
	cfg := config.Default()
	cfg.IgnorePrefixes = []string{"runtime.", "testing."}
	return cfg
}

func findFunction(frames []profile.Frame, function string) bool {
	for _, frame := range frames {
		if frame.Function == function {
			return true
		}
	}
	return false
}

func TestCallersWalkerCapturesCaller(t *testing.T) {
	cfg := observableConfig()
	w := sampler.NewCallersWalker("tester", &cfg, sampler.WithSelfPrefixes())

	stacks := captureHelper(t, w)
	require.Len(t, stacks, 1)
	assert.Equal(t, "tester", stacks[0].Worker)

	// The helper and the test function itself must appear, innermost
	// first.
	assert.True(t, findFunction(stacks[0].Frames, "captureHelper"))
	assert.True(t, findFunction(stacks[0].Frames, "TestCallersWalkerCapturesCaller"))
}

// captureHelper adds one application frame between the test and the walker.
func captureHelper(t *testing.T, w *sampler.CallersWalker) []sampler.ThreadStack {
	t.Helper()
	stacks, err := w.Capture(config.DefaultMaxStackDepth)
	require.NoError(t, err)
	return stacks
}

func TestCallersWalkerRespectsMaxDepth(t *testing.T) {
	cfg := observableConfig()
	w := sampler.NewCallersWalker("tester", &cfg, sampler.WithSelfPrefixes())

	stacks, err := w.Capture(1)
	require.NoError(t, err)
	require.Len(t, stacks, 1)
	assert.Len(t, stacks[0].Frames, 1)
}

func TestCallersWalkerFiltersSelfFrames(t *testing.T) {
	cfg := observableConfig()
	// Declare the test binary's own frames as profiler-internal: nothing
	// at all should survive the walk.
	w := sampler.NewCallersWalker("tester", &cfg,
		sampler.WithSelfPrefixes("github.com/pyrite-profiler/pyrite", "testing.", "runtime."))

	stacks, err := w.Capture(config.DefaultMaxStackDepth)
	require.NoError(t, err)
	assert.Empty(t, stacks)
}

func TestCallersWalkerClassifiesInApp(t *testing.T) {
	cfg := observableConfig()
	w := sampler.NewCallersWalker("tester", &cfg, sampler.WithSelfPrefixes())

	stacks, err := w.Capture(config.DefaultMaxStackDepth)
	require.NoError(t, err)
	require.Len(t, stacks, 1)

	for _, frame := range stacks[0].Frames {
		if frame.Package == "runtime" || frame.Package == "testing" {
			assert.False(t, frame.InApp, "frame %s should not be in-app", frame.Function)
		}
	}
}

func TestGoroutineWalkerSeesLabeledWorker(t *testing.T) {
	cfg := observableConfig()
	w, err := sampler.NewGoroutineWalker(&cfg, sampler.WithSelfPrefixes())
	require.NoError(t, err)

	ready := make(chan struct{})
	release := make(chan struct{})
	go pprof.Do(context.Background(), pprof.Labels(sampler.WorkerLabel, "crunchers"),
		func(context.Context) {
			close(ready)
			<-release
		})
	<-ready
	defer close(release)

	require.Eventually(t, func() bool {
		stacks, err := w.Capture(config.DefaultMaxStackDepth)
		if err != nil {
			return false
		}
		for _, stack := range stacks {
			if stack.Worker == "crunchers" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

func TestGoroutineWalkerPicksWorkerFromLabelSet(t *testing.T) {
	cfg := observableConfig()
	w, err := sampler.NewGoroutineWalker(&cfg, sampler.WithSelfPrefixes())
	require.NoError(t, err)

	// The worker label must be found regardless of its position among
	// other pprof labels on the goroutine.
	labels := pprof.Labels("region", "eu-west", sampler.WorkerLabel, "encoders",
		"shard", "7")

	ready := make(chan struct{})
	release := make(chan struct{})
	go pprof.Do(context.Background(), labels, func(context.Context) {
		close(ready)
		<-release
	})
	<-ready
	defer close(release)

	require.Eventually(t, func() bool {
		stacks, err := w.Capture(config.DefaultMaxStackDepth)
		if err != nil {
			return false
		}
		for _, stack := range stacks {
			if stack.Worker == "encoders" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

func TestGoroutineWalkerCapturesOwnGoroutine(t *testing.T) {
	cfg := observableConfig()
	w, err := sampler.NewGoroutineWalker(&cfg, sampler.WithSelfPrefixes())
	require.NoError(t, err)

	stacks, err := w.Capture(config.DefaultMaxStackDepth)
	require.NoError(t, err)
	require.NotEmpty(t, stacks)

	found := false
	for _, stack := range stacks {
		if findFunction(stack.Frames, "TestGoroutineWalkerCapturesOwnGoroutine") {
			found = true
		}
		assert.LessOrEqual(t, len(stack.Frames), config.DefaultMaxStackDepth)
	}
	assert.True(t, found, "walker did not observe the test goroutine")
}

func TestGoroutineWalkerCaptureIsRepeatable(t *testing.T) {
	cfg := observableConfig()
	w, err := sampler.NewGoroutineWalker(&cfg, sampler.WithSelfPrefixes())
	require.NoError(t, err)

	// Repeated captures exercise the symbolization cache path.
	for range 3 {
		stacks, err := w.Capture(config.DefaultMaxStackDepth)
		require.NoError(t, err)
		require.NotEmpty(t, stacks)
	}
}
