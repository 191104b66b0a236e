// Copyright The Pyrite Authors
// SPDX-License-Identifier: Apache-2.0

package sampler_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pyrite-profiler/pyrite/config"
	"github.com/pyrite-profiler/pyrite/profile"
	"github.com/pyrite-profiler/pyrite/sampler"
)

// fixedIntervals implements a constant interval source.
type fixedIntervals time.Duration

func (f fixedIntervals) EffectiveInterval() time.Duration { return time.Duration(f) }

// fakeWalker returns canned stacks.
type fakeWalker struct {
	mu     sync.Mutex
	stacks []sampler.ThreadStack
	err    error
	calls  int
}

// Compile time check to make sure fakeWalker satisfies the interface.
var _ sampler.StackWalker = (*fakeWalker)(nil)

func (f *fakeWalker) Capture(_ int) ([]sampler.ThreadStack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.stacks, f.err
}

func (f *fakeWalker) captureCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// blockingWalker parks in Capture until released.
type blockingWalker struct {
	entered chan struct{}
	release chan struct{}
}

var _ sampler.StackWalker = (*blockingWalker)(nil)

func (b *blockingWalker) Capture(_ int) ([]sampler.ThreadStack, error) {
	b.entered <- struct{}{}
	<-b.release
	return nil, nil
}

func testFrame(function string) profile.Frame {
	return profile.Frame{FrameKey: profile.FrameKey{
		Function: function,
		File:     function + ".go",
		Line:     1,
		Package:  "example.com/app",
	}, InApp: true}
}

func testStacks() []sampler.ThreadStack {
	return []sampler.ThreadStack{{
		Worker: "w",
		Frames: []profile.Frame{testFrame("inner"), testFrame("outer")},
	}}
}

func newSampler(w sampler.StackWalker) *sampler.Sampler {
	cfg := config.Default()
	return sampler.New(w, fixedIntervals(time.Hour), &cfg)
}

func TestTriggerOnceRecords(t *testing.T) {
	walker := &fakeWalker{stacks: testStacks()}
	s := newSampler(walker)

	p := profile.New("test")
	require.NoError(t, s.Start(p))
	defer s.Stop()

	require.True(t, s.TriggerOnce())
	require.True(t, s.TriggerOnce())

	stats := p.Stats()
	assert.Equal(t, 2, stats.SampleCount)
	assert.Equal(t, 2, stats.UniqueFrameCount)
	assert.Equal(t, 1, stats.UniqueStackCount)
	assert.Equal(t, uint64(2), s.Diagnostics().SamplesRecorded)
}

func TestTriggerOnceWithoutProfile(t *testing.T) {
	walker := &fakeWalker{stacks: testStacks()}
	s := newSampler(walker)

	// No profile armed: the cycle runs but records nowhere and the walker
	// is never consulted.
	assert.True(t, s.TriggerOnce())
	assert.Equal(t, 0, walker.captureCalls())
}

func TestTriggerOnceUsesManualWalker(t *testing.T) {
	tickWalker := &fakeWalker{stacks: testStacks()}
	manualWalker := &fakeWalker{stacks: []sampler.ThreadStack{{
		Worker: "hand",
		Frames: []profile.Frame{testFrame("manual")},
	}}}

	cfg := config.Default()
	s := sampler.New(tickWalker, fixedIntervals(time.Hour), &cfg,
		sampler.WithManualWalker(manualWalker))

	p := profile.New("test")
	require.NoError(t, s.Start(p))
	defer s.Stop()

	require.True(t, s.TriggerOnce())

	// Only the manual walker runs; the tick walker stays untouched until
	// its timer fires.
	assert.Equal(t, 1, manualWalker.captureCalls())
	assert.Equal(t, 0, tickWalker.captureCalls())

	item := p.WireItem()
	require.Len(t, item.Samples, 1)
	require.Len(t, item.Frames, 1)
	assert.Equal(t, "manual", item.Frames[0].Function)
}

func TestDoubleStartRejected(t *testing.T) {
	s := newSampler(&fakeWalker{})

	require.NoError(t, s.Start(profile.New("first")))
	defer s.Stop()

	err := s.Start(profile.New("second"))
	assert.ErrorIs(t, err, sampler.ErrAlreadyArmed)
}

func TestStopIdempotent(t *testing.T) {
	s := newSampler(&fakeWalker{})

	// Stop without start is a no-op, not an error.
	s.Stop()

	require.NoError(t, s.Start(profile.New("test")))
	s.Stop()
	s.Stop()
	assert.False(t, s.Armed())

	// The sampler can be re-armed for a fresh profile afterwards.
	require.NoError(t, s.Start(profile.New("next")))
	s.Stop()
}

func TestGuardCollisionSkipsCapture(t *testing.T) {
	walker := &blockingWalker{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	s := newSampler(walker)

	p := profile.New("test")
	require.NoError(t, s.Start(p))
	defer s.Stop()

	done := make(chan bool)
	go func() {
		done <- s.TriggerOnce()
	}()
	<-walker.entered

	// While the first capture is parked inside the walker, a second
	// trigger must lose the guard and leave the profile untouched.
	assert.False(t, s.TriggerOnce())
	assert.Equal(t, 0, p.Stats().SampleCount)

	close(walker.release)
	assert.True(t, <-done)
	assert.Equal(t, uint64(1), s.Diagnostics().GuardCollisions)
}

func TestEmptyCaptureRecordsNothing(t *testing.T) {
	walker := &fakeWalker{stacks: nil}
	s := newSampler(walker)

	p := profile.New("test")
	require.NoError(t, s.Start(p))
	defer s.Stop()

	require.True(t, s.TriggerOnce())
	assert.Equal(t, 0, p.Stats().SampleCount)
	assert.Equal(t, uint64(1), s.Diagnostics().EmptyCaptures)
}

func TestWalkErrorAbandonsTick(t *testing.T) {
	walker := &fakeWalker{err: errors.New("walk failed")}
	s := newSampler(walker)

	p := profile.New("test")
	require.NoError(t, s.Start(p))
	defer s.Stop()

	require.True(t, s.TriggerOnce())
	assert.Equal(t, 0, p.Stats().SampleCount)
	assert.Equal(t, uint64(1), s.Diagnostics().CaptureFailures)
}

func TestMaxFramesPerSampleCap(t *testing.T) {
	frames := make([]profile.Frame, 10)
	for i := range frames {
		frames[i] = testFrame(string(rune('a' + i)))
	}
	walker := &fakeWalker{stacks: []sampler.ThreadStack{{Worker: "w", Frames: frames}}}

	cfg := config.Default()
	cfg.MaxFramesPerSample = 4
	s := sampler.New(walker, fixedIntervals(time.Hour), &cfg)

	p := profile.New("test")
	require.NoError(t, s.Start(p))
	defer s.Stop()

	require.True(t, s.TriggerOnce())
	item := p.WireItem()
	require.Len(t, item.Stacks, 1)
	assert.Len(t, item.Stacks[0], 4)
}

func TestTimerTicksRecordSamples(t *testing.T) {
	walker := &fakeWalker{stacks: testStacks()}
	cfg := config.Default()
	s := sampler.New(walker, fixedIntervals(time.Millisecond), &cfg)

	p := profile.New("test")
	require.NoError(t, s.Start(p))

	require.Eventually(t, func() bool {
		return p.Stats().SampleCount >= 3
	}, time.Second, time.Millisecond)

	s.Stop()
	p.Finish()

	// Disarmed: no further ticks mutate the profile.
	recorded := p.Stats().SampleCount
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, recorded, p.Stats().SampleCount)

	diag := s.Diagnostics()
	assert.GreaterOrEqual(t, diag.TicksFired, uint64(3))
	assert.GreaterOrEqual(t, diag.SamplesRecorded, uint64(3))
}

func TestStartResetsCounters(t *testing.T) {
	walker := &fakeWalker{stacks: testStacks()}
	s := newSampler(walker)

	require.NoError(t, s.Start(profile.New("first")))
	require.True(t, s.TriggerOnce())
	s.Stop()
	require.Equal(t, uint64(1), s.Diagnostics().SamplesRecorded)

	require.NoError(t, s.Start(profile.New("second")))
	defer s.Stop()
	assert.Equal(t, uint64(0), s.Diagnostics().SamplesRecorded)
}
