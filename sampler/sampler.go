// Copyright The Pyrite Authors
// SPDX-License-Identifier: Apache-2.0

// Package sampler implements the sampling engine: a self-rescheduling
// one-shot timer that captures call stacks on every tick and records them
// into the active profile, protected by an atomic reentrancy guard.
package sampler // import "github.com/pyrite-profiler/pyrite/sampler"

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/pyrite-profiler/pyrite/config"
	"github.com/pyrite-profiler/pyrite/profile"
)

// ErrAlreadyArmed is returned by Start when a profile is already armed on
// this sampler instance.
var ErrAlreadyArmed = errors.New("a profile is already armed on this sampler")

// IntervalSource supplies the interval to use for the next tick. Queried on
// every re-arm, so adaptive scaling takes effect between two ticks without
// touching the sampler.
type IntervalSource interface {
	EffectiveInterval() time.Duration
}

// Diagnostics is a snapshot of the sampler's internal counters since the
// last Start.
type Diagnostics struct {
	// TicksFired counts timer callbacks, including skipped ones.
	TicksFired uint64
	// GuardCollisions counts ticks skipped because a previous capture was
	// still in progress. A normal, expected condition.
	GuardCollisions uint64
	// CaptureFailures counts ticks abandoned due to a stack walk error.
	CaptureFailures uint64
	// EmptyCaptures counts ticks whose walk yielded no recordable stack.
	EmptyCaptures uint64
	// SamplesRecorded counts samples accepted by the profile.
	SamplesRecorded uint64
}

// Sampler owns the repeating capture timer. One tick: test-and-set the
// guard, walk the stacks, record into the active profile, clear the guard,
// re-arm a one-shot timer for the next tick. Self-rescheduling avoids
// interval drift accumulating from variable handler execution time.
//
// Nothing in the tick path may propagate a failure to the host application:
// walk errors and panics abandon the tick and the sampler reschedules
// normally.
type Sampler struct {
	walker    StackWalker
	manual    StackWalker
	intervals IntervalSource
	maxDepth  int
	maxFrames int

	// guard is the sole synchronization primitive protecting profile
	// mutation against overlapping ticks.
	guard atomic.Bool

	mu     sync.Mutex
	armed  bool
	timer  *time.Timer
	active *profile.Profile

	ticksFired      atomic.Uint64
	guardCollisions atomic.Uint64
	captureFailures atomic.Uint64
	emptyCaptures   atomic.Uint64
	samplesRecorded atomic.Uint64
}

// Option configures a Sampler beyond its required collaborators.
type Option func(*Sampler)

// WithManualWalker replaces the walker used by TriggerOnce. The tick path is
// unaffected. By default manual captures use the tick walker.
func WithManualWalker(walker StackWalker) Option {
	return func(s *Sampler) { s.manual = walker }
}

// New creates a Sampler using the given walker and interval source.
func New(walker StackWalker, intervals IntervalSource, cfg *config.Config,
	opts ...Option) *Sampler {
	s := &Sampler{
		walker:    walker,
		manual:    walker,
		intervals: intervals,
		maxDepth:  cfg.MaxStackDepth,
		maxFrames: cfg.MaxFramesPerSample,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start arms the sampler for the given profile and schedules the first
// tick. The reentrancy guard and all counters are cleared. Returns
// ErrAlreadyArmed if another profile is currently armed.
func (s *Sampler) Start(p *profile.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.armed {
		return ErrAlreadyArmed
	}
	s.armed = true
	s.active = p
	s.guard.Store(false)
	s.resetCounters()

	s.timer = time.AfterFunc(s.intervals.EffectiveInterval(), s.tick)
	return nil
}

// Stop disarms the timer and clears the active profile reference.
// Idempotent: stopping an unarmed sampler is a no-op. A tick already in
// flight when Stop is called may still record one final batch of samples;
// the profile tolerates that (see profile.Profile).
func (s *Sampler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.armed {
		return
	}
	s.armed = false
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.active = nil
}

// Armed reports whether a profile is currently armed.
func (s *Sampler) Armed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.armed
}

// TriggerOnce synchronously performs exactly one capture-and-record cycle
// outside of the timer path, subject to the same reentrancy guard. It uses
// the manual walker, so with WithManualWalker installed it samples the
// calling goroutine rather than the whole process. Returns false if the
// guard was taken.
func (s *Sampler) TriggerOnce() bool {
	if !s.guard.CompareAndSwap(false, true) {
		s.guardCollisions.Add(1)
		return false
	}
	defer s.guard.Store(false)

	s.captureAndRecord(s.manual)
	return true
}

// Diagnostics returns a snapshot of the counters since the last Start.
func (s *Sampler) Diagnostics() Diagnostics {
	return Diagnostics{
		TicksFired:      s.ticksFired.Load(),
		GuardCollisions: s.guardCollisions.Load(),
		CaptureFailures: s.captureFailures.Load(),
		EmptyCaptures:   s.emptyCaptures.Load(),
		SamplesRecorded: s.samplesRecorded.Load(),
	}
}

// tick is the timer callback. A tick that finds the guard set performs no
// capture but still reschedules.
func (s *Sampler) tick() {
	s.ticksFired.Add(1)

	if s.guard.CompareAndSwap(false, true) {
		s.captureAndRecord(s.walker)
		s.guard.Store(false)
	} else {
		s.guardCollisions.Add(1)
	}

	s.rearm()
}

// captureAndRecord performs one walk with the given walker and records the
// outcome into the active profile. Panics and walk errors abandon the tick;
// no partial sample is recorded.
func (s *Sampler) captureAndRecord(walker StackWalker) {
	defer func() {
		if r := recover(); r != nil {
			s.captureFailures.Add(1)
			log.Debugf("Abandoned capture tick: %v", r)
		}
	}()

	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	if active == nil {
		return
	}

	stacks, err := walker.Capture(s.maxDepth)
	if err != nil {
		s.captureFailures.Add(1)
		log.Debugf("Stack walk failed: %v", err)
		return
	}

	captureTime := time.Now()
	recorded := uint64(0)
	for _, stack := range stacks {
		if len(stack.Frames) == 0 {
			continue
		}
		frames := stack.Frames
		if len(frames) > s.maxFrames {
			frames = frames[:s.maxFrames]
		}
		if active.AddSample(frames, stack.Worker, captureTime) {
			recorded++
		}
	}

	if recorded == 0 {
		// A walk that yields nothing recordable is dropped silently.
		s.emptyCaptures.Add(1)
		return
	}
	s.samplesRecorded.Add(recorded)
}

// rearm schedules the next one-shot tick, querying the interval source for
// the interval valid at this moment.
func (s *Sampler) rearm() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.armed {
		return
	}
	s.timer = time.AfterFunc(s.intervals.EffectiveInterval(), s.tick)
}

func (s *Sampler) resetCounters() {
	s.ticksFired.Store(0)
	s.guardCollisions.Store(0)
	s.captureFailures.Store(0)
	s.emptyCaptures.Store(0)
	s.samplesRecorded.Store(0)
}
