// Copyright The Pyrite Authors
// SPDX-License-Identifier: Apache-2.0

// Package profile implements the profile data model: deduplicated frame and
// stack tables, the ordered sample log, timing metadata, finalization and
// the serializable wire artifact.
package profile // import "github.com/pyrite-profiler/pyrite/profile"

import (
	"time"

	"github.com/google/uuid"

	"github.com/pyrite-profiler/pyrite/xsync"
)

// Stats summarizes a Profile's contents.
type Stats struct {
	// SampleCount is the number of samples recorded into the log.
	SampleCount int
	// UniqueFrameCount is the number of distinct frame identities seen.
	UniqueFrameCount int
	// UniqueStackCount is the number of distinct frame-id sequences seen.
	UniqueStackCount int
	// Duration is endTime-startTime once finished, open-ended to "now"
	// while the profile is still recording.
	Duration time.Duration
}

// Profile owns the frame/stack/worker tables and the ordered sample log for
// one profiling session. It is created open, mutated exclusively through
// AddSample, transitions to read-only on Finish and is then consumed by
// WireItem.
//
// The sampler's reentrancy guard already serializes the tick path, but
// Stats, Finish and WireItem may be called from other goroutines at any
// time, so the mutable state lives behind a lock that owns it. A sample
// racing Finish either lands before the close and is kept, or observes the
// closed state and is dropped; there is no torn intermediate.
type Profile struct {
	id             uuid.UUID
	name           string
	startTime      time.Time
	correlationIDs map[string]string

	state xsync.RWMutex[profileState]
}

type profileState struct {
	finished bool
	endTime  time.Time

	frames  FrameTable
	stacks  StackTable
	workers workerTable
	samples []Sample

	droppedAfterFinish uint64
}

// Option configures a Profile at creation time.
type Option func(*Profile)

// WithCorrelationIDs attaches opaque correlation identifiers (trace id,
// transaction id, ...) that are carried into the wire artifact unchanged.
func WithCorrelationIDs(ids map[string]string) Option {
	return func(p *Profile) {
		if len(ids) == 0 {
			return
		}
		p.correlationIDs = make(map[string]string, len(ids))
		for k, v := range ids {
			p.correlationIDs[k] = v
		}
	}
}

// New creates an open Profile named <name>, with its start time set to now.
func New(name string, opts ...Option) *Profile {
	p := &Profile{
		id:        uuid.New(),
		name:      name,
		startTime: time.Now(),
	}
	p.state = xsync.NewRWMutex(profileState{
		frames:  newFrameTable(),
		stacks:  newStackTable(),
		workers: newWorkerTable(),
	})
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ID returns the unique id assigned to this profile at creation.
func (p *Profile) ID() uuid.UUID { return p.id }

// Name returns the session name the profile was created with.
func (p *Profile) Name() string { return p.name }

// StartTime returns the profile's creation time.
func (p *Profile) StartTime() time.Time { return p.startTime }

// AddSample interns the given frame sequence, composes the stack id, interns
// the worker identity and appends one sample to the log. The elapsed time is
// derived from captureTime relative to the profile start and clamped at
// zero.
//
// Returns false without mutating anything if the frame sequence is empty or
// the profile has already been finished. Recording into a finished profile
// is a no-op by design, not an error.
func (p *Profile) AddSample(frames []Frame, worker string, captureTime time.Time) bool {
	if len(frames) == 0 {
		return false
	}

	state := p.state.WLock()
	defer p.state.WUnlock(&state)

	if state.finished {
		state.droppedAfterFinish++
		return false
	}

	frameIDs := make([]FrameID, len(frames))
	for i := range frames {
		frameIDs[i] = state.frames.Intern(frames[i])
	}
	stackID := state.stacks.Intern(frameIDs)
	workerID := state.workers.intern(worker)

	elapsed := captureTime.Sub(p.startTime)
	if elapsed < 0 {
		elapsed = 0
	}
	state.samples = append(state.samples, Sample{
		StackID:   stackID,
		WorkerID:  workerID,
		ElapsedNS: uint64(elapsed),
	})
	return true
}

// Finish sets the end time and transitions the profile to read-only.
// Idempotent: only the first call records the end time.
func (p *Profile) Finish() {
	state := p.state.WLock()
	defer p.state.WUnlock(&state)

	if state.finished {
		return
	}
	state.finished = true
	state.endTime = time.Now()
}

// Finished reports whether the profile has been finalized.
func (p *Profile) Finished() bool {
	state := p.state.RLock()
	defer p.state.RUnlock(&state)
	return state.finished
}

// Stats returns the sample and dedup counters. Valid before or after
// finalization.
func (p *Profile) Stats() Stats {
	state := p.state.RLock()
	defer p.state.RUnlock(&state)

	end := state.endTime
	if !state.finished {
		end = time.Now()
	}
	return Stats{
		SampleCount:      len(state.samples),
		UniqueFrameCount: state.frames.Len(),
		UniqueStackCount: state.stacks.Len(),
		Duration:         end.Sub(p.startTime),
	}
}

// DroppedAfterFinish returns how many AddSample calls arrived after Finish.
// Surfaced only as an internal diagnostic.
func (p *Profile) DroppedAfterFinish() uint64 {
	state := p.state.RLock()
	defer p.state.RUnlock(&state)
	return state.droppedAfterFinish
}
