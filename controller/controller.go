// Copyright The Pyrite Authors
// SPDX-License-Identifier: Apache-2.0

// Package controller implements the adaptive sampling controller: it gates
// whether profiling starts at all and throttles the sampling frequency when
// the host is under resource pressure.
package controller // import "github.com/pyrite-profiler/pyrite/controller"

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/pyrite-profiler/pyrite/config"
	"github.com/pyrite-profiler/pyrite/xsync"
)

// State describes the controller/sampler pair for one session.
type State int32

const (
	// StateIdle means no profile is active; ShouldStart may pass.
	StateIdle State = iota
	// StateArmed means a profile is active and being sampled.
	StateArmed
	// StateFinalizing means the session is being torn down. Terminal for
	// that session; a new session requires a fresh profile.
	StateFinalizing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArmed:
		return "armed"
	case StateFinalizing:
		return "finalizing"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ErrSessionActive is returned by BeginSession when a session is already
// armed or finalizing.
var ErrSessionActive = errors.New("a profiling session is already active")

// processSessionGate caches the per-process probabilistic decision. The
// session gate is rolled on the first ShouldStart call in the process and
// reused for all later sessions, so an operator can cap what fraction of
// processes ever profile, independently of the per-invocation rate.
var processSessionGate xsync.OnceValue[bool]

// Controller gates session starts and supplies the effective sampling
// interval given the most recent resource readings.
type Controller struct {
	cfg       *config.Config
	randFloat func() float64
	policy    ScalePolicy
	gate      *xsync.OnceValue[bool]

	state atomic.Int32

	// Latest resource readings, pushed by an external monitor.
	cpuPctBits atomic.Uint64
	memMiB     atomic.Uint64
}

// Option configures a Controller.
type Option func(*Controller)

// WithRand replaces the randomness source for the probabilistic gates.
func WithRand(fn func() float64) Option {
	return func(c *Controller) { c.randFloat = fn }
}

// WithScalePolicy replaces the adaptive interval scaling policy.
func WithScalePolicy(policy ScalePolicy) Option {
	return func(c *Controller) { c.policy = policy }
}

// WithSessionGate replaces the process-wide cached session gate. Intended
// for tests and for hosts that deliberately run multiple isolated profiling
// domains in one process.
func WithSessionGate(gate *xsync.OnceValue[bool]) Option {
	return func(c *Controller) { c.gate = gate }
}

// New creates a Controller for the given configuration. The configuration
// is validated here; profiling fails closed on invalid values.
func New(cfg *config.Config, opts ...Option) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid profiling configuration: %w", err)
	}
	c := &Controller{
		cfg:       cfg,
		randFloat: rand.Float64,
		policy:    DoublingPolicy{},
		gate:      &processSessionGate,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ShouldStart decides whether a new profiling session starts. Two
// independent probabilistic gates must both pass: the cached per-process
// session gate and a per-invocation gate re-rolled on every call. Returns
// false immediately if profiling is disabled or a session is already
// active.
func (c *Controller) ShouldStart() bool {
	if !c.cfg.Enabled {
		return false
	}
	if c.State() != StateIdle {
		return false
	}
	if !c.gate.GetOrInit(c.rollSessionGate) {
		return false
	}
	return c.randFloat() < c.cfg.SampleRate
}

func (c *Controller) rollSessionGate() bool {
	decision := c.randFloat() < c.cfg.SessionSampleRate
	log.Debugf("Session gate decided: %v (rate %f)", decision, c.cfg.SessionSampleRate)
	return decision
}

// UpdateResources stores the latest CPU and memory readings. Safe to call
// from any goroutine; the sampler picks the readings up on its next re-arm.
func (c *Controller) UpdateResources(cpuPct float64, memMiB uint64) {
	c.cpuPctBits.Store(math.Float64bits(cpuPct))
	c.memMiB.Store(memMiB)
}

// EffectiveInterval returns the interval the sampler should use at this
// moment. With adaptive sampling disabled, or with the host below both
// thresholds, this is the configured base interval. Above a threshold the
// scaling policy coarsens the interval; the result is never smaller than
// the base interval.
func (c *Controller) EffectiveInterval() time.Duration {
	base := c.cfg.SampleInterval
	if !c.cfg.Adaptive {
		return base
	}

	cpuPct := math.Float64frombits(c.cpuPctBits.Load())
	memMiB := c.memMiB.Load()
	if cpuPct <= c.cfg.CPUThresholdPercent && memMiB <= c.cfg.MemoryThresholdMiB {
		return base
	}

	pressure := max(cpuPct/c.cfg.CPUThresholdPercent,
		float64(memMiB)/float64(c.cfg.MemoryThresholdMiB))
	scaled := c.policy.Scale(base, pressure)
	if scaled < base {
		log.Warnf("Scaling policy returned %v below base interval %v", scaled, base)
		return base
	}
	return scaled
}

// State returns the current session state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// BeginSession transitions Idle to Armed. Callers arm the sampler only
// after this succeeds, so at most one profile is ever armed.
func (c *Controller) BeginSession() error {
	if !c.state.CompareAndSwap(int32(StateIdle), int32(StateArmed)) {
		return ErrSessionActive
	}
	return nil
}

// BeginFinalize transitions Armed to Finalizing. Returns false if no
// session was armed.
func (c *Controller) BeginFinalize() bool {
	return c.state.CompareAndSwap(int32(StateArmed), int32(StateFinalizing))
}

// FinishSession returns the controller to Idle after finalization has
// completed. The finished profile must not be reused.
func (c *Controller) FinishSession() {
	c.state.Store(int32(StateIdle))
}
