// Copyright The Pyrite Authors
// SPDX-License-Identifier: Apache-2.0

// Package pyrite implements a continuous, low-overhead, in-process call
// stack profiler. A Session ties the sampling engine, the adaptive
// controller, the resource monitor and the exporter boundary together; the
// embedding application creates one Session and starts and stops profiling
// runs on it.
package pyrite // import "github.com/pyrite-profiler/pyrite"

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/pyrite-profiler/pyrite/config"
	"github.com/pyrite-profiler/pyrite/controller"
	"github.com/pyrite-profiler/pyrite/profile"
	"github.com/pyrite-profiler/pyrite/reporter"
	"github.com/pyrite-profiler/pyrite/resourcemonitor"
	"github.com/pyrite-profiler/pyrite/sampler"
	"github.com/pyrite-profiler/pyrite/times"
)

// ErrNotSampled is returned by Start when one of the probabilistic sampling
// gates rejected the session. Not an operational failure.
var ErrNotSampled = errors.New("session start rejected by sampling gates")

// ErrAlreadyActive is returned by Start when a profiling run is already in
// progress on this session.
var ErrAlreadyActive = controller.ErrSessionActive

// StartOptions parameterize one profiling run.
type StartOptions struct {
	// Name labels the resulting profile, typically after the transaction
	// or job being profiled.
	Name string

	// CorrelationIDs are carried opaquely into the exported artifact, e.g.
	// trace or request ids.
	CorrelationIDs map[string]string
}

// Session is the embedding application's handle on the profiler. A Session
// is safe for concurrent use; at most one profiling run is active at a
// time.
type Session struct {
	cfg       config.Config
	intervals *times.Times
	ctl       *controller.Controller
	engine    *sampler.Sampler
	exporter  reporter.Exporter

	stopMonitor func()
	cancel      context.CancelFunc

	mu       sync.Mutex
	active   *profile.Profile
	maxTimer *time.Timer
	closed   bool
}

// SessionOption configures a Session beyond its Config.
type SessionOption func(*sessionSetup)

type sessionSetup struct {
	walker  sampler.StackWalker
	ctlOpts []controller.Option
}

// WithStackWalker replaces the stack capture implementation. The default
// walks all goroutines via the runtime's goroutine profile.
func WithStackWalker(walker sampler.StackWalker) SessionOption {
	return func(s *sessionSetup) { s.walker = walker }
}

// WithControllerOptions passes options through to the adaptive controller.
func WithControllerOptions(opts ...controller.Option) SessionOption {
	return func(s *sessionSetup) { s.ctlOpts = append(s.ctlOpts, opts...) }
}

// NewSession wires up a profiler session from the given configuration. The
// resource monitor starts immediately when adaptive sampling is enabled;
// Close releases it. An invalid configuration fails closed here, before
// any profiling machinery starts.
func NewSession(cfg config.Config, exporter reporter.Exporter,
	opts ...SessionOption) (*Session, error) {
	var setup sessionSetup
	for _, opt := range opts {
		opt(&setup)
	}

	ctl, err := controller.New(&cfg, setup.ctlOpts...)
	if err != nil {
		return nil, err
	}

	walker := setup.walker
	if walker == nil {
		if walker, err = sampler.NewGoroutineWalker(&cfg); err != nil {
			return nil, err
		}
	}

	// TriggerOnce reports the calling goroutine's own stack, independent of
	// which walker drives the tick path.
	manual := sampler.WithManualWalker(sampler.NewCallersWalker("", &cfg))

	s := &Session{
		cfg:       cfg,
		intervals: times.New(&cfg),
		ctl:       ctl,
		engine:    sampler.New(walker, ctl, &cfg, manual),
		exporter:  exporter,
	}

	if cfg.Adaptive {
		ctx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		monitor := resourcemonitor.New(ctl, s.intervals.MonitorInterval())
		s.stopMonitor = monitor.Start(ctx)
	}

	return s, nil
}

// Start begins a profiling run. Both probabilistic gates must pass,
// otherwise ErrNotSampled is returned. If a run is already active, its
// profile is returned together with ErrAlreadyActive.
func (s *Session) Start(opts StartOptions) (*profile.Profile, error) {
	if !s.ctl.ShouldStart() {
		// Distinguish "gate rejected" from "already running" so callers
		// holding the active profile can keep using it.
		if s.ctl.State() != controller.StateIdle {
			return s.activeProfile(), ErrAlreadyActive
		}
		return nil, ErrNotSampled
	}

	// The profile must be published under the same critical section that
	// claims the session slot. Otherwise a concurrent Stop can finalize the
	// slot in between and leave an armed sampler behind with no way to ever
	// reach it again. Stop takes s.mu before touching the engine, so it
	// cannot interleave here.
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ctl.BeginSession(); err != nil {
		return s.active, ErrAlreadyActive
	}

	var profileOpts []profile.Option
	if len(opts.CorrelationIDs) > 0 {
		profileOpts = append(profileOpts, profile.WithCorrelationIDs(opts.CorrelationIDs))
	}
	p := profile.New(opts.Name, profileOpts...)

	if err := s.engine.Start(p); err != nil {
		// Cannot happen with the controller holding the session slot, but
		// fail closed rather than leak an armed state.
		s.ctl.FinishSession()
		return nil, err
	}

	s.active = p
	if maxDuration := s.intervals.MaxSessionDuration(); maxDuration > 0 {
		s.maxTimer = time.AfterFunc(maxDuration, s.autoStop)
	}

	log.Debugf("Started profiling run %q", opts.Name)
	return p, nil
}

// Stop finalizes the active profiling run, hands the artifact to the
// exporter exactly once and returns it. Stopping an idle session returns
// (nil, nil). Concurrent Stop calls and the max duration auto-stop race
// safely; exactly one caller performs the teardown.
func (s *Session) Stop(ctx context.Context) (*profile.WireItem, error) {
	if !s.ctl.BeginFinalize() {
		return nil, nil
	}

	s.mu.Lock()
	p := s.active
	s.active = nil
	if s.maxTimer != nil {
		s.maxTimer.Stop()
		s.maxTimer = nil
	}
	s.mu.Unlock()

	s.engine.Stop()
	if p == nil {
		// No profile was ever published for this slot; nothing to export.
		s.ctl.FinishSession()
		return nil, nil
	}
	p.Finish()

	diag := s.engine.Diagnostics()
	stats := p.Stats()
	log.Infof("Finished profiling run: %d samples, %d unique stacks, "+
		"%d ticks, %d guard collisions, %d capture failures",
		stats.SampleCount, stats.UniqueStackCount,
		diag.TicksFired, diag.GuardCollisions, diag.CaptureFailures)
	if dropped := p.DroppedAfterFinish(); dropped > 0 {
		log.Debugf("Dropped %d samples recorded after finalization", dropped)
	}

	item := p.WireItem()
	err := s.exporter.Export(ctx, item)
	s.ctl.FinishSession()
	return item, err
}

// TriggerOnce synchronously records one sample into the active profile,
// outside the timer cadence. Returns false if a capture was already in
// progress.
func (s *Session) TriggerOnce() bool {
	return s.engine.TriggerOnce()
}

// Active reports whether a profiling run is in progress.
func (s *Session) Active() bool {
	return s.ctl.State() == controller.StateArmed
}

// Close stops any active run and releases the resource monitor. The
// session must not be used afterwards.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	_, err := s.Stop(ctx)
	if s.stopMonitor != nil {
		s.stopMonitor()
	}
	if s.cancel != nil {
		s.cancel()
	}
	return err
}

func (s *Session) activeProfile() *profile.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// autoStop finalizes a run that reached the configured maximum duration.
func (s *Session) autoStop() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	item, err := s.Stop(ctx)
	if err != nil {
		log.Errorf("Failed to export profile after max duration stop: %v", err)
		return
	}
	if item != nil {
		log.Debugf("Profiling run %s auto-stopped after max duration", item.ProfileID)
	}
}
