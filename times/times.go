// Copyright The Pyrite Authors
// SPDX-License-Identifier: Apache-2.0

// Package times holds the intervals and timeouts used across the profiler in
// a central place and comes with getters to read them.
package times // import "github.com/pyrite-profiler/pyrite/times"

import (
	"time"

	"github.com/pyrite-profiler/pyrite/config"
)

// Compile time check for interface adherence.
var _ IntervalsAndTimers = (*Times)(nil)

// MonitorJitter is applied to the resource monitor interval so that readings
// do not accidentally synchronize with the sampling ticks.
const MonitorJitter = 0.2

// Times holds all intervals and timeouts derived from one session Config.
type Times struct {
	sampleInterval     time.Duration
	monitorInterval    time.Duration
	flushInterval      time.Duration
	maxSessionDuration time.Duration
}

// IntervalsAndTimers is a meta-interface that exists purely to document its
// functionality.
type IntervalsAndTimers interface {
	// SampleInterval is the base interval between capture ticks.
	SampleInterval() time.Duration
	// MonitorInterval is the interval for resource readings and internal
	// diagnostics collection.
	MonitorInterval() time.Duration
	// FlushInterval is the interval at which queued artifacts are handed
	// to the exporter.
	FlushInterval() time.Duration
	// MaxSessionDuration caps a single continuous capture. Zero means
	// uncapped.
	MaxSessionDuration() time.Duration
}

func (t *Times) SampleInterval() time.Duration { return t.sampleInterval }

func (t *Times) MonitorInterval() time.Duration { return t.monitorInterval }

func (t *Times) FlushInterval() time.Duration { return t.flushInterval }

func (t *Times) MaxSessionDuration() time.Duration { return t.maxSessionDuration }

// New returns a new Times instance derived from cfg.
func New(cfg *config.Config) *Times {
	flush := cfg.FlushInterval
	if flush <= 0 {
		flush = config.DefaultFlushInterval
	}
	return &Times{
		sampleInterval:     cfg.SampleInterval,
		monitorInterval:    cfg.MonitorInterval,
		flushInterval:      flush,
		maxSessionDuration: cfg.MaxSessionDuration,
	}
}
