// Copyright The Pyrite Authors
// SPDX-License-Identifier: Apache-2.0

// Package config holds the profiling session configuration. A Config is
// immutable for the lifetime of one session and is read by both the sampler
// and the adaptive controller without further synchronization.
package config // import "github.com/pyrite-profiler/pyrite/config"

import (
	"fmt"
	"time"
)

const (
	// DefaultSampleInterval is the base tick interval. Roughly 101Hz; an odd
	// frequency is less likely to accidentally synchronize with periodic
	// work in the profiled application.
	DefaultSampleInterval = 9900 * time.Microsecond

	// DefaultMaxStackDepth bounds the number of frames collected per stack
	// after inline expansion.
	DefaultMaxStackDepth = 32

	// DefaultMaxFramesPerSample bounds the frame count after inline
	// expansion and internal-frame filtering.
	DefaultMaxFramesPerSample = 128

	// DefaultCPUThresholdPercent is the host CPU usage above which adaptive
	// sampling coarsens the interval.
	DefaultCPUThresholdPercent = 80.0

	// DefaultMemoryThresholdMiB is the process memory usage above which
	// adaptive sampling coarsens the interval.
	DefaultMemoryThresholdMiB = 1024

	// DefaultMonitorInterval is how often resource readings are taken.
	DefaultMonitorInterval = 1 * time.Second

	// DefaultFlushInterval is how often queued artifacts are handed to the
	// exporter.
	DefaultFlushInterval = 5 * time.Second

	// DefaultMaxSessionDuration caps a single continuous capture. A session
	// reaching the cap is finalized and exported as usual.
	DefaultMaxSessionDuration = 30 * time.Second
)

// Config is the configuration surface consumed by the profiler core. It is
// supplied by the embedding application, typically from an external
// configuration loader.
type Config struct {
	// Enabled gates all profiling. If false, sessions never start.
	Enabled bool

	// SampleRate is the probability, in [0,1], that any given session
	// start request actually starts profiling.
	SampleRate float64

	// SessionSampleRate is the probability, in [0,1], that this process
	// ever profiles. It is rolled once per process lifetime and cached.
	SessionSampleRate float64

	// SampleInterval is the base interval between capture ticks.
	SampleInterval time.Duration

	// Adaptive enables resource-aware interval scaling.
	Adaptive bool

	// CPUThresholdPercent is the CPU usage threshold for adaptive scaling.
	CPUThresholdPercent float64

	// MemoryThresholdMiB is the memory usage threshold for adaptive scaling.
	MemoryThresholdMiB uint64

	// MaxStackDepth bounds the number of PCs collected per stack walk.
	MaxStackDepth int

	// MaxFramesPerSample bounds the frames recorded per sample.
	MaxFramesPerSample int

	// IgnorePrefixes lists function-name prefixes considered non-application
	// code when classifying frames (e.g. "runtime.", "net/http.").
	IgnorePrefixes []string

	// MonitorInterval is the cadence of resource readings.
	MonitorInterval time.Duration

	// FlushInterval is the cadence of queued artifact hand-off.
	FlushInterval time.Duration

	// MaxSessionDuration auto-finalizes sessions that run longer. Zero
	// disables the cap.
	MaxSessionDuration time.Duration
}

// Default returns a Config with all knobs set to their defaults. Sampling
// gates default to 1.0 so that an explicitly created session starts unless
// the operator opts into probabilistic capture.
func Default() Config {
	return Config{
		Enabled:             true,
		SampleRate:          1.0,
		SessionSampleRate:   1.0,
		SampleInterval:      DefaultSampleInterval,
		Adaptive:            true,
		CPUThresholdPercent: DefaultCPUThresholdPercent,
		MemoryThresholdMiB:  DefaultMemoryThresholdMiB,
		MaxStackDepth:       DefaultMaxStackDepth,
		MaxFramesPerSample:  DefaultMaxFramesPerSample,
		IgnorePrefixes: []string{
			"runtime.",
			"runtime/",
			"testing.",
			"internal/",
		},
		MonitorInterval:    DefaultMonitorInterval,
		FlushInterval:      DefaultFlushInterval,
		MaxSessionDuration: DefaultMaxSessionDuration,
	}
}

// Validate runs validations on the provided configuration, and returns
// errors if invalid values were provided. Sessions with an invalid Config
// fail closed: profiling does not start, the host application is unaffected.
func (c *Config) Validate() error {
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return fmt.Errorf("sample rate %f not within [0..1]", c.SampleRate)
	}
	if c.SessionSampleRate < 0 || c.SessionSampleRate > 1 {
		return fmt.Errorf("session sample rate %f not within [0..1]",
			c.SessionSampleRate)
	}
	if c.SampleInterval <= 0 {
		return fmt.Errorf("non-positive sample interval %v", c.SampleInterval)
	}
	if c.MaxStackDepth <= 0 {
		return fmt.Errorf("non-positive max stack depth %d", c.MaxStackDepth)
	}
	if c.MaxFramesPerSample <= 0 {
		return fmt.Errorf("non-positive max frames per sample %d",
			c.MaxFramesPerSample)
	}
	if c.Adaptive {
		if c.CPUThresholdPercent <= 0 || c.CPUThresholdPercent > 100 {
			return fmt.Errorf("CPU threshold %f not within (0..100]",
				c.CPUThresholdPercent)
		}
		if c.MemoryThresholdMiB == 0 {
			return fmt.Errorf("adaptive sampling requires a memory threshold")
		}
	}
	if c.MonitorInterval <= 0 {
		return fmt.Errorf("non-positive monitor interval %v", c.MonitorInterval)
	}
	if c.MaxSessionDuration < 0 {
		return fmt.Errorf("negative max session duration %v", c.MaxSessionDuration)
	}
	return nil
}
