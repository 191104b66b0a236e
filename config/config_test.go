// Copyright The Pyrite Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := map[string]struct {
		mutate  func(*Config)
		wantErr string
	}{
		"sample rate above one": {
			mutate:  func(c *Config) { c.SampleRate = 1.5 },
			wantErr: "sample rate",
		},
		"negative sample rate": {
			mutate:  func(c *Config) { c.SampleRate = -0.1 },
			wantErr: "sample rate",
		},
		"session sample rate above one": {
			mutate:  func(c *Config) { c.SessionSampleRate = 2 },
			wantErr: "session sample rate",
		},
		"zero interval": {
			mutate:  func(c *Config) { c.SampleInterval = 0 },
			wantErr: "sample interval",
		},
		"negative interval": {
			mutate:  func(c *Config) { c.SampleInterval = -time.Millisecond },
			wantErr: "sample interval",
		},
		"zero stack depth": {
			mutate:  func(c *Config) { c.MaxStackDepth = 0 },
			wantErr: "stack depth",
		},
		"zero frames per sample": {
			mutate:  func(c *Config) { c.MaxFramesPerSample = 0 },
			wantErr: "frames per sample",
		},
		"cpu threshold out of range": {
			mutate:  func(c *Config) { c.CPUThresholdPercent = 150 },
			wantErr: "CPU threshold",
		},
		"missing memory threshold": {
			mutate:  func(c *Config) { c.MemoryThresholdMiB = 0 },
			wantErr: "memory threshold",
		},
		"negative max session duration": {
			mutate:  func(c *Config) { c.MaxSessionDuration = -time.Second },
			wantErr: "max session duration",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			test.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), test.wantErr)
		})
	}
}

func TestValidateNonAdaptiveSkipsThresholds(t *testing.T) {
	cfg := Default()
	cfg.Adaptive = false
	cfg.CPUThresholdPercent = 0
	cfg.MemoryThresholdMiB = 0
	assert.NoError(t, cfg.Validate())
}
