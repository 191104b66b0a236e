// Copyright The Pyrite Authors
// SPDX-License-Identifier: Apache-2.0

package times

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pyrite-profiler/pyrite/config"
)

func TestNewDerivesFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.SampleInterval = 5 * time.Millisecond
	cfg.MonitorInterval = 2 * time.Second
	cfg.MaxSessionDuration = time.Minute

	tm := New(&cfg)
	assert.Equal(t, 5*time.Millisecond, tm.SampleInterval())
	assert.Equal(t, 2*time.Second, tm.MonitorInterval())
	assert.Equal(t, config.DefaultFlushInterval, tm.FlushInterval())
	assert.Equal(t, time.Minute, tm.MaxSessionDuration())
}

func TestNewDefaultsFlushInterval(t *testing.T) {
	cfg := config.Default()
	cfg.FlushInterval = 0
	tm := New(&cfg)
	assert.Equal(t, config.DefaultFlushInterval, tm.FlushInterval())
}
