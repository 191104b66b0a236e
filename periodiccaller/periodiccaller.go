// Copyright The Pyrite Authors
// SPDX-License-Identifier: Apache-2.0

// Package periodiccaller allows periodic calls of functions.
package periodiccaller // import "github.com/pyrite-profiler/pyrite/periodiccaller"

import (
	"context"
	"math/rand/v2"
	"time"

	log "github.com/sirupsen/logrus"
)

// Start starts a timer that calls <callback> every <interval> until the
// <ctx> is canceled. The returned function stops the timer.
func Start(ctx context.Context, interval time.Duration, callback func()) func() {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				callback()
			case <-ctx.Done():
				return
			}
		}
	}()

	return ticker.Stop
}

// StartWithManualTrigger starts a timer that calls <callback> every
// <interval> until the <ctx> is canceled. Additionally the <trigger> channel
// can be used to invoke the callback immediately.
func StartWithManualTrigger(ctx context.Context, interval time.Duration, trigger <-chan bool,
	callback func(manualTrigger bool)) func() {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				callback(false)
			case <-trigger:
				callback(true)
			case <-ctx.Done():
				return
			}
		}
	}()

	return ticker.Stop
}

// StartWithJitter starts a timer that calls <callback> every
// <baseDuration+jitter> until the <ctx> is canceled. <jitter>, [0..1], is
// used to add +/- jitter to <baseDuration> at every iteration of the timer.
func StartWithJitter(ctx context.Context, baseDuration time.Duration, jitter float64,
	callback func()) func() {
	ticker := time.NewTicker(addJitter(baseDuration, jitter))
	go func() {
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				callback()
			case <-ctx.Done():
				return
			}
			ticker.Reset(addJitter(baseDuration, jitter))
		}
	}()

	return ticker.Stop
}

// addJitter adds +/- jitter (jitter is [0..1]) to baseDuration.
func addJitter(baseDuration time.Duration, jitter float64) time.Duration {
	if jitter < 0.0 || jitter > 1.0 {
		log.Errorf("Jitter (%f) out of range [0..1].", jitter)
		return baseDuration
	}
	return time.Duration((1 + jitter - 2*jitter*rand.Float64()) * float64(baseDuration))
}
