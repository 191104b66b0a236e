// Copyright The Pyrite Authors
// SPDX-License-Identifier: Apache-2.0

package controller

import "time"

// ScalePolicy coarsens the sampling interval while the host is above a
// resource threshold. pressure is the highest reading-to-threshold ratio and
// is always > 1 when the policy is consulted.
type ScalePolicy interface {
	Scale(base time.Duration, pressure float64) time.Duration
}

// DoublingPolicy halves the sampling frequency whenever a threshold is
// exceeded, regardless of by how much.
type DoublingPolicy struct{}

var _ ScalePolicy = DoublingPolicy{}

func (DoublingPolicy) Scale(base time.Duration, _ float64) time.Duration {
	return 2 * base
}

// Step is one rung of a StepPolicy ladder.
type Step struct {
	// Pressure is the lowest reading-to-threshold ratio this rung covers.
	Pressure float64
	// Factor multiplies the base interval.
	Factor float64
}

// StepPolicy maps resource pressure onto a ladder of interval multipliers,
// so mild pressure throttles gently and severe pressure throttles hard.
type StepPolicy struct {
	// Steps must be sorted by ascending Pressure.
	Steps []Step
}

var _ ScalePolicy = StepPolicy{}

// DefaultStepPolicy backs off gradually: 1.5x just above the threshold up
// to 8x at twice the threshold.
func DefaultStepPolicy() StepPolicy {
	return StepPolicy{Steps: []Step{
		{Pressure: 1.0, Factor: 1.5},
		{Pressure: 1.25, Factor: 2},
		{Pressure: 1.5, Factor: 4},
		{Pressure: 2.0, Factor: 8},
	}}
}

// Scale picks the highest rung whose Pressure bound is not above the given
// pressure. With no matching rung the base interval is returned unchanged.
func (p StepPolicy) Scale(base time.Duration, pressure float64) time.Duration {
	factor := 1.0
	for _, step := range p.Steps {
		if pressure < step.Pressure {
			break
		}
		factor = step.Factor
	}
	return time.Duration(float64(base) * factor)
}
