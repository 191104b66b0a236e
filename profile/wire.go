// Copyright The Pyrite Authors
// SPDX-License-Identifier: Apache-2.0

package profile // import "github.com/pyrite-profiler/pyrite/profile"

import (
	"strconv"
	"time"
)

// WireFrame is the serialized form of one interned frame.
type WireFrame struct {
	Function string `json:"function"`
	File     string `json:"filename"`
	Line     int    `json:"lineno"`
	Package  string `json:"package"`
	InApp    bool   `json:"in_app"`
}

// WireSample is the serialized form of one recorded sample.
type WireSample struct {
	StackID   StackID  `json:"stack_id"`
	WorkerID  WorkerID `json:"worker_id"`
	ElapsedNS uint64   `json:"elapsed_since_start_ns"`
}

// WireWorker is the per-worker metadata carried in the artifact.
type WireWorker struct {
	Name string `json:"name"`
}

// WireItem is the finalized, serializable representation of a Profile,
// ready for export. All ids are dense and zero-based, so Frames, Stacks and
// the worker metadata are directly indexable on the decoding side.
type WireItem struct {
	ProfileID      string                `json:"profile_id"`
	Name           string                `json:"name"`
	StartTime      time.Time             `json:"start_time"`
	DurationNS     uint64                `json:"duration_ns"`
	Frames         []WireFrame           `json:"frames"`
	Stacks         [][]FrameID           `json:"stacks"`
	Samples        []WireSample          `json:"samples"`
	WorkerMetadata map[string]WireWorker `json:"thread_metadata"`
	CorrelationIDs map[string]string     `json:"correlation_ids,omitempty"`
}

// WireItem emits the artifact for this profile. It is a pure function of the
// profile's current state: it never mutates the profile and is safe to call
// multiple times. For a profile that has not been finished yet the duration
// is taken up to now.
func (p *Profile) WireItem() *WireItem {
	state := p.state.RLock()
	defer p.state.RUnlock(&state)

	end := state.endTime
	if !state.finished {
		end = time.Now()
	}

	item := &WireItem{
		ProfileID:      p.id.String(),
		Name:           p.name,
		StartTime:      p.startTime,
		DurationNS:     uint64(end.Sub(p.startTime)),
		Frames:         make([]WireFrame, len(state.frames.frames)),
		Stacks:         make([][]FrameID, len(state.stacks.stacks)),
		Samples:        make([]WireSample, len(state.samples)),
		WorkerMetadata: make(map[string]WireWorker, len(state.workers.names)),
		CorrelationIDs: p.correlationIDs,
	}

	for i, frame := range state.frames.frames {
		item.Frames[i] = WireFrame{
			Function: frame.Function,
			File:     frame.File,
			Line:     frame.Line,
			Package:  frame.Package,
			InApp:    frame.InApp,
		}
	}
	for i, stack := range state.stacks.stacks {
		ids := make([]FrameID, len(stack))
		copy(ids, stack)
		item.Stacks[i] = ids
	}
	for i, sample := range state.samples {
		item.Samples[i] = WireSample{
			StackID:   sample.StackID,
			WorkerID:  sample.WorkerID,
			ElapsedNS: sample.ElapsedNS,
		}
	}
	for id, name := range state.workers.names {
		item.WorkerMetadata[strconv.Itoa(id)] = WireWorker{Name: name}
	}

	return item
}
