// Copyright The Pyrite Authors
// SPDX-License-Identifier: Apache-2.0

package reporter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	pprofile "github.com/google/pprof/profile"

	"github.com/pyrite-profiler/pyrite/profile"
)

// PprofExporter writes each profile artifact in pprof format into a
// directory, so standard Go tooling can consume continuous profiles.
type PprofExporter struct {
	dir string
}

var _ Exporter = (*PprofExporter)(nil)

// NewPprofExporter creates the output directory if needed and returns an
// exporter writing into it.
func NewPprofExporter(dir string) (*PprofExporter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}
	return &PprofExporter{dir: dir}, nil
}

func (e *PprofExporter) Export(_ context.Context, item *profile.WireItem) error {
	prof, err := ConvertToPprof(item)
	if err != nil {
		return err
	}

	path := filepath.Join(e.dir, item.ProfileID+".pb.gz")
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer file.Close()

	// Write gzips the serialized protobuf itself.
	if err = prof.Write(file); err != nil {
		return fmt.Errorf("failed to write profile %s: %w", item.ProfileID, err)
	}
	return nil
}

// ConvertToPprof translates a profile artifact into the pprof data model.
// Frames of a stack are ordered innermost first, matching pprof's location
// order. Samples sharing a stack and worker collapse into one pprof sample
// with their count as the value; the worker name is carried as a label.
func ConvertToPprof(item *profile.WireItem) (*pprofile.Profile, error) {
	mapping := &pprofile.Mapping{ID: 1, HasFunctions: true}
	prof := &pprofile.Profile{
		Mapping:       []*pprofile.Mapping{mapping},
		TimeNanos:     item.StartTime.UnixNano(),
		DurationNanos: int64(item.DurationNS),
		SampleType:    []*pprofile.ValueType{{Type: "samples", Unit: "count"}},
		PeriodType:    &pprofile.ValueType{Type: "wallclock", Unit: "nanoseconds"},
	}

	functions := make([]*pprofile.Function, len(item.Frames))
	locations := make([]*pprofile.Location, len(item.Frames))
	for i, frame := range item.Frames {
		functions[i] = &pprofile.Function{
			ID:         uint64(i) + 1,
			Name:       frame.Function,
			SystemName: frame.Function,
			Filename:   frame.File,
		}
		locations[i] = &pprofile.Location{
			ID:      uint64(i) + 1,
			Mapping: mapping,
			Line: []pprofile.Line{{
				Function: functions[i],
				Line:     int64(frame.Line),
			}},
		}
	}
	prof.Function = functions
	prof.Location = locations

	type sampleKey struct {
		stack  profile.StackID
		worker profile.WorkerID
	}
	counts := make(map[sampleKey]int64)
	order := make([]sampleKey, 0, len(item.Samples))
	for _, sample := range item.Samples {
		key := sampleKey{stack: sample.StackID, worker: sample.WorkerID}
		if _, seen := counts[key]; !seen {
			order = append(order, key)
		}
		counts[key]++
	}

	for _, key := range order {
		if int(key.stack) >= len(item.Stacks) {
			return nil, fmt.Errorf("sample references unknown stack id %d", key.stack)
		}
		frameIDs := item.Stacks[key.stack]
		locs := make([]*pprofile.Location, len(frameIDs))
		for i, id := range frameIDs {
			if int(id) >= len(locations) {
				return nil, fmt.Errorf("stack %d references unknown frame id %d",
					key.stack, id)
			}
			locs[i] = locations[id]
		}

		var labels map[string][]string
		if worker, ok := item.WorkerMetadata[workerKey(key.worker)]; ok && worker.Name != "" {
			labels = map[string][]string{"worker": {worker.Name}}
		}

		prof.Sample = append(prof.Sample, &pprofile.Sample{
			Location: locs,
			Value:    []int64{counts[key]},
			Label:    labels,
		})
	}

	return prof, nil
}

func workerKey(id profile.WorkerID) string {
	return fmt.Sprintf("%d", id)
}
