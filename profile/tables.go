// Copyright The Pyrite Authors
// SPDX-License-Identifier: Apache-2.0

package profile // import "github.com/pyrite-profiler/pyrite/profile"

import (
	"encoding/binary"
	"slices"

	"github.com/zeebo/xxh3"
)

// FrameTable deduplicates frames, mapping a frame's identity to a stable
// small integer id. Owned by, and never escaping, its Profile.
type FrameTable struct {
	index  map[FrameKey]FrameID
	frames []Frame
}

func newFrameTable() FrameTable {
	return FrameTable{index: make(map[FrameKey]FrameID)}
}

// Intern returns the id for the given frame, inserting it if its identity
// has not been seen before.
func (t *FrameTable) Intern(frame Frame) FrameID {
	if id, ok := t.index[frame.FrameKey]; ok {
		return id
	}
	id := FrameID(len(t.frames))
	t.index[frame.FrameKey] = id
	t.frames = append(t.frames, frame)
	return id
}

// Len returns the number of unique frames interned so far.
func (t *FrameTable) Len() int {
	return len(t.frames)
}

// StackTable deduplicates ordered frame-id sequences, mapping each distinct
// sequence to a stable small integer id. Lookup is by 64-bit hash of the
// sequence, with collisions resolved by comparing the sequences themselves.
type StackTable struct {
	index  map[uint64][]StackID
	stacks [][]FrameID
}

func newStackTable() StackTable {
	return StackTable{index: make(map[uint64][]StackID)}
}

// Intern returns the id for the given ordered frame-id sequence, inserting
// a copy if the exact sequence has not been seen before.
func (t *StackTable) Intern(frameIDs []FrameID) StackID {
	h := hashFrameIDs(frameIDs)
	for _, candidate := range t.index[h] {
		if slices.Equal(t.stacks[candidate], frameIDs) {
			return candidate
		}
	}
	id := StackID(len(t.stacks))
	t.stacks = append(t.stacks, slices.Clone(frameIDs))
	t.index[h] = append(t.index[h], id)
	return id
}

// Len returns the number of unique stacks interned so far.
func (t *StackTable) Len() int {
	return len(t.stacks)
}

// hashFrameIDs calculates the dedup hash of an ordered frame-id sequence.
func hashFrameIDs(frameIDs []FrameID) uint64 {
	buf := make([]byte, 4*len(frameIDs))
	for i, id := range frameIDs {
		binary.LittleEndian.PutUint32(buf[4*i:], uint32(id))
	}
	return xxh3.Hash(buf)
}

// workerTable deduplicates worker identities (thread names or pprof label
// values) into dense ids.
type workerTable struct {
	index map[string]WorkerID
	names []string
}

func newWorkerTable() workerTable {
	return workerTable{index: make(map[string]WorkerID)}
}

func (t *workerTable) intern(name string) WorkerID {
	if id, ok := t.index[name]; ok {
		return id
	}
	id := WorkerID(len(t.names))
	t.index[name] = id
	t.names = append(t.names, name)
	return id
}
