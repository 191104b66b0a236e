// Copyright The Pyrite Authors
// SPDX-License-Identifier: Apache-2.0

package profile // import "github.com/pyrite-profiler/pyrite/profile"

// FrameID is a dense, zero-based index into a Profile's frame table,
// assigned in first-seen order.
type FrameID uint32

// StackID is a dense, zero-based index into a Profile's stack table,
// assigned in first-seen order.
type StackID uint32

// WorkerID is a dense, zero-based index into a Profile's worker table,
// assigned in first-seen order.
type WorkerID uint32

// FrameKey is the identity of a frame. Two frames with identical identity
// fields always resolve to the same FrameID within one Profile.
type FrameKey struct {
	// Function is the bare function name, without the package qualifier.
	Function string
	// File is the source file defining the function.
	File string
	// Line is the source line number at the capture point.
	Line int
	// Package is the full package path enclosing the function.
	Package string
}

// Frame represents one stack entry identifying a function and location at
// the moment of capture. Immutable once interned.
type Frame struct {
	FrameKey

	// InApp marks frames that belong to application code, as opposed to
	// runtime, standard library or vendored infrastructure. Derived from
	// the configured ignore-prefix list at capture time.
	InApp bool
}

// Sample is one recorded capture: which stack, on which worker, how long
// after the profile started.
type Sample struct {
	// StackID references the interned stack.
	StackID StackID
	// WorkerID references the interned worker identity.
	WorkerID WorkerID
	// ElapsedNS is the time since profile start, in nanoseconds. Values
	// are non-decreasing in log order because samples are appended in
	// capture order.
	ElapsedNS uint64
}
