// Copyright The Pyrite Authors
// SPDX-License-Identifier: Apache-2.0

package sampler // import "github.com/pyrite-profiler/pyrite/sampler"

import (
	"runtime"
	"unsafe"

	lru "github.com/elastic/go-freelru"

	"github.com/pyrite-profiler/pyrite/config"
	"github.com/pyrite-profiler/pyrite/profile"
)

// WorkerLabel is the pprof label key consulted for worker identity. Samples
// captured on goroutines without this label share the empty worker name.
const WorkerLabel = "worker"

// frameCacheCapacity is the size of the PC to frame-descriptor cache.
// Symbolization of a PC is the expensive part of a capture; the working set
// of distinct PCs in a process is small, so hits dominate after warm-up.
const frameCacheCapacity = 8192

// ThreadStack is the stack of one worker as captured in a single tick,
// innermost frame first.
type ThreadStack struct {
	// Worker identifies the goroutine's worker, from its pprof labels.
	Worker string
	// Frames holds the capture, innermost first, with profiler-internal
	// frames already removed.
	Frames []profile.Frame
}

// StackWalker captures call stacks. The concrete capture mechanism is
// swappable without touching profile or controller logic.
type StackWalker interface {
	// Capture walks the current call stacks, collecting at most maxDepth
	// frames per stack. Workers whose stacks consist only of
	// profiler-internal frames yield no entry.
	Capture(maxDepth int) ([]ThreadStack, error)
}

// stackRecord mirrors internal/profilerecord.StackRecord, the record type of
// the runtime's goroutine profile since go1.23. The runtime allocates each
// record's Stack slice itself.
type stackRecord struct {
	Stack []uintptr
}

// goroutineProfileWithLabels is the runtime's goroutine profile with pprof
// labels attached. The symbol carries a linkname annotation in the runtime
// for consumption by runtime/pprof; signature and record layout must match.
//
//go:linkname goroutineProfileWithLabels runtime.pprof_goroutineProfileWithLabels
func goroutineProfileWithLabels([]stackRecord, []unsafe.Pointer) (int, bool)

// Compile time check to make sure the walkers satisfy the interface.
var _ StackWalker = (*GoroutineWalker)(nil)
var _ StackWalker = (*CallersWalker)(nil)

// GoroutineWalker captures the stacks of all live goroutines through the
// runtime's goroutine profile. This is the tick-path walker: Go offers no
// way to interrupt an arbitrary goroutine from a timer callback, so one tick
// observes every goroutine at once and yields one stack per worker.
type GoroutineWalker struct {
	// stacks/labels are reused across captures. They grow to the maximum
	// number of goroutines seen and are then reused indefinitely.
	stacks []stackRecord
	labels []unsafe.Pointer

	frameCache *lru.LRU[uintptr, []profile.Frame]
	classifier frameClassifier
}

// WalkerOption configures a stack walker.
type WalkerOption func(*frameClassifier)

// WithSelfPrefixes replaces the function-name prefixes identifying the
// profiler's own frames. Used by tests that want to observe themselves.
func WithSelfPrefixes(prefixes ...string) WalkerOption {
	return func(c *frameClassifier) {
		c.selfPrefixes = prefixes
	}
}

// NewGoroutineWalker creates a GoroutineWalker classifying frames according
// to cfg's ignore-prefix list.
func NewGoroutineWalker(cfg *config.Config, opts ...WalkerOption) (*GoroutineWalker, error) {
	cache, err := lru.New[uintptr, []profile.Frame](frameCacheCapacity, hashPC)
	if err != nil {
		return nil, err
	}
	return &GoroutineWalker{
		frameCache: cache,
		classifier: newFrameClassifier(cfg, opts...),
	}, nil
}

// Capture implements StackWalker.
func (w *GoroutineWalker) Capture(maxDepth int) ([]ThreadStack, error) {
	records, labels := w.goroutineProfile()

	out := make([]ThreadStack, 0, len(records))
	for i := range records {
		frames := w.expand(records[i].Stack, maxDepth)
		if len(frames) == 0 {
			continue
		}
		out = append(out, ThreadStack{
			Worker: workerName(labels[i]),
			Frames: frames,
		})
	}
	return out, nil
}

// goroutineProfile snapshots all goroutine stacks with their pprof labels.
// The record buffer is grown with 10% slack until the runtime reports that
// everything fit; afterwards it is reused without further allocation.
func (w *GoroutineWalker) goroutineProfile() ([]stackRecord, []unsafe.Pointer) {
	for {
		n, ok := goroutineProfileWithLabels(w.stacks, w.labels)
		if ok {
			return w.stacks[:n], w.labels[:n]
		}
		grown := n + n/10 + 1
		w.stacks = make([]stackRecord, grown)
		w.labels = make([]unsafe.Pointer, grown)
	}
}

// expand symbolizes raw PCs into frames, dropping profiler-internal frames
// and stopping once maxDepth frames have been collected.
func (w *GoroutineWalker) expand(pcs []uintptr, maxDepth int) []profile.Frame {
	frames := make([]profile.Frame, 0, min(len(pcs), maxDepth))
	for _, pc := range pcs {
		if len(frames) >= maxDepth {
			break
		}
		for _, frame := range w.framesForPC(pc) {
			if len(frames) >= maxDepth {
				break
			}
			frames = append(frames, frame)
		}
	}
	return frames
}

// framesForPC resolves one PC into its frames, including frames inlined at
// that PC, consulting the symbolization cache first. The cached value can be
// empty when every frame at the PC belongs to the profiler itself.
func (w *GoroutineWalker) framesForPC(pc uintptr) []profile.Frame {
	if cached, ok := w.frameCache.Get(pc); ok {
		return cached
	}

	resolved := make([]profile.Frame, 0, 1)
	iter := runtime.CallersFrames([]uintptr{pc})
	for {
		frame, more := iter.Next()
		if frame.Function != "" && !w.classifier.isSelf(frame.Function) {
			resolved = append(resolved, w.classifier.describe(&frame))
		}
		if !more {
			break
		}
	}
	w.frameCache.Add(pc, resolved)
	return resolved
}

// CallersWalker captures the stack of the goroutine invoking Capture. It
// serves embedders that sample at instrumentation points on the worker
// itself, and tests.
type CallersWalker struct {
	worker     string
	classifier frameClassifier
}

// NewCallersWalker creates a CallersWalker attributing captures to the given
// worker name.
func NewCallersWalker(worker string, cfg *config.Config, opts ...WalkerOption) *CallersWalker {
	return &CallersWalker{
		worker:     worker,
		classifier: newFrameClassifier(cfg, opts...),
	}
}

// Capture implements StackWalker.
func (w *CallersWalker) Capture(maxDepth int) ([]ThreadStack, error) {
	// Extra slack so that skipped internal frames do not eat into maxDepth.
	pcs := make([]uintptr, maxDepth+8)
	n := runtime.Callers(2, pcs)
	if n == 0 {
		return nil, nil
	}

	frames := make([]profile.Frame, 0, maxDepth)
	iter := runtime.CallersFrames(pcs[:n])
	for len(frames) < maxDepth {
		frame, more := iter.Next()
		if frame.Function != "" && !w.classifier.isSelf(frame.Function) {
			frames = append(frames, w.classifier.describe(&frame))
		}
		if !more {
			break
		}
	}
	if len(frames) == 0 {
		return nil, nil
	}
	return []ThreadStack{{Worker: w.worker, Frames: frames}}, nil
}

// label and labelSet mirror the runtime/pprof label representation attached
// to goroutines since go1.23 (labelMap wrapping a LabelSet). The goroutine
// profile hands the set out as an opaque pointer.
type label struct {
	key   string
	value string
}

type labelSet struct {
	list []label
}

// workerName extracts the worker label from a goroutine's pprof label set.
func workerName(labels unsafe.Pointer) string {
	if labels == nil {
		return ""
	}
	for _, lbl := range (*labelSet)(labels).list {
		if lbl.key == WorkerLabel {
			return lbl.value
		}
	}
	return ""
}

func hashPC(pc uintptr) uint32 {
	return uint32(pc) ^ uint32(uint64(pc)>>32)
}
