// Copyright The Pyrite Authors
// SPDX-License-Identifier: Apache-2.0

package sampler // import "github.com/pyrite-profiler/pyrite/sampler"

import (
	"runtime"
	"strings"

	"github.com/pyrite-profiler/pyrite/config"
	"github.com/pyrite-profiler/pyrite/profile"
)

// profilerNamespace identifies the profiler's own frames in captures. Frames
// under it are skipped entirely rather than recorded.
const profilerNamespace = "github.com/pyrite-profiler/pyrite"

// frameClassifier turns runtime frames into frame descriptors, deciding
// which frames are the profiler's own and which count as application code.
type frameClassifier struct {
	selfPrefixes   []string
	ignorePrefixes []string
}

func newFrameClassifier(cfg *config.Config, opts ...WalkerOption) frameClassifier {
	c := frameClassifier{
		selfPrefixes:   []string{profilerNamespace + "/", profilerNamespace + "."},
		ignorePrefixes: cfg.IgnorePrefixes,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// isSelf reports whether the fully qualified function belongs to the
// profiler's own implementation.
func (c *frameClassifier) isSelf(function string) bool {
	for _, prefix := range c.selfPrefixes {
		if strings.HasPrefix(function, prefix) {
			return true
		}
	}
	return false
}

// describe builds the frame descriptor for a symbolized runtime frame.
func (c *frameClassifier) describe(frame *runtime.Frame) profile.Frame {
	pkg, name := splitFunctionName(frame.Function)
	return profile.Frame{
		FrameKey: profile.FrameKey{
			Function: name,
			File:     frame.File,
			Line:     frame.Line,
			Package:  pkg,
		},
		InApp: c.inApp(frame.Function),
	}
}

// inApp reports whether the fully qualified function counts as application
// code, i.e. matches none of the configured ignore prefixes.
func (c *frameClassifier) inApp(function string) bool {
	for _, prefix := range c.ignorePrefixes {
		if strings.HasPrefix(function, prefix) {
			return false
		}
	}
	return true
}

// splitFunctionName splits a fully qualified function name as reported by
// the runtime ("net/http.(*conn).serve") into the package path and the bare
// function name. The package qualifier starts after the last slash, since
// package names themselves cannot contain dots.
func splitFunctionName(full string) (pkg, name string) {
	slash := strings.LastIndexByte(full, '/')
	dot := strings.IndexByte(full[slash+1:], '.')
	if dot < 0 {
		return "", full
	}
	dot += slash + 1
	return full[:dot], full[dot+1:]
}
