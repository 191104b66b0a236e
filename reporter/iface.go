// Copyright The Pyrite Authors
// SPDX-License-Identifier: Apache-2.0

// Package reporter implements the exporter boundary: finished profile
// artifacts are handed to an Exporter exactly once per session, and the
// implementations here write them out as compressed JSON or pprof.
package reporter // import "github.com/pyrite-profiler/pyrite/reporter"

import (
	"context"

	"github.com/pyrite-profiler/pyrite/profile"
)

// Exporter consumes one finalized profile artifact. Implementations must
// tolerate artifacts with zero samples and must not retain the item past
// the call.
type Exporter interface {
	Export(ctx context.Context, item *profile.WireItem) error
}

// ExporterFunc adapts a plain function to the Exporter interface.
type ExporterFunc func(ctx context.Context, item *profile.WireItem) error

var _ Exporter = ExporterFunc(nil)

func (f ExporterFunc) Export(ctx context.Context, item *profile.WireItem) error {
	return f(ctx, item)
}
