// Copyright The Pyrite Authors
// SPDX-License-Identifier: Apache-2.0

package reporter

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/pyrite-profiler/pyrite/periodiccaller"
	"github.com/pyrite-profiler/pyrite/profile"
)

// queueCapacity bounds the number of artifacts waiting for delivery. With a
// slow or failing downstream, the oldest artifacts are dropped first.
const queueCapacity = 32

// QueuedExporter decouples session teardown from artifact delivery: Export
// only enqueues, and a background loop flushes the queue to the downstream
// exporter at the flush interval. Stop drains the queue one final time.
type QueuedExporter struct {
	downstream Exporter
	queue      *FifoRingBuffer[*profile.WireItem]

	mu         sync.Mutex
	stopTicker func()
	cancel     context.CancelFunc
}

var _ Exporter = (*QueuedExporter)(nil)

// NewQueuedExporter wraps the downstream exporter with a bounded queue.
func NewQueuedExporter(downstream Exporter) (*QueuedExporter, error) {
	queue, err := NewFifo[*profile.WireItem](queueCapacity, "artifact queue")
	if err != nil {
		return nil, err
	}
	return &QueuedExporter{
		downstream: downstream,
		queue:      queue,
	}, nil
}

// Start launches the background flush loop. Must be called once before the
// first Export; Stop terminates the loop.
func (e *QueuedExporter) Start(ctx context.Context, flushInterval time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ctx, e.cancel = context.WithCancel(ctx)
	e.stopTicker = periodiccaller.Start(ctx, flushInterval, func() {
		e.flush(ctx)
	})
}

// Export enqueues the artifact for delivery. It never blocks and never
// fails; delivery errors surface in the flush loop's logs.
func (e *QueuedExporter) Export(_ context.Context, item *profile.WireItem) error {
	e.queue.Append(item)
	return nil
}

// Stop terminates the flush loop after a final synchronous drain.
func (e *QueuedExporter) Stop(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.flush(ctx)
	if e.stopTicker != nil {
		e.stopTicker()
		e.stopTicker = nil
	}
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
}

func (e *QueuedExporter) flush(ctx context.Context) {
	if dropped := e.queue.GetOverwriteCount(); dropped > 0 {
		log.Warnf("Dropped %d profile artifacts due to backpressure", dropped)
	}

	for _, item := range e.queue.ReadAll() {
		if err := e.downstream.Export(ctx, item); err != nil {
			log.Errorf("Failed to export profile %s: %v", item.ProfileID, err)
		}
	}
}
