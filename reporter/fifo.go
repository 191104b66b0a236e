// Copyright The Pyrite Authors
// SPDX-License-Identifier: Apache-2.0

package reporter

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
)

// FifoRingBuffer implements a first-in-first-out ring buffer that is safe
// for concurrent access. When full, new entries overwrite the oldest ones;
// the queue never blocks the producer.
type FifoRingBuffer[T any] struct {
	sync.Mutex

	// data holds the actual data.
	data []T

	// emptyT is used for nullifying entries in data[].
	emptyT T

	// name identifies the ring buffer in log messages.
	name string

	// size is the maximum number of entries in the ring buffer.
	size uint32

	// readPos holds the position of the first element to be read.
	readPos uint32

	// writePos holds the position where the next element is placed.
	writePos uint32

	// count holds the number of entries currently in the buffer.
	count uint32

	// overwriteCount counts overwritten entries since the last read of the
	// counter.
	overwriteCount uint32
}

// NewFifo creates a ring buffer holding up to size elements.
func NewFifo[T any](size uint32, name string) (*FifoRingBuffer[T], error) {
	if size == 0 {
		return nil, fmt.Errorf("unsupported size of fifo: %d", size)
	}
	return &FifoRingBuffer[T]{
		data: make([]T, size),
		size: size,
		name: name,
	}, nil
}

// Append adds v to the buffer, overwriting the oldest element if there is
// no space left.
func (q *FifoRingBuffer[T]) Append(v T) {
	q.Lock()
	defer q.Unlock()

	q.data[q.writePos] = v
	q.writePos++

	if q.writePos == q.size {
		q.writePos = 0
	}

	if q.count < q.size {
		q.count++
		if q.count == q.size {
			log.Warnf("About to start overwriting elements in buffer for %s",
				q.name)
		}
	} else {
		q.overwriteCount++
		q.readPos = q.writePos
	}
}

// ReadAll drains the buffer and returns its elements in insertion order.
func (q *FifoRingBuffer[T]) ReadAll() []T {
	q.Lock()
	defer q.Unlock()

	data := make([]T, q.count)
	readPos := q.readPos

	for i := uint32(0); i < q.count; i++ {
		pos := (i + readPos) % q.size
		data[i] = q.data[pos]
		// Allow for element to be GCed
		q.data[pos] = q.emptyT
	}

	q.readPos = q.writePos
	q.count = 0

	return data
}

// GetOverwriteCount returns and resets the number of overwritten entries.
func (q *FifoRingBuffer[T]) GetOverwriteCount() uint32 {
	q.Lock()
	defer q.Unlock()

	count := q.overwriteCount
	q.overwriteCount = 0
	return count
}
