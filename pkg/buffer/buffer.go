// Package buffer defines interfaces for event buffering operations.
//
// Buffers hold consumed events until a batch is collapsed, so offsets are
// only marked once the batch has reached its sink.
package buffer

import (
	"github.com/jittakal/kafeventavro/pkg/event"
)

// Buffer manages buffering of events before a batch is collapsed.
// All implementations must be thread-safe.
type Buffer interface {
	// Add adds an event to the buffer.
	// Returns an error if the buffer is full or capacity would be exceeded.
	Add(e *event.ConsumedEvent) error

	// Drain removes and returns all events in arrival order.
	// The buffer is reset after draining.
	Drain() []*event.ConsumedEvent

	// Stats returns current buffer statistics without modifying the buffer.
	Stats() event.BatchStats

	// IsEmpty returns true if the buffer contains no events.
	IsEmpty() bool

	// Reset clears the buffer and resets all statistics.
	Reset()
}

// Manager creates and manages buffers for partitions.
type Manager interface {
	// GetOrCreate returns a buffer for the given partition,
	// creating one if it doesn't exist.
	GetOrCreate(partitionID event.PartitionID) Buffer

	// Partitions returns the partitions that currently have a buffer.
	Partitions() []event.PartitionID
}
