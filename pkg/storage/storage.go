// Package storage defines interfaces for writing output containers to
// object storage backends (S3, GCS, Azure Blob, local filesystem).
package storage

import (
	"context"

	"github.com/jittakal/kafeventavro/pkg/event"
)

// ObjectStore puts whole objects into a storage backend.
type ObjectStore interface {
	// Put writes data at location, a protocol://bucket/key URI or a
	// backend-relative path.
	Put(ctx context.Context, location string, data []byte, contentType string) error

	// Backend returns the backend name used in logs and metrics.
	Backend() string

	// Close closes the store and releases resources.
	Close() error
}

// Router determines storage paths for output units based on partitioning strategy.
type Router interface {
	// Route returns the directory URI for a partition at a given time.
	// timestamp is a Unix timestamp in seconds, normally the event time.
	Route(partitionID event.PartitionID, timestamp int64) string
}

// RotationPolicy determines when to flush a buffered batch.
type RotationPolicy interface {
	// ShouldRotate returns true if the buffer should be flushed based on stats.
	ShouldRotate(stats event.BatchStats) bool
}
