// Package storage writes collapsed containers to object storage.
package storage

import (
	"fmt"
	"strings"
	"time"

	"github.com/jittakal/kafeventavro/pkg/event"
	"github.com/jittakal/kafeventavro/pkg/storage"
)

// Ensure implementations satisfy interfaces.
var (
	_ storage.Router         = (*DefaultRouter)(nil)
	_ storage.RotationPolicy = (*CompositePolicy)(nil)
)

// DefaultRouter implements Hive-style partitioning for storage paths.
type DefaultRouter struct {
	protocol string
	bucket   string
	basePath string
}

// NewRouter creates a new storage router.
func NewRouter(protocol, bucket, basePath string) *DefaultRouter {
	return &DefaultRouter{
		protocol: protocol,
		bucket:   bucket,
		basePath: strings.Trim(basePath, "/"),
	}
}

// Route returns the storage path for a partition at the given timestamp.
// Format: protocol://bucket/basePath/topic/dt=YYYY-MM-DD/pid=N/
// Empty segments are skipped.
func (r *DefaultRouter) Route(partitionID event.PartitionID, timestamp int64) string {
	date := time.Unix(timestamp, 0).UTC().Format("2006-01-02")

	segments := make([]string, 0, 5)
	for _, s := range []string{r.bucket, r.basePath, partitionID.Topic} {
		if s != "" {
			segments = append(segments, s)
		}
	}
	segments = append(segments,
		"dt="+date,
		fmt.Sprintf("pid=%d", partitionID.Partition),
	)

	return r.protocol + "://" + strings.Join(segments, "/") + "/"
}

// PolicyConfig configures rotation behavior.
type PolicyConfig struct {
	MaxSizeMB          int64
	MaxRecords         int
	MaxDurationSeconds int
}

// CompositePolicy rotates based on multiple criteria.
type CompositePolicy struct {
	maxSizeBytes int64
	maxRecords   int
	maxDuration  time.Duration
	now          func() time.Time
}

// NewPolicy creates a new rotation policy (alias for NewCompositePolicy).
func NewPolicy(config PolicyConfig) *CompositePolicy {
	return NewCompositePolicy(config)
}

// NewCompositePolicy creates a new composite rotation policy.
func NewCompositePolicy(config PolicyConfig) *CompositePolicy {
	return &CompositePolicy{
		maxSizeBytes: config.MaxSizeMB * 1024 * 1024,
		maxRecords:   config.MaxRecords,
		maxDuration:  time.Duration(config.MaxDurationSeconds) * time.Second,
		now:          time.Now,
	}
}

// ShouldRotate returns true if any rotation condition is met.
func (p *CompositePolicy) ShouldRotate(stats event.BatchStats) bool {
	if stats.RecordCount == 0 {
		return false
	}

	if p.maxSizeBytes > 0 && stats.SizeBytes >= p.maxSizeBytes {
		return true
	}

	if p.maxRecords > 0 && stats.RecordCount >= p.maxRecords {
		return true
	}

	if p.maxDuration > 0 && !stats.FirstWriteTime.IsZero() {
		if p.now().Sub(stats.FirstWriteTime) >= p.maxDuration {
			return true
		}
	}

	return false
}
