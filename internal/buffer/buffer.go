package buffer

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/jittakal/kafeventavro/internal/errors"
	"github.com/jittakal/kafeventavro/pkg/buffer"
	"github.com/jittakal/kafeventavro/pkg/event"
)

var (
	_ buffer.Buffer  = (*PartitionBuffer)(nil)
	_ buffer.Manager = (*Manager)(nil)
)

// PartitionBuffer buffers consumed events of a single Kafka partition.
// It tracks first and last write times for rotation decisions.
type PartitionBuffer struct {
	partitionID    event.PartitionID
	events         []*event.ConsumedEvent
	maxSizeBytes   int64
	maxRecords     int
	currentSize    int64
	firstWriteTime time.Time
	lastWriteTime  time.Time
	now            func() time.Time
	mu             sync.RWMutex
}

// New creates a new partition buffer. A non-positive limit disables it.
func New(partitionID event.PartitionID, maxSizeBytes int64, maxRecords int) *PartitionBuffer {
	return &PartitionBuffer{
		partitionID:  partitionID,
		events:       make([]*event.ConsumedEvent, 0, initialCapacity(maxRecords)),
		maxSizeBytes: maxSizeBytes,
		maxRecords:   maxRecords,
		now:          time.Now,
	}
}

// Add appends an event. It fails with errors.ErrBufferFull when a limit
// would be exceeded; an empty buffer always accepts one event.
func (b *PartitionBuffer) Add(e *event.ConsumedEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	size := estimateSize(e.Event)

	if b.maxRecords > 0 && len(b.events) >= b.maxRecords {
		return fmt.Errorf("%w: max records (%d) reached", errors.ErrBufferFull, b.maxRecords)
	}
	if b.maxSizeBytes > 0 && len(b.events) > 0 && b.currentSize+size > b.maxSizeBytes {
		return fmt.Errorf("%w: max size (%d bytes) would be exceeded", errors.ErrBufferFull, b.maxSizeBytes)
	}

	b.events = append(b.events, e)
	b.currentSize += size

	now := b.now()
	if b.firstWriteTime.IsZero() {
		b.firstWriteTime = now
	}
	b.lastWriteTime = now
	return nil
}

// Drain removes and returns all events. The returned slice is owned by the
// caller.
func (b *PartitionBuffer) Drain() []*event.ConsumedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	events := b.events
	b.reset()
	return events
}

// Stats returns current buffer statistics.
func (b *PartitionBuffer) Stats() event.BatchStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return event.BatchStats{
		RecordCount:    len(b.events),
		SizeBytes:      b.currentSize,
		FirstWriteTime: b.firstWriteTime,
		LastWriteTime:  b.lastWriteTime,
	}
}

// IsEmpty returns true if the buffer is empty.
func (b *PartitionBuffer) IsEmpty() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.events) == 0
}

// Reset clears the buffer and resets all statistics.
func (b *PartitionBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reset()
}

func (b *PartitionBuffer) reset() {
	b.events = make([]*event.ConsumedEvent, 0, initialCapacity(b.maxRecords))
	b.currentSize = 0
	b.firstWriteTime = time.Time{}
	b.lastWriteTime = time.Time{}
}

func initialCapacity(maxRecords int) int {
	return min(max(maxRecords, 0), 1024)
}

// estimateSize estimates the in-memory size of an event in bytes.
func estimateSize(e *event.Event) int64 {
	if e == nil {
		return 0
	}
	size := len(e.Body) + len(e.Kafka.Topic) + len(e.Kafka.Key)
	for k, v := range e.Headers {
		size += len(k) + len(v)
	}
	return int64(size)
}

// Manager manages buffers for multiple Kafka partitions, creating them
// on demand.
type Manager struct {
	buffers      map[event.PartitionID]*PartitionBuffer
	maxSizeBytes int64
	maxRecords   int
	mu           sync.RWMutex
}

// NewManager creates a new buffer manager.
func NewManager(maxSizeBytes int64, maxRecords int) *Manager {
	return &Manager{
		buffers:      make(map[event.PartitionID]*PartitionBuffer),
		maxSizeBytes: maxSizeBytes,
		maxRecords:   maxRecords,
	}
}

// GetOrCreate returns a buffer for the partition, creating if needed.
func (m *Manager) GetOrCreate(partitionID event.PartitionID) buffer.Buffer {
	m.mu.RLock()
	buf, exists := m.buffers[partitionID]
	m.mu.RUnlock()

	if exists {
		return buf
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if buf, exists := m.buffers[partitionID]; exists {
		return buf
	}

	buf = New(partitionID, m.maxSizeBytes, m.maxRecords)
	m.buffers[partitionID] = buf
	return buf
}

// Partitions returns the buffered partitions ordered by topic and partition.
func (m *Manager) Partitions() []event.PartitionID {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]event.PartitionID, 0, len(m.buffers))
	for id := range m.buffers {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b event.PartitionID) int {
		return cmp.Or(cmp.Compare(a.Topic, b.Topic), cmp.Compare(a.Partition, b.Partition))
	})
	return ids
}
