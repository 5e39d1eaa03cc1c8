// Package event defines the raw record model exchanged between the Kafka
// transport, the batch collapser and the sinks.
//
// An Event is an opaque body plus string headers. The collapser consumes a
// batch of events and emits a single Event whose body is an Avro container
// and whose headers are inherited from the first event of the batch.
package event

import (
	"fmt"
	"maps"
	"time"
)

// Well-known header keys.
const (
	// HeaderSchemaURL carries the schema locator of the batch.
	HeaderSchemaURL = "avro.schema.url"
	// HeaderEnvelopeKey overrides the configured envelope key for a batch.
	HeaderEnvelopeKey = "avro.envelope.key"
	// HeaderContentType is set on output units published to Kafka.
	HeaderContentType = "content-type"
)

// CloudEvents attribute headers, binary content mode.
const (
	HeaderCESpecVersion = "ce_specversion"
	HeaderCEID          = "ce_id"
	HeaderCESource      = "ce_source"
	HeaderCEType        = "ce_type"
	HeaderCETime        = "ce_time"
	HeaderCEDataSchema  = "ce_dataschema"
)

// ContentTypeAvro is the content type of an Avro object container.
const ContentTypeAvro = "avro/binary"

// Event is a raw record: metadata headers plus an opaque body.
type Event struct {
	Headers map[string]string
	Body    []byte
	Kafka   KafkaMetadata
}

// KafkaMetadata contains Kafka-specific metadata for an event.
type KafkaMetadata struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Timestamp time.Time
}

// PartitionID uniquely identifies a Kafka partition.
type PartitionID struct {
	Topic     string
	Partition int32
}

// String returns a string representation of the partition ID in the format "topic-partition".
func (p PartitionID) String() string {
	return fmt.Sprintf("%s-%d", p.Topic, p.Partition)
}

// Header returns the value of a header, or "" when it is not set.
func (e *Event) Header(key string) string {
	if e == nil || e.Headers == nil {
		return ""
	}
	return e.Headers[key]
}

// PartitionID returns the partition the event was consumed from.
func (e *Event) PartitionID() PartitionID {
	return PartitionID{Topic: e.Kafka.Topic, Partition: e.Kafka.Partition}
}

// WithBody returns a copy of e carrying body. Headers and Kafka metadata are
// copied so the result never aliases e.
func (e *Event) WithBody(body []byte) *Event {
	out := &Event{
		Headers: make(map[string]string, len(e.Headers)+2),
		Body:    body,
		Kafka:   e.Kafka,
	}
	maps.Copy(out.Headers, e.Headers)
	if e.Kafka.Key != nil {
		out.Kafka.Key = append([]byte(nil), e.Kafka.Key...)
	}
	return out
}

// Time returns the Kafka timestamp of the event, or the zero time.
func (e *Event) Time() time.Time {
	return e.Kafka.Timestamp
}

// BatchStats contains statistics about buffered events.
type BatchStats struct {
	RecordCount    int
	SizeBytes      int64
	FirstWriteTime time.Time
	LastWriteTime  time.Time
}

// ConsumedEvent represents an event consumed from Kafka together with the
// function that marks its offset.
type ConsumedEvent struct {
	Event      *Event
	CommitFunc func() error
}
