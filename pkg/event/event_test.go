package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartitionID_String(t *testing.T) {
	tests := []struct {
		name      string
		partition PartitionID
		want      string
	}{
		{name: "basic partition", partition: PartitionID{Topic: "test-topic", Partition: 0}, want: "test-topic-0"},
		{name: "partition 10", partition: PartitionID{Topic: "gps", Partition: 10}, want: "gps-10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.partition.String())
		})
	}
}

func TestEvent_Header(t *testing.T) {
	var nilEvent *Event
	assert.Empty(t, nilEvent.Header(HeaderSchemaURL))
	assert.Empty(t, (&Event{}).Header(HeaderSchemaURL))

	e := &Event{Headers: map[string]string{HeaderSchemaURL: "file:///schemas/gps.avsc"}}
	assert.Equal(t, "file:///schemas/gps.avsc", e.Header(HeaderSchemaURL))
}

func TestEvent_WithBody(t *testing.T) {
	ts := time.Date(2025, 12, 21, 10, 30, 0, 0, time.UTC)
	src := &Event{
		Headers: map[string]string{"host": "gw-1"},
		Body:    []byte(`{"gpsrecord":{}}`),
		Kafka:   KafkaMetadata{Topic: "gps", Partition: 3, Offset: 42, Key: []byte("k"), Timestamp: ts},
	}

	out := src.WithBody([]byte("container"))
	require.NotSame(t, src, out)
	assert.Equal(t, []byte("container"), out.Body)
	assert.Equal(t, "gw-1", out.Header("host"))
	assert.Equal(t, src.Kafka.Offset, out.Kafka.Offset)
	assert.Equal(t, ts, out.Time())

	out.Headers["host"] = "changed"
	out.Kafka.Key[0] = 'x'
	assert.Equal(t, "gw-1", src.Header("host"))
	assert.Equal(t, []byte("k"), src.Kafka.Key)
	assert.Equal(t, []byte(`{"gpsrecord":{}}`), src.Body)
}

func TestEvent_PartitionID(t *testing.T) {
	e := &Event{Kafka: KafkaMetadata{Topic: "gps", Partition: 7}}
	assert.Equal(t, PartitionID{Topic: "gps", Partition: 7}, e.PartitionID())
}
