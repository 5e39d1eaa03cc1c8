package buffer_test

import (
	"errors"
	"fmt"

	"github.com/jittakal/kafeventavro/internal/buffer"
	apperrors "github.com/jittakal/kafeventavro/internal/errors"
	"github.com/jittakal/kafeventavro/pkg/event"
)

func Example_partitionBuffer() {
	partitionID := event.PartitionID{Topic: "gps-events", Partition: 0}
	buf := buffer.New(partitionID, 1024*1024, 3)

	for i := 0; i < 4; i++ {
		ce := &event.ConsumedEvent{
			Event: &event.Event{
				Body:  []byte(fmt.Sprintf(`{"gpsrecord":{"seq":%d}}`, i)),
				Kafka: event.KafkaMetadata{Topic: "gps-events", Offset: int64(i)},
			},
		}
		if err := buf.Add(ce); errors.Is(err, apperrors.ErrBufferFull) {
			fmt.Println("buffer full at offset", i)
		}
	}

	fmt.Printf("Records buffered: %d\n", buf.Stats().RecordCount)
	batch := buf.Drain()
	fmt.Printf("Drained %d records, first offset %d\n", len(batch), batch[0].Event.Kafka.Offset)
	fmt.Printf("Buffer is empty after drain: %v\n", buf.IsEmpty())

	// Output:
	// buffer full at offset 3
	// Records buffered: 3
	// Drained 3 records, first offset 0
	// Buffer is empty after drain: true
}

func Example_bufferManager() {
	manager := buffer.NewManager(1024*1024, 1000)

	buf0 := manager.GetOrCreate(event.PartitionID{Topic: "gps-events", Partition: 0})
	buf1 := manager.GetOrCreate(event.PartitionID{Topic: "gps-events", Partition: 1})
	fmt.Printf("Buffer 0 and Buffer 1 are different: %v\n", buf0 != buf1)

	buf0Again := manager.GetOrCreate(event.PartitionID{Topic: "gps-events", Partition: 0})
	fmt.Printf("Getting partition 0 again returns same buffer: %v\n", buf0 == buf0Again)
	fmt.Println(manager.Partitions())

	// Output:
	// Buffer 0 and Buffer 1 are different: true
	// Getting partition 0 again returns same buffer: true
	// [gps-events-0 gps-events-1]
}
