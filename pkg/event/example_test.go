package event_test

import (
	"fmt"

	"github.com/jittakal/kafeventavro/pkg/event"
)

func ExamplePartitionID_String() {
	pid := event.PartitionID{
		Topic:     "gps-records",
		Partition: 5,
	}

	fmt.Println(pid.String())
	// Output: gps-records-5
}

func ExampleEvent_WithBody() {
	first := &event.Event{
		Headers: map[string]string{event.HeaderSchemaURL: "file:///etc/schemas/gps.avsc"},
		Body:    []byte(`{"gpsrecord":{"accessid":1}}`),
	}

	unit := first.WithBody([]byte("Obj\x01"))
	fmt.Println(unit.Header(event.HeaderSchemaURL), len(unit.Body))
	// Output: file:///etc/schemas/gps.avsc 4
}
