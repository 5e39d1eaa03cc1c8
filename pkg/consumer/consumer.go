// Package consumer defines interfaces for Kafka event consumption.
//
// This package provides abstractions for consuming events from Kafka
// and for dead-lettering the ones that cannot be processed.
package consumer

import (
	"context"

	"github.com/jittakal/kafeventavro/pkg/event"
)

// Consumer reads events from Kafka topics.
type Consumer interface {
	// Subscribe subscribes to one or more topics.
	Subscribe(ctx context.Context, topics []string) error

	// Consume starts consuming messages from subscribed topics.
	// Returns channels for events and errors. Offsets are marked through
	// each event's CommitFunc.
	Consume(ctx context.Context) (<-chan *event.ConsumedEvent, <-chan error, error)

	// Close closes the consumer and releases resources.
	Close() error
}

// DLQPublisher publishes failed events to a dead letter queue.
type DLQPublisher interface {
	// Publish sends the raw event to the DLQ. reason is a stable label for
	// the failure class and cause, when set, its detail.
	Publish(ctx context.Context, e *event.Event, reason string, cause error) error

	// Close closes the publisher and releases resources.
	Close() error
}
