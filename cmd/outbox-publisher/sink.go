package main

import (
	"context"
	"errors"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

// eventSink delivers one order event and waits for the broker's ack.
type eventSink interface {
	Send(ctx context.Context, msg *gcppubsub.Message) (string, error)
	// Resume lifts the pause Pub/Sub puts on an ordering key after a failed
	// send. Nothing else for that order is delivered until it is called.
	Resume(orderingKey string)
}

type topicSink struct {
	publisher *gcppubsub.Publisher
}

// newTopicSink turns on message ordering so every event of one order reaches
// subscribers in the sequence it was written.
func newTopicSink(p *gcppubsub.Publisher) (*topicSink, error) {
	if p == nil {
		return nil, errors.New("orders publisher is not configured")
	}
	p.EnableMessageOrdering = true
	return &topicSink{publisher: p}, nil
}

func (s *topicSink) Send(ctx context.Context, msg *gcppubsub.Message) (string, error) {
	return s.publisher.Publish(ctx, msg).Get(ctx)
}

func (s *topicSink) Resume(orderingKey string) {
	s.publisher.ResumePublish(orderingKey)
}
