package sinks

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"

	"github.com/gradewatch/gradewatch/internal/monitor"
)

// PubSubSink publishes events as JSON messages to a Google Cloud Pub/Sub
// topic, letting downstream consumers react to grade changes.
type PubSubSink struct {
	topic *pubsub.Topic
}

// NewPubSubSink creates a sink bound to the named topic.
func NewPubSubSink(ctx context.Context, projectID, topicName string) (*PubSubSink, error) {
	if projectID == "" || topicName == "" {
		return nil, fmt.Errorf("pubsub project id and topic name are required")
	}
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return &PubSubSink{topic: client.Topic(topicName)}, nil
}

// Send publishes the event and waits for the server acknowledgement.
func (s *PubSubSink) Send(ctx context.Context, evt monitor.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"event_type": string(evt.Type),
			"account_id": evt.AccountID,
			"severity":   string(evt.Severity),
		},
	}
	if _, err := s.topic.Publish(ctx, msg).Get(ctx); err != nil {
		return fmt.Errorf("%w: publish event %s: %v", monitor.ErrDelivery, evt.ID, err)
	}
	return nil
}

// Close flushes pending messages and releases the topic.
func (s *PubSubSink) Close() {
	if s.topic != nil {
		s.topic.Stop()
	}
}
