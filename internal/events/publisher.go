// Package events publishes auth lifecycle events over watermill.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/student-api/backend/internal/model"
)

const DefaultTopic = "studentapi.auth"

// Publisher marshals auth events to JSON and hands them to a watermill
// publisher.
type Publisher struct {
	publisher message.Publisher
	topic     string
}

func NewPublisher(publisher message.Publisher, topic string) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Publisher{publisher: publisher, topic: topic}
}

func (p *Publisher) Topic() string {
	return p.topic
}

func (p *Publisher) Publish(ctx context.Context, event model.AuthEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(uuid.NewString(), payload)
	msg.Metadata.Set("type", event.Type)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.publisher.Close()
}

// NewInMemoryPubSub returns a process-local pub/sub used when Redis is not
// configured, and by tests that subscribe to the topic.
func NewInMemoryPubSub() *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{}, watermill.NewStdLogger(false, false))
}

func NewRedisStreamPublisher(client redis.UniversalClient) (message.Publisher, error) {
	publisher, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{
			Client: client,
		},
		watermill.NewStdLogger(false, false),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis stream publisher: %w", err)
	}
	return publisher, nil
}

// Decode parses a published message payload back into an AuthEvent.
func Decode(msg *message.Message) (model.AuthEvent, error) {
	var event model.AuthEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return model.AuthEvent{}, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return event, nil
}
