package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// Publisher publishes portal events.
type Publisher interface {
	// Publish sends a JSON-encoded event.
	Publish(ctx context.Context, event interface{}) error

	// Close releases publisher resources.
	Close() error
}

// PubSubConfig holds configuration for the Pub/Sub publisher.
type PubSubConfig struct {
	ProjectID string
	TopicID   string
	Logger    zerolog.Logger
}

// PubSubPublisher publishes events to a Cloud Pub/Sub topic.
type PubSubPublisher struct {
	client    *pubsub.Client
	publisher *pubsub.Publisher
	logger    zerolog.Logger
}

// NewPubSubPublisher creates a publisher for the configured topic.
func NewPubSubPublisher(ctx context.Context, cfg PubSubConfig) (*PubSubPublisher, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	return &PubSubPublisher{
		client:    client,
		publisher: client.Publisher(cfg.TopicID),
		logger:    cfg.Logger,
	}, nil
}

// Publish sends a JSON-encoded event and waits for server acknowledgement.
func (p *PubSubPublisher) Publish(ctx context.Context, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	result := p.publisher.Publish(ctx, &pubsub.Message{Data: data})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publishing event: %w", err)
	}

	return nil
}

// Close stops the publisher and closes the client.
func (p *PubSubPublisher) Close() error {
	p.publisher.Stop()
	return p.client.Close()
}

// NopPublisher discards events. Used when no Pub/Sub project is configured
// and in tests.
type NopPublisher struct{}

// Publish discards the event.
func (NopPublisher) Publish(_ context.Context, _ interface{}) error { return nil }

// Close is a no-op.
func (NopPublisher) Close() error { return nil }

// Ensure implementations satisfy Publisher.
var (
	_ Publisher = (*PubSubPublisher)(nil)
	_ Publisher = NopPublisher{}
)
