// Package worker consumes portal events and delivers notifications.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/requestdesk/requestdesk/internal/notify"
)

// PubSubHandler consumes portal events from a Pub/Sub subscription.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	processor        *Processor
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	Processor        *Processor
	Logger           zerolog.Logger
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)

	// Configure receive settings.
	subscriber.ReceiveSettings.MaxOutstandingMessages = 10
	subscriber.ReceiveSettings.MaxExtension = 10 * time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		processor:        cfg.Processor,
		logger:           cfg.Logger,
	}, nil
}

// Start begins processing Pub/Sub messages.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		h.handleMessage(ctx, msg)
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

func (h *PubSubHandler) handleMessage(ctx context.Context, msg *pubsub.Message) {
	startTime := time.Now()

	logger := h.logger.With().
		Str("message_id", msg.ID).
		Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
		Logger()

	logger.Debug().Msg("received pubsub message")

	eventType, err := h.processor.Process(ctx, msg.Data)
	if err != nil {
		if eventType == "" {
			// Malformed or unknown messages are acked to prevent
			// redelivery loops.
			logger.Warn().Err(err).Msg("discarding unprocessable message")
			msg.Ack()
			return
		}
		logger.Error().Err(err).Str("event_type", eventType).Msg("event handling failed")
		msg.Nack()
		return
	}

	logger.Info().
		Str("event_type", eventType).
		Dur("duration", time.Since(startTime)).
		Msg("event handled")

	msg.Ack()
}

// Processor dispatches decoded portal events to their handlers. It is
// separate from the Pub/Sub plumbing so the dispatch logic is testable.
type Processor struct {
	mailer EmailSender
	logger zerolog.Logger
}

// NewProcessor creates a new event processor.
func NewProcessor(mailer EmailSender, logger zerolog.Logger) *Processor {
	return &Processor{
		mailer: mailer,
		logger: logger,
	}
}

// Process decodes and handles a single event payload. It returns the event
// type; an empty type with an error means the payload could not be handled
// and should not be retried.
func (p *Processor) Process(ctx context.Context, data []byte) (string, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return "", fmt.Errorf("parsing event: %w", err)
	}

	switch envelope.Type {
	case notify.EventTwoFactorEmail:
		var ev notify.TwoFactorEmailEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return "", fmt.Errorf("parsing twofa event: %w", err)
		}
		if ev.Recipient == "" {
			// No recipient means no retry can ever succeed, so the
			// message is discarded rather than redelivered.
			return "", fmt.Errorf("twofa event for %q has no recipient", ev.Username)
		}
		return envelope.Type, p.handleTwoFactorEmail(ctx, ev)
	case notify.EventRequestLifecycle:
		var ev notify.RequestLifecycleEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return "", fmt.Errorf("parsing lifecycle event: %w", err)
		}
		return envelope.Type, p.handleRequestLifecycle(ctx, ev)
	default:
		return "", fmt.Errorf("unknown event type %q", envelope.Type)
	}
}

func (p *Processor) handleTwoFactorEmail(ctx context.Context, ev notify.TwoFactorEmailEvent) error {
	subject := "Your verification code"
	body := fmt.Sprintf(
		"Hello %s,\n\nYour verification code is: %s\n\nIt expires in 10 minutes. If you did not request it, ignore this message.\n",
		ev.Username, ev.Code,
	)

	if err := p.mailer.Send(ctx, ev.Recipient, subject, body); err != nil {
		return fmt.Errorf("sending twofa email: %w", err)
	}

	p.logger.Info().
		Str("username", ev.Username).
		Msg("verification code delivered")

	return nil
}

func (p *Processor) handleRequestLifecycle(_ context.Context, ev notify.RequestLifecycleEvent) error {
	p.logger.Info().
		Int64("request_id", ev.RequestID).
		Str("action", ev.Action).
		Str("status", ev.Status).
		Str("actor", ev.Actor).
		Msg("request lifecycle event")

	return nil
}
