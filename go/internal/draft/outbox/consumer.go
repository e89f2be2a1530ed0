package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mcdev12/leaguedraft/go/internal/draft/events"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// ConsumerConfig configures a JetStream consumer on the draft event stream.
type ConsumerConfig struct {
	StreamName string
	// ConsumerName makes the consumer durable and shared by every process
	// using the same name. Empty creates an ephemeral consumer per process.
	ConsumerName      string
	Description       string
	SubjectFilter     string
	DeliverPolicy     jetstream.DeliverPolicy
	MaxDeliver        int
	AckWait           time.Duration
	MaxAckPending     int
	InactiveThreshold time.Duration // ephemeral consumers only
}

func DefaultConsumerConfig(name string) ConsumerConfig {
	return ConsumerConfig{
		StreamName:        "DRAFT_EVENTS",
		ConsumerName:      name,
		SubjectFilter:     events.SubjectPrefix + ".>",
		DeliverPolicy:     jetstream.DeliverNewPolicy,
		MaxDeliver:        5,
		AckWait:           30 * time.Second,
		MaxAckPending:     100,
		InactiveThreshold: 5 * time.Minute,
	}
}

// EventHandler handles one decoded draft event.
type EventHandler func(ctx context.Context, event events.Event) error

// EventConsumer feeds draft events from JetStream to a handler, acking on
// success and nak-ing on failure so the message is redelivered.
type EventConsumer struct {
	consumer jetstream.Consumer
	config   ConsumerConfig
	handler  EventHandler
}

func NewEventConsumer(ctx context.Context, js jetstream.JetStream, cfg ConsumerConfig, handler EventHandler) (*EventConsumer, error) {
	ec := &EventConsumer{config: cfg, handler: handler}
	if err := ec.ensureConsumer(ctx, js); err != nil {
		return nil, fmt.Errorf("ensure consumer: %w", err)
	}
	return ec, nil
}

func (ec *EventConsumer) ensureConsumer(ctx context.Context, js jetstream.JetStream) error {
	stream, err := js.Stream(ctx, ec.config.StreamName)
	if err != nil {
		return fmt.Errorf("get stream: %w", err)
	}

	cc := jetstream.ConsumerConfig{
		Name:          ec.config.ConsumerName,
		Durable:       ec.config.ConsumerName,
		Description:   ec.config.Description,
		FilterSubject: ec.config.SubjectFilter,
		DeliverPolicy: ec.config.DeliverPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    ec.config.MaxDeliver,
		AckWait:       ec.config.AckWait,
		MaxAckPending: ec.config.MaxAckPending,
		ReplayPolicy:  jetstream.ReplayInstantPolicy,
	}
	if ec.config.ConsumerName == "" {
		cc.InactiveThreshold = ec.config.InactiveThreshold
		ec.consumer, err = stream.CreateConsumer(ctx, cc)
		if err != nil {
			return fmt.Errorf("create consumer: %w", err)
		}
		log.Info().Str("stream", ec.config.StreamName).Msg("created ephemeral JetStream consumer")
		return nil
	}

	ec.consumer, err = stream.Consumer(ctx, ec.config.ConsumerName)
	if err != nil {
		ec.consumer, err = stream.CreateConsumer(ctx, cc)
		if err != nil {
			return fmt.Errorf("create consumer: %w", err)
		}
		log.Info().
			Str("consumer", ec.config.ConsumerName).
			Str("stream", ec.config.StreamName).
			Msg("created JetStream consumer")
		return nil
	}
	log.Info().
		Str("consumer", ec.config.ConsumerName).
		Str("stream", ec.config.StreamName).
		Msg("using existing JetStream consumer")
	return nil
}

// Start consumes until ctx is cancelled.
func (ec *EventConsumer) Start(ctx context.Context) error {
	log.Info().
		Str("consumer", ec.config.ConsumerName).
		Str("stream", ec.config.StreamName).
		Msg("starting JetStream event consumer")

	messageCh := make(chan jetstream.Msg, ec.config.MaxAckPending)
	consumeCtx, err := ec.consumer.Consume(func(msg jetstream.Msg) {
		select {
		case messageCh <- msg:
		case <-ctx.Done():
			_ = msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	defer consumeCtx.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("event consumer shutting down")
			return nil
		case msg := <-messageCh:
			if err := ec.handle(ctx, msg.Data()); err != nil {
				log.Error().Err(err).Str("subject", msg.Subject()).Msg("failed to process message")
				if nakErr := msg.Nak(); nakErr != nil {
					log.Error().Err(nakErr).Msg("failed to NAK message")
				}
				continue
			}
			if ackErr := msg.Ack(); ackErr != nil {
				log.Error().Err(ackErr).Msg("failed to ACK message")
			}
		}
	}
}

func (ec *EventConsumer) handle(ctx context.Context, data []byte) error {
	event, err := DecodeEvent(data)
	if err != nil {
		return err
	}
	log.Debug().
		Str("event_id", event.ID.String()).
		Str("draft_id", event.SessionID.String()).
		Str("event_type", string(event.Type)).
		Msg("processing JetStream event")
	return ec.handler(ctx, event)
}

// DecodeEvent parses a message published by JetStreamPublisher.
func DecodeEvent(data []byte) (events.Event, error) {
	var event events.Event
	if err := json.Unmarshal(data, &event); err != nil {
		return events.Event{}, fmt.Errorf("unmarshal event: %w", err)
	}
	if !event.Type.Known() {
		return events.Event{}, fmt.Errorf("unknown event type %q", event.Type)
	}
	return event, nil
}
