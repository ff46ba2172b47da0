package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

var ErrInvalidEnvelope = errors.New("invalid outcome envelope")

type ConsumerConfig struct {
	JetStream     JetStreamConfig
	ConsumerName  string // empty for an ephemeral consumer
	MaxDeliver    int
	AckWait       time.Duration
	MaxAckPending int
	DeliverAll    bool // replay the whole stream instead of only new outcomes
}

func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		JetStream:     DefaultJetStreamConfig(),
		MaxDeliver:    5,
		AckWait:       30 * time.Second,
		MaxAckPending: 100,
	}
}

// OutcomeHandler processes one outcome. A returned error NAKs the message.
type OutcomeHandler func(ctx context.Context, env Envelope) error

// OutcomeConsumer reads auction outcomes back off the stream
type OutcomeConsumer struct {
	nc       *nats.Conn
	consumer jetstream.Consumer
	config   ConsumerConfig
}

func NewOutcomeConsumer(ctx context.Context, cfg ConsumerConfig) (*OutcomeConsumer, error) {
	nc, err := nats.Connect(cfg.JetStream.URL,
		nats.Name("loadauction-consumer"),
		nats.MaxReconnects(cfg.JetStream.MaxReconnects),
		nats.ReconnectWait(cfg.JetStream.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	stream, err := js.Stream(ctx, cfg.JetStream.StreamName)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("get stream: %w", err)
	}

	deliver := jetstream.DeliverNewPolicy
	if cfg.DeliverAll {
		deliver = jetstream.DeliverAllPolicy
	}

	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          cfg.ConsumerName,
		Durable:       cfg.ConsumerName,
		Description:   "Load auction outcome consumer",
		FilterSubject: cfg.JetStream.Subject(">"),
		DeliverPolicy: deliver,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    cfg.MaxDeliver,
		AckWait:       cfg.AckWait,
		MaxAckPending: cfg.MaxAckPending,
		ReplayPolicy:  jetstream.ReplayInstantPolicy,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create consumer: %w", err)
	}

	log.Info().
		Str("consumer", cfg.ConsumerName).
		Str("stream", cfg.JetStream.StreamName).
		Bool("deliver_all", cfg.DeliverAll).
		Msg("JetStream outcome consumer ready")

	return &OutcomeConsumer{nc: nc, consumer: consumer, config: cfg}, nil
}

// Run hands every outcome to handle until ctx is cancelled
func (c *OutcomeConsumer) Run(ctx context.Context, handle OutcomeHandler) error {
	messageCh := make(chan jetstream.Msg, c.config.MaxAckPending)

	consumeCtx, err := c.consumer.Consume(func(msg jetstream.Msg) {
		select {
		case messageCh <- msg:
		case <-ctx.Done():
			msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	defer consumeCtx.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("outcome consumer shutting down")
			return nil
		case msg := <-messageCh:
			c.process(ctx, msg, handle)
		}
	}
}

func (c *OutcomeConsumer) process(ctx context.Context, msg jetstream.Msg, handle OutcomeHandler) {
	env, err := DecodeEnvelope(msg.Data())
	if err != nil {
		// redelivery cannot fix a bad payload
		log.Error().Err(err).Str("subject", msg.Subject()).Msg("dropping undecodable outcome")
		if termErr := msg.Term(); termErr != nil {
			log.Error().Err(termErr).Msg("failed to TERM message")
		}
		return
	}

	if err := handle(ctx, env); err != nil {
		log.Error().
			Err(err).
			Str("event_id", env.EventID.String()).
			Str("subject", msg.Subject()).
			Msg("failed to process outcome")
		if nakErr := msg.Nak(); nakErr != nil {
			log.Error().Err(nakErr).Msg("failed to NAK message")
		}
		return
	}

	if ackErr := msg.Ack(); ackErr != nil {
		log.Error().Err(ackErr).Msg("failed to ACK message")
	}
}

func (c *OutcomeConsumer) Close() error {
	if c.nc != nil {
		c.nc.Close()
	}
	return nil
}

// DecodeEnvelope parses an outcome as published by JetStreamPublisher
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if env.EventType == "" || env.LoadID == "" {
		return Envelope{}, fmt.Errorf("%w: missing event type or load id", ErrInvalidEnvelope)
	}
	return env, nil
}
