package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

const (
	MeasurementStream   = "DROUGHT_MEASUREMENTS"
	MeasurementSubject  = "drought.measurements.>"
	MeasurementConsumer = "ledger-measurements"
)

// NATSSubscriber subscribes to the measurement feed on JetStream and hands
// raw messages to the feed worker. Delivery is at-least-once; the engine's
// publication-id dedup absorbs redeliveries.
type NATSSubscriber struct {
	js        jetstream.JetStream
	rawChan   chan<- RawMessage
	consumers []jetstream.ConsumeContext
	log       zerolog.Logger
}

// RawMessage is an unparsed feed message with its ack handles.
type RawMessage struct {
	Subject    string
	Data       []byte
	ReceivedAt time.Time
	AckFunc    func() // ACK after the engine accepts (or dedups) the publication
	NakFunc    func() // NAK on failure, message will be redelivered
}

func NewNATSSubscriber(js jetstream.JetStream, rawChan chan<- RawMessage, log zerolog.Logger) *NATSSubscriber {
	return &NATSSubscriber{
		js:      js,
		rawChan: rawChan,
		log:     log.With().Str("component", "nats_subscriber").Logger(),
	}
}

// Subscribe creates the durable JetStream consumer for the measurement feed.
// Explicit ACK, max_deliver=5, ack_wait=30s.
func (ns *NATSSubscriber) Subscribe(ctx context.Context) error {
	consumer, err := ns.js.CreateOrUpdateConsumer(ctx, MeasurementStream, jetstream.ConsumerConfig{
		Durable:       MeasurementConsumer,
		FilterSubject: MeasurementSubject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", MeasurementConsumer, err)
	}

	consumerContext, err := consumer.Consume(func(msg jetstream.Msg) {
		raw := RawMessage{
			Subject:    msg.Subject(),
			Data:       msg.Data(),
			ReceivedAt: time.Now(),
			AckFunc:    func() { msg.Ack() },
			NakFunc:    func() { msg.Nak() },
		}

		select {
		case ns.rawChan <- raw:
		case <-ctx.Done():
			msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("consume %s: %w", MeasurementConsumer, err)
	}

	ns.consumers = append(ns.consumers, consumerContext)
	ns.log.Info().
		Str("subject", MeasurementSubject).
		Str("consumer", MeasurementConsumer).
		Msg("subscribed to measurement feed")

	return nil
}

// EnsureStreams creates the measurement stream if it doesn't exist.
func EnsureStreams(ctx context.Context, js jetstream.JetStream, log zerolog.Logger) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      MeasurementStream,
		Subjects:  []string{MeasurementSubject},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", MeasurementStream, err)
	}
	log.Info().Str("stream", MeasurementStream).Msg("ensured stream")
	return nil
}

// Stop gracefully stops all consumers.
func (ns *NATSSubscriber) Stop() {
	for _, cc := range ns.consumers {
		cc.Stop()
	}
	ns.log.Info().Msg("NATS subscribers stopped")
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string, log zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
