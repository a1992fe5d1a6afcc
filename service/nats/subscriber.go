package nats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Subject families a consumer can filter on.
const (
	FamilyAnalyzed = "analyzed"
	FamilyTop      = "top"
	FamilyRuns     = "runs"
)

// FilterSubject builds a consumer filter for a subject family. An empty
// address matches every wallet; address is ignored for FamilyRuns.
func FilterSubject(family, address string) (string, error) {
	if address == "" {
		address = "*"
	}
	switch family {
	case FamilyAnalyzed:
		return AnalyzedSubject(address), nil
	case FamilyTop:
		return TopSubject(address), nil
	case FamilyRuns:
		return RunsSubject(), nil
	}
	return "", fmt.Errorf("unknown subject family %q", family)
}

// Handler processes one message. Returning an error naks the message.
type Handler func(subject string, data []byte) error

// Subscriber consumes wallet events from the WALLETS stream.
type Subscriber struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger *slog.Logger
}

// NewSubscriber connects to NATS.
func NewSubscriber(natsURL string, logger *slog.Logger) (*Subscriber, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("traderscan-subscriber"),
		nats.Timeout(10*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return &Subscriber{nc: nc, js: js, logger: logger}, nil
}

// Subscribe delivers messages matching filter to handler until ctx is done.
// A non-empty durable name creates a consumer that survives restarts; an
// ephemeral consumer only sees new messages.
func (s *Subscriber) Subscribe(ctx context.Context, filter, durable string, handler Handler) error {
	cfg := jetstream.ConsumerConfig{
		FilterSubject: filter,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	}
	if durable != "" {
		cfg.Durable = durable
		cfg.DeliverPolicy = jetstream.DeliverAllPolicy
	}

	cons, err := s.js.CreateOrUpdateConsumer(ctx, StreamName, cfg)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	cc, err := cons.Consume(func(msg jetstream.Msg) {
		if err := handler(msg.Subject(), msg.Data()); err != nil {
			s.logger.Warn("handler failed", "subject", msg.Subject(), "error", err)
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	defer cc.Stop()

	s.logger.Debug("subscribed", "stream", StreamName, "filter", filter, "durable", durable)
	<-ctx.Done()
	return nil
}

// Close closes the connection to NATS.
func (s *Subscriber) Close() error {
	if s.nc != nil {
		s.nc.Close()
	}
	return nil
}
