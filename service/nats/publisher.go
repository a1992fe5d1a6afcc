package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/brojonat/traderscan/service/metrics"
	"github.com/brojonat/traderscan/service/wallet"
)

// Publisher defines the interface for publishing wallet events to NATS.
type Publisher interface {
	// PublishWallet publishes an analyzed wallet to "wallets.analyzed.{address}"
	// and, for top traders, also to "wallets.top.{address}".
	PublishWallet(ctx context.Context, event *WalletEvent) error

	// PublishRun publishes a run summary to "wallets.runs".
	PublishRun(ctx context.Context, event *RunEvent) error

	// Close closes the connection to NATS.
	Close() error
}

const (
	// StreamName is the name of the JetStream stream for wallet events.
	StreamName = "WALLETS"

	// StreamSubjects is the subject pattern for the stream.
	StreamSubjects = "wallets.>"

	// StreamRetention is how long messages are retained (30 days by default).
	StreamRetention = 30 * 24 * time.Hour

	analyzedPrefix = "wallets.analyzed"
	topPrefix      = "wallets.top"
	runsSubject    = "wallets.runs"
)

// AnalyzedSubject returns the subject an analyzed wallet is published to.
func AnalyzedSubject(address string) string {
	return fmt.Sprintf("%s.%s", analyzedPrefix, address)
}

// TopSubject returns the subject a top trader is published to.
func TopSubject(address string) string {
	return fmt.Sprintf("%s.%s", topPrefix, address)
}

// RunsSubject is the subject run summaries are published to.
func RunsSubject() string {
	return runsSubject
}

// JetStreamPublisher publishes wallet events to NATS JetStream.
type JetStreamPublisher struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewPublisher creates a new JetStream publisher.
// It connects to NATS and ensures the stream exists.
func NewPublisher(natsURL string, m *metrics.Metrics, logger *slog.Logger) (*JetStreamPublisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("traderscan-publisher"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	publisher := &JetStreamPublisher{
		nc:      nc,
		js:      js,
		logger:  logger,
		metrics: m,
	}

	if err := EnsureStream(context.Background(), js, logger); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream exists: %w", err)
	}

	logger.Info("NATS publisher initialized",
		"url", natsURL,
		"stream", StreamName,
	)

	return publisher, nil
}

// EnsureStream creates the WALLETS stream if it doesn't exist.
func EnsureStream(ctx context.Context, js jetstream.JetStream, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	stream, err := js.Stream(ctx, StreamName)
	if err == nil {
		info, err := stream.Info(ctx)
		if err == nil {
			logger.Debug("JetStream stream already exists",
				"stream", StreamName,
				"messages", info.State.Msgs,
			)
		}
		return nil
	}

	logger.Info("creating JetStream stream", "stream", StreamName)

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Analyzed wallets and scan run summaries",
		Subjects:    []string{StreamSubjects},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      StreamRetention,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	logger.Info("JetStream stream created successfully", "stream", StreamName)
	return nil
}

// PublishWallet publishes a single analyzed wallet.
func (p *JetStreamPublisher) PublishWallet(ctx context.Context, event *WalletEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal wallet event: %w", err)
	}

	if err := p.publish(ctx, analyzedPrefix, AnalyzedSubject(event.Address), data); err != nil {
		return err
	}
	if event.TopTrader {
		if err := p.publish(ctx, topPrefix, TopSubject(event.Address), data); err != nil {
			return err
		}
	}

	p.logger.Debug("published wallet event",
		"run_id", event.RunID,
		"wallet", event.Address,
		"top_trader", event.TopTrader,
	)
	return nil
}

// PublishRun publishes a run summary.
func (p *JetStreamPublisher) PublishRun(ctx context.Context, event *RunEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal run event: %w", err)
	}
	return p.publish(ctx, runsSubject, runsSubject, data)
}

// publish labels metrics by subject family so addresses don't become label values.
func (p *JetStreamPublisher) publish(ctx context.Context, family, subject string, data []byte) error {
	start := time.Now()
	_, err := p.js.Publish(ctx, subject, data)
	if p.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		p.metrics.RecordNATSPublish(family, status, time.Since(start).Seconds())
	}
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// Close closes the connection to NATS.
func (p *JetStreamPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
		p.logger.Info("NATS publisher closed")
	}
	return nil
}

// Sink adapts a Publisher to the pipeline's run sink.
type Sink struct {
	publisher Publisher
	logger    *slog.Logger
}

// NewSink creates a Sink that publishes through p.
func NewSink(p Publisher, logger *slog.Logger) *Sink {
	return &Sink{publisher: p, logger: logger}
}

var _ wallet.Sink = (*Sink)(nil)

// RecordRun publishes every active wallet of run followed by the run summary.
// A failed wallet publish doesn't stop the rest; all failures are joined into
// the returned error.
func (s *Sink) RecordRun(ctx context.Context, run *wallet.Run) error {
	var errs []error
	events := WalletEventsFromRun(run)
	for _, event := range events {
		if err := s.publisher.PublishWallet(ctx, event); err != nil {
			s.logger.Error("failed to publish wallet event",
				"run_id", run.ID,
				"wallet", event.Address,
				"error", err,
			)
			errs = append(errs, err)
		}
	}

	if err := s.publisher.PublishRun(ctx, RunEventFromRun(run)); err != nil {
		errs = append(errs, err)
	}

	s.logger.Debug("published run events",
		"run_id", run.ID,
		"wallets", len(events),
		"failures", len(errs),
	)
	return errors.Join(errs...)
}
