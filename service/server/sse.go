package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	natspkg "github.com/brojonat/traderscan/service/nats"
)

// EventSource delivers messages from the WALLETS stream. *nats.Subscriber
// implements it.
type EventSource interface {
	Subscribe(ctx context.Context, filter, durable string, handler natspkg.Handler) error
	Close() error
}

var _ EventSource = (*natspkg.Subscriber)(nil)

// SSEPublisher fans stream messages out to Server-Sent Events clients. Each
// connection gets its own ephemeral consumer.
type SSEPublisher struct {
	source    EventSource
	keepalive time.Duration
	logger    *slog.Logger
}

// NewSSEPublisher wraps an event source.
func NewSSEPublisher(source EventSource, logger *slog.Logger) *SSEPublisher {
	return &SSEPublisher{
		source:    source,
		keepalive: 10 * time.Second,
		logger:    logger,
	}
}

// Close closes the underlying event source.
func (p *SSEPublisher) Close() error {
	if p.source != nil {
		if err := p.source.Close(); err != nil {
			return err
		}
		p.logger.Info("SSE publisher closed")
	}
	return nil
}

type streamMessage struct {
	subject string
	data    []byte
}

// stream subscribes to filter and writes every message to w as an SSE event
// until the client goes away. render turns the raw payload into the event
// name and JSON body; returning an error skips the message.
func (p *SSEPublisher) stream(w http.ResponseWriter, r *http.Request, filter, desc string, render func([]byte) (string, []byte, error)) {
	ctx := r.Context()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flush := func() {
		if flusher, ok := w.(http.Flusher); ok {
			flusher.Flush()
		}
	}
	flush()

	p.logger.DebugContext(ctx, "SSE client connected",
		"filter", filter,
		"remote_addr", r.RemoteAddr,
	)

	msgChan := make(chan streamMessage, 10)
	errChan := make(chan error, 1)

	go func() {
		errChan <- p.source.Subscribe(ctx, filter, "", func(subject string, data []byte) error {
			select {
			case msgChan <- streamMessage{subject: subject, data: data}:
			case <-ctx.Done():
			}
			return nil
		})
	}()

	fmt.Fprintf(w, "event: connected\ndata: {\"filter\":%s}\n\n", strconv.Quote(desc))
	flush()

	keepalive := time.NewTicker(p.keepalive)
	defer keepalive.Stop()

	for {
		select {
		case <-keepalive.C:
			fmt.Fprintf(w, ": keepalive\n\n")
			flush()

		case msg := <-msgChan:
			event, data, err := render(msg.data)
			if err != nil {
				p.logger.WarnContext(ctx, "failed to decode event",
					"subject", msg.subject,
					"error", err,
				)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
			flush()

		case err := <-errChan:
			if err != nil {
				p.logger.ErrorContext(ctx, "failed to subscribe",
					"filter", filter,
					"error", err,
				)
				fmt.Fprintf(w, "event: error\ndata: {\"error\": \"failed to subscribe\"}\n\n")
				flush()
			}
			return

		case <-ctx.Done():
			p.logger.DebugContext(ctx, "SSE client disconnected",
				"filter", filter,
				"remote_addr", r.RemoteAddr,
			)
			return
		}
	}
}

// handleStreamWallets streams analyzed wallets as SSE.
// GET /api/v1/stream/wallets[/{address}]?top=true
// Without an address every wallet is streamed; top=true restricts the
// stream to top traders.
func handleStreamWallets(p *SSEPublisher, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")
		desc := "all wallets"
		if address != "" {
			if err := validateAddress(address); err != nil {
				logger.Debug("invalid address", "address", address, "error", err)
				writeError(w, err.Error(), http.StatusBadRequest)
				return
			}
			desc = address
		}

		topOnly, err := parseBoolParam(r, "top")
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		family := natspkg.FamilyAnalyzed
		if topOnly {
			family = natspkg.FamilyTop
		}

		filter, err := natspkg.FilterSubject(family, address)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		p.stream(w, r, filter, desc, func(raw []byte) (string, []byte, error) {
			var event natspkg.WalletEvent
			if err := json.Unmarshal(raw, &event); err != nil {
				return "", nil, err
			}
			data, err := json.Marshal(walletEventToResponse(event))
			return "wallet", data, err
		})
	})
}

// handleStreamRuns streams run summaries as SSE.
// GET /api/v1/stream/runs
func handleStreamRuns(p *SSEPublisher, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.stream(w, r, natspkg.RunsSubject(), "runs", func(raw []byte) (string, []byte, error) {
			var event natspkg.RunEvent
			if err := json.Unmarshal(raw, &event); err != nil {
				return "", nil, err
			}
			data, err := json.Marshal(event)
			return "run", data, err
		})
	})
}
