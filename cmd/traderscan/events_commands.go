package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/urfave/cli/v2"

	natspkg "github.com/brojonat/traderscan/service/nats"
	"github.com/brojonat/traderscan/service/solana"
)

// eventSource is the part of *nats.Subscriber the subscribe command uses.
type eventSource interface {
	Subscribe(ctx context.Context, filter, durable string, handler natspkg.Handler) error
}

func subscribeCommand() *cli.Command {
	return &cli.Command{
		Name:      "subscribe",
		Usage:     "Stream analyzed wallets or run summaries from NATS",
		ArgsUsage: "[wallet_address]",
		Description: `Subscribe to events published to the WALLETS JetStream stream.

Without an address every analyzed wallet is streamed. --top restricts the
stream to top traders and --runs streams run summaries instead.

Example:
  traderscan events subscribe --top --json`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "top",
				Aliases: []string{"t"},
				Usage:   "Only top traders",
			},
			&cli.BoolFlag{
				Name:  "runs",
				Usage: "Stream run summaries instead of wallets",
			},
			&cli.StringFlag{
				Name:    "durable",
				Aliases: []string{"d"},
				Usage:   "Durable consumer name (replays unacknowledged events)",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Stop after this long (0 runs until interrupted)",
			},
			&cli.IntFlag{
				Name:  "max",
				Usage: "Stop after this many events (0 for no limit)",
			},
		},
		Action: func(c *cli.Context) error {
			family := natspkg.FamilyAnalyzed
			switch {
			case c.Bool("runs"):
				family = natspkg.FamilyRuns
			case c.Bool("top"):
				family = natspkg.FamilyTop
			}
			address := c.Args().First()
			if address != "" {
				if err := solana.ValidateAddress(address); err != nil {
					return err
				}
			}
			filter, err := natspkg.FilterSubject(family, address)
			if err != nil {
				return err
			}

			subscriber, err := natspkg.NewSubscriber(c.String("nats-url"), cliLogger(c))
			if err != nil {
				return err
			}
			defer subscriber.Close()

			ctx, cancel := signalContext()
			defer cancel()
			if timeout := c.Duration("timeout"); timeout > 0 {
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			if !c.Bool("json") {
				fmt.Fprintf(errWriter(c), "📡 Subscribing to: %s\n\n", filter)
			}
			received, err := streamEvents(ctx, outWriter(c), subscriber, filter, c.String("durable"), c.Bool("json"), c.Int("max"))
			if err != nil {
				return err
			}
			if !c.Bool("json") {
				fmt.Fprintf(errWriter(c), "\nReceived: %d events\n", received)
			}
			return nil
		},
	}
}

// streamEvents prints every event matching filter until ctx is done or limit
// events were printed, and returns the count.
func streamEvents(ctx context.Context, w io.Writer, source eventSource, filter, durable string, jsonOutput bool, limit int) (int, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var mu sync.Mutex
	received := 0
	err := source.Subscribe(ctx, filter, durable, func(subject string, data []byte) error {
		mu.Lock()
		defer mu.Unlock()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := printEvent(w, subject, data, jsonOutput); err != nil {
			// Undecodable payloads are acknowledged and skipped.
			fmt.Fprintf(w, "skipping %s: %v\n", subject, err)
			return nil
		}
		received++
		if limit > 0 && received >= limit {
			cancel()
		}
		return nil
	})

	mu.Lock()
	defer mu.Unlock()
	return received, err
}

func printEvent(w io.Writer, subject string, data []byte, jsonOutput bool) error {
	if subject == natspkg.RunsSubject() {
		var event natspkg.RunEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return err
		}
		if jsonOutput {
			return json.NewEncoder(w).Encode(event)
		}
		fmt.Fprintf(w, "✅ Run finished: %s\n", event.RunID)
		fmt.Fprintf(w, "   Identified: %d, active: %d, failed: %d\n", event.Identified, event.Active, event.Failed)
		if len(event.TopTraders) > 0 {
			fmt.Fprintf(w, "   Top traders: %s\n", strings.Join(event.TopTraders, ", "))
		}
		fmt.Fprintf(w, "   Published: %s\n\n", event.PublishedAt.Format(time.RFC3339))
		return nil
	}

	var event natspkg.WalletEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return err
	}
	if jsonOutput {
		return json.NewEncoder(w).Encode(event)
	}
	marker := "•"
	if event.TopTrader {
		marker = "★"
	}
	fmt.Fprintf(w, "%s %s (run %s)\n", marker, event.Address, event.RunID)
	fmt.Fprintf(w, "   Transactions: %d\n", event.TransactionCount)
	fmt.Fprintf(w, "   Balance change: %s SOL\n", solana.DeltaToSOL(event.BalanceChange))
	fmt.Fprintf(w, "   Profit: %s\n", formatPercent(event.Profit))
	fmt.Fprintf(w, "   Last activity: %s\n\n", formatActivity(event.LastActivity))
	return nil
}
