package main

import (
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/brojonat/traderscan/service/temporal"
	"github.com/brojonat/traderscan/service/wallet"
)

// identifyParamsFromFlags starts from the package defaults and applies any
// identification flags that were set.
func identifyParamsFromFlags(c *cli.Context) (wallet.IdentifyParams, error) {
	p := wallet.DefaultIdentifyParams()
	if c.IsSet("num-signatures") {
		p.NumSignatures = c.Int("num-signatures")
	}
	if c.IsSet("min-transactions") {
		p.MinTransactions = c.Int("min-transactions")
	}
	if c.IsSet("max-wallets") {
		p.MaxWallets = c.Int("max-wallets")
	}
	if c.IsSet("policy") {
		policy, err := wallet.ParseSelectionPolicy(c.String("policy"))
		if err != nil {
			return p, err
		}
		p.Policy = policy
	}

	if p.NumSignatures < 1 {
		return p, fmt.Errorf("num-signatures must be at least 1")
	}
	if p.MinTransactions < 1 {
		return p, fmt.Errorf("min-transactions must be at least 1")
	}
	if p.MaxWallets < 0 {
		return p, fmt.Errorf("max-wallets cannot be negative")
	}
	return p, nil
}

func upsertScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:      "upsert",
		Usage:     "Create or update a recurring scan",
		ArgsUsage: "<name>",
		Flags: flags(identifyFlags(), []cli.Flag{
			&cli.DurationFlag{
				Name:    "interval",
				Aliases: []string{"i"},
				Value:   time.Hour,
				Usage:   "Time between scans",
			},
		}),
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: schedule name")
			}
			name := c.Args().First()

			interval := c.Duration("interval")
			if interval < time.Minute {
				return fmt.Errorf("interval must be at least 1m")
			}
			params, err := identifyParamsFromFlags(c)
			if err != nil {
				return err
			}

			temporalClient, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			if err := temporalClient.UpsertScanSchedule(c.Context, name, interval, params); err != nil {
				return fmt.Errorf("failed to upsert schedule: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c, map[string]interface{}{
					"name":     name,
					"interval": interval.String(),
					"params":   params,
				})
			}
			w := outWriter(c)
			fmt.Fprintf(w, "✓ Schedule ready: %s\n", name)
			fmt.Fprintf(w, "  Interval: %s\n", interval)
			printIdentifyParams(w, params)
			return nil
		},
	}
}

func deleteScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete a recurring scan",
		Aliases:   []string{"rm"},
		ArgsUsage: "<name>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: schedule name")
			}
			name := c.Args().First()

			temporalClient, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			if err := temporalClient.DeleteScanSchedule(c.Context, name); err != nil {
				return fmt.Errorf("failed to delete schedule: %w", err)
			}
			fmt.Fprintf(outWriter(c), "✓ Schedule deleted: %s\n", name)
			return nil
		},
	}
}

func startScanCommand() *cli.Command {
	return &cli.Command{
		Name:  "start",
		Usage: "Start a scan on the worker now",
		Flags: flags(identifyFlags(), []cli.Flag{
			&cli.StringFlag{
				Name:  "run-id",
				Usage: "Run identifier (random when empty)",
			},
			&cli.BoolFlag{
				Name:    "wait",
				Aliases: []string{"w"},
				Usage:   "Block until the scan finishes and print its summary",
			},
		}),
		Action: func(c *cli.Context) error {
			params, err := identifyParamsFromFlags(c)
			if err != nil {
				return err
			}
			runID := c.String("run-id")
			if runID == "" {
				runID = uuid.NewString()
			}

			temporalClient, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			workflowID, err := temporalClient.StartScan(c.Context, runID, params)
			if err != nil {
				return fmt.Errorf("failed to start scan: %w", err)
			}

			if !c.Bool("wait") {
				if c.Bool("json") {
					return outputJSON(c, map[string]string{
						"run_id":      runID,
						"workflow_id": workflowID,
					})
				}
				fmt.Fprintf(outWriter(c), "✓ Scan started: %s\n", runID)
				fmt.Fprintf(outWriter(c), "  Workflow ID: %s\n", workflowID)
				return nil
			}

			if !c.Bool("json") {
				fmt.Fprintf(errWriter(c), "Waiting for scan %s...\n", runID)
			}
			result, err := temporalClient.WaitForScan(c.Context, workflowID)
			if err != nil {
				return fmt.Errorf("scan failed: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c, result)
			}
			printScanResult(outWriter(c), result)
			return nil
		},
	}
}

func printIdentifyParams(w io.Writer, p wallet.IdentifyParams) {
	fmt.Fprintf(w, "  Signatures: %d\n", p.NumSignatures)
	fmt.Fprintf(w, "  Min Transactions: %d\n", p.MinTransactions)
	fmt.Fprintf(w, "  Max Wallets: %d\n", p.MaxWallets)
	fmt.Fprintf(w, "  Policy: %s\n", p.Policy)
}

func printScanResult(w io.Writer, r *temporal.ScanWorkflowResult) {
	fmt.Fprintf(w, "Run ID:      %s\n", r.RunID)
	fmt.Fprintf(w, "Duration:    %s\n", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	fmt.Fprintf(w, "Identified:  %d\n", r.Identified)
	fmt.Fprintf(w, "Active:      %d\n", r.Active)
	fmt.Fprintf(w, "Inactive:    %d\n", r.Inactive)
	fmt.Fprintf(w, "Failed:      %d\n", r.Failed)
	fmt.Fprintf(w, "Top Traders: %d\n", len(r.TopTraders))
	for _, addr := range r.TopTraders {
		fmt.Fprintf(w, "  %s\n", addr)
	}
	for _, msg := range r.SinkErrors {
		fmt.Fprintf(w, "Sink error: %s\n", msg)
	}
	if r.Error != nil {
		fmt.Fprintf(w, "Error:       %s\n", *r.Error)
	}
}

// getTemporalClient connects using the global temporal flags.
func getTemporalClient(c *cli.Context) (*temporal.Client, error) {
	host := c.String("temporal-host")
	if host == "" {
		return nil, fmt.Errorf("temporal-host is required (set TEMPORAL_HOST env var or use --temporal-host)")
	}
	return temporal.NewClient(host, c.String("temporal-namespace"), c.String("temporal-task-queue"), cliLogger(c))
}
