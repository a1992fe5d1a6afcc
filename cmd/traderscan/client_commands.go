package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/brojonat/traderscan/client"
)

func clientCommands() *cli.Command {
	return &cli.Command{
		Name:  "client",
		Usage: "HTTP client commands for interacting with the traderscan server",
		Subcommands: []*cli.Command{
			clientRunsCommand(),
			clientRunCommand(),
			clientWalletsCommand(),
			clientWalletCommand(),
			clientScanCommand(),
		},
	}
}

func newAPIClient(c *cli.Context) *client.Client {
	return client.NewClient(c.String("server-url"), nil, cliLogger(c))
}

func clientRunsCommand() *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "List runs from the server",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Usage: "Maximum runs (server default when 0)"},
			&cli.IntFlag{Name: "offset", Usage: "Runs to skip"},
		},
		Action: func(c *cli.Context) error {
			runs, err := newAPIClient(c).ListRuns(c.Context, c.Int("limit"), c.Int("offset"))
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}
			if c.Bool("json") {
				return outputJSON(c, runs)
			}

			w := tabwriter.NewWriter(outWriter(c), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "RUN ID\tSTARTED\tIDENTIFIED\tACTIVE\tTOP\tFAILED")
			for _, run := range runs {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\n",
					run.ID,
					run.StartedAt.Format(time.RFC3339),
					run.Identified,
					run.Active,
					run.TopTraders,
					run.Failed,
				)
			}
			w.Flush()
			fmt.Fprintf(errWriter(c), "\nTotal: %d runs\n", len(runs))
			return nil
		},
	}
}

func clientRunCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Show one run from the server",
		ArgsUsage: "<run-id>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: run id")
			}
			run, err := newAPIClient(c).GetRun(c.Context, c.Args().First())
			if err != nil {
				return fmt.Errorf("failed to get run: %w", err)
			}
			if c.Bool("json") {
				return outputJSON(c, run)
			}

			w := outWriter(c)
			fmt.Fprintf(w, "Run ID:      %s\n", run.ID)
			fmt.Fprintf(w, "Started:     %s\n", run.StartedAt.Format(time.RFC3339))
			if run.FinishedAt != nil {
				fmt.Fprintf(w, "Finished:    %s\n", run.FinishedAt.Format(time.RFC3339))
			}
			fmt.Fprintf(w, "Identified:  %d\n", run.Identified)
			fmt.Fprintf(w, "Active:      %d\n", run.Active)
			fmt.Fprintf(w, "Top Traders: %d\n", run.TopTraders)
			fmt.Fprintf(w, "Failed:      %d\n", run.Failed)
			return nil
		},
	}
}

func clientWalletsCommand() *cli.Command {
	return &cli.Command{
		Name:      "wallets",
		Usage:     "List the analyzed wallets of a run",
		ArgsUsage: "<run-id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "top", Aliases: []string{"t"}, Usage: "Only top traders"},
			&cli.StringSliceFlag{Name: "jq", Usage: "jq expression each wallet must satisfy (repeatable)"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: run id")
			}
			codes, err := compileFilters(c.StringSlice("jq"))
			if err != nil {
				return err
			}

			wallets, err := newAPIClient(c).RunWallets(c.Context, c.Args().First(), c.Bool("top"))
			if err != nil {
				return fmt.Errorf("failed to list wallets: %w", err)
			}
			if wallets, err = filterSlice(codes, wallets); err != nil {
				return err
			}

			if c.Bool("json") {
				return outputJSON(c, wallets)
			}
			printAnalysisTable(outWriter(c), wallets)
			fmt.Fprintf(errWriter(c), "\nTotal: %d wallets\n", len(wallets))
			return nil
		},
	}
}

func clientWalletCommand() *cli.Command {
	return &cli.Command{
		Name:      "wallet",
		Usage:     "Show the latest analysis of a wallet",
		ArgsUsage: "<address>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: wallet address")
			}
			info, err := newAPIClient(c).Wallet(c.Context, c.Args().First())
			if errors.Is(err, client.ErrNotFound) {
				return fmt.Errorf("wallet %s has not been analyzed", c.Args().First())
			}
			if err != nil {
				return fmt.Errorf("failed to get wallet: %w", err)
			}
			if c.Bool("json") {
				return outputJSON(c, info)
			}

			w := outWriter(c)
			fmt.Fprintf(w, "Address:       %s\n", info.Address)
			fmt.Fprintf(w, "Run ID:        %s\n", info.RunID)
			fmt.Fprintf(w, "Status:        %s\n", info.Status)
			fmt.Fprintf(w, "Transactions:  %d\n", info.TransactionCount)
			fmt.Fprintf(w, "Last Activity: %s\n", formatActivity(info.LastActivity))
			if info.CurrentBalanceSOL != nil {
				fmt.Fprintf(w, "Balance:       %s SOL\n", info.CurrentBalanceSOL)
			} else {
				fmt.Fprintf(w, "Balance:       unknown\n")
			}
			fmt.Fprintf(w, "Change:        %s SOL\n", info.BalanceChangeSOL)
			fmt.Fprintf(w, "Profit:        %s\n", formatPercent(info.Profit))
			fmt.Fprintf(w, "Top Trader:    %v\n", info.TopTrader)
			if info.Error != nil {
				fmt.Fprintf(w, "Error:         %s\n", *info.Error)
			}
			return nil
		},
	}
}

func clientScanCommand() *cli.Command {
	return &cli.Command{
		Name:  "scan",
		Usage: "Ask the server to start a scan",
		Flags: flags(identifyFlags(), []cli.Flag{
			&cli.StringFlag{Name: "run-id", Usage: "Run identifier (server assigned when empty)"},
		}),
		Action: func(c *cli.Context) error {
			req := client.ScanRequest{
				RunID:  c.String("run-id"),
				Policy: c.String("policy"),
			}
			if c.IsSet("num-signatures") {
				n := c.Int("num-signatures")
				req.NumSignatures = &n
			}
			if c.IsSet("min-transactions") {
				n := c.Int("min-transactions")
				req.MinTransactions = &n
			}
			if c.IsSet("max-wallets") {
				n := c.Int("max-wallets")
				req.MaxWallets = &n
			}

			started, err := newAPIClient(c).StartScan(c.Context, req)
			if err != nil {
				return fmt.Errorf("failed to start scan: %w", err)
			}
			if c.Bool("json") {
				return outputJSON(c, started)
			}

			w := outWriter(c)
			fmt.Fprintf(w, "✓ Scan started: %s\n", started.RunID)
			fmt.Fprintf(w, "  Workflow ID: %s\n", started.WorkflowID)
			printIdentifyParams(w, started.Params)
			return nil
		},
	}
}

func printAnalysisTable(out io.Writer, wallets []*client.WalletAnalysis) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tSTATUS\tTXNS\tBALANCE (SOL)\tCHANGE (SOL)\tPROFIT\tTOP")
	for _, info := range wallets {
		balance := "unknown"
		if info.CurrentBalanceSOL != nil {
			balance = info.CurrentBalanceSOL.String()
		}
		top := ""
		if info.TopTrader {
			top = "★"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			info.Address,
			info.Status,
			info.TransactionCount,
			balance,
			info.BalanceChangeSOL.String(),
			formatPercent(info.Profit),
			top,
		)
	}
	w.Flush()
}
