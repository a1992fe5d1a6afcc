package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/brojonat/traderscan/service/db"
	"github.com/brojonat/traderscan/service/engine"
	"github.com/brojonat/traderscan/service/solana"
)

func listRunsCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Usage:   "List recorded runs, newest first",
		Aliases: []string{"ls"},
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"l"},
				Value:   20,
				Usage:   "Maximum runs to list",
			},
			&cli.IntFlag{
				Name:  "offset",
				Usage: "Runs to skip",
			},
		},
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			runs, err := store.ListRuns(c.Context, c.Int("limit"), c.Int("offset"))
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c, runs)
			}

			printRunsTable(outWriter(c), runs)
			fmt.Fprintf(errWriter(c), "\nTotal: %d runs\n", len(runs))
			return nil
		},
	}
}

func showRunCommand() *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Show one run",
		Aliases:   []string{"get"},
		ArgsUsage: "<run-id>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: run id")
			}

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			run, err := store.GetRun(c.Context, c.Args().First())
			if errors.Is(err, db.ErrNotFound) {
				return fmt.Errorf("run %q not found", c.Args().First())
			}
			if err != nil {
				return fmt.Errorf("failed to get run: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c, run)
			}
			printRunDetail(outWriter(c), run)
			return nil
		},
	}
}

func runWalletsCommand() *cli.Command {
	return &cli.Command{
		Name:      "wallets",
		Usage:     "List the analyzed wallets of a run",
		ArgsUsage: "<run-id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "top",
				Aliases: []string{"t"},
				Usage:   "Only top traders",
			},
			&cli.StringSliceFlag{
				Name:  "jq",
				Usage: "jq expression each wallet must satisfy (repeatable)",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: run id")
			}
			codes, err := compileFilters(c.StringSlice("jq"))
			if err != nil {
				return err
			}

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			wallets, err := store.ListRunWallets(c.Context, c.Args().First(), c.Bool("top"))
			if errors.Is(err, db.ErrNotFound) {
				return fmt.Errorf("run %q not found", c.Args().First())
			}
			if err != nil {
				return fmt.Errorf("failed to list wallets: %w", err)
			}
			if wallets, err = filterSlice(codes, wallets); err != nil {
				return err
			}

			if c.Bool("json") {
				return outputJSON(c, wallets)
			}
			printWalletTable(outWriter(c), wallets)
			fmt.Fprintf(errWriter(c), "\nTotal: %d wallets\n", len(wallets))
			return nil
		},
	}
}

func pruneRunsCommand() *cli.Command {
	return &cli.Command{
		Name:  "prune",
		Usage: "Delete runs older than a given age",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:     "older-than",
				Usage:    "Age of the oldest run to keep (e.g. 720h)",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			age := c.Duration("older-than")
			if age <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			cutoff := time.Now().Add(-age)
			n, err := store.DeleteRunsOlderThan(c.Context, cutoff)
			if err != nil {
				return fmt.Errorf("failed to prune runs: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c, map[string]interface{}{
					"deleted": n,
					"cutoff":  cutoff.UTC(),
				})
			}
			fmt.Fprintf(outWriter(c), "✓ Deleted %d runs started before %s\n", n, cutoff.UTC().Format(time.RFC3339))
			return nil
		},
	}
}

func printRunsTable(out io.Writer, runs []*db.RunSummary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tSTARTED\tIDENTIFIED\tACTIVE\tTOP\tFAILED\tFINISHED")
	for _, run := range runs {
		finished := "running"
		if run.FinishedAt != nil {
			finished = run.FinishedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			run.ID,
			run.StartedAt.Format(time.RFC3339),
			run.Identified,
			run.Active,
			run.TopTraders,
			run.Failed,
			finished,
		)
	}
	w.Flush()
}

func printRunDetail(w io.Writer, run *db.RunSummary) {
	fmt.Fprintf(w, "Run ID:          %s\n", run.ID)
	fmt.Fprintf(w, "Started:         %s\n", run.StartedAt.Format(time.RFC3339))
	if run.FinishedAt != nil {
		fmt.Fprintf(w, "Finished:        %s\n", run.FinishedAt.Format(time.RFC3339))
	}
	if run.WindowStart != nil {
		fmt.Fprintf(w, "Window Start:    %s\n", run.WindowStart.Format(time.RFC3339))
	}
	fmt.Fprintf(w, "Signatures:      %d seen, %d skipped\n", run.SignaturesSeen, run.SignaturesSkipped)
	fmt.Fprintf(w, "Candidates:      %d\n", run.Candidates)
	fmt.Fprintf(w, "Identified:      %d\n", run.Identified)
	fmt.Fprintf(w, "Active:          %d\n", run.Active)
	fmt.Fprintf(w, "Top Traders:     %d\n", run.TopTraders)
	fmt.Fprintf(w, "Inactive:        %d\n", run.Inactive)
	fmt.Fprintf(w, "Failed:          %d\n", run.Failed)
	fmt.Fprintf(w, "Identify Params: %d signatures, min %d, max %d, %s\n",
		run.IdentifyParams.NumSignatures,
		run.IdentifyParams.MinTransactions,
		run.IdentifyParams.MaxWallets,
		run.IdentifyParams.Policy,
	)
	fmt.Fprintf(w, "Analyze Params:  %d days, threshold %s\n",
		run.AnalyzeParams.TimeFrameDays,
		formatPercent(run.AnalyzeParams.TopTraderThreshold),
	)
}

func printWalletTable(out io.Writer, wallets []*db.WalletRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tSTATUS\tTXNS\tLAST ACTIVITY\tBALANCE\tCHANGE (SOL)\tPROFIT\tTOP")
	for _, rec := range wallets {
		balance := "unknown"
		if rec.CurrentBalance != nil {
			balance = solana.LamportsToSOL(*rec.CurrentBalance).String()
		}
		top := ""
		if rec.TopTrader {
			top = "★"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
			rec.Address,
			rec.Status,
			rec.TransactionCount,
			formatActivity(rec.LastActivity),
			balance,
			solana.DeltaToSOL(rec.BalanceChange).String(),
			formatPercent(rec.Profit),
			top,
		)
	}
	w.Flush()
}

// getStore connects to the database named by --database-url.
func getStore(c *cli.Context) (*db.Store, func(), error) {
	dbURL := c.String("database-url")
	if dbURL == "" {
		return nil, nil, fmt.Errorf("database-url is required (set DATABASE_URL env var or use --database-url)")
	}

	ctx, cancel := context.WithTimeout(c.Context, 30*time.Second)
	defer cancel()

	store, pool, err := engine.OpenStore(ctx, dbURL, nil)
	if err != nil {
		return nil, nil, err
	}
	return store, pool.Close, nil
}
