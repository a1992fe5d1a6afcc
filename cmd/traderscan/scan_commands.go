package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/brojonat/traderscan/service/config"
	"github.com/brojonat/traderscan/service/engine"
)

// identifyFlags configure wallet identification.
func identifyFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:    "num-signatures",
			Aliases: []string{"n"},
			Usage:   "Recent signatures to inspect",
			EnvVars: []string{"NUM_SIGNATURES"},
		},
		&cli.IntFlag{
			Name:    "min-transactions",
			Aliases: []string{"m"},
			Usage:   "Minimum appearances for a wallet to be selected",
			EnvVars: []string{"MIN_TRANSACTIONS"},
		},
		&cli.IntFlag{
			Name:    "max-wallets",
			Usage:   "Maximum wallets to select (0 for no limit)",
			EnvVars: []string{"MAX_IDENTIFIED_WALLETS"},
		},
		&cli.StringFlag{
			Name:    "policy",
			Usage:   "Selection policy when trimming to max-wallets (discovery or tally)",
			EnvVars: []string{"SELECTION_POLICY"},
		},
	}
}

// analyzeFlags configure wallet analysis.
func analyzeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:    "days",
			Usage:   "Analysis window in days",
			EnvVars: []string{"TIME_FRAME_DAYS"},
		},
		&cli.Float64Flag{
			Name:    "threshold",
			Usage:   "Profit ratio a top trader must exceed (0.1 is 10%)",
			EnvVars: []string{"TOP_TRADER_THRESHOLD"},
		},
		&cli.IntFlag{
			Name:    "detail-limit",
			Usage:   "Windowed transactions per wallet fetched in full (0 for all)",
			EnvVars: []string{"DETAIL_LIMIT"},
		},
		&cli.DurationFlag{
			Name:    "pacing",
			Usage:   "Minimum spacing between wallets",
			EnvVars: []string{"WALLET_PACING"},
		},
	}
}

// outputFlags control how results are rendered.
func outputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{
			Name:  "jq",
			Usage: "jq expression each wallet must satisfy (repeatable, all must be truthy)",
		},
		&cli.StringFlag{
			Name:    "out",
			Aliases: []string{"o"},
			Usage:   "Also write the full result as JSON to this file",
		},
	}
}

func rpcFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{
			Name:    "rpc-url",
			Usage:   "Solana RPC endpoint (repeatable, tried in order)",
			EnvVars: []string{"SOLANA_RPC_URLS"},
		},
	}
}

func flags(groups ...[]cli.Flag) []cli.Flag {
	var all []cli.Flag
	for _, g := range groups {
		all = append(all, g...)
	}
	return all
}

// loadConfig reads the environment configuration and applies any flags
// set on the command line.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	if c.IsSet("rpc-url") {
		cfg.RPCURLs = c.StringSlice("rpc-url")
	}
	if c.IsSet("num-signatures") {
		cfg.NumSignatures = c.Int("num-signatures")
	}
	if c.IsSet("min-transactions") {
		cfg.MinTransactions = c.Int("min-transactions")
	}
	if c.IsSet("max-wallets") {
		cfg.MaxWallets = c.Int("max-wallets")
	}
	if c.IsSet("policy") {
		cfg.SelectionPolicy = c.String("policy")
	}
	if c.IsSet("days") {
		cfg.TimeFrameDays = c.Int("days")
	}
	if c.IsSet("threshold") {
		cfg.TopTraderThreshold = c.Float64("threshold")
	}
	if c.IsSet("detail-limit") {
		cfg.DetailLimit = c.Int("detail-limit")
	}
	if c.IsSet("pacing") {
		cfg.WalletPacing = c.Duration("pacing")
	}

	// Sinks are opt-in on the command line.
	cfg.DatabaseURL = ""
	cfg.NATSURL = ""
	if c.Bool("store") {
		cfg.DatabaseURL = c.String("database-url")
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("--store requires --database-url or DATABASE_URL")
		}
	}
	if c.Bool("publish") {
		cfg.NATSURL = c.String("nats-url")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// signalContext is cancelled on SIGINT or SIGTERM so partial results can
// still be reported.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Identify active wallets and analyze their recent profit",
		Description: `Runs a full scan locally: recent signatures of the reference address are
tallied into active wallets, and each wallet's balance change over the
analysis window is turned into a profit ratio.

Example:
  traderscan run -n 50 -m 2 --days 30 --threshold 0.1 --jq '.profit > 0'`,
		Flags: flags(rpcFlags(), identifyFlags(), analyzeFlags(), outputFlags(), []cli.Flag{
			&cli.StringFlag{
				Name:  "run-id",
				Usage: "Run identifier (random when empty)",
			},
			&cli.BoolFlag{
				Name:  "store",
				Usage: "Record the run in the database",
			},
			&cli.BoolFlag{
				Name:  "publish",
				Usage: "Publish the run to NATS",
			},
		}),
		Action: func(c *cli.Context) error {
			logger := cliLogger(c)
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			codes, err := compileFilters(c.StringSlice("jq"))
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			eng, err := engine.New(cfg, nil, logger)
			if err != nil {
				return err
			}
			defer eng.Close()

			sinks, err := engine.OpenSinks(ctx, cfg, nil, logger)
			if err != nil {
				return err
			}
			defer sinks.Close()

			runID := c.String("run-id")
			if runID == "" {
				runID = uuid.NewString()
			}

			if !c.Bool("json") {
				fmt.Fprintln(errWriter(c), "Identifying active wallets...")
			}
			run, runErr := eng.Pipeline(sinks.All(logger)...).Run(ctx, runID, cfg.IdentifyParams())
			if run.Analysis == nil && runErr != nil {
				return runErr
			}

			if run.Analysis != nil {
				if run.Analysis.ActiveWallets, err = filterSlice(codes, run.Analysis.ActiveWallets); err != nil {
					return err
				}
				if run.Analysis.TopTraders, err = filterSlice(codes, run.Analysis.TopTraders); err != nil {
					return err
				}
			}

			if path := c.String("out"); path != "" {
				if err := writeSnapshot(path, run); err != nil {
					return err
				}
			}

			if c.Bool("json") {
				if err := outputJSON(c, run); err != nil {
					return err
				}
			} else {
				printRun(outWriter(c), run)
			}

			if runErr != nil {
				return fmt.Errorf("run incomplete: %w", runErr)
			}
			return nil
		},
	}
}

func identifyCommand() *cli.Command {
	return &cli.Command{
		Name:  "identify",
		Usage: "List active wallets from recent signatures without analyzing them",
		Flags: flags(rpcFlags(), identifyFlags()),
		Action: func(c *cli.Context) error {
			logger := cliLogger(c)
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			eng, err := engine.New(cfg, nil, logger)
			if err != nil {
				return err
			}
			defer eng.Close()

			result, err := eng.Identifier.Identify(ctx, cfg.IdentifyParams())
			if err != nil {
				return fmt.Errorf("failed to identify wallets: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c, result)
			}

			w := outWriter(c)
			fmt.Fprintf(w, "Found active wallets: %d\n", len(result.Wallets))
			for _, addr := range result.Wallets {
				fmt.Fprintf(w, "%s\t%d\n", addr, result.Counts[addr])
			}
			fmt.Fprintf(errWriter(c), "\nSignatures: %d seen, %d skipped; candidates: %d\n",
				result.SignaturesSeen, result.SignaturesSkipped, result.Candidates)
			return nil
		},
	}
}

func analyzeCommand() *cli.Command {
	return &cli.Command{
		Name:      "analyze",
		Usage:     "Analyze the given wallets",
		ArgsUsage: "ADDRESS [ADDRESS...]",
		Flags:     flags(rpcFlags(), analyzeFlags(), outputFlags()),
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("at least one wallet address is required")
			}

			logger := cliLogger(c)
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			codes, err := compileFilters(c.StringSlice("jq"))
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			eng, err := engine.New(cfg, nil, logger)
			if err != nil {
				return err
			}
			defer eng.Close()

			start := time.Now()
			analysis, analyzeErr := eng.Analyzer.Analyze(ctx, c.Args().Slice())
			if analysis == nil {
				return fmt.Errorf("failed to analyze wallets: %w", analyzeErr)
			}
			logger.Debug("analysis finished", "duration", time.Since(start))

			if analysis.ActiveWallets, err = filterSlice(codes, analysis.ActiveWallets); err != nil {
				return err
			}
			if analysis.TopTraders, err = filterSlice(codes, analysis.TopTraders); err != nil {
				return err
			}

			if path := c.String("out"); path != "" {
				if err := writeSnapshot(path, analysis); err != nil {
					return err
				}
			}

			if c.Bool("json") {
				if err := outputJSON(c, analysis); err != nil {
					return err
				}
			} else {
				printAnalysis(outWriter(c), analysis, eng.Analyzer.Params())
			}

			if analyzeErr != nil {
				return fmt.Errorf("analysis incomplete: %w", analyzeErr)
			}
			return nil
		},
	}
}
