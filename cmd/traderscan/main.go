package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	_ = godotenv.Load()

	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "traderscan",
		Usage: "Find active Solana wallets and rank them by recent profit",
		Description: `A command-line tool for running wallet scans and inspecting their results.

Scans can run locally against the configured RPC endpoints, or be scheduled
through Temporal and read back from the database or the HTTP API.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			// Local scans against the RPC endpoints
			runCommand(),
			identifyCommand(),
			analyzeCommand(),
			// Stored results
			{
				Name:  "runs",
				Usage: "Database inspection commands",
				Subcommands: []*cli.Command{
					listRunsCommand(),
					showRunCommand(),
					runWalletsCommand(),
					pruneRunsCommand(),
				},
			},
			// Temporal management
			{
				Name:  "schedule",
				Usage: "Manage recurring scans in Temporal",
				Subcommands: []*cli.Command{
					upsertScheduleCommand(),
					deleteScheduleCommand(),
				},
			},
			{
				Name:  "scan",
				Usage: "On-demand scans executed by the worker",
				Subcommands: []*cli.Command{
					startScanCommand(),
				},
			},
			// NATS streaming
			{
				Name:  "events",
				Usage: "Wallet event streaming commands",
				Subcommands: []*cli.Command{
					subscribeCommand(),
				},
			},
			// Client commands (HTTP API)
			clientCommands(),
			// Server utility commands
			{
				Name:  "server",
				Usage: "Server utility commands",
				Subcommands: []*cli.Command{
					healthCommand(),
					versionCommand(),
				},
			},
		},
		// Global flags available to all commands
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL",
				EnvVars: []string{"DATABASE_URL"},
			},
			&cli.StringFlag{
				Name:    "temporal-host",
				Usage:   "Temporal server address",
				EnvVars: []string{"TEMPORAL_HOST"},
				Value:   "localhost:7233",
			},
			&cli.StringFlag{
				Name:    "temporal-namespace",
				Usage:   "Temporal namespace",
				EnvVars: []string{"TEMPORAL_NAMESPACE"},
				Value:   "default",
			},
			&cli.StringFlag{
				Name:    "temporal-task-queue",
				Usage:   "Temporal task queue of the worker",
				EnvVars: []string{"TEMPORAL_TASK_QUEUE"},
				Value:   "traderscan-scans",
			},
			&cli.StringFlag{
				Name:    "server-url",
				Usage:   "traderscan server URL",
				EnvVars: []string{"SERVER_URL"},
				Value:   "http://localhost:8080",
			},
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "NATS server URL",
				EnvVars: []string{"NATS_URL"},
				Value:   "nats://localhost:4222",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level for diagnostics on stderr",
				EnvVars: []string{"LOG_LEVEL"},
				Value:   "error",
			},
		},
	}
}

// cliLogger logs to the app's error writer at the --log-level level.
func cliLogger(c *cli.Context) *slog.Logger {
	var level slog.Level
	switch c.String("log-level") {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	default:
		level = slog.LevelError
	}
	return slog.New(slog.NewJSONHandler(errWriter(c), &slog.HandlerOptions{Level: level}))
}

func outWriter(c *cli.Context) io.Writer {
	if c.App != nil && c.App.Writer != nil {
		return c.App.Writer
	}
	return os.Stdout
}

func errWriter(c *cli.Context) io.Writer {
	if c.App != nil && c.App.ErrWriter != nil {
		return c.App.ErrWriter
	}
	return os.Stderr
}

// outputJSON writes v as indented JSON to the app's writer.
func outputJSON(c *cli.Context, v interface{}) error {
	enc := json.NewEncoder(outWriter(c))
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
