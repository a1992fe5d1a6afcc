package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/brojonat/traderscan/service/wallet"
)

// Selection policies for trimming the identified wallet set.
const (
	SelectionDiscovery = "discovery"
	SelectionTally     = "tally"
)

// Balance slot policies for computing a wallet's balance change.
const (
	BalanceSlotFirst  = "first"
	BalanceSlotWallet = "wallet"
)

// DefaultRPCURL is the public mainnet endpoint used when SOLANA_RPC_URLS is unset.
const DefaultRPCURL = "https://api.mainnet-beta.solana.com"

// DefaultReferenceAddress is the vote program account used to discover recent activity.
const DefaultReferenceAddress = "Vote111111111111111111111111111111111111111"

// Config holds all application configuration loaded from environment variables.
// All fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr  string
	MetricsAddr string
	LogLevel    string

	// Optional sinks; empty disables them.
	DatabaseURL string
	NATSURL     string

	// RPC pool
	RPCURLs           []string
	ReferenceAddress  string
	RPCTimeout        time.Duration
	MaxRetries        int
	InitialDelay      time.Duration
	BackoffMultiplier float64
	MaxBackoff        time.Duration
	RequestsPerSecond float64
	TxCacheSize       int

	// Identification
	NumSignatures       int
	MinTransactions     int
	MaxWallets          int
	SelectionPolicy     string
	IdentifyConcurrency int

	// Analysis
	TimeFrameDays      int
	TopTraderThreshold float64
	HistoryLimit       int
	DetailLimit        int
	BalanceSlotPolicy  string
	WalletPacing       time.Duration

	// Temporal configuration
	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string
	ScanInterval      time.Duration
}

// Load reads configuration from environment variables and validates all fields.
// Every problem is collected so a single run reports all of them.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.MetricsAddr = getEnvOrDefault("METRICS_ADDR", ":9091")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.NATSURL = os.Getenv("NATS_URL")

	cfg.RPCURLs = parseList("SOLANA_RPC_URLS", DefaultRPCURL)
	cfg.ReferenceAddress = getEnvOrDefault("SOLANA_REFERENCE_ADDRESS", DefaultReferenceAddress)

	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	var err error
	cfg.RPCTimeout, err = parseDuration("RPC_TIMEOUT", "10s")
	collect(err)
	cfg.MaxRetries, err = parseInt("MAX_RETRIES", 5)
	collect(err)
	cfg.InitialDelay, err = parseDuration("INITIAL_DELAY", "1s")
	collect(err)
	cfg.BackoffMultiplier, err = parseFloat("BACKOFF_MULTIPLIER", 1.0)
	collect(err)
	cfg.MaxBackoff, err = parseDuration("MAX_BACKOFF", "30s")
	collect(err)
	cfg.RequestsPerSecond, err = parseFloat("RPC_REQUESTS_PER_SECOND", 0)
	collect(err)
	cfg.TxCacheSize, err = parseInt("TX_CACHE_SIZE", 4096)
	collect(err)

	cfg.NumSignatures, err = parseInt("NUM_SIGNATURES", 10)
	collect(err)
	cfg.MinTransactions, err = parseInt("MIN_TRANSACTIONS", 1)
	collect(err)
	cfg.MaxWallets, err = parseInt("MAX_IDENTIFIED_WALLETS", 10)
	collect(err)
	cfg.SelectionPolicy = getEnvOrDefault("SELECTION_POLICY", SelectionDiscovery)
	cfg.IdentifyConcurrency, err = parseInt("IDENTIFY_CONCURRENCY", 8)
	collect(err)

	cfg.TimeFrameDays, err = parseInt("TIME_FRAME_DAYS", 30)
	collect(err)
	cfg.TopTraderThreshold, err = parseFloat("TOP_TRADER_THRESHOLD", 0.1)
	collect(err)
	cfg.HistoryLimit, err = parseInt("HISTORY_LIMIT", 1000)
	collect(err)
	cfg.DetailLimit, err = parseInt("DETAIL_LIMIT", 0)
	collect(err)
	cfg.BalanceSlotPolicy = getEnvOrDefault("BALANCE_SLOT_POLICY", BalanceSlotFirst)
	cfg.WalletPacing, err = parseDuration("WALLET_PACING", "200ms")
	collect(err)

	cfg.TemporalHost = getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")
	cfg.TemporalNamespace = getEnvOrDefault("TEMPORAL_NAMESPACE", "default")
	cfg.TemporalTaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", "traderscan-scans")
	cfg.ScanInterval, err = parseDuration("SCAN_INTERVAL", "1h")
	collect(err)

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if len(c.RPCURLs) == 0 {
		errs = append(errs, fmt.Errorf("at least one RPC URL is required"))
	}
	for _, u := range c.RPCURLs {
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			errs = append(errs, fmt.Errorf("RPC URL %q must be http(s)", u))
		}
	}

	if c.ReferenceAddress == "" {
		errs = append(errs, fmt.Errorf("ReferenceAddress is required"))
	}

	if c.RPCTimeout <= 0 {
		errs = append(errs, fmt.Errorf("RPCTimeout must be positive"))
	}

	if c.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("MaxRetries must be at least 1"))
	}

	if c.InitialDelay < 0 {
		errs = append(errs, fmt.Errorf("InitialDelay cannot be negative"))
	}

	if c.BackoffMultiplier < 1 {
		errs = append(errs, fmt.Errorf("BackoffMultiplier must be at least 1.0"))
	}

	if c.MaxBackoff < c.InitialDelay {
		errs = append(errs, fmt.Errorf("MaxBackoff (%v) cannot be less than InitialDelay (%v)", c.MaxBackoff, c.InitialDelay))
	}

	if c.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("RequestsPerSecond cannot be negative"))
	}

	if c.TxCacheSize < 0 {
		errs = append(errs, fmt.Errorf("TxCacheSize cannot be negative"))
	}

	if c.NumSignatures < 1 {
		errs = append(errs, fmt.Errorf("NumSignatures must be at least 1"))
	}

	if c.MinTransactions < 1 {
		errs = append(errs, fmt.Errorf("MinTransactions must be at least 1"))
	}

	if c.MaxWallets < 0 {
		errs = append(errs, fmt.Errorf("MaxWallets cannot be negative"))
	}

	if c.SelectionPolicy != SelectionDiscovery && c.SelectionPolicy != SelectionTally {
		errs = append(errs, fmt.Errorf("SelectionPolicy must be %q or %q, got %q", SelectionDiscovery, SelectionTally, c.SelectionPolicy))
	}

	if c.IdentifyConcurrency < 1 {
		errs = append(errs, fmt.Errorf("IdentifyConcurrency must be at least 1"))
	}

	if c.TimeFrameDays < 1 {
		errs = append(errs, fmt.Errorf("TimeFrameDays must be at least 1"))
	}

	if c.HistoryLimit < 1 || c.HistoryLimit > 1000 {
		errs = append(errs, fmt.Errorf("HistoryLimit must be between 1 and 1000"))
	}

	if c.DetailLimit < 0 {
		errs = append(errs, fmt.Errorf("DetailLimit cannot be negative"))
	}

	if c.BalanceSlotPolicy != BalanceSlotFirst && c.BalanceSlotPolicy != BalanceSlotWallet {
		errs = append(errs, fmt.Errorf("BalanceSlotPolicy must be %q or %q, got %q", BalanceSlotFirst, BalanceSlotWallet, c.BalanceSlotPolicy))
	}

	if c.WalletPacing < 0 {
		errs = append(errs, fmt.Errorf("WalletPacing cannot be negative"))
	}

	if c.ScanInterval < time.Minute {
		errs = append(errs, fmt.Errorf("ScanInterval must be at least 1 minute"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// IdentifyParams returns the configured identification settings.
func (c *Config) IdentifyParams() wallet.IdentifyParams {
	return wallet.IdentifyParams{
		NumSignatures:   c.NumSignatures,
		MinTransactions: c.MinTransactions,
		MaxWallets:      c.MaxWallets,
		Policy:          wallet.SelectionPolicy(c.SelectionPolicy),
	}
}

// AnalyzeParams returns the configured analysis settings.
func (c *Config) AnalyzeParams() wallet.AnalyzeParams {
	return wallet.AnalyzeParams{
		TimeFrameDays:      c.TimeFrameDays,
		TopTraderThreshold: c.TopTraderThreshold,
		HistoryLimit:       c.HistoryLimit,
		DetailLimit:        c.DetailLimit,
		SlotPolicy:         wallet.BalanceSlot(c.BalanceSlotPolicy),
		Pacing:             c.WalletPacing,
	}
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}

func parseFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q: %w", key, value, err)
	}
	return result, nil
}

// parseList splits a comma-separated variable, dropping blanks.
func parseList(key, defaultValue string) []string {
	var out []string
	for _, part := range strings.Split(getEnvOrDefault(key, defaultValue), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
