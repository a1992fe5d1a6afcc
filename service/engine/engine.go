// Package engine assembles the wallet engine and its optional sinks from
// configuration so every binary wires them the same way.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brojonat/traderscan/service/config"
	"github.com/brojonat/traderscan/service/db"
	"github.com/brojonat/traderscan/service/metrics"
	natspkg "github.com/brojonat/traderscan/service/nats"
	"github.com/brojonat/traderscan/service/solana"
	"github.com/brojonat/traderscan/service/wallet"
)

// Engine is the RPC stack plus the identification and analysis stages.
type Engine struct {
	Pool       *solana.EndpointPool
	Transport  *solana.HTTPTransport
	Source     wallet.Source
	Identifier *wallet.Identifier
	Analyzer   *wallet.Analyzer

	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New builds an Engine from cfg. No network calls are made.
func New(cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (*Engine, error) {
	pool, err := solana.NewEndpointPool(cfg.RPCURLs)
	if err != nil {
		return nil, fmt.Errorf("failed to build endpoint pool: %w", err)
	}

	transport := solana.NewHTTPTransport(cfg.RequestsPerSecond)
	rpc := solana.NewClient(pool, transport, ClientConfig(cfg), m, logger)
	fetcher := solana.NewFetcher(rpc, cfg.ReferenceAddress, m, logger)

	var source wallet.Source = fetcher
	if cfg.TxCacheSize > 0 {
		cached, err := solana.NewCachedFetcher(fetcher, cfg.TxCacheSize, m)
		if err != nil {
			return nil, err
		}
		source = cached
	}

	logger.Info("initialized solana RPC client",
		"total_endpoints", pool.Size(),
		"reference", cfg.ReferenceAddress,
		"tx_cache_size", cfg.TxCacheSize,
	)

	return &Engine{
		Pool:       pool,
		Transport:  transport,
		Source:     source,
		Identifier: wallet.NewIdentifier(source, cfg.IdentifyConcurrency, m, logger),
		Analyzer:   wallet.NewAnalyzer(source, cfg.AnalyzeParams(), m, logger),
		metrics:    m,
		logger:     logger,
	}, nil
}

// ClientConfig maps the retry settings of cfg onto the RPC client.
func ClientConfig(cfg *config.Config) solana.ClientConfig {
	return solana.ClientConfig{
		MaxRetries:   cfg.MaxRetries,
		Timeout:      cfg.RPCTimeout,
		InitialDelay: cfg.InitialDelay,
		Multiplier:   cfg.BackoffMultiplier,
		MaxDelay:     cfg.MaxBackoff,
	}
}

// Pipeline returns a pipeline over the engine's stages.
func (e *Engine) Pipeline(sinks ...wallet.Sink) *wallet.Pipeline {
	return wallet.NewPipeline(e.Identifier, e.Analyzer, e.metrics, e.logger, sinks...)
}

// Close releases idle RPC connections.
func (e *Engine) Close() {
	e.Transport.Close()
}

// Sinks holds the persistence targets enabled by configuration.
type Sinks struct {
	Store     *db.Store
	Publisher *natspkg.JetStreamPublisher

	pool *pgxpool.Pool
}

// OpenSinks connects to Postgres when DATABASE_URL is set and to NATS when
// NATS_URL is set. Either may be absent.
func OpenSinks(ctx context.Context, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (*Sinks, error) {
	s := &Sinks{}

	if cfg.DatabaseURL != "" {
		store, pool, err := OpenStore(ctx, cfg.DatabaseURL, m)
		if err != nil {
			return nil, err
		}
		s.Store, s.pool = store, pool
		logger.Info("connected to database")
	} else {
		logger.Warn("DATABASE_URL not set, runs will not be stored")
	}

	if cfg.NATSURL != "" {
		publisher, err := natspkg.NewPublisher(cfg.NATSURL, m, logger)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.Publisher = publisher
		logger.Info("connected to NATS", "url", cfg.NATSURL)
	} else {
		logger.Warn("NATS_URL not set, runs will not be published")
	}

	return s, nil
}

// OpenStore connects to Postgres and applies the schema. The caller closes
// the returned pool.
func OpenStore(ctx context.Context, databaseURL string, m *metrics.Metrics) (*db.Store, *pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}
	store := db.NewStore(pool, m)
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return store, pool, nil
}

// All returns the enabled sinks.
func (s *Sinks) All(logger *slog.Logger) []wallet.Sink {
	var sinks []wallet.Sink
	if s.Store != nil {
		sinks = append(sinks, s.Store)
	}
	if s.Publisher != nil {
		sinks = append(sinks, natspkg.NewSink(s.Publisher, logger))
	}
	return sinks
}

// Close disconnects every open sink.
func (s *Sinks) Close() error {
	var errs []error
	if s.Publisher != nil {
		errs = append(errs, s.Publisher.Close())
	}
	if s.pool != nil {
		s.pool.Close()
	}
	return errors.Join(errs...)
}
