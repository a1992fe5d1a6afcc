package solana

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/brojonat/traderscan/service/metrics"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
)

// ErrEndpointsExhausted is returned when every attempt across the pool failed.
var ErrEndpointsExhausted = errors.New("rpc endpoints exhausted")

// ClientConfig controls retry and backoff behavior of the resilient client.
type ClientConfig struct {
	// MaxRetries is the per-endpoint attempt budget; a call gets MaxRetries × pool size attempts.
	MaxRetries int
	// Timeout bounds each individual attempt.
	Timeout time.Duration
	// InitialDelay is the pause after the first failure. Zero disables sleeping.
	InitialDelay time.Duration
	// Multiplier grows the delay per failure. 1.0 keeps it fixed.
	Multiplier float64
	// MaxDelay caps the grown delay.
	MaxDelay time.Duration
}

// DefaultClientConfig returns a fixed one-second backoff with five attempts per endpoint.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		MaxRetries:   5,
		Timeout:      10 * time.Second,
		InitialDelay: time.Second,
		Multiplier:   1.0,
		MaxDelay:     30 * time.Second,
	}
}

// Client executes JSON-RPC calls against an EndpointPool, rotating endpoints on
// transport failures and rate limits. Protocol errors are returned untouched.
// A Client is safe for concurrent use; all callers share the pool's cursor.
type Client struct {
	pool      *EndpointPool
	transport Transport
	cfg       ClientConfig
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewClient creates a new resilient client.
// If metrics is nil, no metrics will be recorded.
func NewClient(pool *EndpointPool, transport Transport, cfg ClientConfig, m *metrics.Metrics, logger *slog.Logger) *Client {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 1
	}
	return &Client{
		pool:      pool,
		transport: transport,
		cfg:       cfg,
		logger:    logger,
		metrics:   m,
	}
}

// Pool exposes the client's endpoint pool for diagnostics.
func (c *Client) Pool() *EndpointPool {
	return c.pool
}

// NewRequest builds a JSON-RPC 2.0 request envelope with a fixed id.
func NewRequest(method string, params ...any) *jsonrpc.RPCRequest {
	return &jsonrpc.RPCRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	}
}

// Call sends req to the current endpoint, failing over until a usable response
// arrives or the attempt budget is spent. Once ctx is done no new attempt is
// started, but an attempt already in flight runs to its own timeout.
func (c *Client) Call(ctx context.Context, req *jsonrpc.RPCRequest) (*jsonrpc.RPCResponse, error) {
	limit := c.cfg.MaxRetries * c.pool.Size()

	for attempt := 1; attempt <= limit; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		endpoint := c.pool.Current()
		resp, err := c.attempt(ctx, endpoint, req)

		var reason string
		switch {
		case err != nil:
			reason = "transport"
			var httpErr *jsonrpc.HTTPError
			if errors.As(err, &httpErr) && httpErr.Code == 429 {
				reason = "rate_limit"
			}
		case IsRateLimitError(resp.Error):
			reason = "rate_limit"
			err = resp.Error
		default:
			return resp, nil
		}

		next, rotated := c.pool.AdvanceFrom(endpoint)
		c.logger.WarnContext(ctx, "rpc attempt failed, rotating endpoint",
			"method", req.Method,
			"endpoint", endpoint.Label,
			"next_endpoint", next.Label,
			"attempt", attempt,
			"limit", limit,
			"reason", reason,
			"rotated", rotated,
			"error", err,
		)
		if c.metrics != nil {
			if reason == "rate_limit" {
				c.metrics.RecordRateLimitHit(endpoint.Label)
			}
			c.metrics.RecordRPCRetry(req.Method, reason)
			if rotated {
				c.metrics.RecordEndpointRotation(endpoint.Label)
			}
		}

		if attempt == limit {
			break
		}
		if err := sleepContext(ctx, c.backoff(attempt)); err != nil {
			return nil, err
		}
	}

	c.logger.ErrorContext(ctx, "rpc endpoints exhausted",
		"method", req.Method,
		"attempts", limit,
		"pool_retries", c.pool.Retries(),
	)
	if c.metrics != nil {
		c.metrics.RecordEndpointsExhausted(req.Method)
	}
	return nil, fmt.Errorf("%s after %d attempts: %w", req.Method, limit, ErrEndpointsExhausted)
}

func (c *Client) attempt(ctx context.Context, endpoint Endpoint, req *jsonrpc.RPCRequest) (*jsonrpc.RPCResponse, error) {
	callCtx := context.WithoutCancel(ctx)
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(callCtx, c.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := c.transport.Send(callCtx, endpoint, req)
	if err == nil && resp == nil {
		err = errors.New("empty rpc response")
	}

	status := "success"
	switch {
	case err != nil:
		status = "error"
	case resp.Error != nil:
		status = "rpc_error"
	}
	if c.metrics != nil {
		c.metrics.RecordRPCCall(req.Method, status, endpoint.Label, time.Since(start).Seconds())
	}
	c.logger.DebugContext(ctx, "rpc attempt",
		"method", req.Method,
		"endpoint", endpoint.Label,
		"status", status,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return resp, err
}

// backoff returns the delay after the n-th consecutive failure (n starts at 1).
func (c *Client) backoff(n int) time.Duration {
	if c.cfg.InitialDelay <= 0 {
		return 0
	}
	d := float64(c.cfg.InitialDelay) * math.Pow(c.cfg.Multiplier, float64(n-1))
	if c.cfg.MaxDelay > 0 && d > float64(c.cfg.MaxDelay) {
		return c.cfg.MaxDelay
	}
	return time.Duration(d)
}

// IsRateLimitError reports whether a protocol error signals throttling.
func IsRateLimitError(rpcErr *jsonrpc.RPCError) bool {
	if rpcErr == nil {
		return false
	}
	msg := strings.ToLower(rpcErr.Message)
	return strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
