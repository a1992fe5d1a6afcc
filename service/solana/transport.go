package solana

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"golang.org/x/time/rate"
)

// Transport sends one JSON-RPC request to one endpoint.
// Implementations return an error for anything that prevented a decoded
// response envelope (connection failures, timeouts, non-JSON bodies);
// protocol-level errors come back inside the response.
type Transport interface {
	Send(ctx context.Context, endpoint Endpoint, req *jsonrpc.RPCRequest) (*jsonrpc.RPCResponse, error)
}

// HTTPTransport is the production Transport built on the solana-go JSON-RPC client.
// For premium RPC endpoints that require API keys, include the key in the URL:
// - Helius: https://mainnet.helius-rpc.com/?api-key=YOUR-KEY
// - QuickNode: https://YOUR-ENDPOINT.quiknode.pro/YOUR-KEY/
type HTTPTransport struct {
	httpClient *http.Client

	mu      sync.Mutex
	clients map[string]jsonrpc.RPCClient
}

// NewHTTPTransport creates a transport. When requestsPerSecond is positive every
// endpoint host gets its own token bucket of that rate.
func NewHTTPTransport(requestsPerSecond float64) *HTTPTransport {
	var rt http.RoundTripper = http.DefaultTransport
	if requestsPerSecond > 0 {
		rt = &RateLimitedTransport{
			Base:  http.DefaultTransport,
			Rate:  rate.Limit(requestsPerSecond),
			Burst: max(1, int(requestsPerSecond)),
		}
	}
	return &HTTPTransport{
		httpClient: &http.Client{Transport: rt},
		clients:    make(map[string]jsonrpc.RPCClient),
	}
}

// Send implements Transport.
func (t *HTTPTransport) Send(ctx context.Context, endpoint Endpoint, req *jsonrpc.RPCRequest) (*jsonrpc.RPCResponse, error) {
	resp, err := t.client(endpoint.URL).CallRaw(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s on %s: %w", req.Method, endpoint.Label, err)
	}
	return resp, nil
}

// Close releases idle connections held by the shared HTTP client.
func (t *HTTPTransport) Close() {
	t.httpClient.CloseIdleConnections()
}

func (t *HTTPTransport) client(url string) jsonrpc.RPCClient {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.clients[url]
	if !ok {
		c = jsonrpc.NewClientWithOpts(url, &jsonrpc.RPCClientOpts{
			HTTPClient: t.httpClient,
		})
		t.clients[url] = c
	}
	return c
}

// RateLimitedTransport throttles outgoing requests per destination host.
type RateLimitedTransport struct {
	Base  http.RoundTripper
	Rate  rate.Limit
	Burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// RoundTrip waits for the host's limiter before delegating to the base transport.
func (t *RateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter(req.URL.Host).Wait(req.Context()); err != nil {
		return nil, err
	}
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}

func (t *RateLimitedTransport) limiter(host string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.limiters == nil {
		t.limiters = make(map[string]*rate.Limiter)
	}
	l, ok := t.limiters[host]
	if !ok {
		l = rate.NewLimiter(t.Rate, max(1, t.Burst))
		t.limiters[host] = l
	}
	return l
}
