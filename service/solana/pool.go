package solana

import (
	"errors"
	"net/url"
	"strings"
	"sync"
)

// ErrNoEndpoints is returned when a pool is built from an empty endpoint list.
var ErrNoEndpoints = errors.New("no RPC endpoints configured")

// Endpoint is one candidate RPC service in the failover pool.
type Endpoint struct {
	URL string
	// Label identifies the endpoint in logs and metrics without leaking API keys.
	Label string
}

// EndpointPool holds an ordered, fixed list of endpoints and the current selection.
// All methods are safe for concurrent use; the cursor and retry counter change
// together under one lock.
type EndpointPool struct {
	endpoints []Endpoint

	mu      sync.Mutex
	cursor  int
	retries uint64
}

// NewEndpointPool builds a pool from raw URLs. The first URL is the initial selection.
func NewEndpointPool(urls []string) (*EndpointPool, error) {
	if len(urls) == 0 {
		return nil, ErrNoEndpoints
	}
	endpoints := make([]Endpoint, 0, len(urls))
	for _, u := range urls {
		endpoints = append(endpoints, Endpoint{URL: u, Label: EndpointLabel(u)})
	}
	return &EndpointPool{endpoints: endpoints}, nil
}

// Current returns the endpoint calls should be sent to.
func (p *EndpointPool) Current() Endpoint {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.endpoints[p.cursor]
}

// Advance rotates to the next endpoint, wrapping around, and returns it.
// Every rotation counts as one retry.
func (p *EndpointPool) Advance() Endpoint {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cursor = (p.cursor + 1) % len(p.endpoints)
	p.retries++
	return p.endpoints[p.cursor]
}

// AdvanceFrom rotates only when the cursor still points at from, so concurrent
// callers failing on the same endpoint rotate once between them. It returns
// the endpoint now current and whether this call rotated.
func (p *EndpointPool) AdvanceFrom(from Endpoint) (Endpoint, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.endpoints[p.cursor] != from {
		return p.endpoints[p.cursor], false
	}
	p.cursor = (p.cursor + 1) % len(p.endpoints)
	p.retries++
	return p.endpoints[p.cursor], true
}

// Retries returns the number of rotations performed over the pool's lifetime.
// It is a diagnostic counter: it is never reset, so unlike the per-call attempt
// budget of Client.Call (MaxRetries × Size) it is not bounded.
func (p *EndpointPool) Retries() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.retries
}

// Size returns the number of endpoints in the pool.
func (p *EndpointPool) Size() int {
	return len(p.endpoints)
}

// Endpoints returns a copy of the configured endpoints in pool order.
func (p *EndpointPool) Endpoints() []Endpoint {
	out := make([]Endpoint, len(p.endpoints))
	copy(out, p.endpoints)
	return out
}

// EndpointLabel maps an RPC URL to a short provider name for metrics labels.
// Premium endpoints carry API keys in the path or query, so the raw URL is never used.
func EndpointLabel(rpcURL string) string {
	parsed, err := url.Parse(rpcURL)
	if err != nil || parsed.Hostname() == "" {
		return "unknown"
	}

	host := parsed.Hostname()
	for _, provider := range []struct{ match, label string }{
		{"helius", "helius"},
		{"quiknode", "quiknode"},
		{"quicknode", "quiknode"},
		{"alchemy", "alchemy"},
		{"triton", "triton"},
		{"rpcpool", "rpcpool"},
		{"mainnet", "mainnet"},
		{"devnet", "devnet"},
		{"testnet", "testnet"},
	} {
		if strings.Contains(host, provider.match) {
			return provider.label
		}
	}

	return host
}
