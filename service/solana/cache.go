package solana

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/brojonat/traderscan/service/metrics"
)

// CachedFetcher memoizes transaction details by signature. Confirmed
// transactions never change, so entries are never invalidated; absent
// results are not cached so later runs can still find them.
type CachedFetcher struct {
	*Fetcher
	txs     *lru.Cache[string, *TransactionDetail]
	metrics *metrics.Metrics
}

// NewCachedFetcher wraps f with an LRU of the given size.
func NewCachedFetcher(f *Fetcher, size int, m *metrics.Metrics) (*CachedFetcher, error) {
	cache, err := lru.New[string, *TransactionDetail](size)
	if err != nil {
		return nil, fmt.Errorf("create transaction cache: %w", err)
	}
	return &CachedFetcher{Fetcher: f, txs: cache, metrics: m}, nil
}

// TransactionDetail serves from cache when possible.
func (c *CachedFetcher) TransactionDetail(ctx context.Context, signature string) (*TransactionDetail, error) {
	if detail, ok := c.txs.Get(signature); ok {
		if c.metrics != nil {
			c.metrics.RecordTxCacheLookup(true)
		}
		return detail, nil
	}
	if c.metrics != nil {
		c.metrics.RecordTxCacheLookup(false)
	}

	detail, err := c.Fetcher.TransactionDetail(ctx, signature)
	if err != nil || detail == nil {
		return detail, err
	}
	c.txs.Add(signature, detail)
	return detail, nil
}

// Len returns the number of cached transactions.
func (c *CachedFetcher) Len() int {
	return c.txs.Len()
}
