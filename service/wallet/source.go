// Package wallet discovers recently active wallets and estimates their
// trading profit over a trailing window.
package wallet

import (
	"context"

	"github.com/brojonat/traderscan/service/solana"
)

// Source is the chain read surface the engine depends on.
// *solana.Fetcher and *solana.CachedFetcher satisfy it.
//
// Implementations return (nil, nil) when the endpoint had no data and an
// error only for exhaustion, cancellation or invalid input.
type Source interface {
	RecentSignatures(ctx context.Context, limit int) ([]string, error)
	TransactionDetail(ctx context.Context, signature string) (*solana.TransactionDetail, error)
	AccountSignatures(ctx context.Context, address string, limit int) (*solana.AccountHistory, error)
	Balance(ctx context.Context, address string) (*uint64, error)
}
