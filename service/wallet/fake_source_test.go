package wallet

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/brojonat/traderscan/service/solana"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSource is a behavior-focused Source: tests set what it returns.
type fakeSource struct {
	mu sync.Mutex

	recent     []string
	recentErr  error
	details    map[string]*solana.TransactionDetail
	detailErrs map[string]error
	detailWait map[string]time.Duration
	histories  map[string]*solana.AccountHistory
	historyErr map[string]error
	balances   map[string]uint64
	balanceErr map[string]error
	panicOn    string
	onHistory  func(address string)

	detailCalls  int
	balanceCalls int
}

func (f *fakeSource) RecentSignatures(ctx context.Context, limit int) ([]string, error) {
	if f.recentErr != nil {
		return nil, f.recentErr
	}
	if limit < len(f.recent) {
		return f.recent[:limit], nil
	}
	return f.recent, nil
}

func (f *fakeSource) TransactionDetail(ctx context.Context, signature string) (*solana.TransactionDetail, error) {
	f.mu.Lock()
	f.detailCalls++
	wait := f.detailWait[signature]
	f.mu.Unlock()

	if wait > 0 {
		time.Sleep(wait)
	}
	if err := f.detailErrs[signature]; err != nil {
		return nil, err
	}
	return f.details[signature], nil
}

func (f *fakeSource) AccountSignatures(ctx context.Context, address string, limit int) (*solana.AccountHistory, error) {
	if f.onHistory != nil {
		f.onHistory(address)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if address == f.panicOn {
		panic("unexpected response shape")
	}
	if err := f.historyErr[address]; err != nil {
		return nil, err
	}
	return f.histories[address], nil
}

func (f *fakeSource) Balance(ctx context.Context, address string) (*uint64, error) {
	f.mu.Lock()
	f.balanceCalls++
	f.mu.Unlock()
	if err := f.balanceErr[address]; err != nil {
		return nil, err
	}
	b, ok := f.balances[address]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func keys(addrs ...string) []solana.AccountKey {
	out := make([]solana.AccountKey, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, solana.AccountKey{Pubkey: a, Encoding: solana.AccountKeyString})
	}
	return out
}

func at(t time.Time) *time.Time {
	return &t
}
