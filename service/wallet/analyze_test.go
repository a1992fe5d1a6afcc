package wallet

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/traderscan/service/solana"
)

var analyzeNow = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

// traderSource serves wallet "A" with two windowed transactions and one
// older than the window.
func traderSource() *fakeSource {
	return &fakeSource{
		histories: map[string]*solana.AccountHistory{
			"A": {
				Address: "A",
				Signatures: []solana.SignatureInfo{
					{Signature: "a2", BlockTime: at(analyzeNow.Add(-time.Hour))},
					{
						Signature:    "a1",
						BlockTime:    at(analyzeNow.Add(-48 * time.Hour)),
						PreBalances:  []uint64{500},
						PostBalances: []uint64{600},
					},
					{Signature: "a0", BlockTime: at(analyzeNow.Add(-90 * 24 * time.Hour))},
				},
			},
			"B": {
				Address:    "B",
				Signatures: []solana.SignatureInfo{{Signature: "b1"}, {Signature: "b2"}},
			},
		},
		details: map[string]*solana.TransactionDetail{
			"a1": {AccountKeys: keys("X", "A"), PreBalances: []uint64{1000, 100}, PostBalances: []uint64{990, 160}},
			"a2": {AccountKeys: keys("A"), PreBalances: []uint64{160}, PostBalances: []uint64{200}},
		},
		balances: map[string]uint64{"A": 300, "B": 5000},
	}
}

func newTestAnalyzer(src Source, mutate func(*AnalyzeParams)) *Analyzer {
	params := DefaultAnalyzeParams()
	params.Pacing = 0
	if mutate != nil {
		mutate(&params)
	}
	return NewAnalyzer(src, params, nil, testLogger()).WithClock(func() time.Time { return analyzeNow })
}

func TestAnalyzeWallet_FirstSlotFromDetails(t *testing.T) {
	a := newTestAnalyzer(traderSource(), nil)

	res, err := a.Analyze(context.Background(), []string{"A"})
	require.NoError(t, err)
	require.Len(t, res.ActiveWallets, 1)

	info := res.ActiveWallets[0]
	assert.Equal(t, "A", info.Address)
	assert.Equal(t, 2, info.TransactionCount)
	// (990-1000) + (200-160)
	assert.Equal(t, int64(30), info.BalanceChange)
	assert.InDelta(t, 30.0/270.0, info.Profit, 1e-12)
	assert.True(t, info.TopTrader)
	require.NotNil(t, info.CurrentBalance)
	assert.Equal(t, uint64(300), *info.CurrentBalance)
	require.NotNil(t, info.LastActivity)
	assert.Equal(t, analyzeNow.Add(-time.Hour), *info.LastActivity)

	assert.Equal(t, analyzeNow.Add(-30*24*time.Hour), res.WindowStart)
	assert.Len(t, res.TopTraders, 1)
}

func TestAnalyzeWallet_WalletSlot(t *testing.T) {
	a := newTestAnalyzer(traderSource(), func(p *AnalyzeParams) { p.SlotPolicy = SlotWallet })

	info, err := a.AnalyzeWallet(context.Background(), "A", analyzeNow.Add(-30*24*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, info)
	// (160-100) + (200-160)
	assert.Equal(t, int64(100), info.BalanceChange)
	assert.InDelta(t, 0.5, info.Profit, 1e-12)
}

func TestAnalyzeWallet_ListingBalancesWhenDetailMissing(t *testing.T) {
	src := traderSource()
	src.details = nil
	a := newTestAnalyzer(src, nil)

	info, err := a.AnalyzeWallet(context.Background(), "A", analyzeNow.Add(-30*24*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, info)
	// a1 from listing (+100), a2 has no balances
	assert.Equal(t, int64(100), info.BalanceChange)
	assert.InDelta(t, 0.5, info.Profit, 1e-12)
	assert.Equal(t, 2, src.detailCalls)
}

func TestAnalyzeWallet_DefaultSumsEveryWindowedTransaction(t *testing.T) {
	const n = 150
	sigs := make([]solana.SignatureInfo, 0, n)
	details := make(map[string]*solana.TransactionDetail, n)
	for i := 0; i < n; i++ {
		sig := fmt.Sprintf("w%d", i)
		sigs = append(sigs, solana.SignatureInfo{Signature: sig, BlockTime: at(analyzeNow.Add(-time.Duration(i+1) * time.Minute))})
		details[sig] = &solana.TransactionDetail{AccountKeys: keys("W"), PreBalances: []uint64{10}, PostBalances: []uint64{11}}
	}
	src := &fakeSource{
		histories: map[string]*solana.AccountHistory{"W": {Address: "W", Signatures: sigs}},
		details:   details,
		balances:  map[string]uint64{"W": 1000},
	}
	a := newTestAnalyzer(src, nil)

	info, err := a.AnalyzeWallet(context.Background(), "W", analyzeNow.Add(-30*24*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, n, info.TransactionCount)
	assert.Equal(t, int64(n), info.BalanceChange)
	assert.InDelta(t, 150.0/850.0, info.Profit, 1e-12)
	assert.Equal(t, n, src.detailCalls)
}

func TestAnalyzeWallet_DetailLimitFallsBackToListing(t *testing.T) {
	src := traderSource()
	a := newTestAnalyzer(src, func(p *AnalyzeParams) { p.DetailLimit = 1 })

	info, err := a.AnalyzeWallet(context.Background(), "A", analyzeNow.Add(-30*24*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, info)
	// a2 from detail (+40), a1 from listing (+100)
	assert.Equal(t, int64(140), info.BalanceChange)
	assert.Equal(t, 1, src.detailCalls)
}

func TestAnalyzeWallet_UnknownBalance(t *testing.T) {
	src := traderSource()
	src.balanceErr = map[string]error{"A": errors.New("getBalance: all endpoints exhausted")}
	a := newTestAnalyzer(src, nil)

	info, err := a.AnalyzeWallet(context.Background(), "A", analyzeNow.Add(-30*24*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Nil(t, info.CurrentBalance)
	assert.Equal(t, 0.0, info.Profit)
	assert.False(t, info.TopTrader)
}

func TestAnalyze_NoBlockTimeIsInactive(t *testing.T) {
	src := traderSource()
	a := newTestAnalyzer(src, nil)

	res, err := a.Analyze(context.Background(), []string{"B"})
	require.NoError(t, err)
	assert.Empty(t, res.ActiveWallets)
	assert.Equal(t, []string{"B"}, res.Inactive)
	assert.Zero(t, src.balanceCalls)
}

func TestAnalyze_FailuresDoNotStopBatch(t *testing.T) {
	src := traderSource()
	src.historyErr = map[string]error{"C": errors.New("getSignaturesForAddress: all endpoints exhausted")}
	src.panicOn = "D"
	a := newTestAnalyzer(src, nil)

	res, err := a.Analyze(context.Background(), []string{"C", "D", "B", "E", "A"})
	require.NoError(t, err)

	require.Len(t, res.Failed, 2)
	assert.Equal(t, "C", res.Failed[0].Address)
	assert.Equal(t, "D", res.Failed[1].Address)
	assert.Contains(t, res.Failed[1].Error, "panic")
	assert.Equal(t, []string{"B", "E"}, res.Inactive)
	require.Len(t, res.ActiveWallets, 1)
	assert.Equal(t, "A", res.ActiveWallets[0].Address)
}

func TestAnalyze_KeepsInputOrder(t *testing.T) {
	src := traderSource()
	src.histories["Z"] = src.histories["A"]
	src.balances["Z"] = 1_000_000
	a := newTestAnalyzer(src, nil)

	res, err := a.Analyze(context.Background(), []string{"Z", "A"})
	require.NoError(t, err)
	require.Len(t, res.ActiveWallets, 2)
	assert.Equal(t, "Z", res.ActiveWallets[0].Address)
	assert.Equal(t, "A", res.ActiveWallets[1].Address)
	assert.False(t, res.ActiveWallets[0].TopTrader)
	require.Len(t, res.TopTraders, 1)
	assert.Equal(t, "A", res.TopTraders[0].Address)
}

func TestAnalyze_CancelReturnsPartialResult(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := traderSource()
	src.onHistory = func(address string) {
		if address == "B" {
			cancel()
		}
	}
	a := newTestAnalyzer(src, nil)

	res, err := a.Analyze(ctx, []string{"A", "B", "C"})
	assert.True(t, errors.Is(err, context.Canceled))
	require.NotNil(t, res)
	require.Len(t, res.ActiveWallets, 1)
	assert.Equal(t, "A", res.ActiveWallets[0].Address)
	assert.Empty(t, res.Failed)
}

func TestAnalyze_PacingWaitsAfterEachWallet(t *testing.T) {
	const (
		pacing = 150 * time.Millisecond
		work   = 200 * time.Millisecond
	)
	src := traderSource()
	src.detailWait = map[string]time.Duration{"a1": work}

	var mu sync.Mutex
	started := map[string]time.Time{}
	src.onHistory = func(address string) {
		mu.Lock()
		started[address] = time.Now()
		mu.Unlock()
	}
	a := newTestAnalyzer(src, func(p *AnalyzeParams) { p.Pacing = pacing })

	res, err := a.Analyze(context.Background(), []string{"A", "B"})
	finished := time.Now()
	require.NoError(t, err)
	require.Len(t, res.ActiveWallets, 1)

	mu.Lock()
	defer mu.Unlock()
	// A spends at least work fetching details, then the pacing follows it.
	assert.GreaterOrEqual(t, started["B"].Sub(started["A"]), work+pacing)
	// No pause after the last wallet.
	assert.Less(t, finished.Sub(started["B"]), pacing)
}

func TestAnalyze_CancelDuringPacing(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	a := newTestAnalyzer(traderSource(), func(p *AnalyzeParams) { p.Pacing = time.Hour })

	start := time.Now()
	res, err := a.Analyze(ctx, []string{"A", "B"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
	require.NotNil(t, res)
	require.Len(t, res.ActiveWallets, 1)
	assert.Empty(t, res.Inactive)
}

func TestParseBalanceSlot(t *testing.T) {
	s, err := ParseBalanceSlot("")
	require.NoError(t, err)
	assert.Equal(t, SlotFirst, s)

	s, err = ParseBalanceSlot("wallet")
	require.NoError(t, err)
	assert.Equal(t, SlotWallet, s)

	_, err = ParseBalanceSlot("last")
	assert.Error(t, err)
}
