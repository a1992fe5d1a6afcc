package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/traderscan/service/wallet"
)

func u64(v uint64) *uint64 { return &v }

func sampleRun(id string, started time.Time) *wallet.Run {
	last := started.Add(-time.Hour)
	return &wallet.Run{
		ID:         id,
		StartedAt:  started,
		FinishedAt: started.Add(time.Minute),
		Identify:   wallet.IdentifyParams{NumSignatures: 100, MinTransactions: 2, MaxWallets: 10, Policy: wallet.SelectDiscovery},
		Analyze:    wallet.DefaultAnalyzeParams(),
		Identified: &wallet.IdentifyResult{
			Wallets:        []string{"walletA", "walletB", "walletC", "walletD"},
			Counts:         map[string]int{"walletA": 5, "walletB": 3, "walletC": 2, "walletD": 2},
			Candidates:     4,
			SignaturesSeen: 100,
		},
		Analysis: &wallet.AnalysisResult{
			ActiveWallets: []wallet.WalletInfo{
				{Address: "walletA", TransactionCount: 4, LastActivity: &last, Profit: 0.5, CurrentBalance: u64(150), BalanceChange: 50, TopTrader: true},
				{Address: "walletB", TransactionCount: 1, LastActivity: &last, Profit: 0.01, CurrentBalance: u64(1000), BalanceChange: 10},
			},
			TopTraders: []wallet.WalletInfo{
				{Address: "walletA", TransactionCount: 4, LastActivity: &last, Profit: 0.5, CurrentBalance: u64(150), BalanceChange: 50, TopTrader: true},
			},
			Inactive:    []string{"walletC"},
			Failed:      []wallet.WalletFailure{{Address: "walletD", Error: "fetch history: all endpoints exhausted"}},
			WindowStart: started.Add(-30 * 24 * time.Hour),
			AnalyzedAt:  started,
		},
	}
}

func TestRecordRunAndQuery(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	run := sampleRun("run-1", now)
	require.NoError(t, store.RecordRun(ctx, run))

	t.Run("get run", func(t *testing.T) {
		got, err := store.GetRun(ctx, "run-1")
		require.NoError(t, err)
		assert.Equal(t, "run-1", got.ID)
		assert.WithinDuration(t, now, got.StartedAt, time.Microsecond)
		require.NotNil(t, got.FinishedAt)
		assert.Equal(t, 100, got.SignaturesSeen)
		assert.Equal(t, 4, got.Identified)
		assert.Equal(t, 2, got.Active)
		assert.Equal(t, 1, got.TopTraders)
		assert.Equal(t, 1, got.Inactive)
		assert.Equal(t, 1, got.Failed)
		assert.Equal(t, run.Identify, got.IdentifyParams)
		assert.Equal(t, run.Analyze, got.AnalyzeParams)
	})

	t.Run("list run wallets in order", func(t *testing.T) {
		records, err := store.ListRunWallets(ctx, "run-1", false)
		require.NoError(t, err)
		require.Len(t, records, 4)

		assert.Equal(t, "walletA", records[0].Address)
		assert.Equal(t, StatusActive, records[0].Status)
		require.NotNil(t, records[0].CurrentBalance)
		assert.Equal(t, uint64(150), *records[0].CurrentBalance)
		assert.Equal(t, int64(50), records[0].BalanceChange)
		assert.True(t, records[0].TopTrader)

		assert.Equal(t, StatusInactive, records[2].Status)
		assert.Nil(t, records[2].CurrentBalance)

		assert.Equal(t, StatusFailed, records[3].Status)
		require.NotNil(t, records[3].Error)
		assert.Contains(t, *records[3].Error, "exhausted")
	})

	t.Run("top traders only", func(t *testing.T) {
		records, err := store.ListRunWallets(ctx, "run-1", true)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "walletA", records[0].Address)
	})

	t.Run("unknown run", func(t *testing.T) {
		_, err := store.GetRun(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = store.ListRunWallets(ctx, "missing", false)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("recording again replaces the run", func(t *testing.T) {
		again := sampleRun("run-1", now)
		again.Analysis.Failed = nil
		require.NoError(t, store.RecordRun(ctx, again))

		records, err := store.ListRunWallets(ctx, "run-1", false)
		require.NoError(t, err)
		assert.Len(t, records, 3)
	})
}

func TestListRunsNewestFirst(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	require.NoError(t, store.RecordRun(ctx, sampleRun("older", now.Add(-2*time.Hour))))
	require.NoError(t, store.RecordRun(ctx, sampleRun("newer", now)))

	runs, err := store.ListRuns(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "newer", runs[0].ID)
	assert.Equal(t, "older", runs[1].ID)

	runs, err = store.ListRuns(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "older", runs[0].ID)
}

func TestGetLatestWalletInfo(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	first := sampleRun("first", now.Add(-24*time.Hour))
	second := sampleRun("second", now)
	second.Analysis.ActiveWallets[0].Profit = 0.8
	require.NoError(t, store.RecordRun(ctx, first))
	require.NoError(t, store.RecordRun(ctx, second))

	rec, err := store.GetLatestWalletInfo(ctx, "walletA")
	require.NoError(t, err)
	assert.Equal(t, "second", rec.RunID)
	assert.InDelta(t, 0.8, rec.Profit, 1e-9)

	_, err = store.GetLatestWalletInfo(ctx, "walletC")
	assert.ErrorIs(t, err, ErrNotFound, "inactive wallets have no analysis to report")
}

func TestDeleteRunsOlderThan(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	require.NoError(t, store.RecordRun(ctx, sampleRun("stale", now.Add(-72*time.Hour))))
	require.NoError(t, store.RecordRun(ctx, sampleRun("fresh", now)))

	n, err := store.DeleteRunsOlderThan(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = store.GetRun(ctx, "stale")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWalletRecords(t *testing.T) {
	now := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	records := walletRecords(sampleRun("run", now))
	require.Len(t, records, 4)

	positions := map[string]int{}
	for _, r := range records {
		positions[r.Address] = r.Position
		assert.Equal(t, "run", r.RunID)
		assert.Equal(t, now, r.AnalyzedAt)
	}
	assert.Equal(t, map[string]int{"walletA": 0, "walletB": 1, "walletC": 2, "walletD": 3}, positions)

	assert.Nil(t, walletRecords(&wallet.Run{ID: "empty"}))
}
