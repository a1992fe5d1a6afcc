package wallet

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/traderscan/service/solana"
)

func TestIdentify_MinTransactionsFilter(t *testing.T) {
	src := &fakeSource{
		recent: []string{"s1", "s2"},
		details: map[string]*solana.TransactionDetail{
			"s1": {Signature: "s1", AccountKeys: keys("A", "B")},
			"s2": {Signature: "s2", AccountKeys: keys("A")},
		},
	}
	id := NewIdentifier(src, 4, nil, testLogger())

	res, err := id.Identify(context.Background(), IdentifyParams{NumSignatures: 2, MinTransactions: 2, MaxWallets: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, res.Wallets)
	assert.Equal(t, map[string]int{"A": 2}, res.Counts)
	assert.Equal(t, 1, res.Candidates)
	assert.Equal(t, 2, res.SignaturesSeen)
}

func TestIdentify_DiscoveryOrderAndCap(t *testing.T) {
	src := &fakeSource{
		recent: []string{"s1", "s2"},
		details: map[string]*solana.TransactionDetail{
			"s1": {AccountKeys: keys("A", "B", "C")},
			"s2": {AccountKeys: keys("D", "A", "E")},
		},
	}
	id := NewIdentifier(src, 2, nil, testLogger())

	res, err := id.Identify(context.Background(), IdentifyParams{NumSignatures: 2, MinTransactions: 1, MaxWallets: 4})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C", "D"}, res.Wallets)
	assert.Equal(t, 5, res.Candidates)

	res, err = id.Identify(context.Background(), IdentifyParams{NumSignatures: 2, MinTransactions: 1, MaxWallets: 0})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C", "D", "E"}, res.Wallets)
}

func TestIdentify_TallyPolicy(t *testing.T) {
	src := &fakeSource{
		recent: []string{"s1", "s2", "s3"},
		details: map[string]*solana.TransactionDetail{
			"s1": {AccountKeys: keys("A", "B")},
			"s2": {AccountKeys: keys("C", "B")},
			"s3": {AccountKeys: keys("C", "B", "D")},
		},
	}
	id := NewIdentifier(src, 3, nil, testLogger())

	res, err := id.Identify(context.Background(), IdentifyParams{NumSignatures: 3, MinTransactions: 1, MaxWallets: 3, Policy: SelectTally})
	require.NoError(t, err)
	// B=3, C=2, then A and D tie at 1 and keep discovery order.
	assert.Equal(t, []string{"B", "C", "A"}, res.Wallets)
}

func TestIdentify_SkipsMissingAndFailedDetails(t *testing.T) {
	src := &fakeSource{
		recent: []string{"s1", "s2", "s3"},
		details: map[string]*solana.TransactionDetail{
			"s1": {AccountKeys: keys("A")},
		},
		detailErrs: map[string]error{
			"s3": fmt.Errorf("getTransaction: %w", solana.ErrEndpointsExhausted),
		},
	}
	id := NewIdentifier(src, 1, nil, testLogger())

	res, err := id.Identify(context.Background(), IdentifyParams{NumSignatures: 3, MinTransactions: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, res.Wallets)
	assert.Equal(t, 2, res.SignaturesSkipped)
}

func TestIdentify_ExhaustionYieldsEmptyList(t *testing.T) {
	src := &fakeSource{recentErr: fmt.Errorf("getSignaturesForAddress: %w", solana.ErrEndpointsExhausted)}
	id := NewIdentifier(src, 4, nil, testLogger())

	res, err := id.Identify(context.Background(), DefaultIdentifyParams())
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.NotNil(t, res.Wallets)
	assert.Empty(t, res.Wallets)
}

func TestIdentify_NoSignatures(t *testing.T) {
	id := NewIdentifier(&fakeSource{}, 4, nil, testLogger())

	res, err := id.Identify(context.Background(), DefaultIdentifyParams())
	require.NoError(t, err)
	assert.Equal(t, []string{}, res.Wallets)
}

func TestIdentify_Cancelled(t *testing.T) {
	src := &fakeSource{
		recent:  []string{"s1"},
		details: map[string]*solana.TransactionDetail{"s1": {AccountKeys: keys("A")}},
	}
	id := NewIdentifier(src, 1, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := id.Identify(ctx, DefaultIdentifyParams())
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestIdentify_ConcurrentFetchKeepsSignatureOrder(t *testing.T) {
	src := &fakeSource{
		details:    map[string]*solana.TransactionDetail{},
		detailWait: map[string]time.Duration{},
	}
	var want []string
	for i := 0; i < 12; i++ {
		sig := fmt.Sprintf("s%02d", i)
		addr := fmt.Sprintf("W%02d", i)
		src.recent = append(src.recent, sig)
		src.details[sig] = &solana.TransactionDetail{AccountKeys: keys(addr)}
		// Earlier signatures finish last.
		src.detailWait[sig] = time.Duration(12-i) * time.Millisecond
		want = append(want, addr)
	}
	id := NewIdentifier(src, 6, nil, testLogger())

	res, err := id.Identify(context.Background(), IdentifyParams{NumSignatures: 12, MinTransactions: 1})
	require.NoError(t, err)
	assert.Equal(t, want, res.Wallets)
	assert.Equal(t, 12, src.detailCalls)
}

func TestTally(t *testing.T) {
	tally := NewTally()
	for _, a := range []string{"x", "y", "x", "z", "x", "y"} {
		tally.Add(a)
	}
	assert.Equal(t, 3, tally.Len())
	assert.Equal(t, 3, tally.Count("x"))
	assert.Equal(t, 0, tally.Count("missing"))
	assert.Equal(t, []string{"x", "y"}, tally.AtLeast(2))
	assert.Equal(t, []string{"x", "y", "z"}, tally.AtLeast(1))
}

func TestParseSelectionPolicy(t *testing.T) {
	p, err := ParseSelectionPolicy("")
	require.NoError(t, err)
	assert.Equal(t, SelectDiscovery, p)

	p, err = ParseSelectionPolicy("tally")
	require.NoError(t, err)
	assert.Equal(t, SelectTally, p)

	_, err = ParseSelectionPolicy("random")
	assert.Error(t, err)
}
