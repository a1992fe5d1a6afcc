package wallet

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/brojonat/traderscan/service/solana"
)

func lamports(v uint64) *uint64 {
	return &v
}

func TestProfit(t *testing.T) {
	tests := []struct {
		name    string
		current *uint64
		change  int64
		want    float64
	}{
		{name: "gain over initial", current: lamports(150), change: 50, want: 0.5},
		{name: "loss over initial", current: lamports(50), change: -50, want: -0.5},
		{name: "no change", current: lamports(1000), change: 0, want: 0},
		{name: "zero initial", current: lamports(50), change: 50, want: 0},
		{name: "negative initial", current: lamports(10), change: 20, want: 0},
		{name: "unknown balance", current: nil, change: 20, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Profit(tt.current, tt.change), 1e-12)
		})
	}
}

func TestIsTopTrader(t *testing.T) {
	assert.False(t, IsTopTrader(0.10, 0.10), "threshold itself is not a top trader")
	assert.True(t, IsTopTrader(0.1000001, 0.10))
	assert.False(t, IsTopTrader(-0.5, 0.10))
}

func TestFilterWindow(t *testing.T) {
	start := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	sigs := []solana.SignatureInfo{
		{Signature: "before", BlockTime: at(start.Add(-time.Hour))},
		{Signature: "boundary", BlockTime: at(start)},
		{Signature: "pending"},
		{Signature: "inside", BlockTime: at(start.Add(time.Second))},
	}

	got := FilterWindow(sigs, start)
	if assert.Len(t, got, 1) {
		assert.Equal(t, "inside", got[0].Signature)
	}
	assert.NotNil(t, FilterWindow(nil, start))
}

func TestLastActivity(t *testing.T) {
	base := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	sigs := []solana.SignatureInfo{
		{BlockTime: at(base.Add(2 * time.Hour))},
		{BlockTime: at(base.Add(5 * time.Hour))},
		{},
		{BlockTime: at(base)},
	}

	got := LastActivity(sigs)
	if assert.NotNil(t, got) {
		assert.Equal(t, base.Add(5*time.Hour), *got)
	}
	assert.Nil(t, LastActivity([]solana.SignatureInfo{{}}))
}
