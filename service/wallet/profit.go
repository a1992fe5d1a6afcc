package wallet

import (
	"time"

	"github.com/brojonat/traderscan/service/solana"
)

// FilterWindow keeps signatures whose block time is strictly after windowStart.
// Signatures without a block time are not finalized and are dropped.
func FilterWindow(sigs []solana.SignatureInfo, windowStart time.Time) []solana.SignatureInfo {
	out := make([]solana.SignatureInfo, 0, len(sigs))
	for _, sig := range sigs {
		if sig.BlockTime != nil && sig.BlockTime.After(windowStart) {
			out = append(out, sig)
		}
	}
	return out
}

// LastActivity returns the newest block time among sigs, or nil for none.
func LastActivity(sigs []solana.SignatureInfo) *time.Time {
	var latest *time.Time
	for _, sig := range sigs {
		if sig.BlockTime == nil {
			continue
		}
		if latest == nil || sig.BlockTime.After(*latest) {
			t := *sig.BlockTime
			latest = &t
		}
	}
	return latest
}

// Profit is the balance change relative to the balance at the start of the
// window, change / (current - change). An unknown current balance or a
// non-positive starting balance yields 0.
func Profit(currentBalance *uint64, change int64) float64 {
	var initial int64
	if currentBalance != nil {
		initial = int64(*currentBalance) - change
	}
	if initial <= 0 {
		return 0
	}
	return float64(change) / float64(initial)
}

// IsTopTrader reports whether profit strictly exceeds threshold.
func IsTopTrader(profit, threshold float64) bool {
	return profit > threshold
}
