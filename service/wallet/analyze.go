package wallet

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/traderscan/service/metrics"
	"github.com/brojonat/traderscan/service/solana"
)

// BalanceSlot picks which balance array index a transaction's change is read from.
type BalanceSlot string

const (
	// SlotFirst reads index 0, the fee payer.
	SlotFirst BalanceSlot = "first"
	// SlotWallet reads the index of the analyzed wallet's own key.
	SlotWallet BalanceSlot = "wallet"
)

// ParseBalanceSlot validates a slot policy name. Empty means SlotFirst.
func ParseBalanceSlot(s string) (BalanceSlot, error) {
	switch BalanceSlot(s) {
	case "", SlotFirst:
		return SlotFirst, nil
	case SlotWallet:
		return SlotWallet, nil
	}
	return "", fmt.Errorf("unknown balance slot policy %q", s)
}

// AnalyzeParams configures the profit engine.
type AnalyzeParams struct {
	TimeFrameDays      int           `json:"time_frame_days"`
	TopTraderThreshold float64       `json:"top_trader_threshold"`
	HistoryLimit       int           `json:"history_limit"`
	DetailLimit        int           `json:"detail_limit"` // windowed transactions fetched in full; 0 fetches all of them
	SlotPolicy         BalanceSlot   `json:"slot_policy"`
	Pacing             time.Duration `json:"pacing"`
}

// DefaultAnalyzeParams returns a 30 day window and a 10% top trader threshold.
func DefaultAnalyzeParams() AnalyzeParams {
	return AnalyzeParams{
		TimeFrameDays:      30,
		TopTraderThreshold: 0.10,
		HistoryLimit:       solana.DefaultHistoryLimit,
		DetailLimit:        0,
		SlotPolicy:         SlotFirst,
		Pacing:             200 * time.Millisecond,
	}
}

// WalletInfo is the engine's per-wallet output. LastActivity is nil when no
// windowed transaction carried a block time; CurrentBalance is nil when the
// balance could not be fetched. Balances are in lamports.
type WalletInfo struct {
	Address          string     `json:"address"`
	TransactionCount int        `json:"transaction_count"`
	LastActivity     *time.Time `json:"last_activity"`
	Profit           float64    `json:"profit"`
	CurrentBalance   *uint64    `json:"current_balance"`
	BalanceChange    int64      `json:"balance_change"`
	TopTrader        bool       `json:"top_trader"`
}

// WalletFailure records a wallet whose analysis failed.
type WalletFailure struct {
	Address string `json:"address"`
	Error   string `json:"error"`
}

// AnalysisResult holds every active wallet in input order and the top trader subset.
type AnalysisResult struct {
	ActiveWallets []WalletInfo    `json:"active_wallets"`
	TopTraders    []WalletInfo    `json:"top_traders"`
	Inactive      []string        `json:"inactive"`
	Failed        []WalletFailure `json:"failed"`
	WindowStart   time.Time       `json:"window_start"`
	AnalyzedAt    time.Time       `json:"analyzed_at"`
}

// Analyzer computes WalletInfo records one wallet at a time.
type Analyzer struct {
	source  Source
	params  AnalyzeParams
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewAnalyzer creates an Analyzer using the wall clock.
func NewAnalyzer(source Source, params AnalyzeParams, m *metrics.Metrics, logger *slog.Logger) *Analyzer {
	if params.HistoryLimit <= 0 {
		params.HistoryLimit = solana.DefaultHistoryLimit
	}
	if params.SlotPolicy == "" {
		params.SlotPolicy = SlotFirst
	}
	return &Analyzer{
		source:  source,
		params:  params,
		now:     time.Now,
		logger:  logger,
		metrics: m,
	}
}

// WithClock replaces the clock used to place the window.
func (a *Analyzer) WithClock(now func() time.Time) *Analyzer {
	a.now = now
	return a
}

// Params returns the analyzer's effective parameters.
func (a *Analyzer) Params() AnalyzeParams {
	return a.params
}

// Analyze processes addresses sequentially in input order. After every wallet
// but the last it waits the configured pacing before starting the next one. A wallet that fails is logged and recorded
// in Failed; only cancellation of ctx stops the batch, in which case the
// partial result is returned together with the context error.
func (a *Analyzer) Analyze(ctx context.Context, addresses []string) (*AnalysisResult, error) {
	now := a.now()
	windowStart := now.Add(-time.Duration(a.params.TimeFrameDays) * 24 * time.Hour)

	res := &AnalysisResult{
		ActiveWallets: []WalletInfo{},
		TopTraders:    []WalletInfo{},
		Inactive:      []string{},
		Failed:        []WalletFailure{},
		WindowStart:   windowStart,
		AnalyzedAt:    now,
	}

	a.logger.InfoContext(ctx, "analyzing wallets",
		"count", len(addresses),
		"time_frame_days", a.params.TimeFrameDays,
		"window_start", windowStart,
	)

	for i, address := range addresses {
		if i > 0 && a.params.Pacing > 0 {
			if err := pause(ctx, a.params.Pacing); err != nil {
				return res, err
			}
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}

		info, err := a.analyzeSafely(ctx, address, windowStart)
		switch {
		case err != nil && ctx.Err() != nil:
			return res, ctx.Err()
		case err != nil:
			a.logger.WarnContext(ctx, "wallet analysis failed", "address", address, "error", err)
			res.Failed = append(res.Failed, WalletFailure{Address: address, Error: err.Error()})
			a.record("failed", nil)
		case info == nil:
			a.logger.DebugContext(ctx, "wallet inactive in window", "address", address)
			res.Inactive = append(res.Inactive, address)
			a.record("inactive", nil)
		default:
			res.ActiveWallets = append(res.ActiveWallets, *info)
			if info.TopTrader {
				res.TopTraders = append(res.TopTraders, *info)
			}
			a.record("active", info)
			a.logger.DebugContext(ctx, "wallet analyzed",
				"address", address,
				"transactions", info.TransactionCount,
				"profit", info.Profit,
				"balance_change", info.BalanceChange,
				"top_trader", info.TopTrader,
			)
		}
	}

	a.logger.InfoContext(ctx, "analysis complete",
		"active", len(res.ActiveWallets),
		"top_traders", len(res.TopTraders),
		"inactive", len(res.Inactive),
		"failed", len(res.Failed),
	)
	return res, nil
}

// AnalyzeWallet computes one wallet's record for the window starting at
// windowStart. It returns (nil, nil) when the wallet has no windowed activity.
func (a *Analyzer) AnalyzeWallet(ctx context.Context, address string, windowStart time.Time) (*WalletInfo, error) {
	history, err := a.source.AccountSignatures(ctx, address, a.params.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}
	if history == nil {
		return nil, nil
	}

	windowed := FilterWindow(history.Signatures, windowStart)
	if len(windowed) == 0 {
		return nil, nil
	}

	balance, err := a.source.Balance(ctx, address)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		a.logger.WarnContext(ctx, "balance unavailable, profit baseline unknown", "address", address, "error", err)
		balance = nil
	}

	change, err := a.balanceChange(ctx, address, windowed)
	if err != nil {
		return nil, err
	}

	profit := Profit(balance, change)
	return &WalletInfo{
		Address:          address,
		TransactionCount: len(windowed),
		LastActivity:     LastActivity(windowed),
		Profit:           profit,
		CurrentBalance:   balance,
		BalanceChange:    change,
		TopTrader:        IsTopTrader(profit, a.params.TopTraderThreshold),
	}, nil
}

// balanceChange sums per-transaction lamport deltas over every windowed
// transaction. Details are fetched for all of them, or for the first
// DetailLimit when it is positive; the rest, and any whose detail is
// unavailable, fall back to balances embedded in the listing entry.
func (a *Analyzer) balanceChange(ctx context.Context, address string, windowed []solana.SignatureInfo) (int64, error) {
	var change int64
	for i, sig := range windowed {
		if a.params.DetailLimit == 0 || i < a.params.DetailLimit {
			detail, err := a.source.TransactionDetail(ctx, sig.Signature)
			if err != nil && ctx.Err() != nil {
				return 0, ctx.Err()
			}
			if err != nil {
				a.logger.DebugContext(ctx, "transaction detail unavailable", "signature", sig.Signature, "error", err)
			}
			if detail != nil {
				change += detail.BalanceDelta(a.slotIndex(detail, address))
				continue
			}
		}
		change += sig.BalanceDelta(0)
	}
	return change, nil
}

func (a *Analyzer) slotIndex(detail *solana.TransactionDetail, address string) int {
	if a.params.SlotPolicy == SlotWallet {
		return detail.AccountIndex(address)
	}
	return 0
}

// analyzeSafely converts a panic while analyzing one wallet into an error.
func (a *Analyzer) analyzeSafely(ctx context.Context, address string, windowStart time.Time) (info *WalletInfo, err error) {
	defer func() {
		if r := recover(); r != nil {
			info = nil
			err = fmt.Errorf("panic analyzing wallet: %v", r)
		}
	}()
	return a.AnalyzeWallet(ctx, address, windowStart)
}

func (a *Analyzer) record(status string, info *WalletInfo) {
	if a.metrics == nil {
		return
	}
	a.metrics.RecordWalletAnalyzed(status)
	if info != nil {
		a.metrics.RecordWalletProfit(info.Profit, info.TopTrader)
	}
}

// pause waits for d, returning early with the context error if ctx is done first.
func pause(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
