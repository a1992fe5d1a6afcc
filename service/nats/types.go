package nats

import (
	"time"

	"github.com/brojonat/traderscan/service/wallet"
)

// WalletEvent is published to "wallets.analyzed.{address}" for every active
// wallet of a run, and additionally to "wallets.top.{address}" for top traders.
type WalletEvent struct {
	RunID   string `json:"run_id"`
	Address string `json:"address"`

	TransactionCount int        `json:"transaction_count"`
	LastActivity     *time.Time `json:"last_activity,omitempty"`

	// Balances in lamports
	CurrentBalance *uint64 `json:"current_balance,omitempty"`
	BalanceChange  int64   `json:"balance_change"`

	Profit    float64 `json:"profit"`
	TopTrader bool    `json:"top_trader"`

	WindowStart time.Time `json:"window_start"`
	AnalyzedAt  time.Time `json:"analyzed_at"`
	PublishedAt time.Time `json:"published_at"`
}

// RunEvent summarizes a finished run and is published to "wallets.runs".
type RunEvent struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Identified int `json:"identified"`
	Active     int `json:"active"`
	Inactive   int `json:"inactive"`
	Failed     int `json:"failed"`

	TopTraders []string `json:"top_traders"`

	PublishedAt time.Time `json:"published_at"`
}

// WalletEventsFromRun converts a run's active wallets into events, in analysis order.
func WalletEventsFromRun(run *wallet.Run) []*WalletEvent {
	if run == nil || run.Analysis == nil {
		return nil
	}
	now := time.Now().UTC()
	events := make([]*WalletEvent, 0, len(run.Analysis.ActiveWallets))
	for _, info := range run.Analysis.ActiveWallets {
		events = append(events, &WalletEvent{
			RunID:            run.ID,
			Address:          info.Address,
			TransactionCount: info.TransactionCount,
			LastActivity:     info.LastActivity,
			CurrentBalance:   info.CurrentBalance,
			BalanceChange:    info.BalanceChange,
			Profit:           info.Profit,
			TopTrader:        info.TopTrader,
			WindowStart:      run.Analysis.WindowStart,
			AnalyzedAt:       run.Analysis.AnalyzedAt,
			PublishedAt:      now,
		})
	}
	return events
}

// RunEventFromRun builds the summary event for run.
func RunEventFromRun(run *wallet.Run) *RunEvent {
	event := &RunEvent{
		RunID:       run.ID,
		StartedAt:   run.StartedAt,
		FinishedAt:  run.FinishedAt,
		TopTraders:  []string{},
		PublishedAt: time.Now().UTC(),
	}
	if run.Identified != nil {
		event.Identified = len(run.Identified.Wallets)
	}
	if run.Analysis != nil {
		event.Active = len(run.Analysis.ActiveWallets)
		event.Inactive = len(run.Analysis.Inactive)
		event.Failed = len(run.Analysis.Failed)
		for _, info := range run.Analysis.TopTraders {
			event.TopTraders = append(event.TopTraders, info.Address)
		}
	}
	return event
}
