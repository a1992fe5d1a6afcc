package wallet

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/brojonat/traderscan/service/metrics"
	"github.com/brojonat/traderscan/service/solana"
)

// SelectionPolicy decides which qualifying wallets survive the MaxWallets cap.
type SelectionPolicy string

const (
	// SelectDiscovery keeps the first wallets in the order they were first seen.
	SelectDiscovery SelectionPolicy = "discovery"
	// SelectTally keeps the wallets seen in the most transactions; ties keep discovery order.
	SelectTally SelectionPolicy = "tally"
)

// ParseSelectionPolicy validates a policy name. Empty means SelectDiscovery.
func ParseSelectionPolicy(s string) (SelectionPolicy, error) {
	switch SelectionPolicy(s) {
	case "", SelectDiscovery:
		return SelectDiscovery, nil
	case SelectTally:
		return SelectTally, nil
	}
	return "", fmt.Errorf("unknown selection policy %q", s)
}

// IdentifyParams configures one identification pass.
type IdentifyParams struct {
	NumSignatures   int             `json:"num_signatures"`
	MinTransactions int             `json:"min_transactions"`
	MaxWallets      int             `json:"max_wallets"` // 0 keeps every qualifying wallet
	Policy          SelectionPolicy `json:"policy"`
}

// DefaultIdentifyParams returns ten signatures, a threshold of one and a cap of ten.
func DefaultIdentifyParams() IdentifyParams {
	return IdentifyParams{
		NumSignatures:   10,
		MinTransactions: 1,
		MaxWallets:      10,
		Policy:          SelectDiscovery,
	}
}

// IdentifyResult is the outcome of one identification pass.
type IdentifyResult struct {
	Wallets           []string       `json:"wallets"`
	Counts            map[string]int `json:"counts"`
	Candidates        int            `json:"candidates"`
	SignaturesSeen    int            `json:"signatures_seen"`
	SignaturesSkipped int            `json:"signatures_skipped"`
}

// Tally counts how many transactions each address appeared in and remembers
// the order addresses were first seen. It is owned by a single goroutine.
type Tally struct {
	counts map[string]int
	order  []string
}

// NewTally returns an empty tally.
func NewTally() *Tally {
	return &Tally{counts: make(map[string]int)}
}

// Add counts one more transaction for address.
func (t *Tally) Add(address string) {
	if _, seen := t.counts[address]; !seen {
		t.order = append(t.order, address)
	}
	t.counts[address]++
}

// Count returns how many transactions address appeared in.
func (t *Tally) Count(address string) int {
	return t.counts[address]
}

// Len returns the number of distinct addresses.
func (t *Tally) Len() int {
	return len(t.order)
}

// AtLeast returns addresses with a count of at least n, in discovery order.
func (t *Tally) AtLeast(n int) []string {
	out := make([]string, 0, len(t.order))
	for _, addr := range t.order {
		if t.counts[addr] >= n {
			out = append(out, addr)
		}
	}
	return out
}

// Identifier turns a batch of recent signatures into candidate wallets.
type Identifier struct {
	source      Source
	concurrency int
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// NewIdentifier creates an Identifier that looks up at most concurrency
// transactions at once.
func NewIdentifier(source Source, concurrency int, m *metrics.Metrics, logger *slog.Logger) *Identifier {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Identifier{
		source:      source,
		concurrency: concurrency,
		logger:      logger,
		metrics:     m,
	}
}

// Identify fetches recent signatures, tallies the account keys of each
// transaction, and returns the addresses meeting p.MinTransactions.
//
// Unreachable endpoints produce an empty result rather than an error; only
// cancellation of ctx is returned as an error.
func (i *Identifier) Identify(ctx context.Context, p IdentifyParams) (*IdentifyResult, error) {
	if p.MinTransactions < 1 {
		p.MinTransactions = 1
	}

	i.logger.InfoContext(ctx, "identifying active wallets",
		"num_signatures", p.NumSignatures,
		"min_transactions", p.MinTransactions,
		"max_wallets", p.MaxWallets,
		"policy", p.Policy,
	)

	sigs, err := i.source.RecentSignatures(ctx, p.NumSignatures)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		i.logger.WarnContext(ctx, "could not list recent signatures, no wallets identified", "error", err)
		return &IdentifyResult{Wallets: []string{}, Counts: map[string]int{}}, nil
	}

	details, err := i.fetchDetails(ctx, sigs)
	if err != nil {
		return nil, err
	}

	tally := NewTally()
	skipped := 0
	for _, detail := range details {
		if detail == nil {
			skipped++
			continue
		}
		for _, key := range detail.AccountKeys {
			tally.Add(key.Pubkey)
		}
	}

	candidates := tally.AtLeast(p.MinTransactions)
	selected := selectWallets(candidates, tally, p.Policy, p.MaxWallets)

	counts := make(map[string]int, len(selected))
	for _, addr := range selected {
		counts[addr] = tally.Count(addr)
	}

	if i.metrics != nil {
		i.metrics.RecordWalletsIdentified(len(selected))
	}
	i.logger.InfoContext(ctx, "identified active wallets",
		"signatures", len(sigs),
		"skipped", skipped,
		"distinct_addresses", tally.Len(),
		"candidates", len(candidates),
		"selected", len(selected),
	)

	return &IdentifyResult{
		Wallets:           selected,
		Counts:            counts,
		Candidates:        len(candidates),
		SignaturesSeen:    len(sigs),
		SignaturesSkipped: skipped,
	}, nil
}

// fetchDetails looks up every signature concurrently. Each worker writes only
// its own slot, so the merged order matches the signature order.
func (i *Identifier) fetchDetails(ctx context.Context, sigs []string) ([]*solana.TransactionDetail, error) {
	details := make([]*solana.TransactionDetail, len(sigs))

	var g errgroup.Group
	g.SetLimit(i.concurrency)
	for idx, sig := range sigs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			detail, err := i.source.TransactionDetail(ctx, sig)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				i.logger.WarnContext(ctx, "skipping signature", "signature", sig, "error", err)
				if i.metrics != nil {
					i.metrics.RecordSignatureSkipped("error")
				}
				return nil
			}
			if detail == nil {
				i.logger.DebugContext(ctx, "no transaction detail", "signature", sig)
				if i.metrics != nil {
					i.metrics.RecordSignatureSkipped("absent")
				}
				return nil
			}
			details[idx] = detail
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return details, nil
}

func selectWallets(candidates []string, tally *Tally, policy SelectionPolicy, limit int) []string {
	selected := append([]string(nil), candidates...)
	if policy == SelectTally {
		sort.SliceStable(selected, func(a, b int) bool {
			return tally.Count(selected[a]) > tally.Count(selected[b])
		})
	}
	if limit > 0 && len(selected) > limit {
		selected = selected[:limit]
	}
	if selected == nil {
		selected = []string{}
	}
	return selected
}
