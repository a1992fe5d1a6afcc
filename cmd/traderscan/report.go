package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/itchyny/gojq"
	"github.com/shopspring/decimal"

	"github.com/brojonat/traderscan/service/solana"
	"github.com/brojonat/traderscan/service/wallet"
)

var separator = strings.Repeat("-", 50)

// formatPercent renders a ratio such as 0.1234 as "12.34%".
func formatPercent(ratio float64) string {
	return decimal.NewFromFloat(ratio).Mul(decimal.NewFromInt(100)).StringFixed(2) + "%"
}

func formatActivity(t *time.Time) string {
	if t == nil {
		return "unknown"
	}
	return t.UTC().Format(time.RFC3339)
}

func formatBalance(lamports *uint64) string {
	if lamports == nil {
		return "unknown"
	}
	return solana.LamportsToSOL(*lamports).String() + " SOL"
}

// printWallets writes the per-wallet section of a report.
func printWallets(w io.Writer, wallets []wallet.WalletInfo, days int) {
	for _, info := range wallets {
		fmt.Fprintf(w, "Address: %s\n", info.Address)
		fmt.Fprintf(w, "Transactions in the last %d days: %d\n", days, info.TransactionCount)
		fmt.Fprintf(w, "Last activity: %s\n", formatActivity(info.LastActivity))
		fmt.Fprintf(w, "Balance: %s\n", formatBalance(info.CurrentBalance))
		fmt.Fprintf(w, "Balance change: %s SOL\n", solana.DeltaToSOL(info.BalanceChange))
		fmt.Fprintf(w, "Profit: %s\n", formatPercent(info.Profit))
		fmt.Fprintln(w, separator)
	}
}

// printTopTraders writes the top trader section of a report.
func printTopTraders(w io.Writer, traders []wallet.WalletInfo, params wallet.AnalyzeParams) {
	fmt.Fprintf(w, "\nTop Traders (>%s profit in %d days):\n", formatPercent(params.TopTraderThreshold), params.TimeFrameDays)
	if len(traders) == 0 {
		fmt.Fprintln(w, "none")
		return
	}
	for _, info := range traders {
		fmt.Fprintf(w, "Address: %s\n", info.Address)
		fmt.Fprintf(w, "Profit: %s\n", formatPercent(info.Profit))
		fmt.Fprintln(w, separator)
	}
}

// printAnalysis writes the analysis and top trader sections.
func printAnalysis(w io.Writer, analysis *wallet.AnalysisResult, params wallet.AnalyzeParams) {
	fmt.Fprintln(w, "\nAnalysis Results:")
	if len(analysis.ActiveWallets) == 0 {
		fmt.Fprintln(w, "no active wallets in the window")
	}
	printWallets(w, analysis.ActiveWallets, params.TimeFrameDays)
	printTopTraders(w, analysis.TopTraders, params)

	if len(analysis.Inactive) > 0 {
		fmt.Fprintf(w, "\nInactive: %d wallets\n", len(analysis.Inactive))
	}
	for _, f := range analysis.Failed {
		fmt.Fprintf(w, "Failed: %s (%s)\n", f.Address, f.Error)
	}
}

// printRun writes a full report for a local run.
func printRun(w io.Writer, run *wallet.Run) {
	fmt.Fprintf(w, "Run: %s\n", run.ID)
	if run.Identified != nil {
		fmt.Fprintf(w, "Found active wallets: %d\n", len(run.Identified.Wallets))
	}
	if run.Analysis != nil {
		printAnalysis(w, run.Analysis, run.Analyze)
	}
	for _, msg := range run.SinkErrors {
		fmt.Fprintf(w, "Sink error: %s\n", msg)
	}
}

// writeSnapshot writes v as indented JSON to path.
func writeSnapshot(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// compileFilters parses and compiles jq expressions.
func compileFilters(filters []string) ([]*gojq.Code, error) {
	codes := make([]*gojq.Code, len(filters))
	for i, filter := range filters {
		query, err := gojq.Parse(filter)
		if err != nil {
			return nil, fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
		}
		codes[i], err = gojq.Compile(query)
		if err != nil {
			return nil, fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
		}
	}
	return codes, nil
}

// matchFilters reports whether every filter yields a truthy first result
// for v. v is converted to plain JSON values first.
func matchFilters(codes []*gojq.Code, v interface{}) (bool, error) {
	if len(codes) == 0 {
		return true, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return false, err
	}
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return false, err
	}

	for _, code := range codes {
		iter := code.Run(doc)
		result, ok := iter.Next()
		if !ok {
			return false, nil
		}
		if err, isErr := result.(error); isErr {
			return false, err
		}
		if !isTruthy(result) {
			return false, nil
		}
	}
	return true, nil
}

// filterSlice keeps the items of in matching every filter.
func filterSlice[T any](codes []*gojq.Code, in []T) ([]T, error) {
	if len(codes) == 0 {
		return in, nil
	}
	out := make([]T, 0, len(in))
	for _, item := range in {
		ok, err := matchFilters(codes, item)
		if err != nil {
			return nil, fmt.Errorf("jq filter failed: %w", err)
		}
		if ok {
			out = append(out, item)
		}
	}
	return out, nil
}

// isTruthy checks if a jq result value is truthy.
// In jq, false and null are falsy, everything else is truthy.
func isTruthy(v interface{}) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return true
}
