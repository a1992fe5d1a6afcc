package solana

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
)

var errUnsupportedAccountKey = errors.New("unsupported account key encoding")

// isAbsent reports whether a result payload carries no data.
func isAbsent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// parseAccountKey normalizes the two account key encodings.
func parseAccountKey(raw json.RawMessage) (AccountKey, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return AccountKey{}, fmt.Errorf("%w: empty string", errUnsupportedAccountKey)
		}
		return AccountKey{Pubkey: s, Encoding: AccountKeyString}, nil
	}

	var obj struct {
		Pubkey *string `json:"pubkey"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Pubkey != nil && *obj.Pubkey != "" {
		return AccountKey{Pubkey: *obj.Pubkey, Encoding: AccountKeyObject}, nil
	}

	return AccountKey{}, fmt.Errorf("%w: %s", errUnsupportedAccountKey, truncate(string(raw), 64))
}

// listingBalances picks up balance arrays when a provider embeds them in listing entries.
type listingBalances struct {
	PreBalances  []uint64 `json:"preBalances"`
	PostBalances []uint64 `json:"postBalances"`
}

// parseSignatureEntry converts one getSignaturesForAddress entry to a SignatureInfo.
func parseSignatureEntry(raw json.RawMessage) (SignatureInfo, error) {
	var sig rpc.TransactionSignature
	if err := json.Unmarshal(raw, &sig); err != nil {
		return SignatureInfo{}, fmt.Errorf("decode signature entry: %w", err)
	}

	info := SignatureInfo{
		Signature:          sig.Signature.String(),
		Slot:               sig.Slot,
		Err:                sig.Err,
		Memo:               sig.Memo,
		ConfirmationStatus: string(sig.ConfirmationStatus),
	}
	if sig.BlockTime != nil {
		t := sig.BlockTime.Time().UTC()
		info.BlockTime = &t
	}

	var balances listingBalances
	if err := json.Unmarshal(raw, &balances); err == nil {
		info.PreBalances = balances.PreBalances
		info.PostBalances = balances.PostBalances
	}

	return info, nil
}

// transactionResult mirrors the parts of a "json"-encoded getTransaction result we read.
type transactionResult struct {
	Slot      uint64 `json:"slot"`
	BlockTime *int64 `json:"blockTime"`
	Meta      *struct {
		Err             any      `json:"err"`
		Fee             uint64   `json:"fee"`
		PreBalances     []uint64 `json:"preBalances"`
		PostBalances    []uint64 `json:"postBalances"`
		LoadedAddresses *struct {
			Writable []string `json:"writable"`
			Readonly []string `json:"readonly"`
		} `json:"loadedAddresses"`
	} `json:"meta"`
	Transaction *struct {
		Message *struct {
			AccountKeys []json.RawMessage `json:"accountKeys"`
		} `json:"message"`
	} `json:"transaction"`
}

// parseTransactionDetail decodes a getTransaction result. Account keys in an
// unknown shape are skipped and reported through the returned count.
func parseTransactionDetail(signature string, raw json.RawMessage) (*TransactionDetail, int, error) {
	var res transactionResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, 0, fmt.Errorf("decode transaction %s: %w", signature, err)
	}
	if res.Transaction == nil || res.Transaction.Message == nil {
		return nil, 0, fmt.Errorf("transaction %s: missing message", signature)
	}

	detail := &TransactionDetail{
		Signature: signature,
		Slot:      res.Slot,
	}
	if res.BlockTime != nil {
		t := time.Unix(*res.BlockTime, 0).UTC()
		detail.BlockTime = &t
	}

	skipped := 0
	for _, rawKey := range res.Transaction.Message.AccountKeys {
		key, err := parseAccountKey(rawKey)
		if err != nil {
			skipped++
			continue
		}
		detail.AccountKeys = append(detail.AccountKeys, key)
	}

	if res.Meta != nil {
		detail.Err = res.Meta.Err
		detail.Fee = res.Meta.Fee
		detail.PreBalances = res.Meta.PreBalances
		detail.PostBalances = res.Meta.PostBalances
		if la := res.Meta.LoadedAddresses; la != nil {
			detail.LoadedAddresses = append(detail.LoadedAddresses, la.Writable...)
			detail.LoadedAddresses = append(detail.LoadedAddresses, la.Readonly...)
		}
	}

	return detail, skipped, nil
}

// parseBalance accepts both {"context":…,"value":N} and a bare number.
func parseBalance(raw json.RawMessage) (uint64, error) {
	var withContext rpc.GetBalanceResult
	if err := json.Unmarshal(raw, &withContext); err == nil {
		return withContext.Value, nil
	}
	var bare uint64
	if err := json.Unmarshal(raw, &bare); err != nil {
		return 0, fmt.Errorf("decode balance: %w", err)
	}
	return bare, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
