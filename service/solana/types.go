package solana

import (
	"encoding/json"
	"time"
)

// AccountKeyEncoding records which wire shape an account key arrived in.
type AccountKeyEncoding int

const (
	// AccountKeyString is a bare base58 address ("json" encoding).
	AccountKeyString AccountKeyEncoding = iota
	// AccountKeyObject is an object carrying a pubkey field ("jsonParsed" encoding).
	AccountKeyObject
)

// AccountKey is a normalized account key from a transaction message.
type AccountKey struct {
	Pubkey   string
	Encoding AccountKeyEncoding
}

// SignatureInfo is one entry of a getSignaturesForAddress listing.
// This is our domain model, independent of the RPC response format.
type SignatureInfo struct {
	Signature          string
	Slot               uint64
	BlockTime          *time.Time // nil until the block is finalized
	Err                any
	Memo               *string
	ConfirmationStatus string

	// Some providers embed balance arrays in listing entries; most do not.
	PreBalances  []uint64
	PostBalances []uint64
}

// AccountHistory is an address's recent signature listing.
type AccountHistory struct {
	Address    string
	Signatures []SignatureInfo
	// Raw holds each listing entry exactly as received, in the same order.
	Raw []json.RawMessage
}

// TransactionDetail is the subset of a getTransaction result the wallet engine uses.
// PreBalances[i] and PostBalances[i] refer to the i-th key of AllKeys; either
// array may be shorter than the key list.
type TransactionDetail struct {
	Signature       string
	Slot            uint64
	BlockTime       *time.Time
	AccountKeys     []AccountKey
	LoadedAddresses []string
	PreBalances     []uint64
	PostBalances    []uint64
	Fee             uint64
	Err             any
}

// AllKeys returns the static message keys followed by address-table lookups,
// the order the balance arrays are indexed in.
func (t *TransactionDetail) AllKeys() []string {
	keys := make([]string, 0, len(t.AccountKeys)+len(t.LoadedAddresses))
	for _, k := range t.AccountKeys {
		keys = append(keys, k.Pubkey)
	}
	return append(keys, t.LoadedAddresses...)
}

// AccountIndex returns the balance index of address, or -1 when absent.
func (t *TransactionDetail) AccountIndex(address string) int {
	for i, key := range t.AllKeys() {
		if key == address {
			return i
		}
	}
	return -1
}

// BalanceDelta returns post minus pre lamports at index i, or 0 when either
// array does not reach i.
func (t *TransactionDetail) BalanceDelta(i int) int64 {
	return balanceDelta(t.PreBalances, t.PostBalances, i)
}

// BalanceDelta returns the listing entry's post minus pre lamports at index i.
func (s SignatureInfo) BalanceDelta(i int) int64 {
	return balanceDelta(s.PreBalances, s.PostBalances, i)
}

func balanceDelta(pre, post []uint64, i int) int64 {
	if i < 0 || i >= len(pre) || i >= len(post) {
		return 0
	}
	return int64(post[i]) - int64(pre[i])
}
