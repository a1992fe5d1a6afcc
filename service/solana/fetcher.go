package solana

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/brojonat/traderscan/service/metrics"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
)

// DefaultHistoryLimit is the most signatures getSignaturesForAddress returns in one page.
const DefaultHistoryLimit = 1000

// methodNotFound is the JSON-RPC code for an unsupported method.
const methodNotFound = -32601

// ErrInvalidAddress is returned for addresses that are not valid base58 public keys.
var ErrInvalidAddress = errors.New("invalid account address")

// Caller executes a single logical RPC call. *Client satisfies it.
type Caller interface {
	Call(ctx context.Context, req *jsonrpc.RPCRequest) (*jsonrpc.RPCResponse, error)
}

// Fetcher builds method-specific requests and types their results.
// It never retries; failover belongs to the Caller. A nil result with a nil
// error means the endpoint had no data, which includes protocol errors.
type Fetcher struct {
	rpc       Caller
	reference string
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewFetcher creates a Fetcher. An empty referenceAddress falls back to the vote program.
func NewFetcher(rpc Caller, referenceAddress string, m *metrics.Metrics, logger *slog.Logger) *Fetcher {
	if referenceAddress == "" {
		referenceAddress = solana.VoteProgramID.String()
	}
	return &Fetcher{
		rpc:       rpc,
		reference: referenceAddress,
		logger:    logger,
		metrics:   m,
	}
}

// RecentSignatures lists up to limit of the newest signatures touching the reference address.
func (f *Fetcher) RecentSignatures(ctx context.Context, limit int) ([]string, error) {
	raw, err := f.result(ctx, NewRequest("getSignaturesForAddress", f.reference, map[string]any{"limit": limit}))
	if err != nil || raw == nil {
		return []string{}, err
	}

	infos, _, err := f.decodeListing(ctx, raw)
	if err != nil {
		f.logger.WarnContext(ctx, "failed to decode recent signatures", "error", err)
		return []string{}, nil
	}

	sigs := make([]string, 0, len(infos))
	for _, info := range infos {
		sigs = append(sigs, info.Signature)
	}
	if f.metrics != nil {
		f.metrics.RecordSignaturesPerCall("reference", float64(len(sigs)))
	}
	f.logger.DebugContext(ctx, "fetched recent signatures",
		"reference", f.reference,
		"requested", limit,
		"count", len(sigs),
	)
	return sigs, nil
}

// TransactionDetail fetches one transaction in "json" encoding, accepting
// version 0 transactions.
func (f *Fetcher) TransactionDetail(ctx context.Context, signature string) (*TransactionDetail, error) {
	raw, err := f.result(ctx, NewRequest("getTransaction", signature, map[string]any{
		"encoding":                       "json",
		"maxSupportedTransactionVersion": 0,
	}))
	if err != nil || raw == nil {
		return nil, err
	}

	detail, skipped, err := parseTransactionDetail(signature, raw)
	if err != nil {
		f.logger.WarnContext(ctx, "failed to parse transaction", "signature", signature, "error", err)
		return nil, nil
	}
	if skipped > 0 {
		f.logger.WarnContext(ctx, "skipped account keys in unexpected format",
			"signature", signature,
			"skipped", skipped,
		)
	}
	return detail, nil
}

// AccountSignatures lists up to limit signatures for address, newest first.
// A limit of zero or less uses DefaultHistoryLimit.
func (f *Fetcher) AccountSignatures(ctx context.Context, address string, limit int) (*AccountHistory, error) {
	if err := ValidateAddress(address); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	raw, err := f.result(ctx, NewRequest("getSignaturesForAddress", address, map[string]any{"limit": limit}))
	if err != nil || raw == nil {
		return nil, err
	}

	infos, entries, err := f.decodeListing(ctx, raw)
	if err != nil {
		f.logger.WarnContext(ctx, "failed to decode account signatures", "address", address, "error", err)
		return nil, nil
	}
	if f.metrics != nil {
		f.metrics.RecordSignaturesPerCall("account", float64(len(infos)))
	}

	return &AccountHistory{
		Address:    address,
		Signatures: infos,
		Raw:        entries,
	}, nil
}

// Balance returns the address's lamport balance. Endpoints that do not
// implement getBalance are asked for getBalanceAndContext instead.
func (f *Fetcher) Balance(ctx context.Context, address string) (*uint64, error) {
	if err := ValidateAddress(address); err != nil {
		return nil, err
	}

	resp, err := f.rpc.Call(ctx, NewRequest("getBalance", address))
	if err != nil {
		return nil, err
	}
	if resp.Error != nil && resp.Error.Code == methodNotFound {
		f.logger.DebugContext(ctx, "getBalance unsupported, falling back to getBalanceAndContext")
		resp, err = f.rpc.Call(ctx, NewRequest("getBalanceAndContext", address))
		if err != nil {
			return nil, err
		}
	}

	raw := f.extract(ctx, "balance", resp)
	if raw == nil {
		return nil, nil
	}
	lamports, err := parseBalance(raw)
	if err != nil {
		f.logger.WarnContext(ctx, "failed to decode balance", "address", address, "error", err)
		return nil, nil
	}
	return &lamports, nil
}

// result runs req and returns its result payload, or nil when absent.
func (f *Fetcher) result(ctx context.Context, req *jsonrpc.RPCRequest) (json.RawMessage, error) {
	resp, err := f.rpc.Call(ctx, req)
	if err != nil {
		return nil, err
	}
	return f.extract(ctx, req.Method, resp), nil
}

func (f *Fetcher) extract(ctx context.Context, method string, resp *jsonrpc.RPCResponse) json.RawMessage {
	if resp.Error != nil {
		f.logger.WarnContext(ctx, "rpc returned error, treating as no result",
			"method", method,
			"code", resp.Error.Code,
			"message", resp.Error.Message,
		)
		return nil
	}
	if isAbsent(resp.Result) {
		return nil
	}
	return resp.Result
}

func (f *Fetcher) decodeListing(ctx context.Context, raw json.RawMessage) ([]SignatureInfo, []json.RawMessage, error) {
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, nil, fmt.Errorf("decode signature list: %w", err)
	}

	infos := make([]SignatureInfo, 0, len(entries))
	kept := make([]json.RawMessage, 0, len(entries))
	for _, entry := range entries {
		info, err := parseSignatureEntry(entry)
		if err != nil {
			f.logger.WarnContext(ctx, "skipping malformed signature entry", "error", err)
			continue
		}
		infos = append(infos, info)
		kept = append(kept, entry)
	}
	return infos, kept, nil
}

// ValidateAddress reports whether address decodes to a 32-byte public key.
func ValidateAddress(address string) error {
	if _, err := solana.PublicKeyFromBase58(address); err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidAddress, address, err)
	}
	return nil
}
