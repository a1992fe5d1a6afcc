package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/traderscan/service/wallet"
)

func testSignature(i byte) string {
	var sig solana.Signature
	sig[0] = i
	sig[63] = i + 1
	return sig.String()
}

func testAddress(i byte) string {
	b := make([]byte, 32)
	b[0] = i
	b[31] = 3
	return solana.PublicKeyFromBytes(b).String()
}

// fakeRPC answers the JSON-RPC methods a scan uses. trader appears in both
// recent transactions and gained 0.5 SOL on a 1 SOL start inside the window;
// bystander appears once.
func fakeRPC(t *testing.T) (rpcURL, trader, bystander string) {
	t.Helper()

	trader, bystander = testAddress(1), testAddress(2)
	recent, old := testSignature(1), testSignature(2)
	now := time.Now()

	txs := map[string]interface{}{
		recent: map[string]interface{}{
			"slot":        20,
			"blockTime":   now.Add(-24 * time.Hour).Unix(),
			"meta":        map[string]interface{}{"preBalances": []uint64{1_000_000_000, 0}, "postBalances": []uint64{1_500_000_000, 0}},
			"transaction": map[string]interface{}{"message": map[string]interface{}{"accountKeys": []string{trader, bystander}}},
		},
		old: map[string]interface{}{
			"slot":        10,
			"blockTime":   now.Add(-60 * 24 * time.Hour).Unix(),
			"meta":        map[string]interface{}{"preBalances": []uint64{0}, "postBalances": []uint64{0}},
			"transaction": map[string]interface{}{"message": map[string]interface{}{"accountKeys": []string{trader}}},
		},
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage   `json:"id"`
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var result interface{}
		switch req.Method {
		case "getSignaturesForAddress":
			result = []map[string]interface{}{
				{"signature": recent, "slot": 20, "blockTime": now.Add(-24 * time.Hour).Unix(), "err": nil},
				{"signature": old, "slot": 10, "blockTime": now.Add(-60 * 24 * time.Hour).Unix(), "err": nil},
			}
		case "getTransaction":
			var sig string
			_ = json.Unmarshal(req.Params[0], &sig)
			result = txs[sig]
		case "getBalance":
			result = map[string]interface{}{"context": map[string]interface{}{"slot": 21}, "value": 1_500_000_000}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": result})
	}))
	t.Cleanup(server.Close)
	return server.URL, trader, bystander
}

func TestRunCommand_Report(t *testing.T) {
	rpcURL, trader, _ := fakeRPC(t)
	snapshot := filepath.Join(t.TempDir(), "run.json")

	out, errOut, err := runApp(t, "run",
		"--rpc-url", rpcURL,
		"-n", "10", "-m", "2",
		"--days", "30", "--threshold", "0.1", "--pacing", "0s",
		"--run-id", "local-1",
		"--out", snapshot,
	)
	require.NoError(t, err, errOut)

	assert.Contains(t, errOut, "Identifying active wallets...")
	assert.Contains(t, out, "Run: local-1")
	assert.Contains(t, out, "Found active wallets: 1")
	assert.Contains(t, out, "Address: "+trader)
	assert.Contains(t, out, "Transactions in the last 30 days: 1")
	assert.Contains(t, out, "Balance change: 0.5 SOL")
	assert.Contains(t, out, "Profit: 50.00%")
	assert.Contains(t, out, "Top Traders (>10.00% profit in 30 days):")

	data, err := os.ReadFile(snapshot)
	require.NoError(t, err)
	var run wallet.Run
	require.NoError(t, json.Unmarshal(data, &run))
	assert.Equal(t, "local-1", run.ID)
	require.Len(t, run.Analysis.TopTraders, 1)
	assert.Equal(t, trader, run.Analysis.TopTraders[0].Address)
}

func TestRunCommand_JSONWithFilter(t *testing.T) {
	rpcURL, _, _ := fakeRPC(t)

	out, _, err := runApp(t, "--json", "run",
		"--rpc-url", rpcURL,
		"-n", "10", "-m", "2", "--pacing", "0s",
		"--jq", ".profit > 0.9",
	)
	require.NoError(t, err)

	var run wallet.Run
	require.NoError(t, json.Unmarshal([]byte(out), &run))
	assert.NotEmpty(t, run.ID)
	assert.Len(t, run.Identified.Wallets, 1)
	assert.Empty(t, run.Analysis.ActiveWallets)
	assert.Empty(t, run.Analysis.TopTraders)
}

func TestIdentifyCommand(t *testing.T) {
	rpcURL, trader, bystander := fakeRPC(t)

	out, _, err := runApp(t, "--json", "identify", "--rpc-url", rpcURL, "-n", "10", "-m", "1")
	require.NoError(t, err)

	var result wallet.IdentifyResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, []string{trader, bystander}, result.Wallets)
	assert.Equal(t, 2, result.Counts[trader])
	assert.Equal(t, 1, result.Counts[bystander])
}

func TestAnalyzeCommand(t *testing.T) {
	rpcURL, trader, _ := fakeRPC(t)

	out, _, err := runApp(t, "analyze", "--rpc-url", rpcURL, "--pacing", "0s", "--days", "90", trader)
	require.NoError(t, err)
	assert.Contains(t, out, "Transactions in the last 90 days: 2")
	assert.Contains(t, out, "Top Traders (>10.00% profit in 90 days):")
}

func TestAnalyzeCommand_RequiresAddress(t *testing.T) {
	_, _, err := runApp(t, "analyze")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one wallet address")
}

func TestRunCommand_InvalidFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown policy", []string{"run", "--rpc-url", "http://127.0.0.1:1", "--policy", "random"}, "SelectionPolicy"},
		{"non-http endpoint", []string{"run", "--rpc-url", "ftp://example.com"}, "must be http(s)"},
		{"zero signatures", []string{"run", "--rpc-url", "http://127.0.0.1:1", "-n", "0"}, "NumSignatures"},
		{"store without database", []string{"--database-url=", "run", "--rpc-url", "http://127.0.0.1:1", "--store"}, "--store requires"},
		{"bad jq", []string{"run", "--rpc-url", "http://127.0.0.1:1", "--jq", ".profit >"}, "failed to parse jq filter"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := runApp(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
