package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newAPIServer serves canned responses for the traderscan HTTP API.
func newAPIServer(t *testing.T) (*httptest.Server, *map[string]interface{}) {
	t.Helper()
	lastScan := map[string]interface{}{}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/runs", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"runs": [
			{"id": "run-2", "started_at": "2026-10-02T00:00:00Z", "identified": 5, "active": 3, "top_traders": 1, "failed": 0},
			{"id": "run-1", "started_at": "2026-10-01T00:00:00Z", "identified": 2, "active": 2, "top_traders": 0, "failed": 1}
		], "count": 2, "limit": 20, "offset": 0}`))
	})
	mux.HandleFunc("GET /api/v1/runs/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "run-2" {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error": "run not found"}`))
			return
		}
		w.Write([]byte(`{"id": "run-2", "started_at": "2026-10-02T00:00:00Z", "finished_at": "2026-10-02T00:05:00Z", "identified": 5, "active": 3, "top_traders": 1}`))
	})
	mux.HandleFunc("GET /api/v1/runs/{id}/wallets", func(w http.ResponseWriter, r *http.Request) {
		top := r.URL.Query().Get("top") == "true"
		wallets := `[
			{"run_id": "run-2", "address": "walletA", "status": "active", "transaction_count": 4, "profit": 0.5,
			 "current_balance": 1500000000, "current_balance_sol": "1.5", "balance_change": 500000000, "balance_change_sol": "0.5", "top_trader": true}`
		if !top {
			wallets += `,
			{"run_id": "run-2", "address": "walletB", "status": "active", "transaction_count": 1, "profit": -0.1,
			 "balance_change": -100000000, "balance_change_sol": "-0.1", "top_trader": false}`
		}
		w.Write([]byte(`{"run_id": "run-2", "wallets": ` + wallets + `]}`))
	})
	mux.HandleFunc("GET /api/v1/wallets/{address}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("address") != "walletA" {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error": "wallet not found"}`))
			return
		}
		w.Write([]byte(`{"run_id": "run-2", "address": "walletA", "status": "active", "transaction_count": 4, "profit": 0.5,
			"current_balance_sol": "1.5", "balance_change_sol": "0.5", "top_trader": true}`))
	})
	mux.HandleFunc("POST /api/v1/scans", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&lastScan))
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"run_id": "abc", "workflow_id": "wallet-scan-abc",
			"params": {"num_signatures": 25, "min_transactions": 1, "max_wallets": 10, "policy": "discovery"}}`))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, &lastScan
}

func TestClientRunsCommand(t *testing.T) {
	server, _ := newAPIServer(t)

	out, errOut, err := runApp(t, "--server-url", server.URL, "client", "runs")
	require.NoError(t, err)
	assert.Contains(t, out, "RUN ID")
	assert.Contains(t, out, "run-2")
	assert.Contains(t, out, "run-1")
	assert.Contains(t, errOut, "Total: 2 runs")
}

func TestClientRunCommand(t *testing.T) {
	server, _ := newAPIServer(t)

	out, _, err := runApp(t, "--server-url", server.URL, "client", "run", "run-2")
	require.NoError(t, err)
	assert.Contains(t, out, "Run ID:      run-2")
	assert.Contains(t, out, "Finished:    2026-10-02T00:05:00Z")

	_, _, err = runApp(t, "--server-url", server.URL, "client", "run", "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")

	_, _, err = runApp(t, "--server-url", server.URL, "client", "run")
	require.Error(t, err)
}

func TestClientWalletsCommand(t *testing.T) {
	server, _ := newAPIServer(t)

	out, _, err := runApp(t, "--server-url", server.URL, "client", "wallets", "run-2")
	require.NoError(t, err)
	assert.Contains(t, out, "walletA")
	assert.Contains(t, out, "walletB")
	assert.Contains(t, out, "50.00%")
	assert.Contains(t, out, "unknown")

	out, _, err = runApp(t, "--server-url", server.URL, "client", "wallets", "--top", "run-2")
	require.NoError(t, err)
	assert.Contains(t, out, "walletA")
	assert.NotContains(t, out, "walletB")
}

func TestClientWalletsCommand_JQ(t *testing.T) {
	server, _ := newAPIServer(t)

	out, _, err := runApp(t, "--server-url", server.URL, "--json", "client", "wallets", "--jq", ".profit < 0", "run-2")
	require.NoError(t, err)

	var wallets []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &wallets))
	require.Len(t, wallets, 1)
	assert.Equal(t, "walletB", wallets[0]["address"])
	assert.Equal(t, "-0.1", wallets[0]["balance_change_sol"])
}

func TestClientWalletCommand(t *testing.T) {
	server, _ := newAPIServer(t)

	out, _, err := runApp(t, "--server-url", server.URL, "client", "wallet", "walletA")
	require.NoError(t, err)
	assert.Contains(t, out, "Balance:       1.5 SOL")
	assert.Contains(t, out, "Change:        0.5 SOL")
	assert.Contains(t, out, "Profit:        50.00%")

	_, _, err = runApp(t, "--server-url", server.URL, "client", "wallet", "walletZ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has not been analyzed")
}

func TestClientScanCommand(t *testing.T) {
	server, lastScan := newAPIServer(t)

	out, _, err := runApp(t, "--server-url", server.URL, "client", "scan", "-n", "25", "--policy", "discovery")
	require.NoError(t, err)
	assert.Contains(t, out, "Scan started: abc")
	assert.Contains(t, out, "Workflow ID: wallet-scan-abc")
	assert.Contains(t, out, "Signatures: 25")

	assert.EqualValues(t, 25, (*lastScan)["num_signatures"])
	assert.Equal(t, "discovery", (*lastScan)["policy"])
	assert.NotContains(t, *lastScan, "min_transactions")
}
