package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/brojonat/traderscan/service/wallet"
)

// ErrNotFound is returned when the server has no run or wallet for the request.
var ErrNotFound = errors.New("not found")

// Run summarizes one scan run.
type Run struct {
	ID                string                `json:"id"`
	StartedAt         time.Time             `json:"started_at"`
	FinishedAt        *time.Time            `json:"finished_at,omitempty"`
	IdentifyParams    wallet.IdentifyParams `json:"identify_params"`
	AnalyzeParams     wallet.AnalyzeParams  `json:"analyze_params"`
	SignaturesSeen    int                   `json:"signatures_seen"`
	SignaturesSkipped int                   `json:"signatures_skipped"`
	Candidates        int                   `json:"candidates"`
	Identified        int                   `json:"identified"`
	Active            int                   `json:"active"`
	TopTraders        int                   `json:"top_traders"`
	Inactive          int                   `json:"inactive"`
	Failed            int                   `json:"failed"`
	WindowStart       *time.Time            `json:"window_start,omitempty"`
}

// WalletAnalysis is one analyzed wallet. Balances are in lamports, with the
// SOL equivalents decoded as exact decimals.
type WalletAnalysis struct {
	RunID             string           `json:"run_id"`
	Address           string           `json:"address"`
	Status            string           `json:"status"` // active, inactive, failed
	TransactionCount  int              `json:"transaction_count"`
	LastActivity      *time.Time       `json:"last_activity,omitempty"`
	Profit            float64          `json:"profit"`
	CurrentBalance    *uint64          `json:"current_balance,omitempty"`
	CurrentBalanceSOL *decimal.Decimal `json:"current_balance_sol,omitempty"`
	BalanceChange     int64            `json:"balance_change"`
	BalanceChangeSOL  decimal.Decimal  `json:"balance_change_sol"`
	TopTrader         bool             `json:"top_trader"`
	Error             *string          `json:"error,omitempty"`
	AnalyzedAt        time.Time        `json:"analyzed_at"`
}

// ScanRequest asks the server to start a scan. Nil fields use the server's
// configured defaults; an empty RunID lets the server assign one.
type ScanRequest struct {
	RunID           string `json:"run_id,omitempty"`
	NumSignatures   *int   `json:"num_signatures,omitempty"`
	MinTransactions *int   `json:"min_transactions,omitempty"`
	MaxWallets      *int   `json:"max_wallets,omitempty"`
	Policy          string `json:"policy,omitempty"`
}

// ScanStarted identifies a scan the server accepted.
type ScanStarted struct {
	RunID      string                `json:"run_id"`
	WorkflowID string                `json:"workflow_id"`
	Params     wallet.IdentifyParams `json:"params"`
}

// Client is the HTTP client for the traderscan API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new API client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// ListRuns returns scan runs, newest first. A zero limit uses the server default.
func (c *Client) ListRuns(ctx context.Context, limit, offset int) ([]*Run, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}

	var response struct {
		Runs []*Run `json:"runs"`
	}
	if err := c.get(ctx, "/api/v1/runs", q, &response); err != nil {
		return nil, err
	}

	c.logger.Debug("runs listed", "count", len(response.Runs))
	return response.Runs, nil
}

// GetRun returns one run summary.
func (c *Client) GetRun(ctx context.Context, id string) (*Run, error) {
	var run Run
	if err := c.get(ctx, "/api/v1/runs/"+url.PathEscape(id), nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// RunWallets returns the analyzed wallets of a run, optionally only its top traders.
func (c *Client) RunWallets(ctx context.Context, runID string, topOnly bool) ([]*WalletAnalysis, error) {
	q := url.Values{}
	if topOnly {
		q.Set("top", "true")
	}

	var response struct {
		Wallets []*WalletAnalysis `json:"wallets"`
	}
	if err := c.get(ctx, "/api/v1/runs/"+url.PathEscape(runID)+"/wallets", q, &response); err != nil {
		return nil, err
	}
	return response.Wallets, nil
}

// Wallet returns the most recent active analysis of address.
func (c *Client) Wallet(ctx context.Context, address string) (*WalletAnalysis, error) {
	var info WalletAnalysis
	if err := c.get(ctx, "/api/v1/wallets/"+url.PathEscape(address), nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// StartScan asks the server to start a scan workflow.
func (c *Client) StartScan(ctx context.Context, scan ScanRequest) (*ScanStarted, error) {
	body, err := json.Marshal(scan)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/v1/scans", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return nil, c.parseErrorResponse(resp)
	}

	var started ScanStarted
	if err := json.NewDecoder(resp.Body).Decode(&started); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	c.logger.Debug("scan started", "run_id", started.RunID, "workflow_id", started.WorkflowID)
	return &started, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// parseErrorResponse attempts to parse an error response from the server.
// 404 responses wrap ErrNotFound.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		errResp.Error = fmt.Sprintf("status %d: %s", resp.StatusCode, string(body))
	}

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, errResp.Error)
	}
	return fmt.Errorf("request failed: %s", errResp.Error)
}
