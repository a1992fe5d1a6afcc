package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/brojonat/traderscan/service/config"
	"github.com/brojonat/traderscan/service/db"
	natspkg "github.com/brojonat/traderscan/service/nats"
	"github.com/brojonat/traderscan/service/solana"
	"github.com/brojonat/traderscan/service/temporal"
	"github.com/brojonat/traderscan/service/wallet"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB
	maxAddressLength   = 100     // Solana addresses are 44 chars, give buffer
	maxRunIDLength     = 128
	maxSignatures      = 1000 // getSignaturesForAddress page limit
	defaultRunsLimit   = 20
	maxRunsLimit       = 100
)

var (
	// Valid Solana address characters: base58 (no 0, O, I, l)
	validAddressRegex = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]+$`)
	validRunIDRegex   = regexp.MustCompile(`^[A-Za-z0-9_.:-]+$`)
)

// handleListRuns returns a handler that lists scan runs, newest first.
// GET /api/v1/runs?limit=N&offset=N
func handleListRuns(store Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit, offset, err := parsePage(r, defaultRunsLimit, maxRunsLimit)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		runs, err := store.ListRuns(r.Context(), limit, offset)
		if err != nil {
			logger.Error("failed to list runs", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		logger.Debug("runs listed", "count", len(runs))

		resp := make([]runResponse, len(runs))
		for i, run := range runs {
			resp[i] = runToResponse(run)
		}

		writeJSON(w, map[string]interface{}{
			"runs":   resp,
			"count":  len(resp),
			"limit":  limit,
			"offset": offset,
		}, http.StatusOK)
	})
}

// handleGetRun returns a handler that retrieves one run summary.
// GET /api/v1/runs/{id}
func handleGetRun(store Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if err := validateRunID(id); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		run, err := store.GetRun(r.Context(), id)
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, "run not found", http.StatusNotFound)
			return
		}
		if err != nil {
			logger.Error("failed to get run", "run_id", id, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, runToResponse(run), http.StatusOK)
	})
}

// handleListRunWallets returns a handler that lists the analyzed wallets of a run.
// GET /api/v1/runs/{id}/wallets?top=true
func handleListRunWallets(store Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if err := validateRunID(id); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		topOnly, err := parseBoolParam(r, "top")
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		records, err := store.ListRunWallets(r.Context(), id, topOnly)
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, "run not found", http.StatusNotFound)
			return
		}
		if err != nil {
			logger.Error("failed to list run wallets", "run_id", id, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		logger.Debug("run wallets listed", "run_id", id, "top_only", topOnly, "count", len(records))

		resp := make([]walletResponse, len(records))
		for i, rec := range records {
			resp[i] = recordToResponse(rec)
		}

		writeJSON(w, map[string]interface{}{
			"run_id":  id,
			"wallets": resp,
			"count":   len(resp),
		}, http.StatusOK)
	})
}

// handleGetWallet returns a handler that retrieves the most recent active
// analysis of a wallet across all runs.
// GET /api/v1/wallets/{address}
func handleGetWallet(store Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")

		if err := validateAddress(address); err != nil {
			logger.Debug("invalid address", "address", address, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		rec, err := store.GetLatestWalletInfo(r.Context(), address)
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, "wallet not found", http.StatusNotFound)
			return
		}
		if err != nil {
			logger.Error("failed to get wallet", "address", address, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, recordToResponse(rec), http.StatusOK)
	})
}

// scanRequest is the body of POST /api/v1/scans. Omitted fields fall back
// to the server's configured identification settings.
type scanRequest struct {
	RunID           string `json:"run_id"`
	NumSignatures   *int   `json:"num_signatures"`
	MinTransactions *int   `json:"min_transactions"`
	MaxWallets      *int   `json:"max_wallets"`
	Policy          string `json:"policy"`
}

// handleStartScan returns a handler that starts a wallet scan workflow.
// POST /api/v1/scans
func handleStartScan(scheduler temporal.Scheduler, cfg *config.Config, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if scheduler == nil {
			writeError(w, "scan scheduling is not configured", http.StatusServiceUnavailable)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req scanRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			logger.Debug("failed to decode scan request", "error", err)
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				writeError(w, "request body too large: maximum size is 1MB", http.StatusBadRequest)
				return
			}
			writeError(w, "invalid request body: must be valid JSON", http.StatusBadRequest)
			return
		}

		params, err := scanParams(req, cfg)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		runID := req.RunID
		if runID == "" {
			runID = uuid.NewString()
		} else if err := validateRunID(runID); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		workflowID, err := scheduler.StartScan(r.Context(), runID, params)
		if err != nil {
			logger.Error("failed to start scan", "run_id", runID, "error", err)
			writeError(w, "failed to start scan", http.StatusInternalServerError)
			return
		}

		logger.Info("scan started",
			"run_id", runID,
			"workflow_id", workflowID,
			"num_signatures", params.NumSignatures,
			"min_transactions", params.MinTransactions,
		)

		writeJSON(w, map[string]interface{}{
			"run_id":      runID,
			"workflow_id": workflowID,
			"params":      params,
		}, http.StatusAccepted)
	})
}

func scanParams(req scanRequest, cfg *config.Config) (wallet.IdentifyParams, error) {
	params := wallet.DefaultIdentifyParams()
	if cfg != nil {
		params = cfg.IdentifyParams()
	}

	if req.NumSignatures != nil {
		params.NumSignatures = *req.NumSignatures
	}
	if req.MinTransactions != nil {
		params.MinTransactions = *req.MinTransactions
	}
	if req.MaxWallets != nil {
		params.MaxWallets = *req.MaxWallets
	}
	if req.Policy != "" {
		policy, err := wallet.ParseSelectionPolicy(req.Policy)
		if err != nil {
			return params, errorf("invalid policy: must be %q or %q", wallet.SelectDiscovery, wallet.SelectTally)
		}
		params.Policy = policy
	}

	if params.NumSignatures < 1 || params.NumSignatures > maxSignatures {
		return params, errorf("num_signatures must be between 1 and %d", maxSignatures)
	}
	if params.MinTransactions < 1 {
		return params, errorf("min_transactions must be at least 1")
	}
	if params.MaxWallets < 0 {
		return params, errorf("max_wallets cannot be negative")
	}
	return params, nil
}

// runResponse is the JSON response format for a scan run.
type runResponse struct {
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

func runToResponse(r *db.RunSummary) runResponse {
	return runResponse{
		ID:                r.ID,
		StartedAt:         r.StartedAt,
		FinishedAt:        r.FinishedAt,
		IdentifyParams:    r.IdentifyParams,
		AnalyzeParams:     r.AnalyzeParams,
		SignaturesSeen:    r.SignaturesSeen,
		SignaturesSkipped: r.SignaturesSkipped,
		Candidates:        r.Candidates,
		Identified:        r.Identified,
		Active:            r.Active,
		TopTraders:        r.TopTraders,
		Inactive:          r.Inactive,
		Failed:            r.Failed,
		WindowStart:       r.WindowStart,
	}
}

// walletResponse is the JSON response format for an analyzed wallet.
// Lamport amounts are also rendered as exact SOL strings.
type walletResponse struct {
	RunID             string     `json:"run_id"`
	Address           string     `json:"address"`
	Status            string     `json:"status"`
	TransactionCount  int        `json:"transaction_count"`
	LastActivity      *time.Time `json:"last_activity,omitempty"`
	Profit            float64    `json:"profit"`
	CurrentBalance    *uint64    `json:"current_balance,omitempty"`
	CurrentBalanceSOL *string    `json:"current_balance_sol,omitempty"`
	BalanceChange     int64      `json:"balance_change"`
	BalanceChangeSOL  string     `json:"balance_change_sol"`
	TopTrader         bool       `json:"top_trader"`
	Error             *string    `json:"error,omitempty"`
	AnalyzedAt        time.Time  `json:"analyzed_at"`
}

func recordToResponse(rec *db.WalletRecord) walletResponse {
	resp := walletResponse{
		RunID:            rec.RunID,
		Address:          rec.Address,
		Status:           rec.Status,
		TransactionCount: rec.TransactionCount,
		LastActivity:     rec.LastActivity,
		Profit:           rec.Profit,
		CurrentBalance:   rec.CurrentBalance,
		BalanceChange:    rec.BalanceChange,
		BalanceChangeSOL: solana.DeltaToSOL(rec.BalanceChange).String(),
		TopTrader:        rec.TopTrader,
		Error:            rec.Error,
		AnalyzedAt:       rec.AnalyzedAt,
	}
	if rec.CurrentBalance != nil {
		sol := solana.LamportsToSOL(*rec.CurrentBalance).String()
		resp.CurrentBalanceSOL = &sol
	}
	return resp
}

func walletEventToResponse(e natspkg.WalletEvent) walletResponse {
	return recordToResponse(&db.WalletRecord{
		RunID:            e.RunID,
		Address:          e.Address,
		Status:           db.StatusActive,
		TransactionCount: e.TransactionCount,
		LastActivity:     e.LastActivity,
		Profit:           e.Profit,
		CurrentBalance:   e.CurrentBalance,
		BalanceChange:    e.BalanceChange,
		TopTrader:        e.TopTrader,
		AnalyzedAt:       e.AnalyzedAt,
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// parsePage reads limit and offset query parameters.
func parsePage(r *http.Request, defaultLimit, maxLimit int) (int, int, error) {
	query := r.URL.Query()

	limit := defaultLimit
	if limitStr := query.Get("limit"); limitStr != "" {
		var parsedLimit int
		if _, err := fmt.Sscanf(limitStr, "%d", &parsedLimit); err != nil {
			return 0, 0, errorf("invalid limit parameter: must be an integer")
		}
		if parsedLimit < 1 {
			return 0, 0, errorf("limit must be at least 1")
		}
		if parsedLimit > maxLimit {
			return 0, 0, errorf("limit cannot exceed %d", maxLimit)
		}
		limit = parsedLimit
	}

	offset := 0
	if offsetStr := query.Get("offset"); offsetStr != "" {
		var parsedOffset int
		if _, err := fmt.Sscanf(offsetStr, "%d", &parsedOffset); err != nil {
			return 0, 0, errorf("invalid offset parameter: must be an integer")
		}
		if parsedOffset < 0 {
			return 0, 0, errorf("offset cannot be negative")
		}
		offset = parsedOffset
	}

	return limit, offset, nil
}

func parseBoolParam(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, errorf("invalid %s parameter: must be true or false", name)
	}
	return v, nil
}

// validateAddress validates a wallet address for security and format.
func validateAddress(address string) error {
	if address == "" {
		return errorf("address is required")
	}

	if len(address) > maxAddressLength {
		return errorf("address too long: maximum length is %d characters", maxAddressLength)
	}

	// Check for null bytes and control characters
	for _, r := range address {
		if r == 0 || unicode.IsControl(r) {
			return errorf("invalid characters in address: control characters not allowed")
		}
	}

	// Check for common SQL injection patterns
	lowerAddr := strings.ToLower(address)
	sqlPatterns := []string{"drop ", "delete ", "insert ", "update ", "select ", "--", "/*", "*/", ";"}
	for _, pattern := range sqlPatterns {
		if strings.Contains(lowerAddr, pattern) {
			return errorf("invalid characters in address: suspicious pattern detected")
		}
	}

	if !validAddressRegex.MatchString(address) {
		return errorf("invalid address format: must contain only valid base58 characters")
	}

	if err := solana.ValidateAddress(address); err != nil {
		return errorf("invalid address format: not a valid public key")
	}

	return nil
}

// validateRunID accepts UUIDs and Temporal workflow IDs.
func validateRunID(id string) error {
	if id == "" {
		return errorf("run id is required")
	}
	if len(id) > maxRunIDLength {
		return errorf("run id too long: maximum length is %d characters", maxRunIDLength)
	}
	if !validRunIDRegex.MatchString(id) {
		return errorf("invalid run id: only letters, digits and -_.: are allowed")
	}
	return nil
}

// errorf is a helper to format error strings.
func errorf(format string, args ...interface{}) error {
	return &validationError{msg: strings.TrimSpace(fmt.Sprintf(format, args...))}
}

type validationError struct {
	msg string
}

func (e *validationError) Error() string {
	return e.msg
}
