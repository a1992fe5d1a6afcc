package db

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brojonat/traderscan/service/metrics"
	"github.com/brojonat/traderscan/service/wallet"
)

//go:embed schema.sql
var schema string

// ErrNotFound is returned when a run or wallet has no stored rows.
var ErrNotFound = errors.New("not found")

// Wallet analysis statuses stored in wallet_analyses.status.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
	StatusFailed   = "failed"
)

// Store persists scan runs and per-wallet analyses in Postgres.
type Store struct {
	pool    *pgxpool.Pool
	metrics *metrics.Metrics
}

// NewStore creates a new Store with the given database connection pool.
// m may be nil.
func NewStore(pool *pgxpool.Pool, m *metrics.Metrics) *Store {
	return &Store{
		pool:    pool,
		metrics: m,
	}
}

// EnsureSchema creates the tables and indexes if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// RunSummary is one row of scan_runs.
type RunSummary struct {
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
	CreatedAt         time.Time             `json:"created_at"`
}

// WalletRecord is one row of wallet_analyses.
type WalletRecord struct {
	RunID            string     `json:"run_id"`
	Address          string     `json:"address"`
	Position         int        `json:"position"`
	Status           string     `json:"status"`
	TransactionCount int        `json:"transaction_count"`
	LastActivity     *time.Time `json:"last_activity,omitempty"`
	Profit           float64    `json:"profit"`
	CurrentBalance   *uint64    `json:"current_balance,omitempty"` // nil when the balance was unavailable
	BalanceChange    int64      `json:"balance_change"`
	TopTrader        bool       `json:"top_trader"`
	Error            *string    `json:"error,omitempty"`
	AnalyzedAt       time.Time  `json:"analyzed_at"`
}

// RecordRun writes a finished run, its identified wallets and every analyzed
// wallet in one transaction. Recording the same run ID twice replaces it.
func (s *Store) RecordRun(ctx context.Context, run *wallet.Run) (err error) {
	start := time.Now()
	defer func() { s.observe("insert", "scan_runs", start, err) }()

	if run == nil || run.ID == "" {
		return errors.New("run id is required")
	}

	identifyJSON, err := json.Marshal(run.Identify)
	if err != nil {
		return fmt.Errorf("marshal identify params: %w", err)
	}
	analyzeJSON, err := json.Marshal(run.Analyze)
	if err != nil {
		return fmt.Errorf("marshal analyze params: %w", err)
	}

	var (
		seen, skipped, candidates, identified int
		active, top, inactive, failed         int
		windowStart                           pgtype.Timestamptz
	)
	if run.Identified != nil {
		seen = run.Identified.SignaturesSeen
		skipped = run.Identified.SignaturesSkipped
		candidates = run.Identified.Candidates
		identified = len(run.Identified.Wallets)
	}
	if run.Analysis != nil {
		active = len(run.Analysis.ActiveWallets)
		top = len(run.Analysis.TopTraders)
		inactive = len(run.Analysis.Inactive)
		failed = len(run.Analysis.Failed)
		windowStart = pgtype.Timestamptz{Time: run.Analysis.WindowStart, Valid: true}
	}

	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM scan_runs WHERE id = $1`, run.ID)
	batch.Queue(`
		INSERT INTO scan_runs (
			id, started_at, finished_at, identify_params, analyze_params,
			signatures_seen, signatures_skipped, candidates, identified,
			active, top_traders, inactive, failed, window_start
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		run.ID, run.StartedAt, pgTimestamptzFromTime(run.FinishedAt), identifyJSON, analyzeJSON,
		seen, skipped, candidates, identified,
		active, top, inactive, failed, windowStart,
	)

	if run.Identified != nil {
		for i, addr := range run.Identified.Wallets {
			batch.Queue(`
				INSERT INTO identified_wallets (run_id, address, position, occurrences)
				VALUES ($1, $2, $3, $4)`,
				run.ID, addr, i, run.Identified.Counts[addr],
			)
		}
	}

	for _, rec := range walletRecords(run) {
		batch.Queue(`
			INSERT INTO wallet_analyses (
				run_id, address, position, status, transaction_count, last_activity,
				profit, current_balance, balance_change, top_trader, error, analyzed_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			rec.RunID, rec.Address, rec.Position, rec.Status, rec.TransactionCount,
			pgTimestamptzFromPtr(rec.LastActivity), rec.Profit, pgInt8FromUint64Ptr(rec.CurrentBalance),
			rec.BalanceChange, rec.TopTrader, pgtextFromStringPtr(rec.Error), rec.AnalyzedAt,
		)
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("record run %s: %w", run.ID, err)
		}
		return nil
	})
}

// ListRuns returns runs newest first.
func (s *Store) ListRuns(ctx context.Context, limit, offset int) (_ []*RunSummary, err error) {
	start := time.Now()
	defer func() { s.observe("select", "scan_runs", start, err) }()

	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+runColumns+`
		FROM scan_runs
		ORDER BY started_at DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []*RunSummary{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (_ *RunSummary, err error) {
	start := time.Now()
	defer func() { s.observe("select", "scan_runs", start, err) }()

	row := s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM scan_runs WHERE id = $1`, id)
	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return run, err
}

// ListRunWallets returns a run's analyzed wallets in analysis order. With
// topOnly set only top traders are returned. An unknown run yields ErrNotFound.
func (s *Store) ListRunWallets(ctx context.Context, runID string, topOnly bool) (_ []*WalletRecord, err error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() { s.observe("select", "wallet_analyses", start, err) }()

	rows, err := s.pool.Query(ctx, `
		SELECT `+walletColumns+`
		FROM wallet_analyses
		WHERE run_id = $1 AND (NOT $2 OR top_trader)
		ORDER BY position`, runID, topOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []*WalletRecord{}
	for rows.Next() {
		rec, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GetLatestWalletInfo returns the most recent active analysis of address.
func (s *Store) GetLatestWalletInfo(ctx context.Context, address string) (_ *WalletRecord, err error) {
	start := time.Now()
	defer func() { s.observe("select", "wallet_analyses", start, err) }()

	row := s.pool.QueryRow(ctx, `
		SELECT `+walletColumns+`
		FROM wallet_analyses
		WHERE address = $1 AND status = 'active'
		ORDER BY analyzed_at DESC
		LIMIT 1`, address)
	rec, err := scanWallet(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

// DeleteRunsOlderThan removes runs started before the cutoff along with their wallets.
func (s *Store) DeleteRunsOlderThan(ctx context.Context, before time.Time) (_ int64, err error) {
	start := time.Now()
	defer func() { s.observe("delete", "scan_runs", start, err) }()

	tag, err := s.pool.Exec(ctx, `DELETE FROM scan_runs WHERE started_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// walletRecords flattens a run's analysis into rows ordered as the wallets
// were identified.
func walletRecords(run *wallet.Run) []*WalletRecord {
	if run.Analysis == nil {
		return nil
	}
	a := run.Analysis

	position := map[string]int{}
	if run.Identified != nil {
		for i, addr := range run.Identified.Wallets {
			position[addr] = i
		}
	}
	pos := func(addr string) int {
		if p, ok := position[addr]; ok {
			return p
		}
		p := len(position)
		position[addr] = p
		return p
	}

	records := make([]*WalletRecord, 0, len(a.ActiveWallets)+len(a.Inactive)+len(a.Failed))
	for _, info := range a.ActiveWallets {
		records = append(records, &WalletRecord{
			RunID:            run.ID,
			Address:          info.Address,
			Position:         pos(info.Address),
			Status:           StatusActive,
			TransactionCount: info.TransactionCount,
			LastActivity:     info.LastActivity,
			Profit:           info.Profit,
			CurrentBalance:   info.CurrentBalance,
			BalanceChange:    info.BalanceChange,
			TopTrader:        info.TopTrader,
			AnalyzedAt:       a.AnalyzedAt,
		})
	}
	for _, addr := range a.Inactive {
		records = append(records, &WalletRecord{
			RunID:      run.ID,
			Address:    addr,
			Position:   pos(addr),
			Status:     StatusInactive,
			AnalyzedAt: a.AnalyzedAt,
		})
	}
	for _, f := range a.Failed {
		msg := f.Error
		records = append(records, &WalletRecord{
			RunID:      run.ID,
			Address:    f.Address,
			Position:   pos(f.Address),
			Status:     StatusFailed,
			Error:      &msg,
			AnalyzedAt: a.AnalyzedAt,
		})
	}
	return records
}

const runColumns = `id, started_at, finished_at, identify_params, analyze_params,
	signatures_seen, signatures_skipped, candidates, identified,
	active, top_traders, inactive, failed, window_start, created_at`

const walletColumns = `run_id, address, position, status, transaction_count, last_activity,
	profit, current_balance, balance_change, top_trader, error, analyzed_at`

func scanRun(row pgx.Row) (*RunSummary, error) {
	var (
		run                       RunSummary
		finishedAt, windowStart   pgtype.Timestamptz
		identifyJSON, analyzeJSON []byte
	)
	err := row.Scan(
		&run.ID, &run.StartedAt, &finishedAt, &identifyJSON, &analyzeJSON,
		&run.SignaturesSeen, &run.SignaturesSkipped, &run.Candidates, &run.Identified,
		&run.Active, &run.TopTraders, &run.Inactive, &run.Failed, &windowStart, &run.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(identifyJSON, &run.IdentifyParams); err != nil {
		return nil, fmt.Errorf("decode identify params: %w", err)
	}
	if err := json.Unmarshal(analyzeJSON, &run.AnalyzeParams); err != nil {
		return nil, fmt.Errorf("decode analyze params: %w", err)
	}
	run.FinishedAt = timePtrFromPgTimestamptz(finishedAt)
	run.WindowStart = timePtrFromPgTimestamptz(windowStart)
	return &run, nil
}

func scanWallet(row pgx.Row) (*WalletRecord, error) {
	var (
		rec          WalletRecord
		lastActivity pgtype.Timestamptz
		balance      pgtype.Int8
		errText      pgtype.Text
	)
	err := row.Scan(
		&rec.RunID, &rec.Address, &rec.Position, &rec.Status, &rec.TransactionCount, &lastActivity,
		&rec.Profit, &balance, &rec.BalanceChange, &rec.TopTrader, &errText, &rec.AnalyzedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.LastActivity = timePtrFromPgTimestamptz(lastActivity)
	rec.CurrentBalance = uint64PtrFromPgInt8(balance)
	rec.Error = stringPtrFromPgtext(errText)
	return &rec, nil
}

func (s *Store) observe(op, table string, start time.Time, err error) {
	if s.metrics != nil {
		s.metrics.RecordDBQuery(op, table, time.Since(start).Seconds(), err)
	}
}

// Helper functions to convert between pgtype and domain types

func pgtextFromStringPtr(s *string) pgtype.Text {
	if s == nil {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: *s, Valid: true}
}

func stringPtrFromPgtext(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	return &t.String
}

func pgTimestamptzFromTime(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: !t.IsZero()}
}

func pgTimestamptzFromPtr(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{Valid: false}
	}
	return pgtype.Timestamptz{Time: *t, Valid: true}
}

func timePtrFromPgTimestamptz(t pgtype.Timestamptz) *time.Time {
	if !t.Valid {
		return nil
	}
	return &t.Time
}

func pgInt8FromUint64Ptr(v *uint64) pgtype.Int8 {
	if v == nil {
		return pgtype.Int8{Valid: false}
	}
	return pgtype.Int8{Int64: int64(*v), Valid: true}
}

func uint64PtrFromPgInt8(v pgtype.Int8) *uint64 {
	if !v.Valid {
		return nil
	}
	u := uint64(v.Int64)
	return &u
}
