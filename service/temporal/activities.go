package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/traderscan/service/metrics"
	"github.com/brojonat/traderscan/service/wallet"
)

// ScanWorkflowInput contains the input parameters for a wallet scan.
type ScanWorkflowInput struct {
	RunID    string                `json:"run_id"` // empty uses the workflow ID
	Identify wallet.IdentifyParams `json:"identify"`
}

// ScanWorkflowResult summarizes a finished scan.
type ScanWorkflowResult struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Identified int       `json:"identified"`
	Active     int       `json:"active"`
	TopTraders []string  `json:"top_traders"`
	Inactive   int       `json:"inactive"`
	Failed     int       `json:"failed"`
	SinkErrors []string  `json:"sink_errors,omitempty"`
	Error      *string   `json:"error,omitempty"`
}

// IdentifyWalletsInput contains parameters for the IdentifyWallets activity.
type IdentifyWalletsInput struct {
	Params wallet.IdentifyParams `json:"params"`
}

// AnalyzeWalletsInput contains parameters for the AnalyzeWallets activity.
type AnalyzeWalletsInput struct {
	Addresses []string `json:"addresses"`
}

// AnalyzeWalletsResult carries the analysis along with the parameters it ran with.
type AnalyzeWalletsResult struct {
	Analysis *wallet.AnalysisResult `json:"analysis"`
	Params   wallet.AnalyzeParams   `json:"params"`
}

// PersistScanInput contains parameters for the PersistScan activity.
type PersistScanInput struct {
	Run *wallet.Run `json:"run"`
}

// PersistScanResult lists sinks that rejected the run.
type PersistScanResult struct {
	SinkErrors []string `json:"sink_errors"`
}

// IdentifierInterface is the wallet identification step.
type IdentifierInterface interface {
	Identify(ctx context.Context, p wallet.IdentifyParams) (*wallet.IdentifyResult, error)
}

// AnalyzerInterface is the per-wallet profit step.
type AnalyzerInterface interface {
	Analyze(ctx context.Context, addresses []string) (*wallet.AnalysisResult, error)
	Params() wallet.AnalyzeParams
}

// PersisterInterface hands a finished run to the configured sinks.
type PersisterInterface interface {
	Persist(ctx context.Context, run *wallet.Run) []string
}

// Activities holds the dependencies needed by Temporal activities.
type Activities struct {
	identifier IdentifierInterface
	analyzer   AnalyzerInterface
	persister  PersisterInterface
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewActivities creates a new Activities instance with explicit dependencies.
// If metrics is nil, no metrics will be recorded.
func NewActivities(
	identifier IdentifierInterface,
	analyzer AnalyzerInterface,
	persister PersisterInterface,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		identifier: identifier,
		analyzer:   analyzer,
		persister:  persister,
		metrics:    m,
		logger:     logger,
	}
}

// IdentifyWallets samples recent signatures and returns the active wallets.
func (a *Activities) IdentifyWallets(ctx context.Context, input IdentifyWalletsInput) (*wallet.IdentifyResult, error) {
	defer a.observe("IdentifyWallets", time.Now())

	result, err := a.identifier.Identify(ctx, input.Params)
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to identify wallets", "error", err)
		return nil, fmt.Errorf("failed to identify wallets: %w", err)
	}

	a.logger.InfoContext(ctx, "identified wallets",
		"count", len(result.Wallets),
		"signatures", result.SignaturesSeen,
	)
	return result, nil
}

// AnalyzeWallets runs the profit engine over the identified wallets.
func (a *Activities) AnalyzeWallets(ctx context.Context, input AnalyzeWalletsInput) (*AnalyzeWalletsResult, error) {
	defer a.observe("AnalyzeWallets", time.Now())

	analysis, err := a.analyzer.Analyze(ctx, input.Addresses)
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to analyze wallets",
			"wallets", len(input.Addresses),
			"error", err,
		)
		return nil, fmt.Errorf("failed to analyze wallets: %w", err)
	}

	a.logger.InfoContext(ctx, "analyzed wallets",
		"active", len(analysis.ActiveWallets),
		"top_traders", len(analysis.TopTraders),
		"failed", len(analysis.Failed),
	)
	return &AnalyzeWalletsResult{Analysis: analysis, Params: a.analyzer.Params()}, nil
}

// PersistScan hands the finished run to every sink. Sink failures are
// reported in the result, not returned as an error.
func (a *Activities) PersistScan(ctx context.Context, input PersistScanInput) (*PersistScanResult, error) {
	defer a.observe("PersistScan", time.Now())

	if input.Run == nil {
		return nil, fmt.Errorf("run is required")
	}

	sinkErrors := a.persister.Persist(ctx, input.Run)
	if len(sinkErrors) > 0 {
		a.logger.WarnContext(ctx, "some sinks rejected the run",
			"run_id", input.Run.ID,
			"errors", sinkErrors,
		)
	}
	return &PersistScanResult{SinkErrors: sinkErrors}, nil
}

func (a *Activities) observe(name string, start time.Time) {
	if a.metrics != nil {
		a.metrics.RecordActivityDuration(name, time.Since(start).Seconds())
	}
}
