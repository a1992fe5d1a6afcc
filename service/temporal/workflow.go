package temporal

import (
	"fmt"
	"time"

	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/brojonat/traderscan/service/wallet"
)

var a *Activities // for type-safe activity invocation

// WalletScanWorkflow identifies active wallets, analyzes them and persists the
// run. It is started by a Temporal schedule or on demand.
//
// Identification is retried and analysis runs once. A failed PersistScan is
// recorded on the result and does not fail the workflow.
func WalletScanWorkflow(ctx workflow.Context, input ScanWorkflowInput) (*ScanWorkflowResult, error) {
	logger := workflow.GetLogger(ctx)

	runID := input.RunID
	if runID == "" {
		runID = workflow.GetInfo(ctx).WorkflowExecution.ID
	}
	logger.Info("WalletScanWorkflow started", "run_id", runID)

	result := &ScanWorkflowResult{
		RunID:      runID,
		StartedAt:  workflow.Now(ctx),
		TopTraders: []string{},
	}

	fail := func(step string, err error) (*ScanWorkflowResult, error) {
		msg := fmt.Sprintf("failed to %s: %v", step, err)
		result.Error = &msg
		result.FinishedAt = workflow.Now(ctx)
		logger.Error("WalletScanWorkflow failed", "run_id", runID, "step", step, "error", err)
		return result, fmt.Errorf("failed to %s: %w", step, err)
	}

	// Step 1: identify wallets
	identifyCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	})
	var identified *wallet.IdentifyResult
	err := workflow.ExecuteActivity(identifyCtx, a.IdentifyWallets, IdentifyWalletsInput{Params: input.Identify}).Get(ctx, &identified)
	if err != nil {
		return fail("identify wallets", err)
	}
	result.Identified = len(identified.Wallets)
	logger.Info("identified wallets", "run_id", runID, "count", result.Identified)

	// Step 2: analyze them
	analyzeCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: time.Hour,
		RetryPolicy: &temporalsdk.RetryPolicy{
			MaximumAttempts: 1,
		},
	})
	var analyzed *AnalyzeWalletsResult
	err = workflow.ExecuteActivity(analyzeCtx, a.AnalyzeWallets, AnalyzeWalletsInput{Addresses: identified.Wallets}).Get(ctx, &analyzed)
	if err != nil {
		return fail("analyze wallets", err)
	}
	analysis := analyzed.Analysis
	result.Active = len(analysis.ActiveWallets)
	result.Inactive = len(analysis.Inactive)
	result.Failed = len(analysis.Failed)
	for _, info := range analysis.TopTraders {
		result.TopTraders = append(result.TopTraders, info.Address)
	}
	result.FinishedAt = workflow.Now(ctx)

	// Step 3: persist
	run := &wallet.Run{
		ID:         runID,
		StartedAt:  result.StartedAt,
		FinishedAt: result.FinishedAt,
		Identify:   input.Identify,
		Analyze:    analyzed.Params,
		Identified: identified,
		Analysis:   analysis,
	}
	persistCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    5,
		},
	})
	var persisted *PersistScanResult
	err = workflow.ExecuteActivity(persistCtx, a.PersistScan, PersistScanInput{Run: run}).Get(ctx, &persisted)
	if err != nil {
		logger.Warn("failed to persist scan", "run_id", runID, "error", err)
		result.SinkErrors = append(result.SinkErrors, err.Error())
	} else {
		result.SinkErrors = append(result.SinkErrors, persisted.SinkErrors...)
	}

	logger.Info("WalletScanWorkflow completed",
		"run_id", runID,
		"identified", result.Identified,
		"active", result.Active,
		"top_traders", len(result.TopTraders),
		"sink_errors", len(result.SinkErrors),
	)
	return result, nil
}
