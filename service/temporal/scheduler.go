package temporal

import (
	"context"
	"time"

	"github.com/brojonat/traderscan/service/wallet"
)

// WorkflowName is the registered name of WalletScanWorkflow.
const WorkflowName = "WalletScanWorkflow"

// Scheduler manages recurring and one-off wallet scans.
// Each named schedule triggers WalletScanWorkflow on its interval.
type Scheduler interface {
	// UpsertScanSchedule creates the named schedule, or updates its interval
	// and parameters if it already exists.
	UpsertScanSchedule(ctx context.Context, name string, interval time.Duration, params wallet.IdentifyParams) error

	// DeleteScanSchedule deletes the named schedule.
	DeleteScanSchedule(ctx context.Context, name string) error

	// StartScan starts a single scan now and returns its workflow ID.
	StartScan(ctx context.Context, runID string, params wallet.IdentifyParams) (string, error)
}

// scheduleID returns the Temporal schedule ID for a schedule name.
func scheduleID(name string) string {
	return "wallet-scan-schedule-" + name
}

// scanWorkflowID returns the workflow ID of an on-demand scan.
func scanWorkflowID(runID string) string {
	return "wallet-scan-" + runID
}
