package wallet

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/traderscan/service/metrics"
)

// Run is one identify + analyze pass and everything it produced.
type Run struct {
	ID         string          `json:"id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Identify   IdentifyParams  `json:"identify"`
	Analyze    AnalyzeParams   `json:"analyze"`
	Identified *IdentifyResult `json:"identified"`
	Analysis   *AnalysisResult `json:"analysis"`
	SinkErrors []string        `json:"sink_errors,omitempty"`
}

// Sink receives finished runs, e.g. a database or a message bus.
type Sink interface {
	RecordRun(ctx context.Context, run *Run) error
}

// Pipeline wires identification into analysis and hands the run to sinks.
type Pipeline struct {
	identifier *Identifier
	analyzer   *Analyzer
	sinks      []Sink
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewPipeline creates a Pipeline. Nil sinks are ignored.
func NewPipeline(identifier *Identifier, analyzer *Analyzer, m *metrics.Metrics, logger *slog.Logger, sinks ...Sink) *Pipeline {
	p := &Pipeline{
		identifier: identifier,
		analyzer:   analyzer,
		logger:     logger,
		metrics:    m,
	}
	for _, s := range sinks {
		if s != nil {
			p.sinks = append(p.sinks, s)
		}
	}
	return p
}

// Run executes a full pass. The run is returned even when ctx is cancelled
// midway so callers can report what was gathered.
func (p *Pipeline) Run(ctx context.Context, runID string, params IdentifyParams) (*Run, error) {
	start := time.Now()
	run := &Run{
		ID:        runID,
		StartedAt: start.UTC(),
		Identify:  params,
		Analyze:   p.analyzer.Params(),
	}

	status := "success"
	defer func() {
		if p.metrics != nil {
			p.metrics.RecordScanRun(status, time.Since(start).Seconds())
		}
	}()

	identified, err := p.identifier.Identify(ctx, params)
	if err != nil {
		status = "error"
		return run, fmt.Errorf("identify wallets: %w", err)
	}
	run.Identified = identified

	analysis, err := p.analyzer.Analyze(ctx, identified.Wallets)
	run.Analysis = analysis
	run.FinishedAt = time.Now().UTC()
	if err != nil {
		status = "error"
		return run, fmt.Errorf("analyze wallets: %w", err)
	}

	run.SinkErrors = p.Persist(ctx, run)
	if len(run.SinkErrors) > 0 {
		status = "partial"
	}
	return run, nil
}

// Persist hands run to every sink. Sink failures are logged and returned as
// messages; they never fail the run.
func (p *Pipeline) Persist(ctx context.Context, run *Run) []string {
	var errs []string
	for _, sink := range p.sinks {
		if err := sink.RecordRun(ctx, run); err != nil {
			p.logger.ErrorContext(ctx, "failed to record run",
				"run_id", run.ID,
				"sink", fmt.Sprintf("%T", sink),
				"error", err,
			)
			errs = append(errs, err.Error())
		}
	}
	return errs
}
