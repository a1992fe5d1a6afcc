package wallet

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/traderscan/service/solana"
)

type recordingSink struct {
	runs []*Run
	err  error
}

func (s *recordingSink) RecordRun(ctx context.Context, run *Run) error {
	s.runs = append(s.runs, run)
	return s.err
}

func pipelineSource() *fakeSource {
	src := traderSource()
	src.recent = []string{"s1", "s2"}
	src.details["s1"] = &solana.TransactionDetail{AccountKeys: keys("A", "B")}
	src.details["s2"] = &solana.TransactionDetail{AccountKeys: keys("A", "B", "C")}
	return src
}

func newTestPipeline(src Source, sinks ...Sink) *Pipeline {
	return NewPipeline(
		NewIdentifier(src, 2, nil, testLogger()),
		newTestAnalyzer(src, nil),
		nil,
		testLogger(),
		sinks...,
	)
}

func TestPipeline_Run(t *testing.T) {
	sink := &recordingSink{}
	p := newTestPipeline(pipelineSource(), sink, nil)

	run, err := p.Run(context.Background(), "run-1", IdentifyParams{NumSignatures: 2, MinTransactions: 2, MaxWallets: 10})
	require.NoError(t, err)

	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, []string{"A", "B"}, run.Identified.Wallets)
	require.Len(t, run.Analysis.ActiveWallets, 1)
	assert.Equal(t, "A", run.Analysis.ActiveWallets[0].Address)
	assert.Equal(t, []string{"B"}, run.Analysis.Inactive)
	assert.Empty(t, run.SinkErrors)
	assert.False(t, run.FinishedAt.IsZero())

	require.Len(t, sink.runs, 1)
	assert.Same(t, run, sink.runs[0])
}

func TestPipeline_SinkErrorsAreNotFatal(t *testing.T) {
	failing := &recordingSink{err: errors.New("database unavailable")}
	healthy := &recordingSink{}
	p := newTestPipeline(pipelineSource(), failing, healthy)

	run, err := p.Run(context.Background(), "run-2", IdentifyParams{NumSignatures: 2, MinTransactions: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"database unavailable"}, run.SinkErrors)
	assert.Len(t, healthy.runs, 1)
}

func TestPipeline_CancelledRunSkipsSinks(t *testing.T) {
	sink := &recordingSink{}
	p := newTestPipeline(pipelineSource(), sink)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := p.Run(ctx, "run-3", DefaultIdentifyParams())
	assert.True(t, errors.Is(err, context.Canceled))
	require.NotNil(t, run)
	assert.Empty(t, sink.runs)
}
