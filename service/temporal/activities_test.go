package temporal

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"

	"github.com/brojonat/traderscan/service/wallet"
)

// Mock Identifier
type MockIdentifier struct {
	mock.Mock
}

func (m *MockIdentifier) Identify(ctx context.Context, p wallet.IdentifyParams) (*wallet.IdentifyResult, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*wallet.IdentifyResult), args.Error(1)
}

// Mock Analyzer
type MockAnalyzer struct {
	mock.Mock
}

func (m *MockAnalyzer) Analyze(ctx context.Context, addresses []string) (*wallet.AnalysisResult, error) {
	args := m.Called(ctx, addresses)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*wallet.AnalysisResult), args.Error(1)
}

func (m *MockAnalyzer) Params() wallet.AnalyzeParams {
	return wallet.DefaultAnalyzeParams()
}

// Mock Persister
type MockPersister struct {
	mock.Mock
}

func (m *MockPersister) Persist(ctx context.Context, run *wallet.Run) []string {
	args := m.Called(ctx, run)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]string)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newActivityEnv(acts *Activities) *testsuite.TestActivityEnvironment {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestActivityEnvironment()
	env.RegisterActivity(acts)
	return env
}

func TestIdentifyWallets(t *testing.T) {
	params := wallet.IdentifyParams{NumSignatures: 50, MinTransactions: 2}

	t.Run("returns identified wallets", func(t *testing.T) {
		identifier := new(MockIdentifier)
		identifier.On("Identify", mock.Anything, params).Return(testIdentified(), nil)

		acts := NewActivities(identifier, nil, nil, nil, testLogger())
		val, err := newActivityEnv(acts).ExecuteActivity(acts.IdentifyWallets, IdentifyWalletsInput{Params: params})
		require.NoError(t, err)

		var result wallet.IdentifyResult
		require.NoError(t, val.Get(&result))
		assert.Equal(t, []string{"walletA", "walletB", "walletC", "walletD"}, result.Wallets)
		identifier.AssertExpectations(t)
	})

	t.Run("propagates errors", func(t *testing.T) {
		identifier := new(MockIdentifier)
		identifier.On("Identify", mock.Anything, params).Return(nil, context.Canceled)

		acts := NewActivities(identifier, nil, nil, nil, testLogger())
		_, err := newActivityEnv(acts).ExecuteActivity(acts.IdentifyWallets, IdentifyWalletsInput{Params: params})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to identify wallets")
	})
}

func TestAnalyzeWallets(t *testing.T) {
	addrs := []string{"walletA", "walletB"}

	analyzer := new(MockAnalyzer)
	analyzer.On("Analyze", mock.Anything, addrs).Return(testAnalysis(), nil).Once()
	analyzer.On("Analyze", mock.Anything, []string{"bad"}).Return(nil, errors.New("context canceled")).Once()

	acts := NewActivities(nil, analyzer, nil, nil, testLogger())
	env := newActivityEnv(acts)

	val, err := env.ExecuteActivity(acts.AnalyzeWallets, AnalyzeWalletsInput{Addresses: addrs})
	require.NoError(t, err)
	var result AnalyzeWalletsResult
	require.NoError(t, val.Get(&result))
	require.NotNil(t, result.Analysis)
	assert.Len(t, result.Analysis.ActiveWallets, 2)
	assert.Equal(t, 30, result.Params.TimeFrameDays)
	assert.Equal(t, 200*time.Millisecond, result.Params.Pacing)

	_, err = env.ExecuteActivity(acts.AnalyzeWallets, AnalyzeWalletsInput{Addresses: []string{"bad"}})
	assert.Error(t, err)
	analyzer.AssertExpectations(t)
}

func TestPersistScan(t *testing.T) {
	t.Run("reports sink errors without failing", func(t *testing.T) {
		persister := new(MockPersister)
		persister.On("Persist", mock.Anything, mock.MatchedBy(func(r *wallet.Run) bool { return r.ID == "run-1" })).
			Return([]string{"nats: timeout"})

		acts := NewActivities(nil, nil, persister, nil, testLogger())
		val, err := newActivityEnv(acts).ExecuteActivity(acts.PersistScan, PersistScanInput{Run: &wallet.Run{ID: "run-1"}})
		require.NoError(t, err)

		var result PersistScanResult
		require.NoError(t, val.Get(&result))
		assert.Equal(t, []string{"nats: timeout"}, result.SinkErrors)
	})

	t.Run("requires a run", func(t *testing.T) {
		acts := NewActivities(nil, nil, new(MockPersister), nil, testLogger())
		_, err := newActivityEnv(acts).ExecuteActivity(acts.PersistScan, PersistScanInput{})
		assert.Error(t, err)
	})
}

func TestWalletEngineSatisfiesActivityDeps(t *testing.T) {
	var _ PersisterInterface = (*wallet.Pipeline)(nil)
	var _ IdentifierInterface = (*wallet.Identifier)(nil)
	var _ AnalyzerInterface = (*wallet.Analyzer)(nil)
}

func TestMockScheduler(t *testing.T) {
	ctx := context.Background()
	s := NewMockScheduler()
	params := wallet.IdentifyParams{NumSignatures: 10, MinTransactions: 1}

	require.NoError(t, s.UpsertScanSchedule(ctx, "hourly", time.Hour, params))
	require.NoError(t, s.UpsertScanSchedule(ctx, "hourly", 2*time.Hour, params))
	assert.Equal(t, 1, s.ScheduleCount())

	interval, got, ok := s.GetSchedule("hourly")
	require.True(t, ok)
	assert.Equal(t, 2*time.Hour, interval)
	assert.Equal(t, params, got)

	id, err := s.StartScan(ctx, "run-9", params)
	require.NoError(t, err)
	assert.Equal(t, "wallet-scan-run-9", id)
	assert.Equal(t, []string{"run-9"}, s.StartedScans())

	require.NoError(t, s.DeleteScanSchedule(ctx, "hourly"))
	assert.False(t, s.ScheduleExists("hourly"))
	assert.Error(t, s.DeleteScanSchedule(ctx, "hourly"))

	s.SetStartError(errors.New("temporal unavailable"))
	_, err = s.StartScan(ctx, "run-10", params)
	assert.Error(t, err)
}

func TestScheduleIDs(t *testing.T) {
	assert.Equal(t, "wallet-scan-schedule-hourly", scheduleID("hourly"))
	assert.Equal(t, "wallet-scan-abc", scanWorkflowID("abc"))
}
