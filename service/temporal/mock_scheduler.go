package temporal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/brojonat/traderscan/service/wallet"
)

// MockScheduler is a mock implementation of Scheduler for testing.
type MockScheduler struct {
	mu        sync.Mutex
	schedules map[string]time.Duration // map[scheduleID]interval
	params    map[string]wallet.IdentifyParams
	started   []string
	startArgs []wallet.IdentifyParams
	createErr error
	deleteErr error
	startErr  error
}

var _ Scheduler = (*MockScheduler)(nil)

// NewMockScheduler creates a new MockScheduler.
func NewMockScheduler() *MockScheduler {
	return &MockScheduler{
		schedules: make(map[string]time.Duration),
		params:    make(map[string]wallet.IdentifyParams),
	}
}

// UpsertScanSchedule creates or updates a schedule.
func (m *MockScheduler) UpsertScanSchedule(ctx context.Context, name string, interval time.Duration, params wallet.IdentifyParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.createErr != nil {
		return m.createErr
	}

	id := scheduleID(name)
	m.schedules[id] = interval
	m.params[id] = params
	return nil
}

// DeleteScanSchedule records that a schedule was deleted.
func (m *MockScheduler) DeleteScanSchedule(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.deleteErr != nil {
		return m.deleteErr
	}

	id := scheduleID(name)
	if _, exists := m.schedules[id]; !exists {
		return fmt.Errorf("schedule %q not found", id)
	}

	delete(m.schedules, id)
	delete(m.params, id)
	return nil
}

// StartScan records the run ID and returns its workflow ID.
func (m *MockScheduler) StartScan(ctx context.Context, runID string, params wallet.IdentifyParams) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.startErr != nil {
		return "", m.startErr
	}

	m.started = append(m.started, runID)
	m.startArgs = append(m.startArgs, params)
	return scanWorkflowID(runID), nil
}

// SetCreateError makes UpsertScanSchedule return an error.
func (m *MockScheduler) SetCreateError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createErr = err
}

// SetDeleteError makes DeleteScanSchedule return an error.
func (m *MockScheduler) SetDeleteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteErr = err
}

// SetStartError makes StartScan return an error.
func (m *MockScheduler) SetStartError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startErr = err
}

// ScheduleExists checks if the named schedule exists.
func (m *MockScheduler) ScheduleExists(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, exists := m.schedules[scheduleID(name)]
	return exists
}

// GetSchedule returns the interval and parameters of the named schedule.
func (m *MockScheduler) GetSchedule(name string) (time.Duration, wallet.IdentifyParams, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := scheduleID(name)
	interval, exists := m.schedules[id]
	return interval, m.params[id], exists
}

// StartedScans returns the run IDs passed to StartScan, in order.
func (m *MockScheduler) StartedScans() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.started...)
}

// StartedParams returns the parameters passed to StartScan, in order.
func (m *MockScheduler) StartedParams() []wallet.IdentifyParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]wallet.IdentifyParams(nil), m.startArgs...)
}

// ScheduleCount returns the number of schedules.
func (m *MockScheduler) ScheduleCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.schedules)
}

// Reset clears all schedules and errors.
func (m *MockScheduler) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules = make(map[string]time.Duration)
	m.params = make(map[string]wallet.IdentifyParams)
	m.started = nil
	m.startArgs = nil
	m.createErr = nil
	m.deleteErr = nil
	m.startErr = nil
}
