package nats

import (
	"context"
	"sync"
)

// MockPublisher is a mock implementation of Publisher for testing.
type MockPublisher struct {
	mu              sync.RWMutex
	walletEvents    []*WalletEvent
	runEvents       []*RunEvent
	walletErrors    map[string]error
	publishRunError error
	closed          bool
}

// NewMockPublisher creates a new mock publisher for testing.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{
		walletEvents: make([]*WalletEvent, 0),
		runEvents:    make([]*RunEvent, 0),
		walletErrors: make(map[string]error),
	}
}

// PublishWallet records the event and returns any error configured for its address.
func (m *MockPublisher) PublishWallet(ctx context.Context, event *WalletEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.walletErrors[event.Address]; err != nil {
		return err
	}

	m.walletEvents = append(m.walletEvents, event)
	return nil
}

// PublishRun records the event and returns any configured error.
func (m *MockPublisher) PublishRun(ctx context.Context, event *RunEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishRunError != nil {
		return m.publishRunError
	}

	m.runEvents = append(m.runEvents, event)
	return nil
}

// Close marks the publisher as closed.
func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// GetWalletEvents returns all published wallet events.
func (m *MockPublisher) GetWalletEvents() []*WalletEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*WalletEvent, len(m.walletEvents))
	copy(events, m.walletEvents)
	return events
}

// GetRunEvents returns all published run events.
func (m *MockPublisher) GetRunEvents() []*RunEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*RunEvent, len(m.runEvents))
	copy(events, m.runEvents)
	return events
}

// SetWalletError makes PublishWallet fail for address.
func (m *MockPublisher) SetWalletError(address string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.walletErrors[address] = err
}

// SetPublishRunError configures the mock to return an error on PublishRun.
func (m *MockPublisher) SetPublishRunError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishRunError = err
}

// Reset clears all published events and errors.
func (m *MockPublisher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.walletEvents = make([]*WalletEvent, 0)
	m.runEvents = make([]*RunEvent, 0)
	m.walletErrors = make(map[string]error)
	m.publishRunError = nil
	m.closed = false
}

// IsClosed returns whether the publisher has been closed.
func (m *MockPublisher) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
