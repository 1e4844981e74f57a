// Package testutil provides common testing utilities and mock
// implementations of the external capability interfaces.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/NairaLink/chat_layer/internal/app/domain/money"
	"github.com/NairaLink/chat_layer/internal/app/domain/notification"
	"github.com/NairaLink/chat_layer/internal/app/services/custody"
)

// MockGateway is a scriptable custody.Gateway for tests.
type MockGateway struct {
	mu sync.Mutex

	Balances map[string]money.Amount // address -> balance

	// SubmitErrs is consumed front-first by funds-moving calls; a nil entry
	// means success.
	SubmitErrs []error
	// Statuses is consumed by TransactionStatus calls; the last entry
	// repeats once the script is exhausted. Empty means always confirmed.
	Statuses []custody.TxStatus
	// StatusErrs, when non-empty, is consumed before Statuses.
	StatusErrs []error

	nextTx      int
	SubmitCalls int
	StatusCalls int
	Transfers   []string // "signer->recipient:amount"
}

// NewMockGateway creates a gateway with no scripted failures.
func NewMockGateway() *MockGateway {
	return &MockGateway{Balances: make(map[string]money.Amount)}
}

func (m *MockGateway) BalanceOf(_ context.Context, address, _ string) (money.Amount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Balances[address], nil
}

func (m *MockGateway) Deposit(_ context.Context, signer, _ string, amount money.Amount) (string, error) {
	return m.submit()
}

func (m *MockGateway) Transfer(_ context.Context, signer, recipient string, amount money.Amount) (string, error) {
	m.mu.Lock()
	m.Transfers = append(m.Transfers, fmt.Sprintf("%s->%s:%d", signer, recipient, int64(amount)))
	m.mu.Unlock()
	return m.submit()
}

func (m *MockGateway) Withdraw(_ context.Context, signer, _ string, amount money.Amount, _ string) (string, error) {
	return m.submit()
}

func (m *MockGateway) submit() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SubmitCalls++
	if len(m.SubmitErrs) > 0 {
		err := m.SubmitErrs[0]
		m.SubmitErrs = m.SubmitErrs[1:]
		if err != nil {
			return "", err
		}
	}
	m.nextTx++
	return fmt.Sprintf("0xtx%04d", m.nextTx), nil
}

func (m *MockGateway) TransactionStatus(_ context.Context, _ string) (custody.TxStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StatusCalls++
	if len(m.StatusErrs) > 0 {
		err := m.StatusErrs[0]
		m.StatusErrs = m.StatusErrs[1:]
		if err != nil {
			return "", err
		}
	}
	if len(m.Statuses) == 0 {
		return custody.TxConfirmed, nil
	}
	status := m.Statuses[0]
	if len(m.Statuses) > 1 {
		m.Statuses = m.Statuses[1:]
	}
	return status, nil
}

// MockSender records outbound chat messages.
type MockSender struct {
	mu       sync.Mutex
	Messages []string // "userID: text"
	Fail     bool
}

func (m *MockSender) Send(_ context.Context, userID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail {
		return fmt.Errorf("channel unavailable")
	}
	m.Messages = append(m.Messages, userID+": "+text)
	return nil
}

// SetFail toggles send failures. Safe to call while a dispatcher runs.
func (m *MockSender) SetFail(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Fail = fail
}

// Sent returns a copy of the recorded messages.
func (m *MockSender) Sent() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Messages...)
}

// MockNotifier records notification enqueues without running a dispatcher.
type MockNotifier struct {
	mu   sync.Mutex
	Jobs []notification.Job
}

func (m *MockNotifier) Enqueue(userID, message string, kind notification.Kind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Jobs = append(m.Jobs, notification.Job{UserID: userID, Message: message, Kind: kind})
}

// Count returns the number of recorded jobs of the given kind.
func (m *MockNotifier) Count(kind notification.Kind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, j := range m.Jobs {
		if j.Kind == kind {
			n++
		}
	}
	return n
}
