package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/better-wallet/better-signer/internal/ledger"
)

// MockLedgerTransport answers device requests in-process with a ledger.Handler.
type MockLedgerTransport struct {
	mu       sync.Mutex
	handler  ledger.Handler
	requests []ledger.Request

	shouldFail    bool
	failOnNthCall int
	callCount     int

	// Rewrite, when set, may alter each response before it is returned
	Rewrite func(req *ledger.Request, resp *ledger.Response)
}

// NewMockLedgerTransport creates a transport backed by handler.
func NewMockLedgerTransport(handler ledger.Handler) *MockLedgerTransport {
	return &MockLedgerTransport{handler: handler}
}

// SetShouldFail makes every exchange fail at the transport level.
func (m *MockLedgerTransport) SetShouldFail(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shouldFail = fail
}

// SetFailOnNthCall makes only the nth exchange fail.
func (m *MockLedgerTransport) SetFailOnNthCall(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failOnNthCall = n
}

// Exchange records the request and hands it to the handler.
func (m *MockLedgerTransport) Exchange(ctx context.Context, req *ledger.Request) (*ledger.Response, error) {
	m.mu.Lock()
	m.callCount++
	m.requests = append(m.requests, *req)
	fail := m.shouldFail || (m.failOnNthCall > 0 && m.callCount == m.failOnNthCall)
	rewrite := m.Rewrite
	m.mu.Unlock()

	if fail {
		return nil, fmt.Errorf("mock transport failure")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resp := m.handler.Handle(ctx, req)
	if rewrite != nil {
		rewrite(req, resp)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return resp, nil
}

// Name returns the transport name.
func (m *MockLedgerTransport) Name() string {
	return "mock"
}

// Requests returns a copy of every request seen.
func (m *MockLedgerTransport) Requests() []ledger.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ledger.Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// CallCount returns the number of exchanges attempted.
func (m *MockLedgerTransport) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}
