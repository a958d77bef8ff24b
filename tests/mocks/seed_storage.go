// Package mocks provides mock implementations for testing.
package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/better-wallet/better-signer/internal/crypto"
	"github.com/better-wallet/better-signer/internal/keyexec"
	"github.com/better-wallet/better-signer/pkg/types"
)

// MockMnemonicStore is an in-memory MnemonicStore with call tracking.
type MockMnemonicStore struct {
	mu          sync.RWMutex
	mnemonics   map[types.FactorSourceID]crypto.MnemonicWithPassphrase
	existsCalls int
	readCalls   int

	// ReadErr, when set, is returned by Read for every id
	ReadErr error
	// ExistsErr, when set, is returned by Exists for every id
	ExistsErr error
}

// NewMockMnemonicStore creates an empty store.
func NewMockMnemonicStore() *MockMnemonicStore {
	return &MockMnemonicStore{mnemonics: make(map[types.FactorSourceID]crypto.MnemonicWithPassphrase)}
}

// Put stores a mnemonic under id.
func (m *MockMnemonicStore) Put(id types.FactorSourceID, mnemonic crypto.MnemonicWithPassphrase) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mnemonics[id] = mnemonic
}

// Delete removes the mnemonic stored under id.
func (m *MockMnemonicStore) Delete(id types.FactorSourceID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.mnemonics, id)
}

// Exists reports whether a mnemonic is stored.
func (m *MockMnemonicStore) Exists(ctx context.Context, id types.FactorSourceID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.existsCalls++
	if m.ExistsErr != nil {
		return false, m.ExistsErr
	}
	_, ok := m.mnemonics[id]
	return ok, nil
}

// Read returns the stored mnemonic or keyexec.ErrMnemonicNotFound.
func (m *MockMnemonicStore) Read(ctx context.Context, id types.FactorSourceID) (crypto.MnemonicWithPassphrase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readCalls++
	if m.ReadErr != nil {
		return crypto.MnemonicWithPassphrase{}, m.ReadErr
	}
	mnemonic, ok := m.mnemonics[id]
	if !ok {
		return crypto.MnemonicWithPassphrase{}, fmt.Errorf("%s: %w", id, keyexec.ErrMnemonicNotFound)
	}
	return mnemonic, nil
}

// ReadCalls returns how many times Read was invoked.
func (m *MockMnemonicStore) ReadCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.readCalls
}

// ExistsCalls returns how many times Exists was invoked.
func (m *MockMnemonicStore) ExistsCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.existsCalls
}

// MockAccessGate records prompts and answers with a configurable result.
type MockAccessGate struct {
	mu      sync.Mutex
	calls   int
	reasons []string

	// Err is returned from Authenticate; nil approves
	Err error
}

// NewMockAccessGate creates an approving gate.
func NewMockAccessGate() *MockAccessGate {
	return &MockAccessGate{}
}

// Decline makes every prompt fail with keyexec.ErrGateDeclined.
func (g *MockAccessGate) Decline() *MockAccessGate {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Err = keyexec.ErrGateDeclined
	return g
}

// Authenticate records the prompt and returns Err.
func (g *MockAccessGate) Authenticate(ctx context.Context, reason string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.reasons = append(g.reasons, reason)
	return g.Err
}

// Calls returns how many prompts were shown.
func (g *MockAccessGate) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// Reasons returns the prompt texts in order.
func (g *MockAccessGate) Reasons() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.reasons...)
}

// MockLastUsedRecorder counts UpdateLastUsed calls per factor source.
type MockLastUsedRecorder struct {
	mu    sync.Mutex
	calls map[types.FactorSourceID]int

	// Err is returned from UpdateLastUsed
	Err error
}

// NewMockLastUsedRecorder creates a recorder.
func NewMockLastUsedRecorder() *MockLastUsedRecorder {
	return &MockLastUsedRecorder{calls: make(map[types.FactorSourceID]int)}
}

// UpdateLastUsed records the call.
func (r *MockLastUsedRecorder) UpdateLastUsed(ctx context.Context, id types.FactorSourceID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[id]++
	return r.Err
}

// Calls returns how many times id was updated.
func (r *MockLastUsedRecorder) Calls(id types.FactorSourceID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[id]
}

// Total returns the number of updates across all ids.
func (r *MockLastUsedRecorder) Total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		n += c
	}
	return n
}
