package mocks

import (
	"context"
	"sync"

	"github.com/better-wallet/better-signer/pkg/types"
)

// MockManifestAnalyzer returns fixed addresses for every manifest.
type MockManifestAnalyzer struct {
	mu    sync.Mutex
	calls int

	Accounts   []types.Address
	Identities []types.Address
	Err        error
}

// NewMockManifestAnalyzer creates an analyzer reporting the given addresses.
func NewMockManifestAnalyzer(accounts, identities []types.Address) *MockManifestAnalyzer {
	return &MockManifestAnalyzer{Accounts: accounts, Identities: identities}
}

// EntitiesRequiringAuth returns the configured addresses.
func (m *MockManifestAnalyzer) EntitiesRequiringAuth(ctx context.Context, manifest types.Manifest) ([]types.Address, []types.Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.Err != nil {
		return nil, nil, m.Err
	}
	return append([]types.Address(nil), m.Accounts...), append([]types.Address(nil), m.Identities...), nil
}

// Calls returns the number of analyses performed.
func (m *MockManifestAnalyzer) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
