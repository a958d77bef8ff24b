package mocks

import (
	"context"
	"sync"

	"github.com/better-wallet/better-signer/pkg/types"
)

// MockSeedPhrasePrompter records prompts and optionally answers them.
type MockSeedPhrasePrompter struct {
	mu       sync.Mutex
	prompted []types.FactorSourceID

	// OnRequest, when set, is invoked for every prompt. It may answer
	// synchronously through the executor's confirmation callbacks.
	OnRequest func(fs types.FactorSource)
}

// NewMockSeedPhrasePrompter creates a prompter that only records.
func NewMockSeedPhrasePrompter() *MockSeedPhrasePrompter {
	return &MockSeedPhrasePrompter{}
}

// RequestSeedPhrase records the prompt and calls OnRequest.
func (p *MockSeedPhrasePrompter) RequestSeedPhrase(ctx context.Context, fs types.FactorSource) {
	p.mu.Lock()
	p.prompted = append(p.prompted, fs.ID)
	hook := p.OnRequest
	p.mu.Unlock()

	if hook != nil {
		hook(fs)
	}
}

// Prompted returns the factor sources prompted for, in order.
func (p *MockSeedPhrasePrompter) Prompted() []types.FactorSourceID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]types.FactorSourceID(nil), p.prompted...)
}
