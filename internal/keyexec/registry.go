package keyexec

import (
	"fmt"
	"sync"

	apperrors "github.com/better-wallet/better-signer/pkg/errors"
	"github.com/better-wallet/better-signer/pkg/types"
)

// Registry dispatches to the access strategy of a factor source kind
type Registry struct {
	mu         sync.RWMutex
	strategies map[types.FactorSourceKind]FactorSourceAccess
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{strategies: make(map[types.FactorSourceKind]FactorSourceAccess)}
}

// Register installs the strategy for kind, replacing any previous one
func (r *Registry) Register(kind types.FactorSourceKind, access FactorSourceAccess) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[kind] = access
}

// For returns the strategy for kind
func (r *Registry) For(kind types.FactorSourceKind) (FactorSourceAccess, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	access, ok := r.strategies[kind]
	if !ok {
		return nil, apperrors.PrepareTransactionFailed(fmt.Errorf("no access strategy registered for %s", kind))
	}
	return access, nil
}

var (
	_ FactorSourceAccess = (*DeviceExecutor)(nil)
	_ FactorSourceAccess = (*LedgerExecutor)(nil)
	_ FactorSourceAccess = (*OffDeviceExecutor)(nil)
)
