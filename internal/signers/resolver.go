package signers

import (
	"context"
	"fmt"

	"github.com/better-wallet/better-signer/internal/logger"
	apperrors "github.com/better-wallet/better-signer/pkg/errors"
	"github.com/better-wallet/better-signer/pkg/types"
)

// ManifestAnalyzer reports the addresses whose authorization a manifest requires
type ManifestAnalyzer interface {
	EntitiesRequiringAuth(ctx context.Context, m types.Manifest) (accounts []types.Address, identities []types.Address, err error)
}

// Resolver maps required addresses to profile entities
type Resolver struct {
	analyzer ManifestAnalyzer
	profile  *ProfileSnapshot
}

// NewResolver creates a resolver over a profile snapshot
func NewResolver(analyzer ManifestAnalyzer, profile *ProfileSnapshot) *Resolver {
	return &Resolver{analyzer: analyzer, profile: profile}
}

// Resolve returns the entities that must sign a manifest: accounts first,
// then personas, each in manifest order without duplicates. An address that
// is not an active entity fails the whole resolution.
func (r *Resolver) Resolve(ctx context.Context, m types.Manifest) ([]types.Entity, error) {
	accounts, identities, err := r.analyzer.EntitiesRequiringAuth(ctx, m)
	if err != nil {
		return nil, apperrors.PrepareTransactionFailed(fmt.Errorf("manifest analysis failed: %w", err))
	}

	required := make([]types.Address, 0, len(accounts)+len(identities))
	required = append(required, accounts...)
	required = append(required, identities...)

	entities, err := r.lookup(required)
	if err != nil {
		return nil, err
	}
	logger.Debug(ctx, "resolved signers", "accounts", len(accounts), "identities", len(identities))
	return entities, nil
}

// ResolveAuth returns the entities for the addresses an auth challenge asks to prove
func (r *Resolver) ResolveAuth(ctx context.Context, addresses []types.Address) ([]types.Entity, error) {
	return r.lookup(addresses)
}

func (r *Resolver) lookup(addresses []types.Address) ([]types.Entity, error) {
	seen := make(map[types.Address]bool, len(addresses))
	entities := make([]types.Entity, 0, len(addresses))
	for _, address := range addresses {
		if seen[address] {
			continue
		}
		seen[address] = true

		entity, ok := r.profile.ActiveEntity(address)
		if !ok {
			return nil, apperrors.UnknownEntity(string(address))
		}
		entities = append(entities, entity)
	}
	return entities, nil
}

// OwnedInstances tags the transaction signing instance of each entity with its address
func OwnedInstances(entities []types.Entity) ([]types.OwnedFactorInstance, error) {
	owned := make([]types.OwnedFactorInstance, 0, len(entities))
	for _, e := range entities {
		instance, ok := e.TransactionSigningInstance()
		if !ok {
			return nil, apperrors.PrepareTransactionFailed(fmt.Errorf("entity %s is not controlled by a single factor instance", e.Address))
		}
		owned = append(owned, types.OwnedFactorInstance{Owner: e.Address, FactorInstance: instance})
	}
	return owned, nil
}
