// Package signers determines which entities must sign a payload.
package signers

import (
	"context"
	"fmt"

	"github.com/better-wallet/better-signer/pkg/types"
)

// ProfileSnapshot is the set of active entities on one network, and the
// factor sources that control them, at the time a ceremony starts. It is
// immutable once built.
type ProfileSnapshot struct {
	network       types.NetworkID
	entities      []types.Entity
	byAddress     map[types.Address]types.Entity
	factorSources map[types.FactorSourceID]types.FactorSource
}

// NewProfileSnapshot keeps the entities that belong to network
func NewProfileSnapshot(network types.NetworkID, entities []types.Entity) *ProfileSnapshot {
	p := &ProfileSnapshot{
		network:       network,
		byAddress:     make(map[types.Address]types.Entity, len(entities)),
		factorSources: make(map[types.FactorSourceID]types.FactorSource),
	}
	for _, e := range entities {
		if e.NetworkID != network {
			continue
		}
		if _, dup := p.byAddress[e.Address]; dup {
			continue
		}
		p.entities = append(p.entities, e)
		p.byAddress[e.Address] = e
	}
	return p
}

// EntitySource lists the active entities of a network
type EntitySource interface {
	ActiveEntities(ctx context.Context, network types.NetworkID) ([]types.Entity, error)
}

// LoadProfileSnapshot builds a snapshot from persisted entities
func LoadProfileSnapshot(ctx context.Context, source EntitySource, network types.NetworkID) (*ProfileSnapshot, error) {
	entities, err := source.ActiveEntities(ctx, network)
	if err != nil {
		return nil, fmt.Errorf("failed to load active entities: %w", err)
	}
	return NewProfileSnapshot(network, entities), nil
}

// WithFactorSources returns a copy of the snapshot that also knows sources
func (p *ProfileSnapshot) WithFactorSources(sources ...types.FactorSource) *ProfileSnapshot {
	cp := *p
	cp.factorSources = make(map[types.FactorSourceID]types.FactorSource, len(p.factorSources)+len(sources))
	for id, fs := range p.factorSources {
		cp.factorSources[id] = fs
	}
	for _, fs := range sources {
		cp.factorSources[fs.ID] = fs
	}
	return &cp
}

// FactorSourceLister lists the registered factor sources
type FactorSourceLister interface {
	List(ctx context.Context) ([]*types.FactorSource, error)
}

// LoadProfile builds a snapshot from persisted entities and factor sources
func LoadProfile(ctx context.Context, entities EntitySource, factors FactorSourceLister, network types.NetworkID) (*ProfileSnapshot, error) {
	snapshot, err := LoadProfileSnapshot(ctx, entities, network)
	if err != nil {
		return nil, err
	}
	sources, err := factors.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load factor sources: %w", err)
	}
	values := make([]types.FactorSource, 0, len(sources))
	for _, fs := range sources {
		values = append(values, *fs)
	}
	return snapshot.WithFactorSources(values...), nil
}

// FactorSource looks a registered factor source up
func (p *ProfileSnapshot) FactorSource(id types.FactorSourceID) (types.FactorSource, bool) {
	fs, ok := p.factorSources[id]
	return fs, ok
}

// NetworkID is the network the snapshot was taken on
func (p *ProfileSnapshot) NetworkID() types.NetworkID {
	return p.network
}

// ActiveEntity looks an address up
func (p *ProfileSnapshot) ActiveEntity(address types.Address) (types.Entity, bool) {
	e, ok := p.byAddress[address]
	return e, ok
}

// Entities returns every entity in the snapshot
func (p *ProfileSnapshot) Entities() []types.Entity {
	return append([]types.Entity(nil), p.entities...)
}
