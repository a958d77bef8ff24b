package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/better-wallet/better-signer/pkg/types"
)

// EntityRepository handles account and persona rows
type EntityRepository struct {
	store *Store
}

// NewEntityRepository creates a new EntityRepository
func NewEntityRepository(store *Store) *EntityRepository {
	return &EntityRepository{store: store}
}

// Create inserts an unsecured entity
func (r *EntityRepository) Create(ctx context.Context, entity *types.Entity) error {
	return r.CreateTx(ctx, r.store.pool, entity)
}

// CreateTx inserts an unsecured entity using the provided transaction or connection
func (r *EntityRepository) CreateTx(ctx context.Context, db DBTX, entity *types.Entity) error {
	instance, ok := entity.TransactionSigningInstance()
	if !ok {
		return fmt.Errorf("entity %s has no transaction signing factor instance", entity.Address)
	}
	row := encodeFactorInstance(instance)

	query := `
		INSERT INTO entities (address, kind, network_id, display_name, factor_source_id, curve, public_key_hex, derivation_path, hidden)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := db.Exec(ctx, query,
		string(entity.Address),
		string(entity.Kind),
		int16(entity.NetworkID),
		entity.DisplayName,
		row.FactorSourceID,
		row.Curve,
		row.PublicKeyHex,
		row.DerivationPath,
		entity.Hidden,
	)
	if err != nil {
		return fmt.Errorf("failed to create entity: %w", err)
	}
	return nil
}

// ActiveEntities returns the entities of a network that have not been deleted
func (r *EntityRepository) ActiveEntities(ctx context.Context, network types.NetworkID) ([]types.Entity, error) {
	query := `
		SELECT address, kind, network_id, display_name, factor_source_id, curve, public_key_hex, derivation_path, hidden
		FROM entities
		WHERE network_id = $1 AND deleted_at IS NULL
		ORDER BY created_at
	`

	rows, err := r.store.pool.Query(ctx, query, int16(network))
	if err != nil {
		return nil, fmt.Errorf("failed to list active entities: %w", err)
	}
	defer rows.Close()

	var entities []types.Entity
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		entities = append(entities, entity)
	}
	return entities, rows.Err()
}

// Delete tombstones an entity so it no longer resolves as a signer
func (r *EntityRepository) Delete(ctx context.Context, address types.Address) error {
	_, err := r.store.pool.Exec(ctx, `UPDATE entities SET deleted_at = NOW() WHERE address = $1`, string(address))
	if err != nil {
		return fmt.Errorf("failed to delete entity: %w", err)
	}
	return nil
}

// factorInstanceRow is the column form of a factor instance
type factorInstanceRow struct {
	FactorSourceID string
	Curve          string
	PublicKeyHex   string
	DerivationPath string
}

func encodeFactorInstance(instance types.FactorInstance) factorInstanceRow {
	return factorInstanceRow{
		FactorSourceID: instance.FactorSourceID.String(),
		Curve:          instance.PublicKey.Curve.String(),
		PublicKeyHex:   instance.PublicKey.Hex(),
		DerivationPath: string(instance.DerivationPath),
	}
}

func decodeFactorInstance(row factorInstanceRow) (types.FactorInstance, error) {
	id, err := types.ParseFactorSourceID(row.FactorSourceID)
	if err != nil {
		return types.FactorInstance{}, err
	}
	curve, err := types.ParseCurve(row.Curve)
	if err != nil {
		return types.FactorInstance{}, err
	}
	pub, err := types.PublicKeyFromHex(curve, row.PublicKeyHex)
	if err != nil {
		return types.FactorInstance{}, err
	}
	if row.DerivationPath == "" {
		return types.FactorInstance{}, fmt.Errorf("empty derivation path")
	}
	return types.FactorInstance{
		FactorSourceID: id,
		PublicKey:      pub,
		DerivationPath: types.DerivationPath(row.DerivationPath),
	}, nil
}

func scanEntity(row pgx.Row) (types.Entity, error) {
	var (
		entity  types.Entity
		address string
		kind    string
		network int16
		fi      factorInstanceRow
	)
	err := row.Scan(&address, &kind, &network, &entity.DisplayName,
		&fi.FactorSourceID, &fi.Curve, &fi.PublicKeyHex, &fi.DerivationPath, &entity.Hidden)
	if err != nil {
		return types.Entity{}, err
	}

	instance, err := decodeFactorInstance(fi)
	if err != nil {
		return types.Entity{}, fmt.Errorf("entity %s: %w", address, err)
	}

	entity.Address = types.Address(address)
	entity.Kind = types.EntityKind(kind)
	entity.NetworkID = types.NetworkID(network)
	entity.SecurityState = types.SecurityState{
		Unsecured: &types.UnsecuredEntityControl{TransactionSigning: instance},
	}
	return entity, nil
}
