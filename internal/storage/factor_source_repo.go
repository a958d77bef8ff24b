package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/better-wallet/better-signer/pkg/types"
)

// ErrFactorSourceNotFound is returned when no factor source row matches an id
var ErrFactorSourceNotFound = errors.New("factor source not found")

// FactorSourceRepository handles factor source rows
type FactorSourceRepository struct {
	store *Store
	now   func() time.Time
}

// NewFactorSourceRepository creates a new FactorSourceRepository
func NewFactorSourceRepository(store *Store) *FactorSourceRepository {
	return &FactorSourceRepository{store: store, now: time.Now}
}

// Create inserts a factor source
func (r *FactorSourceRepository) Create(ctx context.Context, fs *types.FactorSource) error {
	return r.CreateTx(ctx, r.store.pool, fs)
}

// CreateTx inserts a factor source using the provided transaction or connection
func (r *FactorSourceRepository) CreateTx(ctx context.Context, db DBTX, fs *types.FactorSource) error {
	query := `
		INSERT INTO factor_sources (id, kind, label, ledger_model, word_count, added_on, last_used_on)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (id) DO NOTHING
		RETURNING added_on, last_used_on
	`

	addedOn := fs.AddedOn
	if addedOn.IsZero() {
		addedOn = r.now().UTC()
	}

	err := db.QueryRow(ctx, query,
		fs.ID.String(),
		string(fs.ID.Kind),
		fs.Hint.Label,
		string(fs.Hint.Model),
		fs.Hint.WordCount,
		addedOn,
	).Scan(&fs.AddedOn, &fs.LastUsedOn)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("factor source %s already exists", fs.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to create factor source: %w", err)
	}
	return nil
}

// Get retrieves a factor source by id
func (r *FactorSourceRepository) Get(ctx context.Context, id types.FactorSourceID) (*types.FactorSource, error) {
	query := `
		SELECT id, label, ledger_model, word_count, added_on, last_used_on
		FROM factor_sources
		WHERE id = $1
	`

	fs, err := scanFactorSource(r.store.pool.QueryRow(ctx, query, id.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, ErrFactorSourceNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get factor source: %w", err)
	}
	return fs, nil
}

// List returns every factor source, most recently used first
func (r *FactorSourceRepository) List(ctx context.Context) ([]*types.FactorSource, error) {
	query := `
		SELECT id, label, ledger_model, word_count, added_on, last_used_on
		FROM factor_sources
		ORDER BY last_used_on DESC
	`

	rows, err := r.store.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list factor sources: %w", err)
	}
	defer rows.Close()

	var sources []*types.FactorSource
	for rows.Next() {
		fs, err := scanFactorSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan factor source: %w", err)
		}
		sources = append(sources, fs)
	}
	return sources, rows.Err()
}

// UpdateLastUsed stamps the factor source as used now
func (r *FactorSourceRepository) UpdateLastUsed(ctx context.Context, id types.FactorSourceID) error {
	tag, err := r.store.pool.Exec(ctx,
		`UPDATE factor_sources SET last_used_on = $2 WHERE id = $1`,
		id.String(), r.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update last used: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", id, ErrFactorSourceNotFound)
	}
	return nil
}

func scanFactorSource(row pgx.Row) (*types.FactorSource, error) {
	var (
		fs    types.FactorSource
		id    string
		model string
	)
	if err := row.Scan(&id, &fs.Hint.Label, &model, &fs.Hint.WordCount, &fs.AddedOn, &fs.LastUsedOn); err != nil {
		return nil, err
	}
	parsed, err := types.ParseFactorSourceID(id)
	if err != nil {
		return nil, err
	}
	fs.ID = parsed
	fs.Hint.Model = types.LedgerModel(model)
	return &fs, nil
}
