package storage

import (
	"context"
	"fmt"
	"time"
)

// CeremonyEvent is one recorded state transition of a signing ceremony
type CeremonyEvent struct {
	ID         int64
	CeremonyID string
	FromState  string
	ToState    string
	CreatedAt  time.Time
}

// CeremonyEventRepository persists ceremony state transitions for audit
type CeremonyEventRepository struct {
	store *Store
}

// NewCeremonyEventRepository creates a new CeremonyEventRepository
func NewCeremonyEventRepository(store *Store) *CeremonyEventRepository {
	return &CeremonyEventRepository{store: store}
}

// Record inserts a transition
func (r *CeremonyEventRepository) Record(ctx context.Context, ceremonyID, from, to string) error {
	query := `
		INSERT INTO ceremony_events (ceremony_id, from_state, to_state)
		VALUES ($1, $2, $3)
	`
	if _, err := r.store.pool.Exec(ctx, query, ceremonyID, from, to); err != nil {
		return fmt.Errorf("failed to record ceremony event: %w", err)
	}
	return nil
}

// CeremonyEventQuery filters ceremony events
type CeremonyEventQuery struct {
	CeremonyID *string
	ToState    *string
	Limit      int
	Offset     int
}

func buildCeremonyEventQuery(opts CeremonyEventQuery) (string, []interface{}) {
	query := `
		SELECT id, ceremony_id, from_state, to_state, created_at
		FROM ceremony_events
		WHERE 1=1
	`

	args := make([]interface{}, 0)
	argCount := 1

	if opts.CeremonyID != nil {
		query += fmt.Sprintf(" AND ceremony_id = $%d", argCount)
		args = append(args, *opts.CeremonyID)
		argCount++
	}

	if opts.ToState != nil {
		query += fmt.Sprintf(" AND to_state = $%d", argCount)
		args = append(args, *opts.ToState)
		argCount++
	}

	query += " ORDER BY created_at DESC, id DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argCount)
		args = append(args, opts.Limit)
		argCount++
	}

	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argCount)
		args = append(args, opts.Offset)
	}

	return query, args
}

// Query retrieves ceremony events, newest first
func (r *CeremonyEventRepository) Query(ctx context.Context, opts CeremonyEventQuery) ([]*CeremonyEvent, error) {
	query, args := buildCeremonyEventQuery(opts)

	rows, err := r.store.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ceremony events: %w", err)
	}
	defer rows.Close()

	var events []*CeremonyEvent
	for rows.Next() {
		var e CeremonyEvent
		if err := rows.Scan(&e.ID, &e.CeremonyID, &e.FromState, &e.ToState, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ceremony event: %w", err)
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ceremony events: %w", err)
	}

	return events, nil
}
