package storage

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/better-wallet/better-signer/internal/logger"
)

// Migration is one schema step
type Migration struct {
	Version string
	File    string
}

// PlanMigrations picks the files to run in order. Up runs unapplied versions
// ascending, down reverts applied versions descending. steps limits the count
// when positive.
func PlanMigrations(files []string, applied map[string]bool, direction string, steps int) ([]Migration, error) {
	suffix := ".up.sql"
	switch direction {
	case "up":
	case "down":
		suffix = ".down.sql"
	default:
		return nil, fmt.Errorf("unknown migration direction: %q", direction)
	}

	var candidates []string
	for _, f := range files {
		if strings.HasSuffix(f, suffix) {
			candidates = append(candidates, f)
		}
	}
	sort.Strings(candidates)
	if direction == "down" {
		for i, j := 0, len(candidates)-1; i < j; i, j = i+1, j-1 {
			candidates[i], candidates[j] = candidates[j], candidates[i]
		}
	}

	var plan []Migration
	for _, f := range candidates {
		version := strings.TrimSuffix(path.Base(f), suffix)
		if applied[version] == (direction == "up") {
			continue
		}
		if steps > 0 && len(plan) >= steps {
			break
		}
		plan = append(plan, Migration{Version: version, File: f})
	}
	return plan, nil
}

// Migrate applies the planned migrations from fsys, one transaction each.
// It returns the number applied.
func (s *Store) Migrate(ctx context.Context, fsys fs.FS, direction string, steps int) (int, error) {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := s.appliedMigrations(ctx)
	if err != nil {
		return 0, err
	}

	files, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return 0, fmt.Errorf("failed to find migration files: %w", err)
	}

	plan, err := PlanMigrations(files, applied, direction, steps)
	if err != nil {
		return 0, err
	}

	for _, m := range plan {
		content, err := fs.ReadFile(fsys, m.File)
		if err != nil {
			return 0, fmt.Errorf("failed to read migration file %s: %w", m.File, err)
		}

		err = s.WithTx(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, string(content)); err != nil {
				return fmt.Errorf("failed to execute migration %s: %w", m.File, err)
			}
			if direction == "up" {
				_, err = tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", m.Version)
			} else {
				_, err = tx.Exec(ctx, "DELETE FROM schema_migrations WHERE version = $1", m.Version)
			}
			if err != nil {
				return fmt.Errorf("failed to update migrations table: %w", err)
			}
			return nil
		})
		if err != nil {
			return 0, err
		}
		logger.Info(ctx, "applied migration", "version", m.Version, "direction", direction)
	}
	return len(plan), nil
}

func (s *Store) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	return applied, rows.Err()
}
