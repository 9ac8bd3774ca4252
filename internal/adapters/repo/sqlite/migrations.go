package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type migration struct {
	Version     int
	Description string
	Up          func(ctx context.Context, tx *sql.Tx) error
}

var migrations = []migration{
	{Version: 1, Description: "create schema_version table", Up: migration001Up},
	{Version: 2, Description: "create reset_markers and account_state tables", Up: migration002Up},
}

func (s *StateStore) migrate(ctx context.Context) error {
	current, err := s.currentVersion(ctx)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if latest := migrations[len(migrations)-1].Version; current > latest {
		return fmt.Errorf("unsupported state database version %d (current %d)", current, latest)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		err := s.execTx(ctx, func(tx *sql.Tx) error {
			if err := m.Up(ctx, tx); err != nil {
				return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
			}

			_, err := tx.ExecContext(ctx,
				`INSERT INTO schema_version (version, description, applied_at) VALUES (?, ?, ?)`,
				m.Version, m.Description, time.Now().UTC().UnixMilli(),
			)
			return err
		})
		if err != nil {
			return err
		}
	}

	return nil
}

func (s *StateStore) currentVersion(ctx context.Context) (int, error) {
	var exists bool
	if err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) > 0 FROM sqlite_master WHERE type = 'table' AND name = 'schema_version'`,
	).Scan(&exists); err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}

	var version int
	if err := s.conn.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version); err != nil {
		return 0, err
	}

	return version, nil
}

func migration001Up(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at INTEGER NOT NULL
		)
	`)
	return err
}

func migration002Up(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS reset_markers (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			last_reset_date TEXT NOT NULL DEFAULT '',
			last_weekly_reset INTEGER NOT NULL DEFAULT 0
		)
	`); err != nil {
		return err
	}

	_, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS account_state (
			username TEXT PRIMARY KEY,
			cooldown_until INTEGER NOT NULL DEFAULT 0,
			completed_today INTEGER NOT NULL DEFAULT 0 CHECK (completed_today >= 0),
			completed_this_week INTEGER NOT NULL DEFAULT 0 CHECK (completed_this_week >= 0),
			total_completed INTEGER NOT NULL DEFAULT 0 CHECK (total_completed >= 0),
			last_error TEXT NOT NULL DEFAULT '',
			last_error_type TEXT NOT NULL DEFAULT '',
			last_success INTEGER NOT NULL DEFAULT 0,
			steam_id TEXT NOT NULL DEFAULT '',
			avatar_url TEXT NOT NULL DEFAULT '',
			nickname TEXT NOT NULL DEFAULT ''
		)
	`)
	return err
}
