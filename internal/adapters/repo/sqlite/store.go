// Package sqlite keeps the state snapshot in an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bnema/repx/internal/domain"
	"github.com/bnema/repx/internal/ports"
	_ "github.com/mattn/go-sqlite3"
)

const (
	markersRowID = 1
	dirMode      = 0o700
)

type StateStore struct {
	conn *sql.DB
	path string
}

var _ ports.StateStore = (*StateStore)(nil)

// Open creates the database file when missing and brings its schema up to
// date.
func Open(ctx context.Context, dbPath string) (*StateStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), dirMode); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// One writer at a time keeps SQLite out of SQLITE_BUSY.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	store := &StateStore{conn: conn, path: dbPath}
	if err := store.migrate(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return store, nil
}

func (s *StateStore) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *StateStore) Path() string {
	return s.path
}

func (s *StateStore) Load(ctx context.Context) (domain.State, error) {
	state := domain.State{Accounts: map[domain.AccountID]domain.AccountRecord{}}

	err := s.conn.QueryRowContext(ctx,
		`SELECT last_reset_date, last_weekly_reset FROM reset_markers WHERE id = ?`, markersRowID,
	).Scan(&state.Markers.LastResetDate, &state.Markers.LastWeeklyReset)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return domain.State{}, fmt.Errorf("read reset markers: %w: %w", domain.ErrCorruptState, err)
	}

	rows, err := s.conn.QueryContext(ctx, `
		SELECT username, cooldown_until, completed_today, completed_this_week, total_completed,
			last_error, last_error_type, last_success, steam_id, avatar_url, nickname
		FROM account_state
	`)
	if err != nil {
		return domain.State{}, fmt.Errorf("query account state: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			username                   string
			cooldownUntil, lastSuccess int64
			record                     domain.AccountRecord
			lastErrorType              string
		)
		if err := rows.Scan(
			&username, &cooldownUntil, &record.CompletedToday, &record.CompletedThisWeek, &record.TotalCompleted,
			&record.LastError, &lastErrorType, &lastSuccess, &record.SteamID, &record.AvatarURL, &record.Nickname,
		); err != nil {
			return domain.State{}, fmt.Errorf("scan account state: %w: %w", domain.ErrCorruptState, err)
		}

		record.CooldownUntil = domain.FromUnixMillis(cooldownUntil)
		record.LastSuccess = domain.FromUnixMillis(lastSuccess)
		record.LastErrorType = domain.ErrorType(lastErrorType)
		state.Accounts[domain.AccountID(username)] = record
	}
	if err := rows.Err(); err != nil {
		return domain.State{}, fmt.Errorf("iterate account state: %w", err)
	}

	return state, nil
}

// Save replaces every row in one transaction.
func (s *StateStore) Save(ctx context.Context, state domain.State) error {
	return s.execTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO reset_markers (id, last_reset_date, last_weekly_reset) VALUES (?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				last_reset_date = excluded.last_reset_date,
				last_weekly_reset = excluded.last_weekly_reset
		`, markersRowID, state.Markers.LastResetDate, state.Markers.LastWeeklyReset); err != nil {
			return fmt.Errorf("write reset markers: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM account_state`); err != nil {
			return fmt.Errorf("clear account state: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO account_state (
				username, cooldown_until, completed_today, completed_this_week, total_completed,
				last_error, last_error_type, last_success, steam_id, avatar_url, nickname
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("prepare account state insert: %w", err)
		}
		defer stmt.Close()

		for id, record := range state.Accounts {
			if _, err := stmt.ExecContext(ctx,
				string(id),
				domain.UnixMillis(record.CooldownUntil),
				record.CompletedToday,
				record.CompletedThisWeek,
				record.TotalCompleted,
				record.LastError,
				string(record.LastErrorType),
				domain.UnixMillis(record.LastSuccess),
				record.SteamID,
				record.AvatarURL,
				record.Nickname,
			); err != nil {
				return fmt.Errorf("insert account state %s: %w", id, err)
			}
		}

		return nil
	})
}

func (s *StateStore) execTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}
