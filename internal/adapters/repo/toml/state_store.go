package toml

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/bnema/repx/internal/domain"
	"github.com/bnema/repx/internal/ports"
	toml "github.com/pelletier/go-toml/v2"
)

const (
	StatePathKey     = "state.path"
	stateFileName    = "state.toml"
	stateTempPattern = ".state-*.toml.tmp"
)

// StateStore keeps the whole state snapshot in one TOML file.
type StateStore struct {
	path string
	mu   *sync.RWMutex
}

var _ ports.StateStore = (*StateStore)(nil)

// NewStateStore uses ~/.repx/state.toml when path is empty.
func NewStateStore(path string) (*StateStore, error) {
	if path == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		path = filepath.Join(homeDir, ConfigDir, stateFileName)
	}

	path, err := normalizePath(path)
	if err != nil {
		return nil, err
	}

	return &StateStore{path: path, mu: lockForPath(path)}, nil
}

// Load returns an empty state when the file does not exist yet. A file that
// cannot be decoded is reported as domain.ErrCorruptState.
func (s *StateStore) Load(ctx context.Context) (domain.State, error) {
	if err := ctx.Err(); err != nil {
		return domain.State{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.State{Accounts: map[domain.AccountID]domain.AccountRecord{}}, nil
		}
		return domain.State{}, fmt.Errorf("read state file: %w", err)
	}

	var file stateFileSchema
	if err := toml.Unmarshal(data, &file); err != nil {
		return domain.State{}, fmt.Errorf("decode state file: %w: %w", domain.ErrCorruptState, err)
	}
	if err := file.validateVersion(); err != nil {
		return domain.State{}, fmt.Errorf("%w: %w", domain.ErrCorruptState, err)
	}

	return fromStateSchema(file), nil
}

func (s *StateStore) Save(ctx context.Context, state domain.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file := toStateSchema(state)
	file.applyDefaults()
	if err := writeTOMLFile(s.path, stateTempPattern, file); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}

	return nil
}

func toStateSchema(state domain.State) stateFileSchema {
	ids := make([]string, 0, len(state.Accounts))
	for id := range state.Accounts {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)

	accounts := make([]accountStateSchema, 0, len(ids))
	for _, id := range ids {
		record := state.Accounts[domain.AccountID(id)]
		accounts = append(accounts, accountStateSchema{
			Username:          id,
			CooldownUntil:     domain.UnixMillis(record.CooldownUntil),
			CompletedToday:    record.CompletedToday,
			CompletedThisWeek: record.CompletedThisWeek,
			TotalCompleted:    record.TotalCompleted,
			LastError:         record.LastError,
			LastErrorType:     string(record.LastErrorType),
			LastSuccess:       domain.UnixMillis(record.LastSuccess),
			SteamID:           record.SteamID,
			AvatarURL:         record.AvatarURL,
			Nickname:          record.Nickname,
		})
	}

	return stateFileSchema{
		Markers: markersSchema{
			LastResetDate:   state.Markers.LastResetDate,
			LastWeeklyReset: state.Markers.LastWeeklyReset,
		},
		Accounts: accounts,
	}
}

func fromStateSchema(file stateFileSchema) domain.State {
	state := domain.State{
		Markers: domain.ResetMarkers{
			LastResetDate:   file.Markers.LastResetDate,
			LastWeeklyReset: file.Markers.LastWeeklyReset,
		},
		Accounts: make(map[domain.AccountID]domain.AccountRecord, len(file.Accounts)),
	}

	for _, entry := range file.Accounts {
		if entry.Username == "" {
			continue
		}
		state.Accounts[domain.AccountID(entry.Username)] = domain.AccountRecord{
			CooldownUntil:     domain.FromUnixMillis(entry.CooldownUntil),
			CompletedToday:    max(entry.CompletedToday, 0),
			CompletedThisWeek: max(entry.CompletedThisWeek, 0),
			TotalCompleted:    max(entry.TotalCompleted, 0),
			LastError:         entry.LastError,
			LastErrorType:     domain.ErrorType(entry.LastErrorType),
			LastSuccess:       domain.FromUnixMillis(entry.LastSuccess),
			SteamID:           entry.SteamID,
			AvatarURL:         entry.AvatarURL,
			Nickname:          entry.Nickname,
		}
	}

	return state
}
