// Package redis keeps the state snapshot under a single Redis key, so several
// hosts can share one state.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/bnema/repx/internal/domain"
	"github.com/bnema/repx/internal/ports"
	"github.com/go-redis/redis/v8"
)

const (
	DefaultKey           = "repx:state"
	currentSchemaVersion = 1
)

type Options struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

type StateStore struct {
	client *redis.Client
	key    string
}

var _ ports.StateStore = (*StateStore)(nil)

// Open connects and pings the server.
func Open(ctx context.Context, opts Options) (*StateStore, error) {
	if opts.Addr == "" {
		return nil, errors.New("redis address is empty")
	}
	if opts.Key == "" {
		opts.Key = DefaultKey
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
	}

	return &StateStore{client: client, key: opts.Key}, nil
}

func (s *StateStore) Close() error {
	return s.client.Close()
}

func (s *StateStore) Load(ctx context.Context) (domain.State, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.State{Accounts: map[domain.AccountID]domain.AccountRecord{}}, nil
	}
	if err != nil {
		return domain.State{}, fmt.Errorf("read state key %s: %w", s.key, err)
	}

	return decodeSnapshot(data)
}

// Save writes the whole snapshot with one SET, which Redis applies atomically.
func (s *StateStore) Save(ctx context.Context, state domain.State) error {
	data, err := encodeSnapshot(state)
	if err != nil {
		return err
	}

	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("write state key %s: %w", s.key, err)
	}

	return nil
}

type snapshot struct {
	Version         int             `json:"version"`
	LastResetDate   string          `json:"lastResetDate"`
	LastWeeklyReset int             `json:"lastWeeklyReset"`
	Accounts        []accountRecord `json:"accounts"`
}

// Times are milliseconds since the Unix epoch, 0 when unset.
type accountRecord struct {
	Username          string `json:"username"`
	CooldownUntil     int64  `json:"cooldownUntil"`
	CompletedToday    int    `json:"completedToday"`
	CompletedThisWeek int    `json:"completedThisWeek"`
	TotalCompleted    int    `json:"totalCompleted"`
	LastError         string `json:"lastError,omitempty"`
	LastErrorType     string `json:"lastErrorType,omitempty"`
	LastSuccess       int64  `json:"lastSuccess,omitempty"`
	SteamID           string `json:"steamID,omitempty"`
	AvatarURL         string `json:"avatarUrl,omitempty"`
	Nickname          string `json:"nickname,omitempty"`
}

func encodeSnapshot(state domain.State) ([]byte, error) {
	snap := snapshot{
		Version:         currentSchemaVersion,
		LastResetDate:   state.Markers.LastResetDate,
		LastWeeklyReset: state.Markers.LastWeeklyReset,
		Accounts:        make([]accountRecord, 0, len(state.Accounts)),
	}
	for id, record := range state.Accounts {
		snap.Accounts = append(snap.Accounts, accountRecord{
			Username:          string(id),
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
	sort.Slice(snap.Accounts, func(i, j int) bool {
		return snap.Accounts[i].Username < snap.Accounts[j].Username
	})

	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode state snapshot: %w", err)
	}

	return data, nil
}

func decodeSnapshot(data []byte) (domain.State, error) {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.State{}, fmt.Errorf("decode state snapshot: %w: %w", domain.ErrCorruptState, err)
	}
	if snap.Version > currentSchemaVersion {
		return domain.State{}, fmt.Errorf("%w: unsupported state schema version %d (current %d)", domain.ErrCorruptState, snap.Version, currentSchemaVersion)
	}

	state := domain.State{
		Markers: domain.ResetMarkers{
			LastResetDate:   snap.LastResetDate,
			LastWeeklyReset: snap.LastWeeklyReset,
		},
		Accounts: make(map[domain.AccountID]domain.AccountRecord, len(snap.Accounts)),
	}
	for _, entry := range snap.Accounts {
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

	return state, nil
}
