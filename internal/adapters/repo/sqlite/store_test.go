package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/bnema/repx/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T, path string) *StateStore {
	t.Helper()

	store, err := Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStateStoreRoundTrip(t *testing.T) {
	store := openTestStore(t, filepath.Join(t.TempDir(), "state.db"))

	now := time.Date(2026, 2, 11, 10, 0, 0, 0, time.UTC)
	state := domain.NewState(now)
	state.Accounts["alice"] = domain.AccountRecord{
		CooldownUntil:     now.Add(2 * time.Hour),
		CompletedToday:    7,
		CompletedThisWeek: 21,
		TotalCompleted:    300,
		LastError:         "consecutive failures",
		LastSuccess:       now.Add(-5 * time.Minute),
		SteamID:           "76561198000000001",
		Nickname:          "Alice",
	}
	state.Accounts["bob"] = domain.AccountRecord{LastErrorType: domain.ErrorTypeRateLimit}

	require.NoError(t, store.Save(context.Background(), state))

	got, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, state, got)
}

func TestStateStoreSaveReplacesSnapshot(t *testing.T) {
	store := openTestStore(t, filepath.Join(t.TempDir(), "state.db"))
	now := time.Date(2026, 2, 11, 10, 0, 0, 0, time.UTC)

	first := domain.NewState(now)
	first.Accounts["alice"] = domain.AccountRecord{TotalCompleted: 1}
	first.Accounts["bob"] = domain.AccountRecord{TotalCompleted: 2}
	require.NoError(t, store.Save(context.Background(), first))

	second := domain.NewState(now.Add(24 * time.Hour))
	second.Accounts["bob"] = domain.AccountRecord{TotalCompleted: 3}
	require.NoError(t, store.Save(context.Background(), second))

	got, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, second, got)
}

func TestStateStoreEmptyDatabase(t *testing.T) {
	store := openTestStore(t, filepath.Join(t.TempDir(), "nested", "state.db"))

	state, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, state.Accounts)
	assert.Equal(t, domain.ResetMarkers{}, state.Markers)
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	first := openTestStore(t, path)
	state := domain.NewState(time.Now())
	state.Accounts["alice"] = domain.AccountRecord{TotalCompleted: 4}
	require.NoError(t, first.Save(context.Background(), state))
	require.NoError(t, first.Close())

	second := openTestStore(t, path)
	got, err := second.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, got.Record("alice").TotalCompleted)

	version, err := second.currentVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, version)
}
