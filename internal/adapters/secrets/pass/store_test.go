package pass

import (
	"context"
	"errors"
	"testing"

	"github.com/bnema/repx/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorePutUsesPassInsertUnderPrefix(t *testing.T) {
	t.Parallel()

	called := false
	store := &Store{
		prefix: "repx",
		run: func(ctx context.Context, input string, args ...string) (string, string, error) {
			called = true
			assert.Equal(t, []string{"insert", "-m", "-f", "repx/alice/refresh_token"}, args)
			assert.Equal(t, "eyJ.token\n", input)
			return "", "", nil
		},
	}

	require.NoError(t, store.Put(context.Background(), "alice/refresh_token", "eyJ.token"))
	assert.True(t, called)
}

func TestStoreGetUsesPassShowAndTrimsTrailingNewline(t *testing.T) {
	t.Parallel()

	store := &Store{
		prefix: "repx",
		run: func(ctx context.Context, input string, args ...string) (string, string, error) {
			assert.Equal(t, []string{"show", "repx/alice/password"}, args)
			assert.Empty(t, input)
			return "hunter2\n", "", nil
		},
	}

	value, err := store.Get(context.Background(), "/alice/password")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", value)
}

func TestStoreWithoutPrefixUsesKeyAsIs(t *testing.T) {
	t.Parallel()

	store := &Store{
		run: func(ctx context.Context, input string, args ...string) (string, string, error) {
			assert.Equal(t, []string{"rm", "-f", "steam/alice"}, args)
			return "", "", nil
		},
	}

	require.NoError(t, store.Delete(context.Background(), "steam/alice"))
}

func TestStoreGetMissingEntryIsSecretNotFound(t *testing.T) {
	t.Parallel()

	store := &Store{
		prefix: "repx",
		run: func(ctx context.Context, input string, args ...string) (string, string, error) {
			return "", "Error: repx/alice/password is not in the password store.", errors.New("exit status 1")
		},
	}

	_, err := store.Get(context.Background(), "alice/password")
	require.ErrorIs(t, err, domain.ErrSecretNotFound)
}

func TestStoreGetReturnsClearError(t *testing.T) {
	t.Parallel()

	store := &Store{
		prefix: "repx",
		run: func(ctx context.Context, input string, args ...string) (string, string, error) {
			return "", "gpg: decryption failed", errors.New("exit status 2")
		},
	}

	_, err := store.Get(context.Background(), "alice/password")
	require.Error(t, err)
	assert.ErrorContains(t, err, "pass get")
	assert.ErrorContains(t, err, "repx/alice/password")
	assert.ErrorContains(t, err, "decryption failed")
	assert.NotErrorIs(t, err, domain.ErrSecretNotFound)
}
