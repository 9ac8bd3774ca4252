package chain

import (
	"context"
	"errors"
	"testing"

	"github.com/bnema/repx/internal/domain"
	"github.com/bnema/repx/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const refreshKey = "alice/refresh_token"

type mockSecretStore struct {
	mock.Mock
}

func newMockSecretStore(t *testing.T) *mockSecretStore {
	t.Helper()

	m := &mockSecretStore{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *mockSecretStore) Get(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *mockSecretStore) Put(ctx context.Context, key string, value string) error {
	return m.Called(ctx, key, value).Error(0)
}

func (m *mockSecretStore) Delete(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func newPassFile(t *testing.T) (*Store, *mockSecretStore, *mockSecretStore) {
	t.Helper()

	pass := newMockSecretStore(t)
	file := newMockSecretStore(t)
	store, err := New(logging.Discard(), Backend{Name: "pass", Store: pass}, Backend{Name: "file", Store: file})
	require.NoError(t, err)
	return store, pass, file
}

func TestStoreGetUsesFirstBackendWhenItSucceeds(t *testing.T) {
	t.Parallel()

	store, pass, file := newPassFile(t)
	pass.On("Get", mock.Anything, refreshKey).Return("from-pass", nil).Once()

	value, err := store.Get(context.Background(), refreshKey)
	require.NoError(t, err)
	assert.Equal(t, "from-pass", value)
	file.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
}

func TestStoreGetFallsBackWhenFirstBackendFails(t *testing.T) {
	t.Parallel()

	store, pass, file := newPassFile(t)
	pass.On("Get", mock.Anything, refreshKey).Return("", errors.New("pass unavailable")).Once()
	file.On("Get", mock.Anything, refreshKey).Return("from-file", nil).Once()

	value, err := store.Get(context.Background(), refreshKey)
	require.NoError(t, err)
	assert.Equal(t, "from-file", value)
}

func TestStoreGetJoinsErrorsWhenEveryBackendFails(t *testing.T) {
	t.Parallel()

	store, pass, file := newPassFile(t)
	pass.On("Get", mock.Anything, refreshKey).Return("", errors.New("pass failed")).Once()
	file.On("Get", mock.Anything, refreshKey).Return("", domain.ErrSecretNotFound).Once()

	_, err := store.Get(context.Background(), refreshKey)
	require.Error(t, err)
	assert.ErrorContains(t, err, "pass backend get: pass failed")
	assert.ErrorContains(t, err, "file backend get")
	assert.ErrorIs(t, err, domain.ErrSecretNotFound)
}

func TestStorePutStopsAtFirstAcceptingBackend(t *testing.T) {
	t.Parallel()

	store, pass, file := newPassFile(t)
	pass.On("Put", mock.Anything, refreshKey, "rotated").Return(nil).Once()

	require.NoError(t, store.Put(context.Background(), refreshKey, "rotated"))
	file.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything)
}

func TestStorePutFallsBackWhenFirstBackendFails(t *testing.T) {
	t.Parallel()

	store, pass, file := newPassFile(t)
	pass.On("Put", mock.Anything, refreshKey, "rotated").Return(errors.New("pass failed")).Once()
	file.On("Put", mock.Anything, refreshKey, "rotated").Return(nil).Once()

	require.NoError(t, store.Put(context.Background(), refreshKey, "rotated"))
}

func TestStoreDeleteClearsEveryBackend(t *testing.T) {
	t.Parallel()

	store, pass, file := newPassFile(t)
	pass.On("Delete", mock.Anything, refreshKey).Return(nil).Once()
	file.On("Delete", mock.Anything, refreshKey).Return(nil).Once()

	require.NoError(t, store.Delete(context.Background(), refreshKey))
}

func TestStoreDeleteSucceedsWhenOneBackendRemovesKey(t *testing.T) {
	t.Parallel()

	store, pass, file := newPassFile(t)
	pass.On("Delete", mock.Anything, refreshKey).Return(errors.New("pass failed")).Once()
	file.On("Delete", mock.Anything, refreshKey).Return(nil).Once()

	require.NoError(t, store.Delete(context.Background(), refreshKey))
}

func TestStoreDeleteFailsWhenEveryBackendFails(t *testing.T) {
	t.Parallel()

	store, pass, file := newPassFile(t)
	pass.On("Delete", mock.Anything, refreshKey).Return(errors.New("pass failed")).Once()
	file.On("Delete", mock.Anything, refreshKey).Return(errors.New("disk full")).Once()

	err := store.Delete(context.Background(), refreshKey)
	require.Error(t, err)
	assert.ErrorContains(t, err, "disk full")
}

func TestStoreGetDoesNotFallBackOnCanceledContext(t *testing.T) {
	t.Parallel()

	store, pass, file := newPassFile(t)
	pass.On("Get", mock.Anything, refreshKey).Return("", context.Canceled).Once()

	_, err := store.Get(context.Background(), refreshKey)
	require.ErrorIs(t, err, context.Canceled)
	file.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
}

func TestNewRejectsMissingBackends(t *testing.T) {
	t.Parallel()

	_, err := New(nil)
	require.Error(t, err)

	_, err = New(nil, Backend{Name: "pass", Store: newMockSecretStore(t)}, Backend{Name: "file"})
	require.Error(t, err)
	assert.ErrorContains(t, err, "file")
}
