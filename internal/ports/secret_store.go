package ports

import "context"

// SecretStore holds account credentials and rotated refresh tokens by key,
// e.g. "alice/refresh_token". Get returns domain.ErrSecretNotFound (wrapped)
// for a missing key.
type SecretStore interface {
	Get(ctx context.Context, key string) (value string, err error)
	Put(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}
