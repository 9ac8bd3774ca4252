package chain

import (
	"context"
	"errors"
	"fmt"

	filestore "github.com/bnema/repx/internal/adapters/secrets/file"
	passstore "github.com/bnema/repx/internal/adapters/secrets/pass"
	"github.com/bnema/repx/internal/domain"
	"github.com/bnema/repx/internal/logging"
	"github.com/bnema/repx/internal/ports"
	"github.com/sirupsen/logrus"
)

// Backend is one named secret store in a chain.
type Backend struct {
	Name  string
	Store ports.SecretStore
}

// Store reads from the first backend that has the key and writes to the
// first backend that accepts the write. Delete clears the key everywhere so a
// token written to a fallback does not resurface later.
type Store struct {
	backends []Backend
	log      logrus.FieldLogger
}

var _ ports.SecretStore = (*Store)(nil)

var errNoBackends = errors.New("secret store chain needs at least one backend")

func New(log logrus.FieldLogger, backends ...Backend) (*Store, error) {
	if len(backends) == 0 {
		return nil, errNoBackends
	}
	for i, b := range backends {
		if b.Store == nil {
			return nil, fmt.Errorf("secret backend %d (%s) is nil", i, b.Name)
		}
	}
	if log == nil {
		log = logging.Discard()
	}

	return &Store{backends: backends, log: log}, nil
}

// NewPassFirstWithFileFallback prefers pass(1) under passPrefix and falls back
// to one file per key under fileRoot.
func NewPassFirstWithFileFallback(log logrus.FieldLogger, passPrefix string, fileRoot string) (*Store, error) {
	return New(log,
		Backend{Name: "pass", Store: passstore.NewStore(passPrefix)},
		Backend{Name: "file", Store: filestore.NewStore(fileRoot)},
	)
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var errs []error
	for _, b := range s.backends {
		value, err := b.Store.Get(ctx, key)
		if err == nil {
			return value, nil
		}
		if isCanceled(err) {
			return "", err
		}
		s.skip(b, "get", key, err)
		errs = append(errs, fmt.Errorf("%s backend get: %w", b.Name, err))
	}

	return "", errors.Join(errs...)
}

func (s *Store) Put(ctx context.Context, key string, value string) error {
	var errs []error
	for _, b := range s.backends {
		err := b.Store.Put(ctx, key, value)
		if err == nil {
			return nil
		}
		if isCanceled(err) {
			return err
		}
		s.skip(b, "put", key, err)
		errs = append(errs, fmt.Errorf("%s backend put: %w", b.Name, err))
	}

	return errors.Join(errs...)
}

// Delete succeeds when at least one backend removed the key or reported it
// missing.
func (s *Store) Delete(ctx context.Context, key string) error {
	var errs []error
	deleted := false
	for _, b := range s.backends {
		err := b.Store.Delete(ctx, key)
		switch {
		case err == nil, errors.Is(err, domain.ErrSecretNotFound):
			deleted = true
		case isCanceled(err):
			return err
		default:
			s.skip(b, "delete", key, err)
			errs = append(errs, fmt.Errorf("%s backend delete: %w", b.Name, err))
		}
	}
	if deleted {
		return nil
	}

	return errors.Join(errs...)
}

func (s *Store) skip(b Backend, op, key string, err error) {
	s.log.WithError(err).WithFields(logrus.Fields{
		"backend": b.Name,
		"op":      op,
		"key":     key,
	}).Debug("Secret backend skipped")
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
