package ports

import (
	"context"

	"github.com/bnema/repx/internal/domain"
)

// AccountSource is read fresh on every call; the list may change between
// cycles.
type AccountSource interface {
	List(ctx context.Context) ([]domain.Account, error)
}

type AccountRepository interface {
	AccountSource
	GetByID(ctx context.Context, id domain.AccountID) (domain.Account, error)
	Save(ctx context.Context, account domain.Account) error
	Remove(ctx context.Context, id domain.AccountID) error
}
