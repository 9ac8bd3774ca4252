package ports

import (
	"context"

	"github.com/bnema/repx/internal/domain"
)

// StateStore persists the whole state snapshot. Save must replace the
// previous snapshot atomically.
type StateStore interface {
	Load(ctx context.Context) (domain.State, error)
	Save(ctx context.Context, state domain.State) error
}
