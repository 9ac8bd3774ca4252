package ports

import (
	"context"

	"github.com/bnema/repx/internal/domain"
)

type SessionProvider interface {
	Acquire(ctx context.Context, account domain.Account) (Session, error)
}

// Session is one logged-in platform connection for one account.
type Session interface {
	Identity() domain.Identity
	PostComment(ctx context.Context, targetSteamID, text string) domain.Outcome
	Logout(ctx context.Context) error
}
