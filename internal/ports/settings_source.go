package ports

import (
	"context"

	"github.com/bnema/repx/internal/domain"
)

type SettingsSource interface {
	Current(ctx context.Context) domain.Settings
}
