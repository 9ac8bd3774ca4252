package ports

import (
	"context"

	"github.com/bnema/repx/internal/domain"
)

type TaskService interface {
	ListProfiles(ctx context.Context) ([]domain.ServiceProfile, error)
	RegisterProfile(ctx context.Context, steamID string) error
	ListTasks(ctx context.Context, profileID string) ([]domain.Task, error)
	CompleteTask(ctx context.Context, taskID, commentID, profileID string) error
}
