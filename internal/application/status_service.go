package application

import (
	"context"
	"fmt"
	"time"

	"github.com/bnema/repx/internal/domain"
	"github.com/bnema/repx/internal/ports"
)

type StatusService struct {
	accounts ports.AccountSource
	state    *StateKeeper
	reset    *ResetPolicy
	board    *StatusBoard
	clock    ports.Clock
}

func NewStatusService(accounts ports.AccountSource, state *StateKeeper, reset *ResetPolicy, board *StatusBoard, clock ports.Clock) *StatusService {
	if clock == nil {
		clock = ports.SystemClock{}
	}

	return &StatusService{accounts: accounts, state: state, reset: reset, board: board, clock: clock}
}

// Snapshot builds one status row per configured account, after applying any
// pending day or week rollover.
func (s *StatusService) Snapshot(ctx context.Context) ([]AccountStatus, error) {
	s.reset.Run(ctx)

	accounts, err := s.accounts.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}

	state := s.state.Load(ctx)
	now := s.clock.Now()

	rows := make([]AccountStatus, 0, len(accounts))
	for _, account := range accounts {
		rows = append(rows, statusFromRecord(account, state.Record(account.ID), now))
	}

	return rows, nil
}

// Refresh pushes a fresh Snapshot to the board.
func (s *StatusService) Refresh(ctx context.Context) error {
	rows, err := s.Snapshot(ctx)
	if err != nil {
		return err
	}

	s.board.SetAccounts(rows)
	return nil
}

func statusFromRecord(account domain.Account, record domain.AccountRecord, now time.Time) AccountStatus {
	status := AccountStatus{
		ID:             account.ID,
		Nickname:       account.Nickname,
		AvatarURL:      record.AvatarURL,
		SteamID:        record.SteamID,
		State:          AccountStateFarm,
		Progress:       record.CompletedToday,
		Weekly:         record.CompletedThisWeek,
		TotalCompleted: record.TotalCompleted,
		LastError:      record.LastError,
		Label:          "Available",
	}
	if status.Nickname == "" {
		status.Nickname = record.Nickname
	}

	switch {
	case record.InCooldown(now):
		status.State = AccountStateIdle
		status.CooldownUntil = record.CooldownUntil
		status.Label = "Until " + record.CooldownUntil.Format("15:04:05")
	case record.LastError != "":
		status.State = AccountStateError
		status.Label = "FAILED"
	}

	return status
}
