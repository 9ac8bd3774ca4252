package application

import (
	"context"
	"fmt"

	"github.com/bnema/repx/internal/ports"
	"github.com/sirupsen/logrus"
)

type Cycler interface {
	RunCycle(ctx context.Context) (CycleReport, error)
}

// Supervisor keeps the cycle running until ctx is cancelled. Nothing a cycle
// does, including a panic, stops the process.
type Supervisor struct {
	cycle    Cycler
	settings ports.SettingsSource
	board    *StatusBoard
	clock    ports.Clock
	sleeper  ports.Sleeper
	log      logrus.FieldLogger
}

func NewSupervisor(cycle Cycler, settings ports.SettingsSource, board *StatusBoard, clock ports.Clock, sleeper ports.Sleeper, log logrus.FieldLogger) *Supervisor {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if sleeper == nil {
		sleeper = ports.SystemSleeper{}
	}

	return &Supervisor{cycle: cycle, settings: settings, board: board, clock: clock, sleeper: sleeper, log: log}
}

func (s *Supervisor) Run(ctx context.Context) error {
	s.log.Info("--- REPX STARTED ---")
	s.board.Log(s.clock.Now(), LogInfo, "System initialized. Waiting for accounts...")
	s.board.SetStatus(RunStatusIdle)

	for ctx.Err() == nil {
		err := s.runOnce(ctx)
		if err == nil || ctx.Err() != nil {
			continue
		}

		retry := s.settings.Current(ctx).Cycle.CrashRetry
		s.log.WithError(err).Errorf("[CRITICAL] Main loop panic. Retrying in %s...", retry)
		s.board.Log(s.clock.Now(), LogError, fmt.Sprintf("Main loop failure: %v", err))
		_ = s.sleeper.Sleep(ctx, retry)
	}

	s.log.Info("Shutting down gracefully...")
	s.board.SetStatus(RunStatusShuttingDown)
	return nil
}

func (s *Supervisor) runOnce(ctx context.Context) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("cycle panicked: %v", recovered)
		}
	}()

	_, err = s.cycle.RunCycle(ctx)
	return err
}
