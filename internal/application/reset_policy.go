package application

import (
	"context"

	"github.com/bnema/repx/internal/domain"
	"github.com/bnema/repx/internal/ports"
	"github.com/sirupsen/logrus"
)

type ResetPolicy struct {
	state *StateKeeper
	clock ports.Clock
	log   logrus.FieldLogger
}

func NewResetPolicy(state *StateKeeper, clock ports.Clock, log logrus.FieldLogger) *ResetPolicy {
	if clock == nil {
		clock = ports.SystemClock{}
	}

	return &ResetPolicy{state: state, clock: clock, log: log}
}

// Run zeroes daily and weekly counters once per rollover. The counters and
// the markers land in the same save.
func (p *ResetPolicy) Run(ctx context.Context) domain.Rollover {
	now := p.clock.Now()

	var rollover domain.Rollover
	p.state.UpdateIf(ctx, func(s *domain.State) bool {
		rollover = s.ApplyRollover(now)
		return rollover.Any()
	})

	if rollover.Daily {
		p.log.Info("New day detected. Resetting daily counters.")
	}
	if rollover.Weekly {
		p.log.Info("New week detected. Resetting weekly counters.")
	}

	return rollover
}
