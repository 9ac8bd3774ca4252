package application

import (
	"context"
	"errors"

	"github.com/bnema/repx/internal/domain"
	"github.com/bnema/repx/internal/ports"
	"github.com/sirupsen/logrus"
)

// StateKeeper is the only path to the state store. Every write re-reads the
// latest snapshot first, so nothing cached before a suspension point is ever
// written back.
type StateKeeper struct {
	store ports.StateStore
	clock ports.Clock
	log   logrus.FieldLogger
}

func NewStateKeeper(store ports.StateStore, clock ports.Clock, log logrus.FieldLogger) *StateKeeper {
	if clock == nil {
		clock = ports.SystemClock{}
	}

	return &StateKeeper{store: store, clock: clock, log: log}
}

// Load never fails: unreadable or corrupt storage yields a fresh default
// state for today and the current week.
func (k *StateKeeper) Load(ctx context.Context) domain.State {
	state, _ := k.load(ctx)
	return state
}

// load reports whether the snapshot may be written back. Corrupt storage is
// replaced by defaults on the next save; any other read failure leaves the
// store untouched.
func (k *StateKeeper) load(ctx context.Context) (domain.State, bool) {
	state, err := k.store.Load(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrCorruptState) {
			k.log.WithError(err).Error("[STATE] stored state is corrupt, using defaults")
			return domain.NewState(k.clock.Now()), true
		}
		k.log.WithError(err).Error("[STATE] load failed, using defaults")
		return domain.NewState(k.clock.Now()), false
	}
	if state.Accounts == nil {
		state.Accounts = map[domain.AccountID]domain.AccountRecord{}
	}

	return state, true
}

// Update re-reads, applies fn and saves. A failed save is logged and the
// update is lost; the loop carries on.
func (k *StateKeeper) Update(ctx context.Context, fn func(*domain.State)) domain.State {
	return k.UpdateIf(ctx, func(s *domain.State) bool {
		fn(s)
		return true
	})
}

// UpdateIf is Update that skips the save when fn reports no change. Nothing
// is saved when the read failed for a reason other than corruption, so a
// connection blip cannot overwrite every record with defaults.
func (k *StateKeeper) UpdateIf(ctx context.Context, fn func(*domain.State) bool) domain.State {
	state, writable := k.load(ctx)
	if !fn(&state) {
		return state
	}
	if !writable {
		k.log.Warn("[STATE] update dropped, stored state could not be read")
		return state
	}

	if err := k.store.Save(ctx, state); err != nil {
		k.log.WithError(err).Error("[STATE] save failed")
	}

	return state
}

func (k *StateKeeper) UpdateAccount(ctx context.Context, id domain.AccountID, fn func(*domain.AccountRecord)) domain.AccountRecord {
	state := k.Update(ctx, func(s *domain.State) {
		s.Update(id, fn)
	})

	return state.Record(id)
}
