package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bnema/repx/internal/domain"
	"github.com/bnema/repx/internal/logging"
	"github.com/bnema/repx/internal/ports"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type SchedulerDeps struct {
	Accounts ports.AccountSource
	Sessions ports.SessionProvider
	Runner   *Runner
	Reset    *ResetPolicy
	State    *StateKeeper
	Status   *StatusService
	Settings ports.SettingsSource
	Board    *StatusBoard
	Clock    ports.Clock
	Sleeper  ports.Sleeper
	Log      logrus.FieldLogger
}

// Scheduler makes one pass over every account per cycle.
type Scheduler struct {
	accounts ports.AccountSource
	sessions ports.SessionProvider
	runner   *Runner
	reset    *ResetPolicy
	state    *StateKeeper
	status   *StatusService
	settings ports.SettingsSource
	board    *StatusBoard
	clock    ports.Clock
	sleeper  ports.Sleeper
	log      logrus.FieldLogger
}

type CycleReport struct {
	ID        string
	Visited   []domain.AccountID
	Skipped   []domain.AccountID
	Attempted int
	// NextWake is the earliest cooldown expiry among skipped accounts, zero
	// when none was skipped.
	NextWake time.Time
	// Rescanned is set when an idle wait ended early because the account
	// list changed.
	Rescanned bool
}

func NewScheduler(deps SchedulerDeps) *Scheduler {
	s := &Scheduler{
		accounts: deps.Accounts,
		sessions: deps.Sessions,
		runner:   deps.Runner,
		reset:    deps.Reset,
		state:    deps.State,
		status:   deps.Status,
		settings: deps.Settings,
		board:    deps.Board,
		clock:    deps.Clock,
		sleeper:  deps.Sleeper,
		log:      deps.Log,
	}
	if s.clock == nil {
		s.clock = ports.SystemClock{}
	}
	if s.sleeper == nil {
		s.sleeper = ports.SystemSleeper{}
	}

	return s
}

// RunCycle visits every account once, then rests. Only a failure to read the
// account list is returned; per-account failures are absorbed.
func (s *Scheduler) RunCycle(ctx context.Context) (CycleReport, error) {
	report := CycleReport{ID: uuid.NewString()}
	log := s.log.WithField(logging.FieldCycle, report.ID)

	s.board.Log(s.clock.Now(), LogInfo, "Cycle started")
	s.reset.Run(ctx)

	accounts, err := s.accounts.List(ctx)
	if err != nil {
		return report, fmt.Errorf("list accounts: %w", err)
	}
	s.refreshBoard(ctx, log)

	for _, account := range accounts {
		if ctx.Err() != nil {
			break
		}

		record := s.state.Load(ctx).Record(account.ID)
		if record.InCooldown(s.clock.Now()) {
			report.Skipped = append(report.Skipped, account.ID)
			if report.NextWake.IsZero() || record.CooldownUntil.Before(report.NextWake) {
				report.NextWake = record.CooldownUntil
			}
			continue
		}

		report.Attempted++
		report.Visited = append(report.Visited, account.ID)
		if !s.visit(ctx, account, log) {
			continue
		}

		if err := s.sleeper.Sleep(ctx, s.settings.Current(ctx).Delay.AccountSwitch); err != nil {
			break
		}
	}

	s.board.SetCurrentAccount("")
	s.board.SetStatus(RunStatusIdle)

	if ctx.Err() != nil {
		return report, nil
	}

	if report.Attempted > 0 {
		rest := s.settings.Current(ctx).Cycle.Rest
		log.Infof("[CYCLE] Loop finished. Short %s rest.", rest)
		s.board.SetNextCycle(s.clock.Now().Add(rest))
		_ = s.sleeper.Sleep(ctx, rest)
		return report, nil
	}

	report.Rescanned = s.idle(ctx, accounts, report.NextWake, log)
	return report, nil
}

// visit logs the account in and hands it to the runner. It reports whether a
// session was obtained.
func (s *Scheduler) visit(ctx context.Context, account domain.Account, log logrus.FieldLogger) bool {
	accountLog := log.WithField(logging.FieldAccount, account.ID)

	s.board.SetStatus(RunStatusProcessing)
	s.board.SetCurrentAccount(account.ID)

	session, err := s.sessions.Acquire(ctx, account)
	if err != nil {
		accountLog.WithError(err).Error("[FATAL] Account login failed")
		s.board.Log(s.clock.Now(), LogError, fmt.Sprintf("%s: login failed: %v", account.ID, err))
		s.refreshBoard(ctx, accountLog)
		return false
	}

	report := s.runner.Process(ctx, account, session)
	accountLog.WithField("result", report.Result).Debugf("[SESSION] completed %d tasks", report.Completed)
	s.refreshBoard(ctx, accountLog)

	return true
}

// idle sleeps until the earliest cooldown expiry, or the idle ceiling when
// nothing is cooling down, re-checking the account list every poll interval.
// It returns true when a list change ended the wait early.
func (s *Scheduler) idle(ctx context.Context, accounts []domain.Account, nextWake time.Time, log logrus.FieldLogger) bool {
	settings := s.settings.Current(ctx)
	now := s.clock.Now()

	wait := settings.Cycle.IdleCeiling
	if !nextWake.IsZero() {
		wait = max(nextWake.Sub(now), 0)
	}
	wakeAt := now.Add(wait)

	log.Infof("[CYCLE] No accounts ready. Sleeping until %s...", wakeAt.Format("15:04:05"))
	s.board.SetNextCycle(wakeAt)

	fingerprint := accountsFingerprint(accounts)
	changed, err := WaitOrRecheck(ctx, s.sleeper, wait, settings.Cycle.PollInterval, func() bool {
		current, err := s.accounts.List(ctx)
		if err != nil {
			return false
		}
		return accountsFingerprint(current) != fingerprint
	})
	if err != nil {
		return false
	}
	if changed {
		log.Info("[DYNAMIC] Accounts list changed! Re-scanning immediately.")
	}

	return changed
}

func (s *Scheduler) refreshBoard(ctx context.Context, log logrus.FieldLogger) {
	if s.status == nil {
		return
	}
	if err := s.status.Refresh(ctx); err != nil {
		log.WithError(err).Debug("status refresh failed")
	}
}

// WaitOrRecheck waits for total in chunks of at most poll, calling changed
// before each chunk. It stops early, returning true, as soon as changed does.
func WaitOrRecheck(ctx context.Context, sleeper ports.Sleeper, total, poll time.Duration, changed func() bool) (bool, error) {
	if poll <= 0 {
		poll = total
	}

	for waited := time.Duration(0); waited < total; {
		if changed() {
			return true, nil
		}

		chunk := min(poll, total-waited)
		if err := sleeper.Sleep(ctx, chunk); err != nil {
			return false, err
		}
		waited += chunk
	}

	return false, nil
}

func accountsFingerprint(accounts []domain.Account) string {
	ids := make([]string, 0, len(accounts))
	for _, account := range accounts {
		ids = append(ids, string(account.ID))
	}

	return strings.Join(ids, "\x00")
}
