package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bnema/repx/internal/domain"
	"github.com/bnema/repx/internal/logging"
	"github.com/bnema/repx/internal/ports"
	"github.com/sirupsen/logrus"
)

const restrictedCooldownError = "consecutive failures"

type RunnerDeps struct {
	Tasks    ports.TaskService
	State    *StateKeeper
	Settings ports.SettingsSource
	Status   *StatusService
	Board    *StatusBoard
	Clock    ports.Clock
	Sleeper  ports.Sleeper
	Delay    DelayFunc
	Log      logrus.FieldLogger
}

// Runner drives one logged-in account through its task queue.
type Runner struct {
	tasks    ports.TaskService
	state    *StateKeeper
	settings ports.SettingsSource
	status   *StatusService
	board    *StatusBoard
	clock    ports.Clock
	sleeper  ports.Sleeper
	delay    DelayFunc
	log      logrus.FieldLogger
}

type SessionReport struct {
	Account   domain.AccountID
	Result    domain.SessionResult
	Completed int
	Err       error
}

func NewRunner(deps RunnerDeps) *Runner {
	r := &Runner{
		tasks:    deps.Tasks,
		state:    deps.State,
		settings: deps.Settings,
		status:   deps.Status,
		board:    deps.Board,
		clock:    deps.Clock,
		sleeper:  deps.Sleeper,
		delay:    deps.Delay,
		log:      deps.Log,
	}
	if r.clock == nil {
		r.clock = ports.SystemClock{}
	}
	if r.sleeper == nil {
		r.sleeper = ports.SystemSleeper{}
	}
	if r.delay == nil {
		r.delay = RandomDelay
	}

	return r
}

// Process runs one account session to its end. It never returns an error:
// failures are logged here and reported in the SessionReport, and the session
// is always logged out.
func (r *Runner) Process(ctx context.Context, account domain.Account, session ports.Session) (report SessionReport) {
	log := r.log.WithField(logging.FieldAccount, account.ID)
	report = SessionReport{Account: account.ID}

	defer func() {
		log.Info("[LOGOFF] Session wrapped up.")
		timeout := r.settings.Current(ctx).RequestTimeout
		logoutCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		if err := session.Logout(logoutCtx); err != nil {
			log.WithError(err).Debug("[LOGOFF] logout failed")
		}
	}()

	result, completed, err := r.run(ctx, account, session, log)
	report.Result = result
	report.Completed = completed

	if err != nil && ctx.Err() != nil {
		log.WithError(err).Info("[TASKS] Interrupted by shutdown")
		report.Result = domain.ResultStopped
		return report
	}
	if err != nil {
		report.Result = domain.ResultFailed
		report.Err = err
		if IsTransient(err) {
			log.WithError(err).Warn("[NETWORK] Lost connection during processing")
			r.board.Log(r.clock.Now(), LogWarn, fmt.Sprintf("%s: network error", account.ID))
		} else {
			log.WithError(err).Error("[ERROR] Processing failure")
			r.board.Log(r.clock.Now(), LogError, fmt.Sprintf("%s: %v", account.ID, err))
		}
	}

	return report
}

func (r *Runner) run(ctx context.Context, account domain.Account, session ports.Session, log logrus.FieldLogger) (domain.SessionResult, int, error) {
	identity := session.Identity()
	r.state.UpdateAccount(ctx, account.ID, func(rec *domain.AccountRecord) {
		rec.ApplyIdentity(identity)
	})
	r.refreshBoard(ctx, log)

	log.Info("[TASKS] Checking tasks...")
	r.board.Log(r.clock.Now(), LogInfo, fmt.Sprintf("%s: Checking tasks...", account.ID))

	profile, err := r.resolveProfile(ctx, identity.SteamID, log)
	if err != nil {
		return domain.ResultFailed, 0, err
	}

	tasks, err := r.tasks.ListTasks(ctx, profile.ID)
	if err != nil {
		return domain.ResultFailed, 0, fmt.Errorf("list tasks: %w", err)
	}
	log.Infof("[TASKS] Found %d tasks for this account.", len(tasks))

	if len(tasks) == 0 {
		log.Info("[TASKS] No work available. Skipping.")
		r.board.Log(r.clock.Now(), LogInfo, fmt.Sprintf("%s: No tasks available", account.ID))
		return domain.ResultNoWork, 0, nil
	}

	restricted := 0
	completed := 0
	for _, task := range tasks {
		if ctx.Err() != nil {
			return domain.ResultStopped, completed, nil
		}

		settings := r.settings.Current(ctx)
		taskLog := log.WithField(logging.FieldTask, task.ID)

		if r.state.Load(ctx).Record(account.ID).CompletedToday >= settings.DailyLimit {
			taskLog.Info("[LIMIT] Daily limit reached.")
			r.state.UpdateAccount(ctx, account.ID, func(rec *domain.AccountRecord) {
				rec.StartCooldown(r.clock.Now(), settings.Cooldown())
				rec.LastError = ""
			})
			r.refreshBoard(ctx, log)
			return domain.ResultCooldown, completed, nil
		}

		taskLog.WithField(logging.FieldTarget, task.TargetSteamID).Info("[WORK] Posting comment")
		started := r.clock.Now()
		outcome := r.execute(ctx, session, task, settings)

		switch outcome.Kind {
		case domain.OutcomeSuccess:
			if err := r.complete(ctx, account, task, profile, settings, started, taskLog); err != nil {
				return domain.ResultFailed, completed, err
			}
			completed++
			restricted = 0

			pause := r.delay(settings.Delay.Min, settings.Delay.Max)
			taskLog.Infof("[SLEEP] Waiting %ds...", int(pause.Round(time.Second)/time.Second))
			if err := r.sleeper.Sleep(ctx, pause); err != nil {
				return domain.ResultStopped, completed, nil
			}

		case domain.OutcomeRestricted:
			restricted++
			taskLog.Warnf("[SKIP] Target restricted (%d/%d)", restricted, settings.ConsecutiveFailuresLimit)
			r.board.Log(r.clock.Now(), LogWarn, fmt.Sprintf("%s: Target restricted", account.ID))

			if restricted >= settings.ConsecutiveFailuresLimit {
				taskLog.Warnf("[COOLDOWN] Too many restricted profiles. %s sleep.", settings.Backoff.Restricted)
				r.persist(ctx, account.ID, func(rec *domain.AccountRecord) {
					rec.StartCooldown(r.clock.Now(), settings.Backoff.Restricted)
					rec.LastError = restrictedCooldownError
				})
				r.refreshBoard(ctx, log)
				return domain.ResultCooldown, completed, nil
			}

		case domain.OutcomeRateLimited:
			var wait time.Duration
			r.persist(ctx, account.ID, func(rec *domain.AccountRecord) {
				wait = settings.Backoff.RateLimitFirst
				if rec.LastErrorType == domain.ErrorTypeRateLimit {
					wait = settings.Backoff.RateLimitRepeat
				}
				rec.StartCooldown(r.clock.Now(), wait)
				rec.RecordError(outcome.Message(), domain.ErrorTypeRateLimit)
			})
			taskLog.Warnf("[RATE] Limit hit. Sleeping %s.", wait)
			r.board.Log(r.clock.Now(), LogWarn, fmt.Sprintf("%s: Rate limited for %s", account.ID, wait))
			r.refreshBoard(ctx, log)
			return domain.ResultCooldown, completed, nil

		default:
			if outcome.Kind == domain.OutcomeTransient {
				taskLog.WithError(outcome.Err).Warn("[NETWORK] Comment failed")
			} else {
				taskLog.WithError(outcome.Err).Error("[ERROR] Comment failed")
			}
			if err := r.sleeper.Sleep(ctx, settings.Delay.Retry); err != nil {
				return domain.ResultStopped, completed, nil
			}
		}
	}

	return domain.ResultCompleted, completed, nil
}

// resolveProfile finds the task service profile for steamID, registering it
// on first sight.
func (r *Runner) resolveProfile(ctx context.Context, steamID string, log logrus.FieldLogger) (domain.ServiceProfile, error) {
	profiles, err := r.tasks.ListProfiles(ctx)
	if err != nil {
		return domain.ServiceProfile{}, fmt.Errorf("list service profiles: %w", err)
	}
	if profile, ok := findProfile(profiles, steamID); ok {
		return profile, nil
	}

	log.Info("[API] Registering profile on the task service...")
	registerErr := r.tasks.RegisterProfile(ctx, steamID)

	profiles, err = r.tasks.ListProfiles(ctx)
	if err != nil {
		return domain.ServiceProfile{}, fmt.Errorf("list service profiles: %w", errors.Join(registerErr, err))
	}
	if profile, ok := findProfile(profiles, steamID); ok {
		return profile, nil
	}

	if registerErr != nil {
		return domain.ServiceProfile{}, fmt.Errorf("%w: %w", domain.ErrIdentityResolution, registerErr)
	}
	return domain.ServiceProfile{}, domain.ErrIdentityResolution
}

// execute posts the comment. Shutdown does not interrupt a post already in
// flight; only the request timeout does.
func (r *Runner) execute(ctx context.Context, session ports.Session, task domain.Task, settings domain.Settings) domain.Outcome {
	postCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settings.RequestTimeout)
	defer cancel()

	return session.PostComment(postCtx, task.TargetSteamID, task.RequiredText)
}

func (r *Runner) complete(ctx context.Context, account domain.Account, task domain.Task, profile domain.ServiceProfile, settings domain.Settings, started time.Time, log logrus.FieldLogger) error {
	took := r.clock.Now().Sub(started)
	log.WithField(logging.FieldTarget, task.TargetSteamID).Infof("[SUCCESS] Posted comment (%ds)", int(took.Round(time.Second)/time.Second))

	reportCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settings.RequestTimeout)
	defer cancel()
	if err := r.tasks.CompleteTask(reportCtx, task.ID, task.RequiredCommentID, profile.ID); err != nil {
		return fmt.Errorf("report task completion: %w", err)
	}

	now := r.clock.Now()
	r.persist(ctx, account.ID, func(rec *domain.AccountRecord) {
		rec.RecordSuccess(now)
	})

	r.board.RecordTask(now, took)
	r.board.Log(now, LogSuccess, fmt.Sprintf("%s: Success on %s", account.ID, task.TargetSteamID))
	r.refreshBoard(ctx, log)

	return nil
}

// persist records the result of a post that already went out, so it runs
// even when shutdown arrived while the post was in flight.
func (r *Runner) persist(ctx context.Context, id domain.AccountID, fn func(*domain.AccountRecord)) {
	r.state.UpdateAccount(context.WithoutCancel(ctx), id, fn)
}

func (r *Runner) refreshBoard(ctx context.Context, log logrus.FieldLogger) {
	if r.status == nil {
		return
	}
	if err := r.status.Refresh(ctx); err != nil {
		log.WithError(err).Debug("status refresh failed")
	}
}

func findProfile(profiles []domain.ServiceProfile, steamID string) (domain.ServiceProfile, bool) {
	for _, profile := range profiles {
		if profile.SteamID == steamID {
			return profile, true
		}
	}

	return domain.ServiceProfile{}, false
}
