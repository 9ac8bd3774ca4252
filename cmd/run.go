package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/bnema/repx/internal/adapters/httpapi"
	"github.com/bnema/repx/internal/application"
	"github.com/bnema/repx/internal/config"
	"github.com/bnema/repx/internal/ports"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newRunCmd(app *app) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process Rep4Rep tasks for every account until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if app.cfg.Rep4Rep.APIKey == "" {
				return errors.New("rep4rep api key is not configured (set rep4rep.api_key or REPX_REP4REP_API_KEY)")
			}
			if listen == "" {
				listen = app.cfg.Listen
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runSupervisor(ctx, app, cmd, listen)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Serve the read-only status API on this address (e.g. 127.0.0.1:3000)")

	return cmd
}

func runSupervisor(ctx context.Context, app *app, cmd *cobra.Command, listen string) error {
	log, logCloser, err := app.newLogger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() { _ = logCloser.Close() }()

	created, err := config.EnsureSettingsFile(app.cfg.SettingsPath)
	if err != nil {
		log.WithError(err).Warn("Could not write default settings file")
	} else if created {
		log.WithField("path", app.cfg.SettingsPath).Info("Wrote default settings")
	}

	stateStore, stateCloser, err := app.openStateStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = stateCloser.Close() }()

	clock := clockFunc(app.now)
	sleeper := ports.SystemSleeper{}
	settings := config.NewSettingsSource(app.cfg.SettingsPath, log)

	board := application.NewStatusBoard(app.now())
	keeper := application.NewStateKeeper(stateStore, clock, log)
	reset := application.NewResetPolicy(keeper, clock, log)
	status := application.NewStatusService(app.accounts, keeper, reset, board, clock)

	runner := application.NewRunner(application.RunnerDeps{
		Tasks:    app.taskService(settings),
		State:    keeper,
		Settings: settings,
		Status:   status,
		Board:    board,
		Clock:    clock,
		Sleeper:  sleeper,
		Log:      log,
	})
	scheduler := application.NewScheduler(application.SchedulerDeps{
		Accounts: app.accounts,
		Sessions: app.sessionProvider(log, settings),
		Runner:   runner,
		Reset:    reset,
		State:    keeper,
		Status:   status,
		Settings: settings,
		Board:    board,
		Clock:    clock,
		Sleeper:  sleeper,
		Log:      log,
	})
	supervisor := application.NewSupervisor(scheduler, settings, board, clock, sleeper, log)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return supervisor.Run(groupCtx)
	})
	if listen != "" {
		server := httpapi.New(board, log)
		group.Go(func() error {
			return server.ListenAndServe(groupCtx, listen)
		})
	}

	err = group.Wait()
	log.Info("Shutdown complete")
	return err
}
