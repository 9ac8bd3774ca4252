package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	statusadapter "github.com/bnema/repx/internal/adapters/render/status"
	"github.com/bnema/repx/internal/application"
	"github.com/bnema/repx/internal/config"
	"github.com/bnema/repx/internal/domain"
	"github.com/spf13/cobra"
)

func newStatusCmd(app *app) *cobra.Command {
	var accountID string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show per-account progress and cooldowns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rows, err := loadStatuses(cmd, app, domain.AccountID(accountID))
			if err != nil {
				return err
			}

			return writeStatusesOutput(cmd, app, rows, asJSON)
		},
	}

	cmd.Flags().StringVar(&accountID, "account", "", "Only show this account")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of the rendered view")

	return cmd
}

func writeStatusesOutput(cmd *cobra.Command, app *app, rows []application.AccountStatus, asJSON bool) error {
	if asJSON {
		return writeJSON(cmd.OutOrStdout(), rows)
	}

	settings, err := config.ReadSettings(app.cfg.SettingsPath)
	if err != nil {
		settings = domain.DefaultSettings()
	}

	rendered, err := app.statusRenderer(rows, statusadapter.RenderOptions{
		Now:            app.now(),
		DailyLimit:     settings.DailyLimit,
		CooldownWindow: settings.Cooldown(),
	})
	if err != nil {
		return fmt.Errorf("render status: %w", err)
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
	return err
}

// loadStatuses applies any pending day or week rollover and builds one row
// per account, or just the requested one.
func loadStatuses(cmd *cobra.Command, app *app, accountID domain.AccountID) ([]application.AccountStatus, error) {
	ctx := cmd.Context()

	log, closer, err := app.newLogger(cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	defer func() { _ = closer.Close() }()

	store, storeCloser, err := app.openStateStore(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = storeCloser.Close() }()

	clock := clockFunc(app.now)
	keeper := application.NewStateKeeper(store, clock, log)
	reset := application.NewResetPolicy(keeper, clock, log)
	board := application.NewStatusBoard(app.now())
	service := application.NewStatusService(app.accounts, keeper, reset, board, clock)

	rows, err := service.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if accountID == "" {
		return rows, nil
	}

	for _, row := range rows {
		if row.ID == accountID {
			return []application.AccountStatus{row}, nil
		}
	}

	return nil, fmt.Errorf("%s: %w", accountID, domain.ErrAccountNotFound)
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
