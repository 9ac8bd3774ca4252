package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/bnema/repx/internal/application"
	"github.com/bnema/repx/internal/config"
	"github.com/bnema/repx/internal/domain"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type accountCheck struct {
	Username   domain.AccountID `json:"username"`
	SteamID    string           `json:"steamID,omitempty"`
	Nickname   string           `json:"nickname,omitempty"`
	Registered *bool            `json:"registered,omitempty"`
	Error      string           `json:"error,omitempty"`
}

func newAccountCheckCmd(app *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "check [username]",
		Short: "Log in each account, record its Steam identity and show whether Rep4Rep knows it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			accounts, err := app.accounts.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(args) == 1 {
				account, err := app.accounts.GetByID(cmd.Context(), domain.AccountID(strings.TrimSpace(args[0])))
				if err != nil {
					return err
				}
				accounts = []domain.Account{account}
			}

			var results []accountCheck
			err = app.withStateKeeper(cmd, func(keeper *application.StateKeeper, log logrus.FieldLogger) error {
				work := func(ctx context.Context) error {
					results = checkAccounts(ctx, app, keeper, log, accounts)
					return nil
				}
				if asJSON {
					return work(cmd.Context())
				}
				return runWithSpinner(cmd.Context(), cmd.ErrOrStderr(), "Checking accounts...", work)
			})
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), results)
			}
			return writeAccountChecks(cmd, results)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")

	return cmd
}

func checkAccounts(ctx context.Context, app *app, keeper *application.StateKeeper, log logrus.FieldLogger, accounts []domain.Account) []accountCheck {
	settings := config.NewSettingsSource(app.cfg.SettingsPath, log)
	provider := app.sessionProvider(log, settings)

	registered := map[string]bool{}
	haveProfiles := false
	if app.cfg.Rep4Rep.APIKey != "" {
		profiles, err := app.taskService(settings).ListProfiles(ctx)
		if err != nil {
			log.WithError(err).Warn("Could not list Rep4Rep profiles")
		} else {
			haveProfiles = true
			for _, profile := range profiles {
				registered[profile.SteamID] = true
			}
		}
	}

	results := make([]accountCheck, 0, len(accounts))
	for _, account := range accounts {
		result := accountCheck{Username: account.ID}

		session, err := provider.Acquire(ctx, account)
		if err != nil {
			result.Error = err.Error()
			results = append(results, result)
			continue
		}

		identity := session.Identity()
		result.SteamID = identity.SteamID
		result.Nickname = identity.Nickname
		if haveProfiles {
			known := registered[identity.SteamID]
			result.Registered = &known
		}

		keeper.UpdateAccount(ctx, account.ID, func(r *domain.AccountRecord) {
			r.ApplyIdentity(identity)
		})

		if err := session.Logout(ctx); err != nil {
			log.WithError(err).WithField("account", account.ID).Debug("Logout failed")
		}
		results = append(results, result)
	}

	return results
}

func writeAccountChecks(cmd *cobra.Command, results []accountCheck) error {
	w := newTabWriter(cmd)
	_, _ = fmt.Fprintln(w, "USERNAME\tSTEAM ID\tNICKNAME\tREP4REP\tRESULT")
	for _, r := range results {
		rep := "-"
		if r.Registered != nil {
			rep = "not registered"
			if *r.Registered {
				rep = "registered"
			}
		}
		outcome := "ok"
		if r.Error != "" {
			outcome = r.Error
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.Username, dash(r.SteamID), dash(r.Nickname), rep, outcome)
	}
	return w.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
