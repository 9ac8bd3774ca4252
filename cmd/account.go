package cmd

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/bnema/repx/internal/application"
	"github.com/bnema/repx/internal/domain"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newAccountCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage accounts",
	}

	cmd.AddCommand(
		newAccountListCmd(app),
		newAccountAddCmd(app),
		newAccountRemoveCmd(app),
		newAccountImportCmd(app),
		newAccountClearCooldownCmd(app),
		newAccountCheckCmd(app),
	)

	return cmd
}

func newAccountListCmd(app *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List configured accounts in processing order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			accounts, err := app.accounts.List(cmd.Context())
			if err != nil {
				return err
			}

			if asJSON {
				type accountJSON struct {
					Username        string `json:"username"`
					Nickname        string `json:"nickname,omitempty"`
					RefreshTokenKey string `json:"refreshTokenKey"`
				}
				out := make([]accountJSON, 0, len(accounts))
				for _, account := range accounts {
					out = append(out, accountJSON{
						Username:        string(account.ID),
						Nickname:        account.Nickname,
						RefreshTokenKey: account.RefreshTokenKey(),
					})
				}
				return writeJSON(cmd.OutOrStdout(), out)
			}

			for _, account := range accounts {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", account.ID, account.Nickname)
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")

	return cmd
}

func newAccountAddCmd(app *app) *cobra.Command {
	var nickname string
	var creds domain.Credentials

	cmd := &cobra.Command{
		Use:   "add <username>",
		Short: "Add an account to the accounts file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := domain.AccountID(strings.TrimSpace(args[0]))
			if _, err := app.accounts.GetByID(cmd.Context(), id); err == nil {
				return fmt.Errorf("%s: %w", id, domain.ErrAccountExists)
			} else if !errors.Is(err, domain.ErrAccountNotFound) {
				return err
			}

			account := domain.Account{ID: id, Nickname: strings.TrimSpace(nickname), Credentials: creds}
			if err := app.accounts.Save(cmd.Context(), account); err != nil {
				return err
			}

			_, err := fmt.Fprintf(cmd.OutOrStdout(), "added %s (refresh token key %q)\n", id, account.RefreshTokenKey())
			return err
		},
	}

	cmd.Flags().StringVar(&nickname, "nickname", "", "Display name")
	cmd.Flags().StringVar(&creds.RefreshTokenRef, "refresh-token-ref", "", "Secret-store key of the refresh token (default <username>/refresh_token)")
	cmd.Flags().StringVar(&creds.PasswordRef, "password-ref", "", "Secret-store key of the password")
	cmd.Flags().StringVar(&creds.SharedSecretRef, "shared-secret-ref", "", "Secret-store key of the Steam Guard shared secret")

	return cmd
}

func newAccountRemoveCmd(app *app) *cobra.Command {
	var purgeSecrets bool

	cmd := &cobra.Command{
		Use:   "remove <username>",
		Short: "Remove an account and its progress record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id := domain.AccountID(strings.TrimSpace(args[0]))

			account, err := app.accounts.GetByID(ctx, id)
			if err != nil {
				return err
			}
			if err := app.accounts.Remove(ctx, id); err != nil {
				return err
			}

			if err := app.withStateKeeper(cmd, func(keeper *application.StateKeeper, _ logrus.FieldLogger) error {
				keeper.UpdateIf(ctx, func(s *domain.State) bool {
					if _, ok := s.Accounts[id]; !ok {
						return false
					}
					delete(s.Accounts, id)
					return true
				})
				return nil
			}); err != nil {
				return err
			}

			if purgeSecrets {
				var errs []error
				for _, key := range secretKeys(account) {
					if err := app.secretStore.Delete(ctx, key); err != nil {
						errs = append(errs, err)
					}
				}
				if err := errors.Join(errs...); err != nil {
					return fmt.Errorf("purge secrets for %s: %w", id, err)
				}
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", id)
			return err
		},
	}

	cmd.Flags().BoolVar(&purgeSecrets, "purge-secrets", false, "Also delete the account's stored secrets")

	return cmd
}

func newAccountClearCooldownCmd(app *app) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "clear-cooldown [username]",
		Short: "End an account's cooldown so the next cycle picks it up",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var ids []domain.AccountID
			switch {
			case all:
				accounts, err := app.accounts.List(ctx)
				if err != nil {
					return err
				}
				for _, account := range accounts {
					ids = append(ids, account.ID)
				}
			case len(args) == 1:
				account, err := app.accounts.GetByID(ctx, domain.AccountID(strings.TrimSpace(args[0])))
				if err != nil {
					return err
				}
				ids = append(ids, account.ID)
			default:
				return errors.New("clear-cooldown needs a username or --all")
			}

			return app.withStateKeeper(cmd, func(keeper *application.StateKeeper, _ logrus.FieldLogger) error {
				keeper.Update(ctx, func(s *domain.State) {
					for _, id := range ids {
						s.Update(id, func(r *domain.AccountRecord) {
							r.CooldownUntil = time.Time{}
							r.ClearError()
						})
					}
				})
				for _, id := range ids {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "cleared %s\n", id)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Clear every account")

	return cmd
}

// withStateKeeper opens the configured state backend for the duration of fn.
func (a *app) withStateKeeper(cmd *cobra.Command, fn func(*application.StateKeeper, logrus.FieldLogger) error) error {
	log, closer, err := a.newLogger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	store, storeCloser, err := a.openStateStore(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = storeCloser.Close() }()

	return fn(application.NewStateKeeper(store, clockFunc(a.now), log), log)
}

func secretKeys(account domain.Account) []string {
	keys := []string{account.RefreshTokenKey()}
	if ref := strings.TrimSpace(account.Credentials.PasswordRef); ref != "" {
		keys = append(keys, ref)
	}
	if ref := strings.TrimSpace(account.Credentials.SharedSecretRef); ref != "" {
		keys = append(keys, ref)
	}
	return keys
}

func newTabWriter(cmd *cobra.Command) *tabwriter.Writer {
	return tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
}
