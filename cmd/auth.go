package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/bnema/repx/internal/domain"
	"github.com/spf13/cobra"
)

func newAuthCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage stored Steam refresh tokens",
	}

	cmd.AddCommand(newAuthSetCmd(app), newAuthRemoveCmd(app))

	return cmd
}

func newAuthSetCmd(app *app) *cobra.Command {
	var accountID string
	var refreshToken string

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Store an account's Steam refresh token ('-' reads it from stdin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			account, err := app.accounts.GetByID(cmd.Context(), domain.AccountID(strings.TrimSpace(accountID)))
			if err != nil {
				return err
			}

			token := refreshToken
			if token == "-" {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read refresh token from stdin: %w", err)
				}
				token = line
			}
			token = strings.TrimSpace(token)
			if token == "" {
				return errors.New("refresh token is empty")
			}

			return app.secretStore.Put(cmd.Context(), account.RefreshTokenKey(), token)
		},
	}

	cmd.Flags().StringVar(&accountID, "account", "", "Account username")
	cmd.Flags().StringVar(&refreshToken, "refresh-token", "", "Refresh token value, or - for stdin")
	_ = cmd.MarkFlagRequired("account")
	_ = cmd.MarkFlagRequired("refresh-token")

	return cmd
}

func newAuthRemoveCmd(app *app) *cobra.Command {
	var accountID string

	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Delete an account's stored refresh token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			account, err := app.accounts.GetByID(cmd.Context(), domain.AccountID(strings.TrimSpace(accountID)))
			if err != nil {
				return err
			}

			return app.secretStore.Delete(cmd.Context(), account.RefreshTokenKey())
		},
	}

	cmd.Flags().StringVar(&accountID, "account", "", "Account username")
	_ = cmd.MarkFlagRequired("account")

	return cmd
}
