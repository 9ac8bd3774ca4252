package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/bnema/repx/internal/domain"
	"github.com/bnema/repx/internal/ports"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// importEntry is one account in an import file. account_name and
// shared_secret match Steam Desktop Authenticator maFiles, so a maFile can be
// imported as-is.
type importEntry struct {
	Username      string `yaml:"username"`
	AccountName   string `yaml:"account_name"`
	Nickname      string `yaml:"nickname"`
	Password      string `yaml:"password"`
	SharedSecret  string `yaml:"shared_secret"`
	SharedSecret2 string `yaml:"sharedSecret"`
	RefreshToken  string `yaml:"refresh_token"`
	RefreshToken2 string `yaml:"refreshToken"`
}

func (e importEntry) username() string {
	if name := strings.TrimSpace(e.Username); name != "" {
		return name
	}
	return strings.TrimSpace(e.AccountName)
}

func (e importEntry) sharedSecret() string {
	return firstNonEmpty(e.SharedSecret, e.SharedSecret2)
}

func (e importEntry) refreshToken() string {
	return firstNonEmpty(e.RefreshToken, e.RefreshToken2)
}

func newAccountImportCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file|->",
		Short: "Import accounts from a YAML or JSON list (or a single maFile)",
		Long:  "Each entry needs a username (or account_name). Secret values found in the file (password, shared_secret, refresh_token) are moved into the secret store and only their keys are kept in the accounts file.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readImportSource(cmd, args[0])
			if err != nil {
				return err
			}

			entries, err := parseImport(data)
			if err != nil {
				return err
			}

			imported, err := importAccounts(cmd.Context(), app.accounts, app.secretStore, entries)
			for _, id := range imported {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "imported %s\n", id)
			}
			return err
		},
	}

	return cmd
}

func readImportSource(cmd *cobra.Command, source string) ([]byte, error) {
	if source == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}

	data, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("read import file: %w", err)
	}
	return data, nil
}

// parseImport accepts a list of entries or a single entry. JSON input works
// because yaml.v3 reads JSON documents.
func parseImport(data []byte) ([]importEntry, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.New("import file is empty")
	}

	var list []importEntry
	if err := yaml.Unmarshal(trimmed, &list); err == nil {
		return list, nil
	}

	var single importEntry
	if err := yaml.Unmarshal(trimmed, &single); err != nil {
		return nil, fmt.Errorf("parse import file: %w", err)
	}
	return []importEntry{single}, nil
}

func importAccounts(ctx context.Context, repo ports.AccountRepository, secrets ports.SecretStore, entries []importEntry) ([]domain.AccountID, error) {
	var imported []domain.AccountID
	var errs []error

	for i, entry := range entries {
		username := entry.username()
		if username == "" {
			errs = append(errs, fmt.Errorf("entry %d: username is required", i+1))
			continue
		}
		id := domain.AccountID(username)

		account, err := repo.GetByID(ctx, id)
		if err != nil && !errors.Is(err, domain.ErrAccountNotFound) {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
			continue
		}
		account.ID = id
		if nickname := strings.TrimSpace(entry.Nickname); nickname != "" {
			account.Nickname = nickname
		}

		if err := account.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("entry %d: %w", i+1, err))
			continue
		}

		secretsToStore := []struct {
			value string
			name  string
			ref   *string
		}{
			{value: entry.Password, name: domain.PasswordKeyName, ref: &account.Credentials.PasswordRef},
			{value: entry.sharedSecret(), name: domain.SharedSecretKeyName, ref: &account.Credentials.SharedSecretRef},
			{value: entry.refreshToken(), name: domain.RefreshTokenKeyName, ref: &account.Credentials.RefreshTokenRef},
		}

		failed := false
		for _, secret := range secretsToStore {
			value := strings.TrimSpace(secret.value)
			if value == "" {
				continue
			}
			key := strings.TrimSpace(*secret.ref)
			if key == "" {
				key = domain.DefaultSecretKey(id, secret.name)
			}
			if err := secrets.Put(ctx, key, value); err != nil {
				errs = append(errs, fmt.Errorf("%s: store %s: %w", id, secret.name, err))
				failed = true
				break
			}
			*secret.ref = key
		}
		if failed {
			continue
		}

		if err := repo.Save(ctx, account); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
			continue
		}
		imported = append(imported, id)
	}

	return imported, errors.Join(errs...)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
