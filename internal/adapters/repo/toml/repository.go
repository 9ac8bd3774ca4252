package toml

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bnema/repx/internal/domain"
	"github.com/bnema/repx/internal/ports"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

const (
	AccountsPathKey     = "accounts.path"
	ConfigDir           = ".repx"
	accountsFileName    = "accounts.toml"
	accountsTempPattern = ".accounts-*.toml.tmp"
)

// Repository is the accounts file. It is re-read on every call so edits made
// while the runner is up are picked up on the next cycle.
type Repository struct {
	accountsPath string
	mu           *sync.RWMutex
}

var _ ports.AccountRepository = (*Repository)(nil)

func NewRepository(cfg *viper.Viper) (*Repository, error) {
	if cfg == nil {
		cfg = viper.New()
	}

	accountsPath := cfg.GetString(AccountsPathKey)
	if accountsPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		accountsPath = filepath.Join(homeDir, ConfigDir, accountsFileName)
	}

	accountsPath, err := normalizePath(accountsPath)
	if err != nil {
		return nil, err
	}

	return &Repository{accountsPath: accountsPath, mu: lockForPath(accountsPath)}, nil
}

func (r *Repository) Path() string {
	return r.accountsPath
}

func (r *Repository) Save(ctx context.Context, account domain.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := account.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := r.readSchema()
	if err != nil {
		return err
	}

	encoded := toSchema(account)
	updated := false
	for i := range file.Accounts {
		if file.Accounts[i].Username == encoded.Username {
			file.Accounts[i] = encoded
			updated = true
			break
		}
	}
	if !updated {
		file.Accounts = append(file.Accounts, encoded)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	return r.writeSchema(file)
}

func (r *Repository) Remove(ctx context.Context, id domain.AccountID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := r.readSchema()
	if err != nil {
		return err
	}

	kept := file.Accounts[:0]
	for _, entry := range file.Accounts {
		if entry.Username != string(id) {
			kept = append(kept, entry)
		}
	}
	if len(kept) == len(file.Accounts) {
		return domain.ErrAccountNotFound
	}
	file.Accounts = kept

	return r.writeSchema(file)
}

func (r *Repository) GetByID(ctx context.Context, id domain.AccountID) (domain.Account, error) {
	accounts, err := r.List(ctx)
	if err != nil {
		return domain.Account{}, err
	}

	for _, account := range accounts {
		if account.ID == id {
			return account, nil
		}
	}

	return domain.Account{}, domain.ErrAccountNotFound
}

// List returns the accounts in file order with blank and repeated usernames
// dropped.
func (r *Repository) List(ctx context.Context) ([]domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	file, err := r.readSchema()
	if err != nil {
		return nil, err
	}

	accounts := make([]domain.Account, 0, len(file.Accounts))
	for _, entry := range file.Accounts {
		accounts = append(accounts, fromSchema(entry))
	}

	return domain.NormalizeAccounts(accounts), nil
}

func (r *Repository) readSchema() (accountsFileSchema, error) {
	data, err := os.ReadFile(r.accountsPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return accountsFileSchema{Version: currentAccountsSchemaVersion}, nil
		}
		return accountsFileSchema{}, fmt.Errorf("read accounts file: %w", err)
	}

	var file accountsFileSchema
	if err := toml.Unmarshal(data, &file); err != nil {
		return accountsFileSchema{}, fmt.Errorf("decode accounts file: %w", err)
	}
	if err := file.validateVersion(); err != nil {
		return accountsFileSchema{}, err
	}
	file.applyDefaults()

	return file, nil
}

func (r *Repository) writeSchema(file accountsFileSchema) error {
	file.applyDefaults()
	if err := writeTOMLFile(r.accountsPath, accountsTempPattern, file); err != nil {
		return fmt.Errorf("write accounts file: %w", err)
	}

	return nil
}

func toSchema(account domain.Account) accountSchema {
	return accountSchema{
		Username: string(account.ID),
		Nickname: account.Nickname,
		Credentials: credentialsSchema{
			PasswordRef:     account.Credentials.PasswordRef,
			SharedSecretRef: account.Credentials.SharedSecretRef,
			RefreshTokenRef: account.Credentials.RefreshTokenRef,
		},
	}
}

func fromSchema(entry accountSchema) domain.Account {
	return domain.Account{
		ID:       domain.AccountID(entry.Username),
		Nickname: entry.Nickname,
		Credentials: domain.Credentials{
			PasswordRef:     entry.Credentials.PasswordRef,
			SharedSecretRef: entry.Credentials.SharedSecretRef,
			RefreshTokenRef: entry.Credentials.RefreshTokenRef,
		},
	}
}
