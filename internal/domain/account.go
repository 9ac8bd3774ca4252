package domain

import (
	"fmt"
	"strings"
)

// AccountID is the platform login name. It keys both the accounts file and
// the persisted state.
type AccountID string

type Account struct {
	ID          AccountID
	Nickname    string
	Credentials Credentials
}

// Credentials holds secret-store keys, never the secret values themselves.
type Credentials struct {
	PasswordRef     string
	SharedSecretRef string
	RefreshTokenRef string
}

// Identity is what a logged-in session knows about itself.
type Identity struct {
	SteamID   string
	Nickname  string
	AvatarURL string
}

// ServiceProfile is the task service's registration of a platform identity.
type ServiceProfile struct {
	ID      string
	SteamID string
}

func (a Account) Validate() error {
	if strings.TrimSpace(string(a.ID)) == "" {
		return fmt.Errorf("username is required")
	}
	if strings.ContainsAny(string(a.ID), "/\\ \t") {
		return fmt.Errorf("username %q contains invalid characters", a.ID)
	}

	return nil
}

func (a Account) DisplayName() string {
	if nickname := strings.TrimSpace(a.Nickname); nickname != "" {
		return nickname
	}

	return string(a.ID)
}

// NormalizeAccounts trims IDs and drops blanks and repeats, keeping the first
// occurrence so file order is the processing order.
func NormalizeAccounts(accounts []Account) []Account {
	out := make([]Account, 0, len(accounts))
	seen := make(map[AccountID]struct{}, len(accounts))
	for _, account := range accounts {
		account.ID = AccountID(strings.TrimSpace(string(account.ID)))
		if account.ID == "" {
			continue
		}
		if _, ok := seen[account.ID]; ok {
			continue
		}
		seen[account.ID] = struct{}{}
		out = append(out, account)
	}

	return out
}

const (
	PasswordKeyName     = "password"
	SharedSecretKeyName = "shared_secret"
	RefreshTokenKeyName = "refresh_token"
)

// RefreshTokenKey is the secret-store key holding the account's refresh token:
// the configured ref, or "<username>/refresh_token".
func (a Account) RefreshTokenKey() string {
	if ref := strings.TrimSpace(a.Credentials.RefreshTokenRef); ref != "" {
		return ref
	}

	return DefaultSecretKey(a.ID, RefreshTokenKeyName)
}

func DefaultSecretKey(id AccountID, name string) string {
	return string(id) + "/" + name
}
