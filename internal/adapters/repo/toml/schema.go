package toml

import "fmt"

const (
	currentAccountsSchemaVersion = 1
	currentStateSchemaVersion    = 1
)

type accountsFileSchema struct {
	Version  int             `toml:"version"`
	Accounts []accountSchema `toml:"accounts"`
}

func (s *accountsFileSchema) applyDefaults() {
	if s.Version == 0 {
		s.Version = currentAccountsSchemaVersion
	}
}

func (s accountsFileSchema) validateVersion() error {
	if s.Version > currentAccountsSchemaVersion {
		return fmt.Errorf("unsupported accounts schema version %d (current %d)", s.Version, currentAccountsSchemaVersion)
	}

	return nil
}

type accountSchema struct {
	Username    string            `toml:"username"`
	Nickname    string            `toml:"nickname,omitempty"`
	Credentials credentialsSchema `toml:"credentials"`
}

type credentialsSchema struct {
	PasswordRef     string `toml:"password_ref,omitempty"`
	SharedSecretRef string `toml:"shared_secret_ref,omitempty"`
	RefreshTokenRef string `toml:"refresh_token_ref,omitempty"`
}

type stateFileSchema struct {
	Version  int                  `toml:"version"`
	Markers  markersSchema        `toml:"markers"`
	Accounts []accountStateSchema `toml:"accounts"`
}

func (s *stateFileSchema) applyDefaults() {
	if s.Version == 0 {
		s.Version = currentStateSchemaVersion
	}
}

func (s stateFileSchema) validateVersion() error {
	if s.Version > currentStateSchemaVersion {
		return fmt.Errorf("unsupported state schema version %d (current %d)", s.Version, currentStateSchemaVersion)
	}

	return nil
}

type markersSchema struct {
	LastResetDate   string `toml:"last_reset_date"`
	LastWeeklyReset int    `toml:"last_weekly_reset"`
}

// Times are milliseconds since the Unix epoch, 0 when unset.
type accountStateSchema struct {
	Username          string `toml:"username"`
	CooldownUntil     int64  `toml:"cooldown_until"`
	CompletedToday    int    `toml:"completed_today"`
	CompletedThisWeek int    `toml:"completed_this_week"`
	TotalCompleted    int    `toml:"total_completed"`
	LastError         string `toml:"last_error,omitempty"`
	LastErrorType     string `toml:"last_error_type,omitempty"`
	LastSuccess       int64  `toml:"last_success,omitempty"`
	SteamID           string `toml:"steam_id,omitempty"`
	AvatarURL         string `toml:"avatar_url,omitempty"`
	Nickname          string `toml:"nickname,omitempty"`
}
