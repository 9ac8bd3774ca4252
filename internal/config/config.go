// Package config loads the process configuration (paths, backends, API keys)
// from ~/.repx/config.toml and REPX_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	tomlrepo "github.com/bnema/repx/internal/adapters/repo/toml"
	"github.com/spf13/viper"
)

const (
	EnvPrefix      = "REPX"
	configFileName = "config.toml"

	SettingsPathKey  = "settings.path"
	StateBackendKey  = "state.backend"
	RedisAddrKey     = "state.redis_addr"
	RedisPasswordKey = "state.redis_password"
	RedisDBKey       = "state.redis_db"
	RedisKeyKey      = "state.redis_key"
	SecretsDirKey    = "secrets.dir"
	PassPrefixKey    = "secrets.pass_prefix"
	Rep4RepAPIKey    = "rep4rep.api_key"
	Rep4RepURLKey    = "rep4rep.base_url"
	SteamAPIURLKey   = "steam.api_base_url"
	SteamWebURLKey   = "steam.community_base_url"
	LogLevelKey      = "log.level"
	LogFormatKey     = "log.format"
	LogFileKey       = "log.file"
	ListenKey        = "http.listen"
)

const (
	BackendTOML   = "toml"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

type Config struct {
	Dir          string
	File         string
	AccountsPath string
	SettingsPath string
	State        StateConfig
	Secrets      SecretsConfig
	Rep4Rep      Rep4RepConfig
	Steam        SteamConfig
	Log          LogConfig
	Listen       string

	v *viper.Viper
}

type StateConfig struct {
	Backend       string
	Path          string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisKey      string
}

type SecretsConfig struct {
	Dir        string
	PassPrefix string
}

type Rep4RepConfig struct {
	APIKey  string
	BaseURL string
}

type SteamConfig struct {
	APIBaseURL       string
	CommunityBaseURL string
}

type LogConfig struct {
	Level  string
	Format string
	File   string
}

type Options struct {
	// File overrides ~/.repx/config.toml.
	File string
	// HomeDir overrides the user's home directory.
	HomeDir string
}

// Load reads the config file if it exists. A missing file is not an error;
// every key has a default.
func Load(opts Options) (*Config, error) {
	home := opts.HomeDir
	if home == "" {
		var err error
		home, err = os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
	}
	dir := filepath.Join(home, tomlrepo.ConfigDir)

	v := newViper()
	setDefaults(v, dir)

	file := opts.File
	if file == "" {
		file = filepath.Join(dir, configFileName)
	}
	if _, err := os.Stat(file); err == nil {
		v.SetConfigFile(file)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("stat config %s: %w", file, err)
	} else if opts.File != "" {
		return nil, fmt.Errorf("config file %s does not exist", file)
	}

	cfg := &Config{
		Dir:          dir,
		File:         file,
		AccountsPath: expandHome(v.GetString(tomlrepo.AccountsPathKey), home),
		SettingsPath: expandHome(v.GetString(SettingsPathKey), home),
		State: StateConfig{
			Backend:       strings.ToLower(strings.TrimSpace(v.GetString(StateBackendKey))),
			Path:          expandHome(v.GetString(tomlrepo.StatePathKey), home),
			RedisAddr:     v.GetString(RedisAddrKey),
			RedisPassword: v.GetString(RedisPasswordKey),
			RedisDB:       v.GetInt(RedisDBKey),
			RedisKey:      v.GetString(RedisKeyKey),
		},
		Secrets: SecretsConfig{
			Dir:        expandHome(v.GetString(SecretsDirKey), home),
			PassPrefix: v.GetString(PassPrefixKey),
		},
		Rep4Rep: Rep4RepConfig{
			APIKey:  strings.TrimSpace(v.GetString(Rep4RepAPIKey)),
			BaseURL: v.GetString(Rep4RepURLKey),
		},
		Steam: SteamConfig{
			APIBaseURL:       v.GetString(SteamAPIURLKey),
			CommunityBaseURL: v.GetString(SteamWebURLKey),
		},
		Log: LogConfig{
			Level:  v.GetString(LogLevelKey),
			Format: v.GetString(LogFormatKey),
			File:   expandHome(v.GetString(LogFileKey), home),
		},
		Listen: v.GetString(ListenKey),
		v:      v,
	}

	// Keep the resolved paths in viper so adapters reading it agree with cfg.
	v.Set(tomlrepo.AccountsPathKey, cfg.AccountsPath)
	v.Set(tomlrepo.StatePathKey, cfg.State.Path)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.State.Backend {
	case BackendTOML, BackendSQLite:
	case BackendRedis:
		if c.State.RedisAddr == "" {
			return fmt.Errorf("%s is required for the redis state backend", RedisAddrKey)
		}
	default:
		return fmt.Errorf("unsupported state backend %q", c.State.Backend)
	}

	return nil
}

// Viper exposes the merged configuration for adapters that take a viper
// instance.
func (c *Config) Viper() *viper.Viper {
	return c.v
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func setDefaults(v *viper.Viper, dir string) {
	v.SetDefault(tomlrepo.AccountsPathKey, filepath.Join(dir, "accounts.toml"))
	v.SetDefault(SettingsPathKey, filepath.Join(dir, "settings.toml"))
	v.SetDefault(StateBackendKey, BackendTOML)
	v.SetDefault(tomlrepo.StatePathKey, "")
	v.SetDefault(RedisAddrKey, "")
	v.SetDefault(RedisPasswordKey, "")
	v.SetDefault(RedisDBKey, 0)
	v.SetDefault(RedisKeyKey, "repx:state")
	v.SetDefault(SecretsDirKey, filepath.Join(dir, "secrets"))
	v.SetDefault(PassPrefixKey, "repx")
	v.SetDefault(Rep4RepAPIKey, "")
	v.SetDefault(Rep4RepURLKey, "https://rep4rep.com/pub-api")
	v.SetDefault(SteamAPIURLKey, "https://api.steampowered.com")
	v.SetDefault(SteamWebURLKey, "https://steamcommunity.com")
	v.SetDefault(LogLevelKey, "info")
	v.SetDefault(LogFormatKey, "text")
	v.SetDefault(LogFileKey, "")
	v.SetDefault(ListenKey, "")
}

// StatePath returns the configured state location, or the backend's default
// file under the config directory.
func (c *Config) StatePath() string {
	if c.State.Path != "" {
		return c.State.Path
	}

	switch c.State.Backend {
	case BackendSQLite:
		return filepath.Join(c.Dir, "state.db")
	default:
		return filepath.Join(c.Dir, "state.toml")
	}
}

func expandHome(path string, home string) string {
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
