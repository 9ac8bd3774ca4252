package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/bnema/repx/internal/adapters/rep4rep"
	statusadapter "github.com/bnema/repx/internal/adapters/render/status"
	redisstore "github.com/bnema/repx/internal/adapters/repo/redis"
	sqlitestore "github.com/bnema/repx/internal/adapters/repo/sqlite"
	tomlrepo "github.com/bnema/repx/internal/adapters/repo/toml"
	chainstore "github.com/bnema/repx/internal/adapters/secrets/chain"
	"github.com/bnema/repx/internal/adapters/steam"
	"github.com/bnema/repx/internal/application"
	"github.com/bnema/repx/internal/config"
	"github.com/bnema/repx/internal/logging"
	"github.com/bnema/repx/internal/ports"
	"github.com/sirupsen/logrus"
)

const configFileEnv = "REPX_CONFIG"

type app struct {
	cfg            *config.Config
	accounts       *tomlrepo.Repository
	secretStore    ports.SecretStore
	statusRenderer func([]application.AccountStatus, statusadapter.RenderOptions) (string, error)
	httpClient     *http.Client
	now            func() time.Time
}

func wireApp() (*app, error) {
	cfg, err := config.Load(config.Options{File: os.Getenv(configFileEnv)})
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	repo, err := tomlrepo.NewRepository(cfg.Viper())
	if err != nil {
		return nil, fmt.Errorf("wire account repository: %w", err)
	}

	secretLog, _, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: os.Stderr})
	if err != nil {
		return nil, fmt.Errorf("wire logger: %w", err)
	}

	secretStore, err := chainstore.NewPassFirstWithFileFallback(secretLog, cfg.Secrets.PassPrefix, cfg.Secrets.Dir)
	if err != nil {
		return nil, fmt.Errorf("wire secret store chain: %w", err)
	}

	return &app{
		cfg:            cfg,
		accounts:       repo,
		secretStore:    secretStore,
		statusRenderer: statusadapter.Render,
		httpClient:     http.DefaultClient,
		now:            time.Now,
	}, nil
}

// newLogger builds the process logger from the log.* keys. Commands other than
// run log to stderr so stdout stays machine-readable.
func (a *app) newLogger(out io.Writer) (*logrus.Logger, io.Closer, error) {
	return logging.New(logging.Options{
		Level:  a.cfg.Log.Level,
		Format: a.cfg.Log.Format,
		File:   a.cfg.Log.File,
		Output: out,
	})
}

// openStateStore opens the configured state backend. The closer releases
// database connections for the sqlite and redis backends.
func (a *app) openStateStore(ctx context.Context) (ports.StateStore, io.Closer, error) {
	switch a.cfg.State.Backend {
	case config.BackendSQLite:
		store, err := sqlitestore.Open(ctx, a.cfg.StatePath())
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite state: %w", err)
		}
		return store, store, nil
	case config.BackendRedis:
		store, err := redisstore.Open(ctx, redisstore.Options{
			Addr:     a.cfg.State.RedisAddr,
			Password: a.cfg.State.RedisPassword,
			DB:       a.cfg.State.RedisDB,
			Key:      a.cfg.State.RedisKey,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open redis state: %w", err)
		}
		return store, store, nil
	default:
		store, err := tomlrepo.NewStateStore(a.cfg.StatePath())
		if err != nil {
			return nil, nil, fmt.Errorf("open state file: %w", err)
		}
		return store, nopCloser{}, nil
	}
}

// taskService and sessionProvider read transport.request_timeout from
// settings on every request.
func (a *app) taskService(settings ports.SettingsSource) *rep4rep.Client {
	return &rep4rep.Client{
		BaseURL:    a.cfg.Rep4Rep.BaseURL,
		APIToken:   a.cfg.Rep4Rep.APIKey,
		HTTPClient: a.httpClient,
		Settings:   settings,
	}
}

func (a *app) sessionProvider(log logrus.FieldLogger, settings ports.SettingsSource) *steam.Provider {
	return &steam.Provider{
		APIBaseURL:       a.cfg.Steam.APIBaseURL,
		CommunityBaseURL: a.cfg.Steam.CommunityBaseURL,
		Secrets:          a.secretStore,
		HTTPClient:       a.httpClient,
		Settings:         settings,
		Clock:            clockFunc(a.now),
		Log:              log,
	}
}

type clockFunc func() time.Time

func (f clockFunc) Now() time.Time { return f() }

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
