package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bnema/repx/internal/domain"
	"github.com/bnema/repx/internal/ports"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	dailyLimitKey       = "system.daily_limit"
	cooldownHoursKey    = "system.cooldown_hours"
	failuresLimitKey    = "system.consecutive_failures_limit"
	delayMinKey         = "delay.min"
	delayMaxKey         = "delay.max"
	delaySwitchKey      = "delay.account_switch"
	delayRetryKey       = "delay.retry"
	backoffRestrictKey  = "backoff.restricted"
	backoffFirstKey     = "backoff.rate_limit_first"
	backoffRepeatKey    = "backoff.rate_limit_repeat"
	cycleRestKey        = "cycle.rest"
	cycleIdleKey        = "cycle.idle_ceiling"
	cyclePollKey        = "cycle.poll_interval"
	cycleCrashRetryKey  = "cycle.crash_retry"
	requestTimeoutKey   = "transport.request_timeout"
	settingsTempPattern = ".settings-*.toml.tmp"
)

// SettingsSource re-reads the settings file on every call so edits apply to
// the next decision without a restart. A file that fails to parse keeps the
// last good settings in force.
type SettingsSource struct {
	path string
	log  logrus.FieldLogger

	mu      sync.Mutex
	last    domain.Settings
	hasLast bool
}

var _ ports.SettingsSource = (*SettingsSource)(nil)

func NewSettingsSource(path string, log logrus.FieldLogger) *SettingsSource {
	return &SettingsSource{path: path, log: log}
}

func (s *SettingsSource) Current(_ context.Context) domain.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, err := ReadSettings(s.path)
	if err != nil {
		fallback := domain.DefaultSettings()
		if s.hasLast {
			fallback = s.last
		}
		s.log.WithError(err).WithField("path", s.path).Warn("Could not read settings, keeping previous values")
		return fallback
	}

	s.last = settings
	s.hasLast = true
	return settings
}

// ReadSettings reads path (if present) over the defaults, applies REPX_*
// overrides and normalizes the result. Durations are Go duration strings
// ("90s", "2h") or bare numbers of seconds.
func ReadSettings(path string) (domain.Settings, error) {
	v := newViper()
	setSettingsDefaults(v)

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			v.SetConfigType("toml")
			if err := v.ReadInConfig(); err != nil {
				return domain.Settings{}, fmt.Errorf("read settings %s: %w", path, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return domain.Settings{}, fmt.Errorf("stat settings %s: %w", path, err)
		}
	}

	var errs []error
	duration := func(key string) time.Duration {
		d, err := durationValue(v.Get(key))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
		return d
	}

	settings := domain.Settings{
		DailyLimit:               v.GetInt(dailyLimitKey),
		CooldownHours:            v.GetFloat64(cooldownHoursKey),
		ConsecutiveFailuresLimit: v.GetInt(failuresLimitKey),
		Delay: domain.DelaySettings{
			Min:           duration(delayMinKey),
			Max:           duration(delayMaxKey),
			AccountSwitch: duration(delaySwitchKey),
			Retry:         duration(delayRetryKey),
		},
		Backoff: domain.BackoffSettings{
			Restricted:      duration(backoffRestrictKey),
			RateLimitFirst:  duration(backoffFirstKey),
			RateLimitRepeat: duration(backoffRepeatKey),
		},
		Cycle: domain.CycleSettings{
			Rest:         duration(cycleRestKey),
			IdleCeiling:  duration(cycleIdleKey),
			PollInterval: duration(cyclePollKey),
			CrashRetry:   duration(cycleCrashRetryKey),
		},
		RequestTimeout: duration(requestTimeoutKey),
	}
	if err := errors.Join(errs...); err != nil {
		return domain.Settings{}, fmt.Errorf("settings %s: %w", path, err)
	}

	return settings.Normalize(), nil
}

func setSettingsDefaults(v *viper.Viper) {
	d := domain.DefaultSettings()

	v.SetDefault(dailyLimitKey, d.DailyLimit)
	v.SetDefault(cooldownHoursKey, d.CooldownHours)
	v.SetDefault(failuresLimitKey, d.ConsecutiveFailuresLimit)
	v.SetDefault(delayMinKey, d.Delay.Min.String())
	v.SetDefault(delayMaxKey, d.Delay.Max.String())
	v.SetDefault(delaySwitchKey, d.Delay.AccountSwitch.String())
	v.SetDefault(delayRetryKey, d.Delay.Retry.String())
	v.SetDefault(backoffRestrictKey, d.Backoff.Restricted.String())
	v.SetDefault(backoffFirstKey, d.Backoff.RateLimitFirst.String())
	v.SetDefault(backoffRepeatKey, d.Backoff.RateLimitRepeat.String())
	v.SetDefault(cycleRestKey, d.Cycle.Rest.String())
	v.SetDefault(cycleIdleKey, d.Cycle.IdleCeiling.String())
	v.SetDefault(cyclePollKey, d.Cycle.PollInterval.String())
	v.SetDefault(cycleCrashRetryKey, d.Cycle.CrashRetry.String())
	v.SetDefault(requestTimeoutKey, d.RequestTimeout.String())
}

func durationValue(raw any) (time.Duration, error) {
	switch value := raw.(type) {
	case time.Duration:
		return value, nil
	case int:
		return time.Duration(value) * time.Second, nil
	case int64:
		return time.Duration(value) * time.Second, nil
	case float64:
		return time.Duration(value * float64(time.Second)), nil
	case string:
		trimmed := strings.TrimSpace(value)
		if d, err := time.ParseDuration(trimmed); err == nil {
			return d, nil
		}
		seconds, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", value)
		}
		return time.Duration(seconds * float64(time.Second)), nil
	default:
		return 0, fmt.Errorf("invalid duration %v", raw)
	}
}

type settingsFile struct {
	System    systemSection    `toml:"system"`
	Delay     delaySection     `toml:"delay"`
	Backoff   backoffSection   `toml:"backoff"`
	Cycle     cycleSection     `toml:"cycle"`
	Transport transportSection `toml:"transport"`
}

type systemSection struct {
	DailyLimit               int     `toml:"daily_limit"`
	CooldownHours            float64 `toml:"cooldown_hours"`
	ConsecutiveFailuresLimit int     `toml:"consecutive_failures_limit"`
}

type delaySection struct {
	Min           string `toml:"min"`
	Max           string `toml:"max"`
	AccountSwitch string `toml:"account_switch"`
	Retry         string `toml:"retry"`
}

type backoffSection struct {
	Restricted      string `toml:"restricted"`
	RateLimitFirst  string `toml:"rate_limit_first"`
	RateLimitRepeat string `toml:"rate_limit_repeat"`
}

type cycleSection struct {
	Rest         string `toml:"rest"`
	IdleCeiling  string `toml:"idle_ceiling"`
	PollInterval string `toml:"poll_interval"`
	CrashRetry   string `toml:"crash_retry"`
}

type transportSection struct {
	RequestTimeout string `toml:"request_timeout"`
}

// EnsureSettingsFile writes the default settings to path when no file exists
// yet, so users have something to edit. It reports whether it wrote one.
func EnsureSettingsFile(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("stat settings %s: %w", path, err)
	}

	d := domain.DefaultSettings()
	data, err := toml.Marshal(settingsFile{
		System: systemSection{
			DailyLimit:               d.DailyLimit,
			CooldownHours:            d.CooldownHours,
			ConsecutiveFailuresLimit: d.ConsecutiveFailuresLimit,
		},
		Delay: delaySection{
			Min:           d.Delay.Min.String(),
			Max:           d.Delay.Max.String(),
			AccountSwitch: d.Delay.AccountSwitch.String(),
			Retry:         d.Delay.Retry.String(),
		},
		Backoff: backoffSection{
			Restricted:      d.Backoff.Restricted.String(),
			RateLimitFirst:  d.Backoff.RateLimitFirst.String(),
			RateLimitRepeat: d.Backoff.RateLimitRepeat.String(),
		},
		Cycle: cycleSection{
			Rest:         d.Cycle.Rest.String(),
			IdleCeiling:  d.Cycle.IdleCeiling.String(),
			PollInterval: d.Cycle.PollInterval.String(),
			CrashRetry:   d.Cycle.CrashRetry.String(),
		},
		Transport: transportSection{RequestTimeout: d.RequestTimeout.String()},
	})
	if err != nil {
		return false, fmt.Errorf("encode default settings: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return false, fmt.Errorf("create settings directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, settingsTempPattern)
	if err != nil {
		return false, fmt.Errorf("create temp settings file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return false, fmt.Errorf("write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return false, fmt.Errorf("close settings: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return false, fmt.Errorf("replace settings: %w", err)
	}

	return true, nil
}
