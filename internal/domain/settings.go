package domain

import "time"

const (
	DefaultDailyLimit               = 10
	DefaultCooldownHours            = 24
	DefaultConsecutiveFailuresLimit = 7

	DefaultDelayMin           = 60 * time.Second
	DefaultDelayMax           = 300 * time.Second
	DefaultDelayAccountSwitch = 30 * time.Second
	DefaultDelayRetry         = 5 * time.Second

	DefaultRestrictedCooldown = 2 * time.Hour
	// A first rate-limit hit backs off longer than a repeated one. This is the
	// observed policy; both values are settings so it can be flipped without a
	// code change.
	DefaultRateLimitFirstCooldown  = 12 * time.Hour
	DefaultRateLimitRepeatCooldown = 20 * time.Minute

	DefaultCycleRest         = 60 * time.Second
	DefaultCycleIdleCeiling  = 10 * time.Minute
	DefaultCyclePollInterval = 5 * time.Second
	DefaultCycleCrashRetry   = 30 * time.Second

	DefaultRequestTimeout = 30 * time.Second
)

// Settings are the runtime tunables. They are re-read before each decision.
type Settings struct {
	DailyLimit               int
	CooldownHours            float64
	ConsecutiveFailuresLimit int
	Delay                    DelaySettings
	Backoff                  BackoffSettings
	Cycle                    CycleSettings
	RequestTimeout           time.Duration
}

type DelaySettings struct {
	Min           time.Duration
	Max           time.Duration
	AccountSwitch time.Duration
	Retry         time.Duration
}

type BackoffSettings struct {
	Restricted      time.Duration
	RateLimitFirst  time.Duration
	RateLimitRepeat time.Duration
}

type CycleSettings struct {
	Rest         time.Duration
	IdleCeiling  time.Duration
	PollInterval time.Duration
	CrashRetry   time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		DailyLimit:               DefaultDailyLimit,
		CooldownHours:            DefaultCooldownHours,
		ConsecutiveFailuresLimit: DefaultConsecutiveFailuresLimit,
		Delay: DelaySettings{
			Min:           DefaultDelayMin,
			Max:           DefaultDelayMax,
			AccountSwitch: DefaultDelayAccountSwitch,
			Retry:         DefaultDelayRetry,
		},
		Backoff: BackoffSettings{
			Restricted:      DefaultRestrictedCooldown,
			RateLimitFirst:  DefaultRateLimitFirstCooldown,
			RateLimitRepeat: DefaultRateLimitRepeatCooldown,
		},
		Cycle: CycleSettings{
			Rest:         DefaultCycleRest,
			IdleCeiling:  DefaultCycleIdleCeiling,
			PollInterval: DefaultCyclePollInterval,
			CrashRetry:   DefaultCycleCrashRetry,
		},
		RequestTimeout: DefaultRequestTimeout,
	}
}

// Cooldown is the daily-limit cooldown length.
func (s Settings) Cooldown() time.Duration {
	return time.Duration(s.CooldownHours * float64(time.Hour))
}

// Normalize replaces out-of-range values with defaults so a bad settings file
// can never stall or spin the loop.
func (s Settings) Normalize() Settings {
	d := DefaultSettings()

	if s.DailyLimit < 0 {
		s.DailyLimit = d.DailyLimit
	}
	if s.CooldownHours < 0 {
		s.CooldownHours = d.CooldownHours
	}
	if s.ConsecutiveFailuresLimit < 1 {
		s.ConsecutiveFailuresLimit = d.ConsecutiveFailuresLimit
	}

	s.Delay.Min = nonNegative(s.Delay.Min, d.Delay.Min)
	s.Delay.Max = nonNegative(s.Delay.Max, d.Delay.Max)
	if s.Delay.Max < s.Delay.Min {
		s.Delay.Max = s.Delay.Min
	}
	s.Delay.AccountSwitch = nonNegative(s.Delay.AccountSwitch, d.Delay.AccountSwitch)
	s.Delay.Retry = nonNegative(s.Delay.Retry, d.Delay.Retry)

	s.Backoff.Restricted = nonNegative(s.Backoff.Restricted, d.Backoff.Restricted)
	s.Backoff.RateLimitFirst = nonNegative(s.Backoff.RateLimitFirst, d.Backoff.RateLimitFirst)
	s.Backoff.RateLimitRepeat = nonNegative(s.Backoff.RateLimitRepeat, d.Backoff.RateLimitRepeat)

	s.Cycle.Rest = nonNegative(s.Cycle.Rest, d.Cycle.Rest)
	s.Cycle.IdleCeiling = positive(s.Cycle.IdleCeiling, d.Cycle.IdleCeiling)
	s.Cycle.PollInterval = positive(s.Cycle.PollInterval, d.Cycle.PollInterval)
	s.Cycle.CrashRetry = nonNegative(s.Cycle.CrashRetry, d.Cycle.CrashRetry)
	s.RequestTimeout = positive(s.RequestTimeout, d.RequestTimeout)

	return s
}

func nonNegative(v, fallback time.Duration) time.Duration {
	if v < 0 {
		return fallback
	}
	return v
}

func positive(v, fallback time.Duration) time.Duration {
	if v <= 0 {
		return fallback
	}
	return v
}
