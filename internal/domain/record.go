package domain

import "time"

type ErrorType string

const (
	ErrorTypeNone      ErrorType = ""
	ErrorTypeRateLimit ErrorType = "429"
)

// AccountRecord is the durable per-account progress and cooldown bookkeeping.
type AccountRecord struct {
	CooldownUntil     time.Time
	CompletedToday    int
	CompletedThisWeek int
	TotalCompleted    int
	LastError         string
	LastErrorType     ErrorType
	LastSuccess       time.Time

	SteamID   string
	AvatarURL string
	Nickname  string
}

// InCooldown reports whether the account must be skipped at now.
func (r AccountRecord) InCooldown(now time.Time) bool {
	return !r.CooldownUntil.IsZero() && r.CooldownUntil.After(now)
}

func (r *AccountRecord) StartCooldown(now time.Time, d time.Duration) {
	r.CooldownUntil = now.Add(d)
}

func (r *AccountRecord) RecordSuccess(now time.Time) {
	r.CompletedToday++
	r.CompletedThisWeek++
	r.TotalCompleted++
	r.LastSuccess = now
	r.ClearError()
}

func (r *AccountRecord) RecordError(message string, kind ErrorType) {
	r.LastError = message
	r.LastErrorType = kind
}

func (r *AccountRecord) ClearError() {
	r.LastError = ""
	r.LastErrorType = ErrorTypeNone
}

func (r *AccountRecord) ApplyIdentity(identity Identity) {
	if identity.SteamID != "" {
		r.SteamID = identity.SteamID
	}
	r.AvatarURL = identity.AvatarURL
	r.Nickname = identity.Nickname
}
