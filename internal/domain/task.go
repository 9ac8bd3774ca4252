package domain

import "fmt"

// Task is one unit of remote work: post RequiredText on the target profile.
type Task struct {
	ID                string
	TargetSteamID     string
	RequiredText      string
	RequiredCommentID string
}

type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeRateLimited
	OutcomeRestricted
	OutcomeTransient
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeRestricted:
		return "restricted"
	case OutcomeTransient:
		return "transient"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// Outcome is the classified result of executing one task on the platform.
type Outcome struct {
	Kind OutcomeKind
	Err  error
}

func Succeeded() Outcome {
	return Outcome{Kind: OutcomeSuccess}
}

func Failed(kind OutcomeKind, err error) Outcome {
	return Outcome{Kind: kind, Err: err}
}

func (o Outcome) Message() string {
	if o.Err == nil {
		return o.Kind.String()
	}

	return o.Err.Error()
}

// SessionResult is how a per-account session ended.
type SessionResult string

const (
	ResultCompleted SessionResult = "completed"
	ResultNoWork    SessionResult = "no_work"
	ResultCooldown  SessionResult = "cooldown"
	ResultStopped   SessionResult = "stopped"
	ResultFailed    SessionResult = "failed"
)
