package application

import (
	"sync"
	"time"

	"github.com/bnema/repx/internal/domain"
)

const (
	maxBoardLogs      = 20
	taskHistoryWindow = 24 * time.Hour
	// Weight of the newest sample in the running task-duration average.
	avgTaskTimeWeight = 0.1
)

type RunStatus string

const (
	RunStatusIdle         RunStatus = "idle"
	RunStatusProcessing   RunStatus = "processing"
	RunStatusShuttingDown RunStatus = "shutting_down"
)

type LogLevel string

const (
	LogInfo    LogLevel = "info"
	LogSuccess LogLevel = "success"
	LogWarn    LogLevel = "warn"
	LogError   LogLevel = "error"
)

type LogEntry struct {
	Time  time.Time `json:"time"`
	Text  string    `json:"text"`
	Level LogLevel  `json:"type"`
}

type AccountState string

const (
	AccountStateFarm  AccountState = "farm"
	AccountStateIdle  AccountState = "idle"
	AccountStateError AccountState = "error"
)

type AccountStatus struct {
	ID             domain.AccountID `json:"username"`
	Nickname       string           `json:"nickname,omitempty"`
	AvatarURL      string           `json:"avatarUrl,omitempty"`
	SteamID        string           `json:"steamID,omitempty"`
	State          AccountState     `json:"status"`
	CooldownUntil  time.Time        `json:"cooldownUntil,omitempty"`
	Progress       int              `json:"progress"`
	Weekly         int              `json:"weekly"`
	TotalCompleted int              `json:"totalCompleted"`
	LastError      string           `json:"lastError,omitempty"`
	Label          string           `json:"cooldown"`
}

type Stats struct {
	TotalWeekly     int           `json:"totalWeekly"`
	TodayEarned     int           `json:"todayEarned"`
	CommentsPerHour float64       `json:"commentsPerHour"`
	AvgTaskTime     time.Duration `json:"avgTaskTime"`
	TaskHistory     []time.Time   `json:"taskHistory"`
}

type SystemInfo struct {
	NextCycle     time.Time `json:"nextCycle,omitempty"`
	TotalAccounts int       `json:"totalAccounts"`
}

type Snapshot struct {
	StartedAt      time.Time        `json:"startTime"`
	Status         RunStatus        `json:"status"`
	CurrentAccount domain.AccountID `json:"currentAccount,omitempty"`
	Accounts       []AccountStatus  `json:"accounts"`
	Stats          Stats            `json:"stats"`
	System         SystemInfo       `json:"system"`
	Logs           []LogEntry       `json:"logs"`
}

// StatusBoard is the in-memory status snapshot shared with observers. Every
// setter is last-write-wins for the fields it touches; logs are a ring of the
// newest entries, newest first.
type StatusBoard struct {
	mu   sync.RWMutex
	snap Snapshot
}

func NewStatusBoard(startedAt time.Time) *StatusBoard {
	return &StatusBoard{snap: Snapshot{StartedAt: startedAt, Status: RunStatusIdle}}
}

func (b *StatusBoard) SetStatus(status RunStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snap.Status = status
}

func (b *StatusBoard) SetCurrentAccount(id domain.AccountID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snap.CurrentAccount = id
}

func (b *StatusBoard) SetNextCycle(at time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snap.System.NextCycle = at
}

func (b *StatusBoard) SetAccounts(accounts []AccountStatus) {
	rows := make([]AccountStatus, len(accounts))
	copy(rows, accounts)

	totalWeekly := 0
	for _, row := range rows {
		totalWeekly += row.Weekly
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.snap.Accounts = rows
	b.snap.Stats.TotalWeekly = totalWeekly
	b.snap.System.TotalAccounts = len(rows)
}

func (b *StatusBoard) Log(at time.Time, level LogLevel, text string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	logs := make([]LogEntry, 0, maxBoardLogs)
	logs = append(logs, LogEntry{Time: at, Text: text, Level: level})
	for _, entry := range b.snap.Logs {
		if len(logs) == maxBoardLogs {
			break
		}
		logs = append(logs, entry)
	}
	b.snap.Logs = logs
}

// RecordTask folds one successful task into the running statistics.
func (b *StatusBoard) RecordTask(now time.Time, took time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	stats := &b.snap.Stats
	if stats.AvgTaskTime == 0 {
		stats.AvgTaskTime = took
	} else {
		stats.AvgTaskTime = time.Duration(float64(stats.AvgTaskTime)*(1-avgTaskTimeWeight) + float64(took)*avgTaskTimeWeight)
	}

	stats.TodayEarned++
	elapsed := now.Sub(b.snap.StartedAt).Hours()
	if elapsed > 0.01 {
		stats.CommentsPerHour = float64(stats.TodayEarned) / elapsed
	}

	cutoff := now.Add(-taskHistoryWindow)
	history := make([]time.Time, 0, len(stats.TaskHistory)+1)
	for _, at := range append(stats.TaskHistory, now) {
		if at.After(cutoff) {
			history = append(history, at)
		}
	}
	stats.TaskHistory = history
}

func (b *StatusBoard) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	snap := b.snap
	snap.Accounts = append([]AccountStatus(nil), b.snap.Accounts...)
	snap.Logs = append([]LogEntry(nil), b.snap.Logs...)
	snap.Stats.TaskHistory = append([]time.Time(nil), b.snap.Stats.TaskHistory...)

	return snap
}
