package domain

import "time"

const dayKeyLayout = "2006-01-02"

type ResetMarkers struct {
	LastResetDate   string
	LastWeeklyReset int
}

// State is the whole persisted snapshot: one record per account plus the
// global reset markers. It is always loaded and saved as a unit.
type State struct {
	Markers  ResetMarkers
	Accounts map[AccountID]AccountRecord
}

type Rollover struct {
	Daily  bool
	Weekly bool
}

func (r Rollover) Any() bool {
	return r.Daily || r.Weekly
}

func NewState(now time.Time) State {
	return State{
		Markers:  MarkersAt(now),
		Accounts: map[AccountID]AccountRecord{},
	}
}

func MarkersAt(now time.Time) ResetMarkers {
	return ResetMarkers{
		LastResetDate:   DayKey(now),
		LastWeeklyReset: WeekNumber(now),
	}
}

// DayKey is the calendar day of now in its own location.
func DayKey(now time.Time) string {
	return now.Format(dayKeyLayout)
}

// WeekNumber is the ISO-8601 week number of the calendar day of now.
func WeekNumber(now time.Time) int {
	_, week := now.ISOWeek()
	return week
}

// Record returns the record for id, or a zero record when none exists yet.
func (s State) Record(id AccountID) AccountRecord {
	return s.Accounts[id]
}

// Update applies fn to the record for id, creating it on first reference.
func (s *State) Update(id AccountID, fn func(*AccountRecord)) {
	if s.Accounts == nil {
		s.Accounts = map[AccountID]AccountRecord{}
	}

	record := s.Accounts[id]
	fn(&record)
	s.Accounts[id] = record
}

// DetectRollover compares now against the stored markers.
func (s State) DetectRollover(now time.Time) Rollover {
	return Rollover{
		Daily:  s.Markers.LastResetDate != DayKey(now),
		Weekly: s.Markers.LastWeeklyReset != WeekNumber(now),
	}
}

// ApplyRollover zeroes the counters for every record whose window rolled over
// and moves the markers forward. Calling it again in the same window is a no-op.
func (s *State) ApplyRollover(now time.Time) Rollover {
	rollover := s.DetectRollover(now)

	if rollover.Daily {
		for id, record := range s.Accounts {
			record.CompletedToday = 0
			s.Accounts[id] = record
		}
		s.Markers.LastResetDate = DayKey(now)
	}

	if rollover.Weekly {
		for id, record := range s.Accounts {
			record.CompletedThisWeek = 0
			s.Accounts[id] = record
		}
		s.Markers.LastWeeklyReset = WeekNumber(now)
	}

	return rollover
}

// Clone returns a copy that shares no map with s.
func (s State) Clone() State {
	accounts := make(map[AccountID]AccountRecord, len(s.Accounts))
	for id, record := range s.Accounts {
		accounts[id] = record
	}

	return State{Markers: s.Markers, Accounts: accounts}
}

// UnixMillis is the persisted form of a time; zero maps to 0.
func UnixMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// FromUnixMillis is the inverse of UnixMillis.
func FromUnixMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
