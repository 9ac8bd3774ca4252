package application

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bnema/repx/internal/domain"
	"github.com/bnema/repx/internal/logging"
	"github.com/bnema/repx/internal/ports"
)

var testNow = time.Date(2026, 2, 11, 10, 0, 0, 0, time.UTC)

type inMemoryStateStore struct {
	state   *domain.State
	loadErr error
	saveErr error
	loads   int
	saves   int
}

func (s *inMemoryStateStore) Load(ctx context.Context) (domain.State, error) {
	if err := ctx.Err(); err != nil {
		return domain.State{}, err
	}
	s.loads++
	if s.loadErr != nil {
		return domain.State{}, s.loadErr
	}
	if s.state == nil {
		return domain.NewState(testNow), nil
	}
	return s.state.Clone(), nil
}

func (s *inMemoryStateStore) Save(ctx context.Context, state domain.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	cloned := state.Clone()
	s.state = &cloned
	return nil
}

func (s *inMemoryStateStore) record(id domain.AccountID) domain.AccountRecord {
	if s.state == nil {
		return domain.AccountRecord{}
	}
	return s.state.Record(id)
}

// fakeTime is both the clock and the sleeper: sleeping moves the clock.
type fakeTime struct {
	mu      sync.Mutex
	now     time.Time
	slept   []time.Duration
	onSleep func(d time.Duration)
}

func newFakeTime() *fakeTime {
	return &fakeTime{now: testNow}
}

func (f *fakeTime) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeTime) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	f.slept = append(f.slept, d)
	f.now = f.now.Add(d)
	hook := f.onSleep
	f.mu.Unlock()

	if hook != nil {
		hook(d)
	}
	return ctx.Err()
}

func (f *fakeTime) sleeps() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.slept...)
}

type staticSettings struct {
	settings domain.Settings
}

func (s *staticSettings) Current(_ context.Context) domain.Settings {
	return s.settings
}

func testSettings() *staticSettings {
	settings := domain.DefaultSettings()
	settings.Delay.Min = 60 * time.Second
	settings.Delay.Max = 300 * time.Second
	return &staticSettings{settings: settings}
}

type fakeTaskService struct {
	profiles      []domain.ServiceProfile
	tasks         []domain.Task
	listErr       error
	registerErr   error
	registerNoop  bool
	completeErr   error
	registered    []string
	completed     []string
	listedProfile string
}

func (f *fakeTaskService) ListProfiles(_ context.Context) ([]domain.ServiceProfile, error) {
	return append([]domain.ServiceProfile(nil), f.profiles...), nil
}

func (f *fakeTaskService) RegisterProfile(_ context.Context, steamID string) error {
	f.registered = append(f.registered, steamID)
	if f.registerErr != nil {
		return f.registerErr
	}
	if !f.registerNoop {
		f.profiles = append(f.profiles, domain.ServiceProfile{ID: "r4r-" + steamID, SteamID: steamID})
	}
	return nil
}

func (f *fakeTaskService) ListTasks(_ context.Context, profileID string) ([]domain.Task, error) {
	f.listedProfile = profileID
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]domain.Task(nil), f.tasks...), nil
}

func (f *fakeTaskService) CompleteTask(_ context.Context, taskID, _ string, _ string) error {
	if f.completeErr != nil {
		return f.completeErr
	}
	f.completed = append(f.completed, taskID)
	return nil
}

type fakeSession struct {
	identity  domain.Identity
	outcomes  []domain.Outcome
	posted    []string
	loggedOut int
	onPost    func()
}

func (s *fakeSession) Identity() domain.Identity {
	return s.identity
}

func (s *fakeSession) PostComment(_ context.Context, target, _ string) domain.Outcome {
	s.posted = append(s.posted, target)
	if s.onPost != nil {
		s.onPost()
	}
	if len(s.outcomes) == 0 {
		return domain.Succeeded()
	}
	outcome := s.outcomes[0]
	s.outcomes = s.outcomes[1:]
	return outcome
}

func (s *fakeSession) Logout(_ context.Context) error {
	s.loggedOut++
	return nil
}

type fakeSessionProvider struct {
	sessions map[domain.AccountID]*fakeSession
	errs     map[domain.AccountID]error
	acquired []domain.AccountID
}

func (p *fakeSessionProvider) Acquire(_ context.Context, account domain.Account) (ports.Session, error) {
	p.acquired = append(p.acquired, account.ID)
	if err := p.errs[account.ID]; err != nil {
		return nil, err
	}
	if session, ok := p.sessions[account.ID]; ok {
		return session, nil
	}
	session := &fakeSession{identity: domain.Identity{SteamID: "7656" + string(account.ID)}}
	if p.sessions == nil {
		p.sessions = map[domain.AccountID]*fakeSession{}
	}
	p.sessions[account.ID] = session
	return session, nil
}

type inMemoryAccounts struct {
	mu       sync.Mutex
	accounts []domain.Account
	err      error
}

func (a *inMemoryAccounts) List(_ context.Context) ([]domain.Account, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return nil, a.err
	}
	return append([]domain.Account(nil), a.accounts...), nil
}

func (a *inMemoryAccounts) set(accounts ...domain.Account) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.accounts = accounts
}

func accountsNamed(ids ...string) []domain.Account {
	accounts := make([]domain.Account, 0, len(ids))
	for _, id := range ids {
		accounts = append(accounts, domain.Account{ID: domain.AccountID(id)})
	}
	return accounts
}

func tasksFor(n int) []domain.Task {
	tasks := make([]domain.Task, 0, n)
	for i := 0; i < n; i++ {
		id := string(rune('a' + i))
		tasks = append(tasks, domain.Task{
			ID:                "task-" + id,
			TargetSteamID:     "target-" + id,
			RequiredText:      "+rep " + id,
			RequiredCommentID: "comment-" + id,
		})
	}
	return tasks
}

func restricted() domain.Outcome {
	return domain.Failed(domain.OutcomeRestricted, errors.New("The settings on this account do not allow you to add comments."))
}

type runnerHarness struct {
	store    *inMemoryStateStore
	time     *fakeTime
	settings *staticSettings
	tasks    *fakeTaskService
	board    *StatusBoard
	keeper   *StateKeeper
	runner   *Runner
}

func newRunnerHarness() *runnerHarness {
	h := &runnerHarness{
		store:    &inMemoryStateStore{},
		time:     newFakeTime(),
		settings: testSettings(),
		tasks: &fakeTaskService{
			profiles: []domain.ServiceProfile{{ID: "r4r-1", SteamID: "76561"}},
		},
	}
	log := logging.Discard()
	h.board = NewStatusBoard(testNow)
	h.keeper = NewStateKeeper(h.store, h.time, log)
	h.runner = NewRunner(RunnerDeps{
		Tasks:    h.tasks,
		State:    h.keeper,
		Settings: h.settings,
		Board:    h.board,
		Clock:    h.time,
		Sleeper:  h.time,
		Log:      log,
	})
	return h
}

func (h *runnerHarness) seed(id domain.AccountID, record domain.AccountRecord) {
	state := domain.NewState(testNow)
	state.Accounts[id] = record
	h.store.state = &state
}

func (h *runnerHarness) session() *fakeSession {
	return &fakeSession{identity: domain.Identity{SteamID: "76561", Nickname: "alice", AvatarURL: "https://avatars/alice.jpg"}}
}
