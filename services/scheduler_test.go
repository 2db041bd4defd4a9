package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"checkin-keeper/models"
)

type recordingRunner struct {
	mu   sync.Mutex
	runs []string
}

func (r *recordingRunner) Execute(ctx context.Context, accountID string) (*models.CheckInResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, accountID)
	return &models.CheckInResult{Success: true}, nil
}

func (r *recordingRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs)
}

func scheduledAccount(t *testing.T, name string, hour, minute int) *models.Account {
	t.Helper()
	account, err := models.NewAccount(name, "p1", models.NewCredentials(map[string]string{"a": "b"}, ""))
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if err := account.UpdateAutoCheckIn(true, hour, minute); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	return account
}

func newTestScheduler(runner CheckInRunner, accounts ...*models.Account) *Scheduler {
	s := NewScheduler(runner, newStubAccountRepo(accounts...), NewEventBus())
	for _, account := range accounts {
		s.entries[account.ID] = entryFromAccount(account)
	}
	return s
}

func at(hour, minute int) time.Time {
	return time.Date(2026, 8, 30, hour, minute, 0, 0, time.Local)
}

func TestCollectDueMatchesScheduleMinute(t *testing.T) {
	runner := &recordingRunner{}
	match := scheduledAccount(t, "match", 9, 30)
	wrongHour := scheduledAccount(t, "wrong hour", 10, 30)
	wrongMinute := scheduledAccount(t, "wrong minute", 9, 31)
	s := newTestScheduler(runner, match, wrongHour, wrongMinute)

	now := at(9, 30)
	due := s.collectDue(now, now.Format("2006-01-02"))

	if len(due) != 1 || due[0].accountID != match.ID {
		t.Fatalf("want only the matching account, got %d entries", len(due))
	}
}

func TestCollectDueSkipsDisabled(t *testing.T) {
	runner := &recordingRunner{}

	disabledAccount := scheduledAccount(t, "disabled account", 9, 30)
	disabledAccount.Toggle(false)

	autoOff, _ := models.NewAccount("auto off", "p1", models.NewCredentials(map[string]string{"a": "b"}, ""))

	s := newTestScheduler(runner, disabledAccount, autoOff)

	now := at(9, 30)
	if due := s.collectDue(now, now.Format("2006-01-02")); len(due) != 0 {
		t.Fatalf("nothing should be due, got %d", len(due))
	}
}

func TestFiredTodayDedupe(t *testing.T) {
	runner := &recordingRunner{}
	account := scheduledAccount(t, "acct", 9, 30)
	s := newTestScheduler(runner, account)

	now := at(9, 30)
	today := now.Format("2006-01-02")

	if due := s.collectDue(now, today); len(due) != 1 {
		t.Fatal("first match should fire")
	}
	// Same minute again, e.g. a tick arriving twice.
	if due := s.collectDue(now, today); len(due) != 0 {
		t.Fatal("second match on the same day must not fire")
	}

	// The next day re-arms.
	tomorrow := now.Add(24 * time.Hour)
	if due := s.collectDue(tomorrow, tomorrow.Format("2006-01-02")); len(due) != 1 {
		t.Fatal("schedule should fire again after the day rolls over")
	}
}

func TestTickRunsDueAccounts(t *testing.T) {
	runner := &recordingRunner{}
	account := scheduledAccount(t, "acct", 9, 30)
	s := newTestScheduler(runner, account)
	s.now = func() time.Time { return at(9, 30) }

	s.tick()
	s.inflight.Wait()
	if runner.count() != 1 {
		t.Fatalf("want one run, got %d", runner.count())
	}

	s.tick()
	s.inflight.Wait()
	if runner.count() != 1 {
		t.Fatalf("repeat tick should not rerun, got %d", runner.count())
	}
}

// blockingRunner parks every Execute call until released.
type blockingRunner struct {
	started chan string
	release chan struct{}
}

func (r *blockingRunner) Execute(ctx context.Context, accountID string) (*models.CheckInResult, error) {
	r.started <- accountID
	<-r.release
	return &models.CheckInResult{Success: true}, nil
}

func TestTickFiresDueAccountsConcurrently(t *testing.T) {
	runner := &blockingRunner{started: make(chan string, 2), release: make(chan struct{})}
	first := scheduledAccount(t, "first", 9, 30)
	second := scheduledAccount(t, "second", 9, 30)
	s := newTestScheduler(runner, first, second)
	s.now = func() time.Time { return at(9, 30) }

	s.tick()

	// Both runs must start while neither has finished.
	for i := 0; i < 2; i++ {
		select {
		case <-runner.started:
		case <-time.After(2 * time.Second):
			t.Fatal("a due account never started while another was still running")
		}
	}
	close(runner.release)
	s.inflight.Wait()
}

func TestResyncRecoversMissedAccounts(t *testing.T) {
	runner := &recordingRunner{}
	known := scheduledAccount(t, "known", 9, 30)
	missed := scheduledAccount(t, "missed", 9, 30)

	// The repo knows both accounts, the scheduler only one, as if the
	// create event for the second was dropped.
	s := NewScheduler(runner, newStubAccountRepo(known, missed), NewEventBus())
	s.entries[known.ID] = entryFromAccount(known)
	s.firedOn["vanished"] = "2026-08-30"

	s.resync()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[missed.ID]; !ok {
		t.Error("resync should pick up accounts missing from the entry map")
	}
	if _, ok := s.entries[known.ID]; !ok {
		t.Error("resync must keep accounts that were already tracked")
	}
	if _, ok := s.firedOn["vanished"]; ok {
		t.Error("fired markers for deleted accounts should be pruned")
	}
}

func TestBusEventsUpdateSchedule(t *testing.T) {
	runner := &recordingRunner{}
	bus := NewEventBus()
	s := NewScheduler(runner, newStubAccountRepo(), bus)
	// Pin the clock away from any schedule so background ticks never fire.
	s.now = func() time.Time { return at(3, 0) }

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	account := scheduledAccount(t, "created later", 9, 30)
	bus.Publish(models.NewAccountCreated(account))

	waitFor(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		_, ok := s.entries[account.ID]
		return ok
	}, "created account never reached the scheduler")

	// A schedule update re-arms an account that already fired today.
	now := at(9, 30)
	today := now.Format("2006-01-02")
	if due := s.collectDue(now, today); len(due) != 1 {
		t.Fatal("account should fire once")
	}
	bus.Publish(models.NewAccountUpdated(account))

	waitFor(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.firedOn[account.ID] == ""
	}, "update event never re-armed the account")

	bus.Publish(models.NewAccountDeleted(account.ID))
	waitFor(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		_, ok := s.entries[account.ID]
		return !ok
	}, "delete event never removed the account")
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}
