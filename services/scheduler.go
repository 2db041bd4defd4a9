package services

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"checkin-keeper/internal/logger"
	"checkin-keeper/internal/repository"
	"checkin-keeper/models"
)

// CheckInRunner is what the scheduler fires; satisfied by CheckInExecutor
// and by the asynq enqueuer in worker mode.
type CheckInRunner interface {
	Execute(ctx context.Context, accountID string) (*models.CheckInResult, error)
}

// scheduleEntry is the slice of an account the scheduler needs per tick.
type scheduleEntry struct {
	accountID string
	name      string
	enabled   bool
	auto      models.AutoCheckIn
}

// Scheduler fires automatic check-ins. It ticks every minute and keeps its
// own account list, updated from the event bus instead of polling the
// database; an account whose schedule matched in the current day is not
// fired again until the day rolls over.
type Scheduler struct {
	runner   CheckInRunner
	accounts repository.AccountRepository
	bus      *EventBus

	cron        *gocron.Scheduler
	unsubscribe func()

	mu         sync.Mutex
	entries    map[string]*scheduleEntry
	firedOn    map[string]string // accountID -> YYYY-MM-DD last fired
	now        func() time.Time
	inflight   sync.WaitGroup
}

func NewScheduler(runner CheckInRunner, accounts repository.AccountRepository, bus *EventBus) *Scheduler {
	return &Scheduler{
		runner:   runner,
		accounts: accounts,
		bus:      bus,
		cron:     gocron.NewScheduler(time.Local),
		entries:  make(map[string]*scheduleEntry),
		firedOn:  make(map[string]string),
		now:      time.Now,
	}
}

// Start loads the current accounts, subscribes to the bus, and begins
// ticking.
func (s *Scheduler) Start(ctx context.Context) error {
	accounts, err := s.accounts.FindAll(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	for _, account := range accounts {
		s.entries[account.ID] = entryFromAccount(account)
	}
	s.mu.Unlock()

	events, cancel := s.bus.Subscribe()
	s.unsubscribe = cancel
	go s.consumeEvents(events)

	if _, err := s.cron.Every(1).Minute().Do(s.tick); err != nil {
		return err
	}
	// Periodic full reload, so a dropped bus event cannot desync the
	// schedule until restart.
	if _, err := s.cron.Every(1).Hour().Do(s.resync); err != nil {
		return err
	}
	s.cron.StartAsync()

	logger.Info("check-in scheduler started", "accounts", len(accounts))
	return nil
}

func (s *Scheduler) Stop() {
	s.cron.Stop()
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.inflight.Wait()
}

func entryFromAccount(account *models.Account) *scheduleEntry {
	return &scheduleEntry{
		accountID: account.ID,
		name:      account.Name,
		enabled:   account.Enabled,
		auto:      account.AutoCheckIn,
	}
}

// consumeEvents keeps the schedule list in sync with account changes.
func (s *Scheduler) consumeEvents(events <-chan models.DomainEvent) {
	for event := range events {
		s.mu.Lock()
		switch e := event.(type) {
		case *models.AccountCreated:
			s.entries[e.Account.ID] = entryFromAccount(e.Account)
		case *models.AccountUpdated:
			s.entries[e.Account.ID] = entryFromAccount(e.Account)
			// A schedule change re-arms the account for today.
			delete(s.firedOn, e.Account.ID)
		case *models.AccountToggled:
			s.entries[e.Account.ID] = entryFromAccount(e.Account)
		case *models.AccountDeleted:
			delete(s.entries, e.AccountID)
			delete(s.firedOn, e.AccountID)
		}
		s.mu.Unlock()
	}
}

// tick fires check-in for every account whose schedule matches the current
// minute and has not fired yet today. Each due account runs in its own
// goroutine: one account stuck in a browser bypass must not delay the rest.
func (s *Scheduler) tick() {
	now := s.now()
	today := now.Format("2006-01-02")

	for _, entry := range s.collectDue(now, today) {
		s.inflight.Add(1)
		go func(entry *scheduleEntry) {
			defer s.inflight.Done()
			logger.Info("scheduled check-in firing", "account", entry.name, "hour", entry.auto.Hour, "minute", entry.auto.Minute)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			if _, err := s.runner.Execute(ctx, entry.accountID); err != nil {
				logger.Error("scheduled check-in failed", "account", entry.name, "error", err.Error())
			}
		}(entry)
	}
}

// resync rebuilds the entry map from storage, recovering accounts whose bus
// events were lost. Fired-today markers survive for accounts that still
// exist.
func (s *Scheduler) resync() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	accounts, err := s.accounts.FindAll(ctx)
	if err != nil {
		logger.Warn("schedule resync failed", "error", err.Error())
		return
	}

	entries := make(map[string]*scheduleEntry, len(accounts))
	for _, account := range accounts {
		entries[account.ID] = entryFromAccount(account)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = entries
	for id := range s.firedOn {
		if _, ok := entries[id]; !ok {
			delete(s.firedOn, id)
		}
	}
}

func (s *Scheduler) collectDue(now time.Time, today string) []*scheduleEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*scheduleEntry
	for _, entry := range s.entries {
		if !entry.enabled || !entry.auto.Enabled {
			continue
		}
		if entry.auto.Hour != now.Hour() || entry.auto.Minute != now.Minute() {
			continue
		}
		if s.firedOn[entry.accountID] == today {
			continue
		}
		s.firedOn[entry.accountID] = today
		due = append(due, entry)
	}
	return due
}
