package services

import (
	"context"
	"testing"
	"time"

	"checkin-keeper/models"
)

type memoryHistoryRepo struct {
	records map[string]*models.BalanceHistoryRecord
}

func newMemoryHistoryRepo() *memoryHistoryRepo {
	return &memoryHistoryRepo{records: make(map[string]*models.BalanceHistoryRecord)}
}

func (r *memoryHistoryRepo) Save(ctx context.Context, record *models.BalanceHistoryRecord) error {
	r.records[record.ID] = record
	return nil
}

func (r *memoryHistoryRepo) FindByAccountID(ctx context.Context, accountID string, limit int) ([]*models.BalanceHistoryRecord, error) {
	var out []*models.BalanceHistoryRecord
	for _, rec := range r.records {
		if rec.AccountID == accountID {
			out = append(out, rec)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memoryHistoryRepo) FindByAccountIDOnDate(ctx context.Context, accountID, date string) (*models.BalanceHistoryRecord, error) {
	return r.records[accountID+":"+date], nil
}

func (r *memoryHistoryRepo) FindLatestByAccountID(ctx context.Context, accountID string) (*models.BalanceHistoryRecord, error) {
	var latest *models.BalanceHistoryRecord
	for _, rec := range r.records {
		if rec.AccountID != accountID {
			continue
		}
		if latest == nil || rec.Date > latest.Date {
			latest = rec
		}
	}
	return latest, nil
}

func fixedDay(day int) time.Time {
	return time.Date(2026, 8, day, 12, 0, 0, 0, time.Local)
}

func TestRecordSnapshotUpsertsSameDay(t *testing.T) {
	repo := newMemoryHistoryRepo()
	svc := NewBalanceHistoryService(repo)
	svc.now = func() time.Time { return fixedDay(30) }
	ctx := context.Background()

	if err := svc.RecordSnapshot(ctx, "acct", models.NewBalance(50, 50)); err != nil {
		t.Fatalf("first snapshot: %v", err)
	}
	if err := svc.RecordSnapshot(ctx, "acct", models.NewBalance(45, 55)); err != nil {
		t.Fatalf("second snapshot: %v", err)
	}

	if len(repo.records) != 1 {
		t.Fatalf("same-day snapshots should share one row, got %d", len(repo.records))
	}
	rec := repo.records["acct:2026-08-30"]
	if rec == nil {
		t.Fatal("expected deterministic id acct:2026-08-30")
	}
	if rec.CurrentBalance != 45 || rec.TotalConsumed != 55 {
		t.Errorf("latest values should win, got %+v", rec)
	}
}

func TestDailyDelta(t *testing.T) {
	repo := newMemoryHistoryRepo()
	svc := NewBalanceHistoryService(repo)
	ctx := context.Background()

	// Yesterday's snapshot, then today's.
	svc.now = func() time.Time { return fixedDay(29) }
	svc.RecordSnapshot(ctx, "acct", models.NewBalance(100, 20))
	svc.now = func() time.Time { return fixedDay(30) }
	svc.RecordSnapshot(ctx, "acct", models.NewBalance(95, 28))

	delta, ok, err := svc.DailyDelta(ctx, "acct")
	if err != nil {
		t.Fatalf("delta: %v", err)
	}
	if !ok {
		t.Fatal("both days recorded, delta should exist")
	}
	if delta.ConsumedToday != 8 {
		t.Errorf("want 8 consumed, got %v", delta.ConsumedToday)
	}
	if delta.BalanceChange != -5 {
		t.Errorf("want -5 balance change, got %v", delta.BalanceChange)
	}
}

func TestDailyDeltaMissingDays(t *testing.T) {
	repo := newMemoryHistoryRepo()
	svc := NewBalanceHistoryService(repo)
	svc.now = func() time.Time { return fixedDay(30) }
	ctx := context.Background()

	// No records at all.
	if _, ok, err := svc.DailyDelta(ctx, "acct"); err != nil || ok {
		t.Fatalf("no records: want ok=false, got ok=%v err=%v", ok, err)
	}

	// Only today.
	svc.RecordSnapshot(ctx, "acct", models.NewBalance(10, 0))
	if _, ok, _ := svc.DailyDelta(ctx, "acct"); ok {
		t.Fatal("missing yesterday should yield no delta")
	}
}

func TestRecentDefaultsLimit(t *testing.T) {
	repo := newMemoryHistoryRepo()
	svc := NewBalanceHistoryService(repo)
	ctx := context.Background()

	for day := 1; day <= 31; day++ {
		svc.now = func() time.Time { return fixedDay(day) }
		svc.RecordSnapshot(ctx, "acct", models.NewBalance(float64(day), 0))
	}

	records, err := svc.Recent(ctx, "acct", 0)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(records) != 30 {
		t.Errorf("zero limit should default to 30, got %d", len(records))
	}
}
