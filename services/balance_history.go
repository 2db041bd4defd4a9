package services

import (
	"context"
	"time"

	"checkin-keeper/internal/repository"
	"checkin-keeper/models"
)

// BalanceHistoryService keeps one balance snapshot per account per calendar
// day and computes day-over-day deltas from them.
type BalanceHistoryService struct {
	history repository.BalanceHistoryRepository
	now     func() time.Time
}

func NewBalanceHistoryService(history repository.BalanceHistoryRepository) *BalanceHistoryService {
	return &BalanceHistoryService{history: history, now: time.Now}
}

// RecordSnapshot upserts today's row for the account. Multiple fetches on
// the same day keep the latest values under the same id.
func (s *BalanceHistoryService) RecordSnapshot(ctx context.Context, accountID string, balance models.Balance) error {
	record := models.NewBalanceHistoryRecord(accountID, s.now(), balance)
	return s.history.Save(ctx, record)
}

// Recent returns up to limit snapshots, newest first.
func (s *BalanceHistoryService) Recent(ctx context.Context, accountID string, limit int) ([]*models.BalanceHistoryRecord, error) {
	if limit <= 0 {
		limit = 30
	}
	return s.history.FindByAccountID(ctx, accountID, limit)
}

// DailyDelta compares today's snapshot with yesterday's. Ok is false when
// either day has no record yet.
type DailyDelta struct {
	ConsumedToday float64 `json:"consumed_today"`
	BalanceChange float64 `json:"balance_change"`
}

func (s *BalanceHistoryService) DailyDelta(ctx context.Context, accountID string) (*DailyDelta, bool, error) {
	today := s.now()
	yesterday := today.AddDate(0, 0, -1)

	todayRec, err := s.history.FindByAccountIDOnDate(ctx, accountID, today.Format("2006-01-02"))
	if err != nil {
		return nil, false, err
	}
	yesterdayRec, err := s.history.FindByAccountIDOnDate(ctx, accountID, yesterday.Format("2006-01-02"))
	if err != nil {
		return nil, false, err
	}
	if todayRec == nil || yesterdayRec == nil {
		return nil, false, nil
	}

	return &DailyDelta{
		ConsumedToday: todayRec.TotalConsumed - yesterdayRec.TotalConsumed,
		BalanceChange: todayRec.CurrentBalance - yesterdayRec.CurrentBalance,
	}, true, nil
}
