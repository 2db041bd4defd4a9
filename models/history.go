package models

import (
	"fmt"
	"time"
)

// BalanceHistoryRecord is one account's balance snapshot for one calendar
// day. The id is derived from account id + date so same-day fetches upsert
// the same row instead of appending duplicates.
type BalanceHistoryRecord struct {
	ID             string    `bson:"_id" json:"id"`
	AccountID      string    `bson:"account_id" json:"account_id"`
	Date           string    `bson:"date" json:"date"` // YYYY-MM-DD, local calendar day
	CurrentBalance float64   `bson:"current_balance" json:"current_balance"`
	TotalConsumed  float64   `bson:"total_consumed" json:"total_consumed"`
	TotalIncome    float64   `bson:"total_income" json:"total_income"`
	RecordedAt     time.Time `bson:"recorded_at" json:"recorded_at"`
}

// BalanceHistoryID builds the deterministic daily record id.
func BalanceHistoryID(accountID string, day time.Time) string {
	return fmt.Sprintf("%s:%s", accountID, day.Format("2006-01-02"))
}

func NewBalanceHistoryRecord(accountID string, day time.Time, b Balance) *BalanceHistoryRecord {
	return &BalanceHistoryRecord{
		ID:             BalanceHistoryID(accountID, day),
		AccountID:      accountID,
		Date:           day.Format("2006-01-02"),
		CurrentBalance: b.Quota,
		TotalConsumed:  b.Used,
		TotalIncome:    b.Remaining,
		RecordedAt:     time.Now().UTC(),
	}
}
