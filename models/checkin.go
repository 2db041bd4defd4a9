package models

import (
	"time"

	"github.com/google/uuid"

	"checkin-keeper/utils"
)

// Balance is the provider-reported money view of an account. Quota is the
// current balance and Used the historical consumption. Remaining carries the
// total lifetime income (quota + used); the upstream wire name "remaining"
// is overloaded and actually means total income.
type Balance struct {
	Quota     float64 `bson:"quota" json:"quota"`
	Used      float64 `bson:"used" json:"used"`
	Remaining float64 `bson:"remaining" json:"remaining"`
}

func NewBalance(quota, used float64) Balance {
	return Balance{Quota: quota, Used: used, Remaining: quota + used}
}

// CheckInStatus is the state of a CheckInJob.
type CheckInStatus string

const (
	CheckInPending   CheckInStatus = "pending"
	CheckInRunning   CheckInStatus = "running"
	CheckInCompleted CheckInStatus = "completed"
	CheckInFailed    CheckInStatus = "failed"
	CheckInCancelled CheckInStatus = "cancelled"
)

// CheckInResult is the outcome payload of a completed job.
type CheckInResult struct {
	Success bool     `bson:"success" json:"success"`
	Balance *Balance `bson:"balance,omitempty" json:"balance,omitempty"`
	Message string   `bson:"message,omitempty" json:"message,omitempty"`
}

// CheckInJob tracks one check-in attempt through its lifecycle:
// Pending → Running → {Completed, Failed}; Cancelled is reachable from
// Pending and Running only. Terminal states reject further transitions.
type CheckInJob struct {
	ID          string         `bson:"_id" json:"id"`
	AccountID   string         `bson:"account_id" json:"account_id"`
	ProviderID  string         `bson:"provider_id" json:"provider_id"`
	Status      CheckInStatus  `bson:"status" json:"status"`
	ScheduledAt time.Time      `bson:"scheduled_at" json:"scheduled_at"`
	StartedAt   *time.Time     `bson:"started_at,omitempty" json:"started_at,omitempty"`
	CompletedAt *time.Time     `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
	Result      *CheckInResult `bson:"result,omitempty" json:"result,omitempty"`
	Error       string         `bson:"error,omitempty" json:"error,omitempty"`
}

func NewCheckInJob(accountID, providerID string, scheduledAt time.Time) *CheckInJob {
	return &CheckInJob{
		ID:          uuid.NewString(),
		AccountID:   accountID,
		ProviderID:  providerID,
		Status:      CheckInPending,
		ScheduledAt: scheduledAt,
	}
}

func (j *CheckInJob) Start() error {
	if j.Status != CheckInPending {
		return utils.NewDomainError(utils.KindValidation, "job is not pending")
	}
	now := time.Now().UTC()
	j.Status = CheckInRunning
	j.StartedAt = &now
	return nil
}

func (j *CheckInJob) Complete(result CheckInResult) error {
	if j.Status != CheckInRunning {
		return utils.NewDomainError(utils.KindValidation, "job is not running")
	}
	now := time.Now().UTC()
	j.Status = CheckInCompleted
	j.CompletedAt = &now
	j.Result = &result
	return nil
}

func (j *CheckInJob) Fail(errMsg string) error {
	if j.Status != CheckInRunning && j.Status != CheckInPending {
		return utils.NewDomainError(utils.KindValidation, "job is not in a failable state")
	}
	now := time.Now().UTC()
	j.Status = CheckInFailed
	j.CompletedAt = &now
	j.Error = errMsg
	return nil
}

func (j *CheckInJob) Cancel() error {
	if j.Status == CheckInCompleted || j.Status == CheckInFailed || j.Status == CheckInCancelled {
		return utils.NewDomainError(utils.KindValidation, "cannot cancel a finished job")
	}
	now := time.Now().UTC()
	j.Status = CheckInCancelled
	j.CompletedAt = &now
	return nil
}
