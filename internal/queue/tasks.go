package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"checkin-keeper/internal/logger"
	"checkin-keeper/services"
	"checkin-keeper/utils"
)

const (
	TaskCheckIn      = "checkin:execute"
	TaskBatchCheckIn = "checkin:batch"
)

type CheckInPayload struct {
	AccountID string `json:"account_id"`
	Trigger   string `json:"trigger"` // "manual" | "scheduled"
}

type BatchCheckInPayload struct {
	Trigger    string   `json:"trigger"`
	AccountIDs []string `json:"account_ids,omitempty"` // empty means all enabled
}

// Task creators
func NewCheckInTask(accountID, trigger string) (*asynq.Task, error) {
	payload, err := json.Marshal(CheckInPayload{AccountID: accountID, Trigger: trigger})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskCheckIn,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(5*time.Minute),
		asynq.Queue("default"),
	), nil
}

func NewBatchCheckInTask(trigger string, accountIDs []string) (*asynq.Task, error) {
	payload, err := json.Marshal(BatchCheckInPayload{Trigger: trigger, AccountIDs: accountIDs})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskBatchCheckIn,
		payload,
		asynq.MaxRetry(1),
		asynq.Timeout(30*time.Minute),
		asynq.Queue("critical"),
	), nil
}

// TaskProcessor runs queued check-ins in the worker process.
type TaskProcessor struct {
	executor *services.CheckInExecutor
}

func NewTaskProcessor(executor *services.CheckInExecutor) *TaskProcessor {
	return &TaskProcessor{executor: executor}
}

func (p *TaskProcessor) HandleCheckIn(ctx context.Context, t *asynq.Task) error {
	var payload CheckInPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}

	logger.Info("processing queued check-in", "account_id", payload.AccountID, "trigger", payload.Trigger)

	_, err := p.executor.Execute(ctx, payload.AccountID)
	if err == nil {
		return nil
	}
	// Configuration problems will not fix themselves on retry.
	switch utils.ErrKind(err) {
	case utils.KindValidation, utils.KindAccountNotFound, utils.KindProviderNotFound, utils.KindInvalidCredentials:
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return err
}

func (p *TaskProcessor) HandleBatchCheckIn(ctx context.Context, t *asynq.Task) error {
	var payload BatchCheckInPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}

	logger.Info("processing queued batch check-in", "trigger", payload.Trigger)

	summary, err := p.executor.ExecuteBatch(ctx, payload.AccountIDs)
	if err != nil {
		return err
	}
	logger.Info("queued batch check-in finished",
		"total", summary.Total, "succeeded", summary.Succeeded, "failed", summary.Failed, "stopped", summary.Stopped)
	return nil
}

// Mux wires the task handlers onto an asynq mux.
func (p *TaskProcessor) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskCheckIn, p.HandleCheckIn)
	mux.HandleFunc(TaskBatchCheckIn, p.HandleBatchCheckIn)
	return mux
}
