package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"checkin-keeper/internal/logger"
	"checkin-keeper/internal/repository"
	"checkin-keeper/models"
	"checkin-keeper/utils"
)

// NotificationService posts check-in outcomes to every enabled webhook
// channel. Delivery failures are logged, never propagated: a broken webhook
// must not fail a check-in.
type NotificationService struct {
	channels   repository.NotificationChannelRepository
	history    *BalanceHistoryService
	httpClient *http.Client
	enabled    bool
}

func NewNotificationService(channels repository.NotificationChannelRepository, history *BalanceHistoryService, enabled bool) *NotificationService {
	return &NotificationService{
		channels:   channels,
		history:    history,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		enabled:    enabled,
	}
}

// NotifyCheckIn implements ResultNotifier.
func (s *NotificationService) NotifyCheckIn(ctx context.Context, account *models.Account, result *models.CheckInResult, checkInErr error) {
	if !s.enabled {
		return
	}

	message := s.buildCheckInMessage(ctx, account, result, checkInErr)
	s.Broadcast(ctx, message)
}

func (s *NotificationService) buildCheckInMessage(ctx context.Context, account *models.Account, result *models.CheckInResult, checkInErr error) models.NotificationMessage {
	if checkInErr != nil {
		return models.NotificationMessage{
			Title: fmt.Sprintf("Check-in failed: %s", account.Name),
			Body:  utils.UserMessage(checkInErr),
			Level: "error",
		}
	}

	body := result.Message
	if result.Balance != nil {
		body = fmt.Sprintf("%s (balance %.2f, consumed %.2f)", result.Message, result.Balance.Quota, result.Balance.Used)
	}
	// Day-over-day comparison, when both days have a snapshot.
	if s.history != nil {
		if delta, ok, err := s.history.DailyDelta(ctx, account.ID); err == nil && ok {
			body = fmt.Sprintf("%s; consumed %.2f today, balance %+.2f vs yesterday",
				body, delta.ConsumedToday, delta.BalanceChange)
		}
	}
	return models.NotificationMessage{
		Title: fmt.Sprintf("Check-in succeeded: %s", account.Name),
		Body:  body,
		Level: "info",
	}
}

// Broadcast delivers a message to all enabled channels.
func (s *NotificationService) Broadcast(ctx context.Context, message models.NotificationMessage) {
	channels, err := s.channels.FindEnabled(ctx)
	if err != nil {
		logger.Error("failed to load notification channels", "error", err.Error())
		return
	}

	for _, channel := range channels {
		if err := s.deliver(ctx, channel, message); err != nil {
			logger.Warn("webhook delivery failed", "channel", channel.Name, "error", err.Error())
		}
	}
}

// TestChannel sends a sample message to one channel and reports the outcome.
func (s *NotificationService) TestChannel(ctx context.Context, channelID string) error {
	channel, err := s.channels.FindByID(ctx, channelID)
	if err != nil {
		return err
	}
	return s.deliver(ctx, channel, models.NotificationMessage{
		Title: "Test notification",
		Body:  "Webhook channel is configured correctly",
		Level: "info",
	})
}

func (s *NotificationService) deliver(ctx context.Context, channel *models.NotificationChannel, message models.NotificationMessage) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return utils.WrapDomainError(utils.KindInfrastructure, "failed to marshal notification", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, channel.URL, bytes.NewReader(payload))
	if err != nil {
		return utils.WrapDomainError(utils.KindValidation, "bad webhook URL", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for name, value := range channel.Headers {
		req.Header.Set(name, value)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return utils.WrapDomainError(utils.KindInfrastructure, "webhook request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return utils.NewDomainError(utils.KindInfrastructure,
			fmt.Sprintf("webhook returned HTTP %d", resp.StatusCode))
	}
	return nil
}
