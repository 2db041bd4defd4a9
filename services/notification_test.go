package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"checkin-keeper/models"
	"checkin-keeper/utils"
)

type memoryChannelRepo struct {
	mu       sync.Mutex
	channels map[string]*models.NotificationChannel
}

func newMemoryChannelRepo(channels ...*models.NotificationChannel) *memoryChannelRepo {
	repo := &memoryChannelRepo{channels: make(map[string]*models.NotificationChannel)}
	for _, c := range channels {
		repo.channels[c.ID] = c
	}
	return repo
}

func (r *memoryChannelRepo) Save(ctx context.Context, channel *models.NotificationChannel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[channel.ID] = channel
	return nil
}

func (r *memoryChannelRepo) FindByID(ctx context.Context, id string) (*models.NotificationChannel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.channels[id]; ok {
		return c, nil
	}
	return nil, utils.NewDomainError(utils.KindValidation, "channel not found")
}

func (r *memoryChannelRepo) FindAll(ctx context.Context) ([]*models.NotificationChannel, error) {
	return r.FindEnabled(ctx)
}

func (r *memoryChannelRepo) FindEnabled(ctx context.Context) ([]*models.NotificationChannel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.NotificationChannel
	for _, c := range r.channels {
		if c.Enabled {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *memoryChannelRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.channels, id)
	return nil
}

// captureWebhook records every message posted to it.
func captureWebhook(t *testing.T) (*httptest.Server, func() []models.NotificationMessage) {
	t.Helper()
	var mu sync.Mutex
	var got []models.NotificationMessage

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg models.NotificationMessage
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			t.Errorf("decode webhook payload: %v", err)
		}
		mu.Lock()
		got = append(got, msg)
		mu.Unlock()
	}))
	t.Cleanup(srv.Close)

	return srv, func() []models.NotificationMessage {
		mu.Lock()
		defer mu.Unlock()
		return append([]models.NotificationMessage(nil), got...)
	}
}

func notifiedAccount(t *testing.T) *models.Account {
	t.Helper()
	account, err := models.NewAccount("my account", "p1", models.NewCredentials(map[string]string{"a": "b"}, ""))
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	return account
}

func TestNotifySuccessIncludesDailyDelta(t *testing.T) {
	srv, messages := captureWebhook(t)
	channels := newMemoryChannelRepo(models.NewNotificationChannel("hook", "webhook", srv.URL, nil))

	historyRepo := newMemoryHistoryRepo()
	history := NewBalanceHistoryService(historyRepo)
	ctx := context.Background()
	history.now = func() time.Time { return fixedDay(29) }
	history.RecordSnapshot(ctx, "acct-1", models.NewBalance(100, 20))
	history.now = func() time.Time { return fixedDay(30) }
	history.RecordSnapshot(ctx, "acct-1", models.NewBalance(95, 28))

	svc := NewNotificationService(channels, history, true)
	account := notifiedAccount(t)
	account.ID = "acct-1"
	balance := models.NewBalance(95, 28)
	svc.NotifyCheckIn(ctx, account, &models.CheckInResult{Success: true, Balance: &balance, Message: "checked in"}, nil)

	got := messages()
	if len(got) != 1 {
		t.Fatalf("want one delivery, got %d", len(got))
	}
	if got[0].Level != "info" || !strings.Contains(got[0].Title, "my account") {
		t.Errorf("unexpected message %+v", got[0])
	}
	if !strings.Contains(got[0].Body, "consumed 8.00 today") {
		t.Errorf("body should carry today's consumption, got %q", got[0].Body)
	}
	if !strings.Contains(got[0].Body, "-5.00 vs yesterday") {
		t.Errorf("body should carry the day-over-day balance change, got %q", got[0].Body)
	}
}

func TestNotifySuccessWithoutHistoryOmitsDelta(t *testing.T) {
	srv, messages := captureWebhook(t)
	channels := newMemoryChannelRepo(models.NewNotificationChannel("hook", "webhook", srv.URL, nil))

	svc := NewNotificationService(channels, nil, true)
	balance := models.NewBalance(10, 5)
	svc.NotifyCheckIn(context.Background(), notifiedAccount(t), &models.CheckInResult{Success: true, Balance: &balance, Message: "ok"}, nil)

	got := messages()
	if len(got) != 1 {
		t.Fatalf("want one delivery, got %d", len(got))
	}
	if !strings.Contains(got[0].Body, "balance 10.00") {
		t.Errorf("body should carry the balance, got %q", got[0].Body)
	}
	if strings.Contains(got[0].Body, "yesterday") {
		t.Errorf("no history wired, body must not mention a delta: %q", got[0].Body)
	}
}

func TestNotifyFailureCarriesUserMessage(t *testing.T) {
	srv, messages := captureWebhook(t)
	channels := newMemoryChannelRepo(models.NewNotificationChannel("hook", "webhook", srv.URL, nil))

	svc := NewNotificationService(channels, nil, true)
	err := utils.NewDomainError(utils.KindSessionExpired, "session has expired")
	svc.NotifyCheckIn(context.Background(), notifiedAccount(t), nil, err)

	got := messages()
	if len(got) != 1 {
		t.Fatalf("want one delivery, got %d", len(got))
	}
	if got[0].Level != "error" || !strings.Contains(got[0].Body, "session has expired") {
		t.Errorf("unexpected failure message %+v", got[0])
	}
}

func TestNotifyDisabledSendsNothing(t *testing.T) {
	srv, messages := captureWebhook(t)
	channels := newMemoryChannelRepo(models.NewNotificationChannel("hook", "webhook", srv.URL, nil))

	svc := NewNotificationService(channels, nil, false)
	svc.NotifyCheckIn(context.Background(), notifiedAccount(t), &models.CheckInResult{Success: true, Message: "ok"}, nil)

	if got := messages(); len(got) != 0 {
		t.Fatalf("disabled service must not deliver, got %d messages", len(got))
	}
}

func TestBroadcastSkipsDisabledChannels(t *testing.T) {
	srv, messages := captureWebhook(t)
	enabled := models.NewNotificationChannel("on", "webhook", srv.URL, nil)
	disabled := models.NewNotificationChannel("off", "webhook", srv.URL, nil)
	disabled.Enabled = false
	channels := newMemoryChannelRepo(enabled, disabled)

	svc := NewNotificationService(channels, nil, true)
	svc.Broadcast(context.Background(), models.NotificationMessage{Title: "t", Body: "b", Level: "info"})

	if got := messages(); len(got) != 1 {
		t.Fatalf("only the enabled channel should receive, got %d deliveries", len(got))
	}
}
