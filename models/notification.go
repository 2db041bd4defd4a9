package models

import (
	"time"

	"github.com/google/uuid"
)

// NotificationChannel is an outbound webhook destination for check-in
// results. Only enabled channels receive messages.
type NotificationChannel struct {
	ID        string            `bson:"_id" json:"id"`
	Name      string            `bson:"name" json:"name"`
	Type      string            `bson:"type" json:"type"` // "webhook"
	URL       string            `bson:"url" json:"url"`
	Headers   map[string]string `bson:"headers,omitempty" json:"headers,omitempty"`
	Enabled   bool              `bson:"enabled" json:"enabled"`
	CreatedAt time.Time         `bson:"created_at" json:"created_at"`
}

func NewNotificationChannel(name, channelType, url string, headers map[string]string) *NotificationChannel {
	return &NotificationChannel{
		ID:        uuid.NewString(),
		Name:      name,
		Type:      channelType,
		URL:       url,
		Headers:   headers,
		Enabled:   true,
		CreatedAt: time.Now().UTC(),
	}
}

// NotificationMessage is the payload posted to channels.
type NotificationMessage struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Level string `json:"level"` // "info" | "warn" | "error"
}
