package models

import "time"

// EventType tags each domain event variant. The set is closed: handlers
// subscribe by tag and receive the concrete struct, no downcasting through
// interface{} chains.
type EventType string

const (
	EventAccountCreated EventType = "account.created"
	EventAccountUpdated EventType = "account.updated"
	EventAccountDeleted EventType = "account.deleted"
	EventAccountToggled EventType = "account.toggled"
)

// DomainEvent is implemented by every event variant.
type DomainEvent interface {
	Type() EventType
	OccurredAt() time.Time
}

type AccountCreated struct {
	Account *Account
	At      time.Time
}

func NewAccountCreated(account *Account) *AccountCreated {
	return &AccountCreated{Account: account, At: time.Now().UTC()}
}

func (e AccountCreated) Type() EventType       { return EventAccountCreated }
func (e AccountCreated) OccurredAt() time.Time { return e.At }

type AccountUpdated struct {
	Account *Account
	At      time.Time
}

func NewAccountUpdated(account *Account) *AccountUpdated {
	return &AccountUpdated{Account: account, At: time.Now().UTC()}
}

func (e AccountUpdated) Type() EventType       { return EventAccountUpdated }
func (e AccountUpdated) OccurredAt() time.Time { return e.At }

type AccountDeleted struct {
	AccountID string
	At        time.Time
}

func NewAccountDeleted(accountID string) *AccountDeleted {
	return &AccountDeleted{AccountID: accountID, At: time.Now().UTC()}
}

func (e AccountDeleted) Type() EventType       { return EventAccountDeleted }
func (e AccountDeleted) OccurredAt() time.Time { return e.At }

type AccountToggled struct {
	Account *Account
	Enabled bool
	At      time.Time
}

func NewAccountToggled(account *Account, enabled bool) *AccountToggled {
	return &AccountToggled{Account: account, Enabled: enabled, At: time.Now().UTC()}
}

func (e AccountToggled) Type() EventType       { return EventAccountToggled }
func (e AccountToggled) OccurredAt() time.Time { return e.At }
