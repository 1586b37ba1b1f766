package model

import (
	"database/sql"
	"time"
)

type SubscriptionStatus string

const (
	StatusPending   SubscriptionStatus = "pending"
	StatusConfirmed SubscriptionStatus = "confirmed"
)

func (s SubscriptionStatus) String() string {
	return string(s)
}

func (s SubscriptionStatus) Valid() bool {
	return s == StatusPending || s == StatusConfirmed
}

// Subscription is the DB entity persisted in the subscriptions table.
// It moves pending -> confirmed exactly once and is never deleted after
// a confirmation job for it has been accepted by the queue.
type Subscription struct {
	ID          string             `db:"subscription_id"`
	CampaignID  string             `db:"campaign_id"`
	Email       string             `db:"email"`
	SourceIP    string             `db:"source_ip"`
	Status      SubscriptionStatus `db:"status"`
	ConfirmedAt sql.NullTime       `db:"confirmed_at"`
	CreatedAt   time.Time          `db:"created_at"`
	UpdatedAt   time.Time          `db:"updated_at"`
}
