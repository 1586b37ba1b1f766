package model

import "time"

// Confirmation is a row in the ClickHouse confirmations read model,
// materialized from the events topic by the ingestion pipeline.
type Confirmation struct {
	SubscriptionID string    `db:"subscription_id"`
	CampaignID     string    `db:"campaign_id"`
	Email          string    `db:"email"`
	ConfirmedAt    time.Time `db:"confirmed_at"`
}
