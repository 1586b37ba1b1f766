package model

// ConfirmationJob is the payload carried on the jobs topic. Delivery is
// at-least-once; consumers must tolerate duplicates.
type ConfirmationJob struct {
	SubscriptionID string `json:"subscription_id"`
	CampaignID     string `json:"campaign_id"`
	Email          string `json:"email"`
	// Attempts counts dispatcher re-publishes of this job; zero on the
	// original message from intake.
	Attempts int `json:"attempts,omitempty"`
}

// ConfirmedEvent is published (via the outbox) when a subscription
// actually transitions to confirmed. At most one per subscription.
type ConfirmedEvent struct {
	SubscriptionID string `json:"subscription_id"`
	CampaignID     string `json:"campaign_id"`
	Email          string `json:"email"`
	ConfirmedAt    int64  `json:"confirmed_at"` // unix seconds
}
