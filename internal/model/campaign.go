package model

import "time"

// Campaign is owned by the campaign-management service; this core only reads it.
type Campaign struct {
	ID        string    `db:"campaign_id"`
	OwnerID   int64     `db:"owner_id"`
	Name      string    `db:"name"`
	RewardKey string    `db:"reward_key"` // object key of the reward artifact
	CreatedAt time.Time `db:"created_at"`
}
