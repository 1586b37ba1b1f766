package model

import (
	"database/sql"
	"time"
)

type OutboxEvent struct {
	ID          int64        `db:"id"`
	Aggregate   string       `db:"aggregate"`    // e.g. "subscription"
	AggregateID string       `db:"aggregate_id"` // subscription_id
	Topic       string       `db:"topic"`
	Payload     []byte       `db:"payload"`
	Attempts    int          `db:"attempts"`
	PublishedAt sql.NullTime `db:"published_at"`
	CreatedAt   time.Time    `db:"created_at"`
}
