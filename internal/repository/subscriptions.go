package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jmehdipour/optin-gateway/internal/model"
	"github.com/jmoiron/sqlx"
)

// SubscriptionsRepository defines persistence for the subscriptions table.
type SubscriptionsRepository interface {
	InsertPending(ctx context.Context, s model.Subscription) error
	// Delete removes a row; only used to compensate a failed enqueue
	// right after InsertPending.
	Delete(ctx context.Context, subscriptionID string) error
	// GetByID returns (nil, nil) when the subscription does not exist.
	GetByID(ctx context.Context, subscriptionID string) (*model.Subscription, error)
	// Confirm transitions pending -> confirmed with a conditional write
	// and, in the same transaction, records the confirmed event in the
	// outbox. Returns true only when this call performed the transition;
	// an already-confirmed row returns (false, nil).
	Confirm(ctx context.Context, subscriptionID string, now time.Time, eventTopic string) (bool, error)
}

type SubscriptionsRepositoryImpl struct {
	db     *sqlx.DB
	outbox OutboxRepository
}

func NewSubscriptionsRepository(db *sqlx.DB, outbox OutboxRepository) *SubscriptionsRepositoryImpl {
	return &SubscriptionsRepositoryImpl{db: db, outbox: outbox}
}

var _ SubscriptionsRepository = (*SubscriptionsRepositoryImpl)(nil)

func (r *SubscriptionsRepositoryImpl) InsertPending(ctx context.Context, s model.Subscription) error {
	const q = `
		INSERT INTO subscriptions
		    (subscription_id, campaign_id, email, source_ip, status, created_at, updated_at)
		VALUES
		    (?, ?, ?, ?, 'pending', NOW(), NOW())
	`
	_, err := r.db.ExecContext(ctx, q, s.ID, s.CampaignID, s.Email, s.SourceIP)
	return err
}

func (r *SubscriptionsRepositoryImpl) Delete(ctx context.Context, subscriptionID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM subscriptions WHERE subscription_id = ?`, subscriptionID)
	return err
}

func (r *SubscriptionsRepositoryImpl) GetByID(ctx context.Context, subscriptionID string) (*model.Subscription, error) {
	var s model.Subscription
	err := r.db.GetContext(ctx, &s, `
		SELECT subscription_id, campaign_id, email, source_ip, status, confirmed_at, created_at, updated_at
		  FROM subscriptions
		 WHERE subscription_id = ? LIMIT 1
	`, subscriptionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Confirm runs the conditional UPDATE and outbox insert atomically. The
// WHERE status='pending' clause is the linearization point: concurrent
// confirmations race on it and exactly one observes RowsAffected() == 1.
func (r *SubscriptionsRepositoryImpl) Confirm(ctx context.Context, subscriptionID string, now time.Time, eventTopic string) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE subscriptions
		   SET status = 'confirmed', confirmed_at = ?, updated_at = NOW()
		 WHERE subscription_id = ? AND status = 'pending'
	`, now, subscriptionID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 0 {
		// Already confirmed (or row gone): nothing to do, no event.
		return false, tx.Commit()
	}

	var s model.Subscription
	if err := tx.GetContext(ctx, &s, `
		SELECT subscription_id, campaign_id, email, source_ip, status, confirmed_at, created_at, updated_at
		  FROM subscriptions
		 WHERE subscription_id = ? LIMIT 1
	`, subscriptionID); err != nil {
		return false, err
	}

	payload, err := json.Marshal(model.ConfirmedEvent{
		SubscriptionID: s.ID,
		CampaignID:     s.CampaignID,
		Email:          s.Email,
		ConfirmedAt:    now.Unix(),
	})
	if err != nil {
		return false, err
	}

	if err := r.outbox.Insert(ctx, tx, "subscription", s.ID, eventTopic, payload); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}
