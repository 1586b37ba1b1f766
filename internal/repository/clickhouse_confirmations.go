package repository

import (
	"context"

	"github.com/jmehdipour/optin-gateway/internal/model"
	"github.com/jmoiron/sqlx"
)

// CHConfirmationsRepository lists confirmed subscriptions from the
// ClickHouse read model (materialized from the events topic).
type CHConfirmationsRepository interface {
	ListByCampaign(ctx context.Context, campaignID string, limit, offset int) ([]model.Confirmation, error)
}

type chConfirmationsRepository struct {
	ch *sqlx.DB // ClickHouse connection
}

func NewCHConfirmationsRepository(ch *sqlx.DB) CHConfirmationsRepository {
	return &chConfirmationsRepository{ch: ch}
}

func (r *chConfirmationsRepository) ListByCampaign(ctx context.Context, campaignID string, limit, offset int) ([]model.Confirmation, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	const q = `
		SELECT subscription_id, campaign_id, email, confirmed_at
		FROM optin.confirmations_latest
		WHERE campaign_id = ?
		ORDER BY confirmed_at DESC
		LIMIT ? OFFSET ?
	`

	var rows []model.Confirmation
	if err := r.ch.SelectContext(ctx, &rows, q, campaignID, limit, offset); err != nil {
		return nil, err
	}
	return rows, nil
}
