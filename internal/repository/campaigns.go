package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmehdipour/optin-gateway/internal/model"
	"github.com/jmoiron/sqlx"
)

// CampaignsRepository is a read-only view of the campaigns table,
// which is owned by the campaign-management service.
type CampaignsRepository interface {
	// GetByID returns (nil, nil) when the campaign does not exist.
	GetByID(ctx context.Context, campaignID string) (*model.Campaign, error)
}

type CampaignsRepositoryImpl struct {
	db *sqlx.DB
}

func NewCampaignsRepository(db *sqlx.DB) *CampaignsRepositoryImpl {
	return &CampaignsRepositoryImpl{db: db}
}

var _ CampaignsRepository = (*CampaignsRepositoryImpl)(nil)

func (r *CampaignsRepositoryImpl) GetByID(ctx context.Context, campaignID string) (*model.Campaign, error) {
	var c model.Campaign
	err := r.db.GetContext(ctx, &c, `
		SELECT campaign_id, owner_id, name, reward_key, created_at
		  FROM campaigns
		 WHERE campaign_id = ? LIMIT 1
	`, campaignID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
