package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmehdipour/optin-gateway/internal/model"
	"github.com/jmoiron/sqlx"
)

type OwnersRepository interface {
	GetByAPIKey(ctx context.Context, apiKey string) (*model.Owner, error)
}

type OwnersRepositoryImpl struct {
	db *sqlx.DB
}

func NewOwnersRepository(db *sqlx.DB) *OwnersRepositoryImpl {
	return &OwnersRepositoryImpl{db: db}
}

var _ OwnersRepository = (*OwnersRepositoryImpl)(nil)

func (r *OwnersRepositoryImpl) GetByAPIKey(ctx context.Context, apiKey string) (*model.Owner, error) {
	var o model.Owner
	err := r.db.GetContext(ctx, &o, `
		SELECT id, name, api_key, status, rate_limit_rps, created_at, updated_at
		  FROM owners
		 WHERE api_key = ? LIMIT 1
	`, apiKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}
