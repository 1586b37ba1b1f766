package confirm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmehdipour/optin-gateway/internal/metrics"
	"github.com/jmehdipour/optin-gateway/internal/repository"
	"github.com/jmehdipour/optin-gateway/internal/reward"
	"github.com/jmehdipour/optin-gateway/internal/token"
)

// ErrInvalidToken covers every token failure; see token.ErrInvalid.
var ErrInvalidToken = token.ErrInvalid

// ErrInvalidCampaign is returned when the token is fine but the
// campaign has since been removed.
var ErrInvalidCampaign = errors.New("invalid campaign")

// Service is the confirmation verifier: it validates capability tokens,
// performs the idempotent pending->confirmed transition and issues the
// reward redirect.
type Service struct {
	tokens        *token.Codec
	campaigns     repository.CampaignsRepository
	subscriptions repository.SubscriptionsRepository
	presigner     reward.Presigner
	eventsTopic   string
	now           func() time.Time
}

func New(
	tokens *token.Codec,
	campaignsRepo repository.CampaignsRepository,
	subscriptionsRepo repository.SubscriptionsRepository,
	presigner reward.Presigner,
	eventsTopic string,
) *Service {
	return &Service{
		tokens:        tokens,
		campaigns:     campaignsRepo,
		subscriptions: subscriptionsRepo,
		presigner:     presigner,
		eventsTopic:   eventsTopic,
		now:           time.Now,
	}
}

// WithNow overrides the clock; test hook.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// Confirm validates raw, confirms the subscription at most once, and
// returns the presigned reward URL to redirect to. Calling it again
// with the same valid token is a no-op that still returns a fresh URL.
func (s *Service) Confirm(ctx context.Context, raw string) (string, error) {
	claims, err := s.tokens.Verify(raw)
	if err != nil {
		return "", err
	}

	campaign, err := s.campaigns.GetByID(ctx, claims.CampaignID)
	if err != nil {
		return "", fmt.Errorf("campaign lookup: %w", err)
	}
	if campaign == nil {
		return "", ErrInvalidCampaign
	}

	transitioned, err := s.subscriptions.Confirm(ctx, claims.SubscriptionID, s.now().UTC(), s.eventsTopic)
	if err != nil {
		return "", fmt.Errorf("confirm subscription: %w", err)
	}
	if transitioned {
		metrics.SubscriptionsTotal.WithLabelValues("confirmed").Inc()
	} else {
		// Duplicate click or crawler replay; success without side effects.
		metrics.SubscriptionsTotal.WithLabelValues("replayed").Inc()
	}

	url, err := s.presigner.RewardURL(ctx, campaign.RewardKey)
	if err != nil {
		return "", fmt.Errorf("presign reward: %w", err)
	}
	return url, nil
}
