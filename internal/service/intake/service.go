package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmehdipour/optin-gateway/internal/logger"
	"github.com/jmehdipour/optin-gateway/internal/model"
	"github.com/jmehdipour/optin-gateway/internal/repository"
	"github.com/jmehdipour/optin-gateway/internal/util"
	"go.uber.org/zap"
)

var (
	// ErrInvalidEmail and ErrCampaignNotFound are client errors; no
	// state was touched when they are returned.
	ErrInvalidEmail     = errors.New("invalid email address")
	ErrCampaignNotFound = errors.New("campaign not found")

	// ErrStoreUnavailable and ErrQueueUnavailable are transient; the
	// caller may retry. They are distinct so the HTTP layer can tell
	// "nothing persisted" from "persisted then compensated".
	ErrStoreUnavailable = errors.New("subscription store unavailable")
	ErrQueueUnavailable = errors.New("confirmation queue unavailable")
)

// JobProducer publishes confirmation jobs to the durable queue.
type JobProducer interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// Service handles subscription intake: validate, persist pending,
// enqueue the confirmation job.
type Service struct {
	campaigns     repository.CampaignsRepository
	subscriptions repository.SubscriptionsRepository
	producer      JobProducer
}

func New(
	campaignsRepo repository.CampaignsRepository,
	subscriptionsRepo repository.SubscriptionsRepository,
	producer JobProducer,
) *Service {
	return &Service{
		campaigns:     campaignsRepo,
		subscriptions: subscriptionsRepo,
		producer:      producer,
	}
}

// Subscribe validates the request, creates a pending subscription and
// enqueues its confirmation job. If the enqueue fails the fresh row is
// deleted again so no subscription is left without a job in flight.
func (s *Service) Subscribe(ctx context.Context, campaignID, email, sourceIP string) (string, error) {
	email = util.NormalizeEmail(email)
	if !util.ValidEmail(email) {
		return "", ErrInvalidEmail
	}

	campaign, err := s.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return "", fmt.Errorf("%w: campaign lookup: %v", ErrStoreUnavailable, err)
	}
	if campaign == nil {
		return "", ErrCampaignNotFound
	}

	sub := model.Subscription{
		ID:         util.NewID(),
		CampaignID: campaignID,
		Email:      email,
		SourceIP:   sourceIP,
		Status:     model.StatusPending,
	}
	if err := s.subscriptions.InsertPending(ctx, sub); err != nil {
		return "", fmt.Errorf("%w: insert pending: %v", ErrStoreUnavailable, err)
	}

	payload, err := json.Marshal(model.ConfirmationJob{
		SubscriptionID: sub.ID,
		CampaignID:     sub.CampaignID,
		Email:          sub.Email,
	})
	if err != nil {
		// Cannot happen with this payload; treat like an enqueue failure.
		s.compensate(ctx, sub.ID)
		return "", fmt.Errorf("%w: marshal job: %v", ErrQueueUnavailable, err)
	}

	if err := s.producer.Publish(ctx, sub.ID, payload); err != nil {
		s.compensate(ctx, sub.ID)
		return "", fmt.Errorf("%w: publish job: %v", ErrQueueUnavailable, err)
	}

	return sub.ID, nil
}

// compensate removes a pending row whose confirmation job never made it
// onto the queue; without the job the row could never be confirmed.
func (s *Service) compensate(ctx context.Context, subscriptionID string) {
	if err := s.subscriptions.Delete(ctx, subscriptionID); err != nil {
		logger.Log.Error("compensating delete failed; orphaned pending subscription",
			zap.String("subscription_id", subscriptionID),
			zap.Error(err),
		)
	}
}
