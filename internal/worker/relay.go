package worker

import (
	"context"
	"log"
	"time"

	"github.com/jmehdipour/optin-gateway/internal/model"
)

// OutboxSource is the slice of the outbox repository the relay needs.
type OutboxSource interface {
	FetchUnpublished(ctx context.Context, limit int) ([]model.OutboxEvent, error)
	MarkPublished(ctx context.Context, ids []int64) error
}

// EventPublisher is satisfied by kafka.Producer.
type EventPublisher interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// Relay drains the transactional outbox onto Kafka. The confirmed
// event was written in the same transaction as the state transition,
// so downstream sees it at least once and never for a replay.
type Relay struct {
	Outbox    OutboxSource
	Publisher EventPublisher

	BatchSize    int
	PollInterval time.Duration
}

func NewRelay(outbox OutboxSource, publisher EventPublisher) *Relay {
	return &Relay{
		Outbox:       outbox,
		Publisher:    publisher,
		BatchSize:    100,
		PollInterval: 500 * time.Millisecond,
	}
}

// Run polls until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	if r.BatchSize <= 0 {
		r.BatchSize = 100
	}
	if r.PollInterval <= 0 {
		r.PollInterval = 500 * time.Millisecond
	}

	tick := time.NewTicker(r.PollInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
			if err := r.drainOnce(ctx); err != nil {
				log.Printf("[relay] drain err: %v", err)
			}
		}
	}
}

// drainOnce publishes one batch and marks only the rows that made it
// out. A partial failure leaves the rest unpublished for the next tick.
func (r *Relay) drainOnce(ctx context.Context) error {
	events, err := r.Outbox.FetchUnpublished(ctx, r.BatchSize)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	published := make([]int64, 0, len(events))
	for _, ev := range events {
		if err := r.Publisher.Publish(ctx, ev.AggregateID, ev.Payload); err != nil {
			log.Printf("[relay] publish err id=%d: %v", ev.ID, err)
			break
		}
		published = append(published, ev.ID)
	}

	if len(published) == 0 {
		return nil
	}
	return r.Outbox.MarkPublished(ctx, published)
}
