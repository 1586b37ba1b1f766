package worker

import (
	"context"
	"encoding/json"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/jmehdipour/optin-gateway/internal/kafka"
	"github.com/jmehdipour/optin-gateway/internal/mailer"
	"github.com/jmehdipour/optin-gateway/internal/metrics"
	"github.com/jmehdipour/optin-gateway/internal/model"
	"github.com/jmehdipour/optin-gateway/internal/token"
)

// JobSource yields confirmation jobs; satisfied by kafka.Consumer.
type JobSource interface {
	Fetch(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, m kafka.Message) error
}

// SubscriptionReader is the slice of the subscriptions repository the
// dispatcher needs: the pre-send status check.
type SubscriptionReader interface {
	GetByID(ctx context.Context, subscriptionID string) (*model.Subscription, error)
}

// EmailSender is satisfied by mailer.Pool.
type EmailSender interface {
	Send(ctx context.Context, e mailer.Email) error
}

// JobRequeuer puts a failed job back on the jobs topic; satisfied by
// kafka.Producer.
type JobRequeuer interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// Dispatcher:
// - fetches confirmation jobs from Kafka,
// - mints a capability token per job,
// - sends the confirmation email through the mailer pool.
// Every message is resolved with a commit: group offsets are
// per-partition watermarks, so leaving one message uncommitted while
// concurrent workers commit its neighbors would advance the watermark
// past it anyway. A transiently failed job is re-published to the jobs
// topic with a bumped attempt count and then committed, so it comes
// back without holding up its batch-mates.
type Dispatcher struct {
	// Dependencies
	Consumer      JobSource
	Subscriptions SubscriptionReader
	Tokens        *token.Codec
	Mail          EmailSender
	Requeue       JobRequeuer

	// Behavior
	ConfirmationEndpoint string
	Subject              string
	Workers              int
	SendTimeout          time.Duration
	MaxRequeues          int
}

// NewDispatcher builds a dispatcher with sane defaults.
func NewDispatcher(
	consumer JobSource,
	subscriptions SubscriptionReader,
	tokens *token.Codec,
	mail EmailSender,
	requeue JobRequeuer,
	confirmationEndpoint, subject string,
) *Dispatcher {
	return &Dispatcher{
		Consumer:             consumer,
		Subscriptions:        subscriptions,
		Tokens:               tokens,
		Mail:                 mail,
		Requeue:              requeue,
		ConfirmationEndpoint: confirmationEndpoint,
		Subject:              subject,
		Workers:              16,
		SendTimeout:          15 * time.Second,
		MaxRequeues:          5,
	}
}

// Run starts the dispatcher and blocks until ctx is cancelled and all
// goroutines have drained.
func (w *Dispatcher) Run(ctx context.Context) error {
	if w.Workers <= 0 {
		w.Workers = 16
	}
	if w.SendTimeout <= 0 {
		w.SendTimeout = 15 * time.Second
	}
	if w.MaxRequeues <= 0 {
		w.MaxRequeues = 5
	}

	msgCh := make(chan kafka.Message, w.Workers*2)

	var wg sync.WaitGroup

	// Fetcher goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(msgCh)
		for {
			select {
			case <-ctx.Done():
				return
			default:
				m, err := w.Consumer.Fetch(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					log.Printf("[dispatcher] kafka fetch err: %v", err)
					time.Sleep(200 * time.Millisecond)
					continue
				}
				select {
				case msgCh <- m:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	// Processors
	for i := 0; i < w.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.runProcessor(ctx, msgCh)
		}()
	}

	wg.Wait()
	return nil
}

func (w *Dispatcher) runProcessor(ctx context.Context, in <-chan kafka.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-in:
			if !ok {
				return
			}
			w.processOne(ctx, m)
		}
	}
}

// processOne handles a single delivery. Duplicates of still-pending
// jobs re-send with a freshly minted token; tokens are stateless, so
// there is nothing to invalidate. Already-confirmed subscriptions are
// acknowledged without sending.
func (w *Dispatcher) processOne(ctx context.Context, m kafka.Message) {
	var job model.ConfirmationJob
	if err := json.Unmarshal(m.Value, &job); err != nil || job.SubscriptionID == "" {
		_ = w.Consumer.Commit(ctx, m) // poison -> commit, skip
		if err != nil {
			log.Printf("[dispatcher] bad job json: %v", err)
		} else {
			log.Printf("[dispatcher] job missing subscription_id")
		}
		return
	}

	sub, err := w.Subscriptions.GetByID(ctx, job.SubscriptionID)
	if err != nil {
		log.Printf("[dispatcher] subscription lookup err: %v", err)
		w.retryLater(ctx, m, job)
		return
	}
	if sub == nil || sub.Status == model.StatusConfirmed {
		// Nothing left to confirm; acknowledge and move on.
		_ = w.Consumer.Commit(ctx, m)
		return
	}

	tok, err := w.Tokens.Mint(job.SubscriptionID, job.CampaignID, job.Email)
	if err != nil {
		log.Printf("[dispatcher] mint token err: %v", err)
		return
	}

	confirmURL := w.ConfirmationEndpoint + "?token=" + url.QueryEscape(tok)

	email := mailer.Email{
		To:      job.Email,
		Subject: w.Subject,
		Text:    "Click here to confirm your subscription: " + confirmURL,
		HTML:    `Click <a href="` + confirmURL + `">here</a> to confirm your subscription`,
	}

	sendCtx, cancel := context.WithTimeout(ctx, w.SendTimeout)
	defer cancel()

	if err := w.Mail.Send(sendCtx, email); err != nil {
		metrics.SubscriptionsTotal.WithLabelValues("email_failed").Inc()
		log.Printf("[dispatcher] send err subscription_id=%s: %v", job.SubscriptionID, err)
		w.retryLater(ctx, m, job)
		return
	}

	metrics.SubscriptionsTotal.WithLabelValues("email_sent").Inc()

	if err := w.Consumer.Commit(ctx, m); err != nil {
		log.Printf("[dispatcher] commit err: %v", err)
	}
}

// retryLater re-publishes a transiently failed job with a bumped
// attempt count and commits the original delivery. Committing without
// requeueing would lose the job: concurrent commits of neighboring
// offsets advance the partition watermark past it either way. Jobs out
// of attempts are dropped; if the re-publish itself fails the delivery
// stays uncommitted, which is safe because the broker is unreachable
// for neighboring commits too.
func (w *Dispatcher) retryLater(ctx context.Context, m kafka.Message, job model.ConfirmationJob) {
	if job.Attempts >= w.MaxRequeues {
		log.Printf("[dispatcher] dropping job subscription_id=%s after %d attempts", job.SubscriptionID, job.Attempts)
		if err := w.Consumer.Commit(ctx, m); err != nil {
			log.Printf("[dispatcher] commit err: %v", err)
		}
		return
	}

	job.Attempts++
	payload, err := json.Marshal(job)
	if err != nil {
		log.Printf("[dispatcher] marshal requeue err: %v", err)
		return
	}
	if err := w.Requeue.Publish(ctx, job.SubscriptionID, payload); err != nil {
		log.Printf("[dispatcher] requeue err subscription_id=%s: %v", job.SubscriptionID, err)
		return
	}

	if err := w.Consumer.Commit(ctx, m); err != nil {
		log.Printf("[dispatcher] commit err: %v", err)
	}
}
