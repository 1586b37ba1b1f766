package worker

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/jmehdipour/optin-gateway/internal/kafka"
	"github.com/jmehdipour/optin-gateway/internal/mailer"
	"github.com/jmehdipour/optin-gateway/internal/model"
	"github.com/jmehdipour/optin-gateway/internal/token"
)

type fakeSource struct {
	committed []kafka.Message
}

func (f *fakeSource) Fetch(ctx context.Context) (kafka.Message, error) {
	return kafka.Message{}, context.Canceled
}

func (f *fakeSource) Commit(ctx context.Context, m kafka.Message) error {
	f.committed = append(f.committed, m)
	return nil
}

type fakeReader struct {
	subs map[string]*model.Subscription
	err  error
}

func (f *fakeReader) GetByID(ctx context.Context, id string) (*model.Subscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.subs[id], nil
}

type fakeSender struct {
	sent []mailer.Email
	err  error
}

func (f *fakeSender) Send(ctx context.Context, e mailer.Email) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, e)
	return nil
}

type fakeRequeuer struct {
	published [][]byte
	err       error
}

func (f *fakeRequeuer) Publish(ctx context.Context, key string, value []byte) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, value)
	return nil
}

func jobMessage(t *testing.T, job model.ConfirmationJob) kafka.Message {
	t.Helper()
	b, err := json.Marshal(job)
	if err != nil {
		t.Fatalf("marshal job: %v", err)
	}
	return kafka.Message{Value: b}
}

func pendingSub(id string) *model.Subscription {
	return &model.Subscription{ID: id, CampaignID: "camp1", Email: "a@b.com", Status: model.StatusPending}
}

func newDispatcher(src *fakeSource, rd *fakeReader, snd *fakeSender, rq *fakeRequeuer) (*Dispatcher, *token.Codec) {
	codec := token.NewCodec([]byte("worker-test-secret"), time.Hour)
	d := NewDispatcher(src, rd, codec, snd, rq,
		"https://optin.example.com/v1/confirm", "Please confirm your subscription")
	return d, codec
}

func TestProcessOneSendsEmailWithValidToken(t *testing.T) {
	src := &fakeSource{}
	rd := &fakeReader{subs: map[string]*model.Subscription{"sub1": pendingSub("sub1")}}
	snd := &fakeSender{}
	d, codec := newDispatcher(src, rd, snd, &fakeRequeuer{})

	m := jobMessage(t, model.ConfirmationJob{SubscriptionID: "sub1", CampaignID: "camp1", Email: "a@b.com"})
	d.processOne(context.Background(), m)

	if len(snd.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(snd.sent))
	}
	e := snd.sent[0]
	if e.To != "a@b.com" || e.Subject != "Please confirm your subscription" {
		t.Fatalf("unexpected email: %+v", e)
	}
	if !strings.Contains(e.Text, "https://optin.example.com/v1/confirm?token=") {
		t.Fatalf("text body missing confirmation url: %q", e.Text)
	}
	if !strings.Contains(e.HTML, "<a href=") {
		t.Fatalf("html body missing link: %q", e.HTML)
	}

	// The embedded token must verify and carry the job's identity.
	i := strings.Index(e.Text, "token=")
	rawTok, err := url.QueryUnescape(e.Text[i+len("token="):])
	if err != nil {
		t.Fatalf("unescape token: %v", err)
	}
	claims, err := codec.Verify(rawTok)
	if err != nil {
		t.Fatalf("verify minted token: %v", err)
	}
	if claims.SubscriptionID != "sub1" || claims.CampaignID != "camp1" || claims.Email != "a@b.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	if len(src.committed) != 1 {
		t.Fatalf("committed = %d, want 1", len(src.committed))
	}
}

func TestProcessOneSkipsConfirmedSubscription(t *testing.T) {
	confirmed := pendingSub("sub1")
	confirmed.Status = model.StatusConfirmed

	src := &fakeSource{}
	snd := &fakeSender{}
	d, _ := newDispatcher(src, &fakeReader{subs: map[string]*model.Subscription{"sub1": confirmed}}, snd, &fakeRequeuer{})

	m := jobMessage(t, model.ConfirmationJob{SubscriptionID: "sub1", CampaignID: "camp1", Email: "a@b.com"})
	d.processOne(context.Background(), m)

	if len(snd.sent) != 0 {
		t.Fatal("must not email an already-confirmed subscription")
	}
	if len(src.committed) != 1 {
		t.Fatal("duplicate delivery must still be acknowledged")
	}
}

func TestProcessOneDuplicateDeliveryResends(t *testing.T) {
	src := &fakeSource{}
	rd := &fakeReader{subs: map[string]*model.Subscription{"sub1": pendingSub("sub1")}}
	snd := &fakeSender{}
	d, _ := newDispatcher(src, rd, snd, &fakeRequeuer{})

	m := jobMessage(t, model.ConfirmationJob{SubscriptionID: "sub1", CampaignID: "camp1", Email: "a@b.com"})
	d.processOne(context.Background(), m)
	d.processOne(context.Background(), m)

	// Still pending, so the duplicate re-sends; both are acknowledged.
	if len(snd.sent) != 2 {
		t.Fatalf("sent = %d, want 2", len(snd.sent))
	}
	if len(src.committed) != 2 {
		t.Fatalf("committed = %d, want 2", len(src.committed))
	}
}

func TestProcessOnePoisonMessageIsDropped(t *testing.T) {
	src := &fakeSource{}
	snd := &fakeSender{}
	d, _ := newDispatcher(src, &fakeReader{subs: map[string]*model.Subscription{}}, snd, &fakeRequeuer{})

	d.processOne(context.Background(), kafka.Message{Value: []byte("{not json")})
	d.processOne(context.Background(), kafka.Message{Value: []byte(`{"campaign_id":"camp1"}`)})

	if len(snd.sent) != 0 {
		t.Fatal("poison messages must not send")
	}
	if len(src.committed) != 2 {
		t.Fatalf("poison messages must be acknowledged, committed = %d", len(src.committed))
	}
}

// A failed send may not simply stay uncommitted: concurrent commits of
// neighboring offsets advance the partition watermark past it and the
// job would be lost. It must come back via an explicit re-publish.
func TestProcessOneSendFailureRequeuesAndCommits(t *testing.T) {
	src := &fakeSource{}
	rd := &fakeReader{subs: map[string]*model.Subscription{"sub1": pendingSub("sub1")}}
	snd := &fakeSender{err: errors.New("smtp down")}
	rq := &fakeRequeuer{}
	d, _ := newDispatcher(src, rd, snd, rq)

	m := jobMessage(t, model.ConfirmationJob{SubscriptionID: "sub1", CampaignID: "camp1", Email: "a@b.com"})
	d.processOne(context.Background(), m)

	if len(rq.published) != 1 {
		t.Fatalf("requeued = %d, want 1", len(rq.published))
	}
	var requeued model.ConfirmationJob
	if err := json.Unmarshal(rq.published[0], &requeued); err != nil {
		t.Fatalf("unmarshal requeued job: %v", err)
	}
	if requeued.SubscriptionID != "sub1" || requeued.Attempts != 1 {
		t.Fatalf("unexpected requeued job: %+v", requeued)
	}
	if len(src.committed) != 1 {
		t.Fatal("original delivery must be committed once the retry is on the topic")
	}
}

func TestProcessOneLookupFailureRequeuesAndCommits(t *testing.T) {
	src := &fakeSource{}
	snd := &fakeSender{}
	rq := &fakeRequeuer{}
	d, _ := newDispatcher(src, &fakeReader{err: errors.New("db down")}, snd, rq)

	m := jobMessage(t, model.ConfirmationJob{SubscriptionID: "sub1", CampaignID: "camp1", Email: "a@b.com"})
	d.processOne(context.Background(), m)

	if len(snd.sent) != 0 {
		t.Fatal("transient lookup failure must not send")
	}
	if len(rq.published) != 1 || len(src.committed) != 1 {
		t.Fatalf("requeued = %d, committed = %d, want 1 and 1", len(rq.published), len(src.committed))
	}
}

func TestProcessOneRequeueFailureLeavesJobUncommitted(t *testing.T) {
	src := &fakeSource{}
	rd := &fakeReader{subs: map[string]*model.Subscription{"sub1": pendingSub("sub1")}}
	snd := &fakeSender{err: errors.New("smtp down")}
	rq := &fakeRequeuer{err: errors.New("broker down")}
	d, _ := newDispatcher(src, rd, snd, rq)

	m := jobMessage(t, model.ConfirmationJob{SubscriptionID: "sub1", CampaignID: "camp1", Email: "a@b.com"})
	d.processOne(context.Background(), m)

	if len(src.committed) != 0 {
		t.Fatal("must not commit when the retry could not be re-published")
	}
}

func TestProcessOneDropsJobOutOfAttempts(t *testing.T) {
	src := &fakeSource{}
	rd := &fakeReader{subs: map[string]*model.Subscription{"sub1": pendingSub("sub1")}}
	snd := &fakeSender{err: errors.New("smtp down")}
	rq := &fakeRequeuer{}
	d, _ := newDispatcher(src, rd, snd, rq)

	m := jobMessage(t, model.ConfirmationJob{
		SubscriptionID: "sub1", CampaignID: "camp1", Email: "a@b.com",
		Attempts: d.MaxRequeues,
	})
	d.processOne(context.Background(), m)

	if len(rq.published) != 0 {
		t.Fatal("exhausted job must not be requeued again")
	}
	if len(src.committed) != 1 {
		t.Fatal("exhausted job must still be acknowledged")
	}
}

// feedSource hands out messages until the context is cancelled; used to
// exercise Run's shutdown path.
type feedSource struct {
	committed int
}

func (f *feedSource) Fetch(ctx context.Context) (kafka.Message, error) {
	if err := ctx.Err(); err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{Value: []byte(`{"subscription_id":"sub1","campaign_id":"camp1","email":"a@b.com"}`)}, nil
}

func (f *feedSource) Commit(ctx context.Context, m kafka.Message) error {
	f.committed++
	return nil
}

func TestRunStopsWhenContextCancelled(t *testing.T) {
	src := &feedSource{}
	rd := &fakeReader{subs: map[string]*model.Subscription{"sub1": pendingSub("sub1")}}
	codec := token.NewCodec([]byte("worker-test-secret"), time.Hour)
	d := NewDispatcher(src, rd, codec, &fakeSender{}, &fakeRequeuer{},
		"https://optin.example.com/v1/confirm", "Please confirm your subscription")
	d.Workers = 1

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		_ = d.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
