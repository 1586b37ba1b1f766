package confirm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jmehdipour/optin-gateway/internal/model"
	"github.com/jmehdipour/optin-gateway/internal/token"
)

type fakeCampaigns struct {
	byID map[string]*model.Campaign
}

func (f *fakeCampaigns) GetByID(ctx context.Context, id string) (*model.Campaign, error) {
	return f.byID[id], nil
}

// fakeSubscriptions mimics the conditional write: the first Confirm for
// an id transitions, later ones do not.
type fakeSubscriptions struct {
	confirmed map[string]time.Time
	events    []string // topics of emitted events
	err       error
}

func (f *fakeSubscriptions) InsertPending(ctx context.Context, s model.Subscription) error {
	return nil
}

func (f *fakeSubscriptions) Delete(ctx context.Context, id string) error { return nil }

func (f *fakeSubscriptions) GetByID(ctx context.Context, id string) (*model.Subscription, error) {
	return nil, nil
}

func (f *fakeSubscriptions) Confirm(ctx context.Context, id string, now time.Time, topic string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if _, ok := f.confirmed[id]; ok {
		return false, nil
	}
	f.confirmed[id] = now
	f.events = append(f.events, topic)
	return true, nil
}

type fakePresigner struct {
	calls int
	err   error
}

func (f *fakePresigner) RewardURL(ctx context.Context, key string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "https://rewards.example.com/" + key + "?sig=abc", nil
}

var secret = []byte("confirm-test-secret")

func newService(subs *fakeSubscriptions, pre *fakePresigner) (*Service, *token.Codec) {
	codec := token.NewCodec(secret, time.Hour)
	camps := &fakeCampaigns{byID: map[string]*model.Campaign{
		"camp1": {ID: "camp1", RewardKey: "rewards/camp1.pdf"},
	}}
	return New(codec, camps, subs, pre, "subscriptions.confirmed"), codec
}

func TestConfirmTransitionsOnce(t *testing.T) {
	subs := &fakeSubscriptions{confirmed: map[string]time.Time{}}
	pre := &fakePresigner{}
	svc, codec := newService(subs, pre)

	raw, err := codec.Mint("sub1", "camp1", "a@b.com")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	url1, err := svc.Confirm(context.Background(), raw)
	if err != nil {
		t.Fatalf("first confirm: %v", err)
	}
	if !strings.Contains(url1, "rewards/camp1.pdf") {
		t.Fatalf("unexpected redirect: %q", url1)
	}
	if _, ok := subs.confirmed["sub1"]; !ok {
		t.Fatal("subscription not confirmed")
	}
	if len(subs.events) != 1 {
		t.Fatalf("events = %d, want 1", len(subs.events))
	}

	// Second call with the same token: success, no new event.
	url2, err := svc.Confirm(context.Background(), raw)
	if err != nil {
		t.Fatalf("second confirm: %v", err)
	}
	if url2 == "" {
		t.Fatal("replay must still redirect")
	}
	if len(subs.events) != 1 {
		t.Fatalf("replay emitted an event: %d", len(subs.events))
	}
	if pre.calls != 2 {
		t.Fatalf("presign calls = %d, want 2", pre.calls)
	}
}

func TestConfirmInvalidToken(t *testing.T) {
	subs := &fakeSubscriptions{confirmed: map[string]time.Time{}}
	svc, codec := newService(subs, &fakePresigner{})

	raw, err := codec.Mint("sub1", "camp1", "a@b.com")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	parts := strings.Split(raw, ".")
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	for _, bad := range []string{"", "garbage", tampered} {
		if _, err := svc.Confirm(context.Background(), bad); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("token %q: want ErrInvalidToken, got %v", bad, err)
		}
	}
	if len(subs.confirmed) != 0 {
		t.Fatal("invalid token must not confirm anything")
	}
}

func TestConfirmExpiredTokenMatchesTamperedError(t *testing.T) {
	subs := &fakeSubscriptions{confirmed: map[string]time.Time{}}
	svc, _ := newService(subs, &fakePresigner{})

	past := time.Now().Add(-48 * time.Hour)
	expiredCodec := token.NewCodec(secret, time.Hour).WithNow(func() time.Time { return past })
	raw, err := expiredCodec.Mint("sub1", "camp1", "a@b.com")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	_, err = svc.Confirm(context.Background(), raw)
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token: want ErrInvalidToken, got %v", err)
	}
}

func TestConfirmCampaignGone(t *testing.T) {
	subs := &fakeSubscriptions{confirmed: map[string]time.Time{}}
	svc, codec := newService(subs, &fakePresigner{})

	raw, err := codec.Mint("sub1", "deleted-camp", "a@b.com")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := svc.Confirm(context.Background(), raw); !errors.Is(err, ErrInvalidCampaign) {
		t.Fatalf("want ErrInvalidCampaign, got %v", err)
	}
	if len(subs.confirmed) != 0 {
		t.Fatal("gone campaign must not confirm")
	}
}

func TestConfirmStoreErrorPropagates(t *testing.T) {
	subs := &fakeSubscriptions{confirmed: map[string]time.Time{}, err: errors.New("db down")}
	pre := &fakePresigner{}
	svc, codec := newService(subs, pre)

	raw, err := codec.Mint("sub1", "camp1", "a@b.com")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	_, err = svc.Confirm(context.Background(), raw)
	if err == nil || errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrInvalidCampaign) {
		t.Fatalf("want transport error, got %v", err)
	}
	if pre.calls != 0 {
		t.Fatal("must not presign when the transition failed")
	}
}
