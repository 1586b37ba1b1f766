package token

import (
	"errors"
	"strings"
	"testing"
	"time"
)

var secret = []byte("test-secret")

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestMintVerifyRoundTrip(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewCodec(secret, 24*time.Hour).WithNow(fixedClock(now))

	raw, err := c.Mint("sub1", "camp1", "a@b.com")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	claims, err := c.Verify(raw)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.SubscriptionID != "sub1" || claims.CampaignID != "camp1" || claims.Email != "a@b.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if !claims.ExpiresAt.Equal(now.Add(24 * time.Hour)) {
		t.Fatalf("unexpected exp: %v", claims.ExpiresAt)
	}
}

func TestVerifyTimeWindow(t *testing.T) {
	minted := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewCodec(secret, time.Hour).WithNow(fixedClock(minted))

	raw, err := c.Mint("sub1", "camp1", "a@b.com")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	cases := []struct {
		name string
		now  time.Time
		ok   bool
	}{
		{"at nbf", minted, true},
		{"inside window", minted.Add(30 * time.Minute), true},
		{"just before exp", minted.Add(time.Hour - time.Second), true},
		{"at exp", minted.Add(time.Hour), false},
		{"after exp", minted.Add(2 * time.Hour), false},
		{"before nbf", minted.Add(-time.Minute), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c.now = fixedClock(tc.now)
			_, err := c.Verify(raw)
			if tc.ok && err != nil {
				t.Fatalf("want accept, got %v", err)
			}
			if !tc.ok && !errors.Is(err, ErrInvalid) {
				t.Fatalf("want ErrInvalid, got %v", err)
			}
		})
	}
}

func TestVerifyFailuresAreUniform(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewCodec(secret, time.Hour).WithNow(fixedClock(now))

	valid, err := c.Mint("sub1", "camp1", "a@b.com")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	// Flip a byte in the signature part.
	parts := strings.Split(valid, ".")
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	// Same token signed with a different key.
	other := NewCodec([]byte("other-secret"), time.Hour).WithNow(fixedClock(now))
	wrongKey, err := other.Mint("sub1", "camp1", "a@b.com")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	expired := func() string {
		late := NewCodec(secret, time.Hour).WithNow(fixedClock(now.Add(-2 * time.Hour)))
		raw, err := late.Mint("sub1", "camp1", "a@b.com")
		if err != nil {
			t.Fatalf("mint: %v", err)
		}
		return raw
	}()

	for name, raw := range map[string]string{
		"empty":     "",
		"garbage":   "not-a-token",
		"tampered":  tampered,
		"wrong key": wrongKey,
		"expired":   expired,
		"two dots":  "a.b",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := c.Verify(raw)
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("want ErrInvalid, got %v", err)
			}
		})
	}
}

func TestVerifyRejectsUnsignedAlg(t *testing.T) {
	// alg=none with a well-formed claims payload.
	header := "eyJhbGciOiJub25lIiwidHlwIjoiSldUIn0" // {"alg":"none","typ":"JWT"}
	body := "eyJzdWJzY3JpcHRpb25faWQiOiJzdWIxIiwiY2FtcGFpZ25faWQiOiJjYW1wMSJ9"
	c := NewCodec(secret, time.Hour)
	if _, err := c.Verify(header + "." + body + "."); !errors.Is(err, ErrInvalid) {
		t.Fatalf("want ErrInvalid, got %v", err)
	}
}
