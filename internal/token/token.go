package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalid is returned for every verification failure: bad signature,
// wrong algorithm, malformed input, expired or not-yet-valid token. The
// caller must not be able to tell which check failed.
var ErrInvalid = errors.New("invalid confirmation token")

// Claims is the self-contained capability carried in a confirmation link.
type Claims struct {
	SubscriptionID string
	CampaignID     string
	Email          string
	IssuedAt       time.Time
	NotBefore      time.Time
	ExpiresAt      time.Time
}

type confirmationClaims struct {
	jwt.RegisteredClaims
	SubscriptionID string `json:"subscription_id"`
	CampaignID     string `json:"campaign_id"`
	Email          string `json:"email"`
}

// Codec mints and verifies HS256 confirmation tokens with a symmetric
// secret shared between the dispatcher and the verifier.
type Codec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewCodec(secret []byte, ttl time.Duration) *Codec {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Codec{secret: secret, ttl: ttl, now: time.Now}
}

// WithNow overrides the clock; test hook.
func (c *Codec) WithNow(now func() time.Time) *Codec {
	c.now = now
	return c
}

// Mint signs a token valid from now until now+ttl.
func (c *Codec) Mint(subscriptionID, campaignID, email string) (string, error) {
	now := c.now().UTC()
	claims := confirmationClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
		SubscriptionID: subscriptionID,
		CampaignID:     campaignID,
		Email:          email,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// Verify checks signature, algorithm and the [nbf, exp) window. Any
// failure collapses to ErrInvalid.
func (c *Codec) Verify(raw string) (Claims, error) {
	if raw == "" {
		return Claims{}, ErrInvalid
	}

	var parsed confirmationClaims
	_, err := jwt.ParseWithClaims(raw, &parsed, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return Claims{}, ErrInvalid
	}

	if parsed.SubscriptionID == "" || parsed.CampaignID == "" {
		return Claims{}, ErrInvalid
	}
	if parsed.ExpiresAt == nil {
		return Claims{}, ErrInvalid
	}

	now := c.now().UTC()
	if !now.Before(parsed.ExpiresAt.Time.UTC()) {
		return Claims{}, ErrInvalid
	}
	if parsed.NotBefore != nil && now.Before(parsed.NotBefore.Time.UTC()) {
		return Claims{}, ErrInvalid
	}

	out := Claims{
		SubscriptionID: parsed.SubscriptionID,
		CampaignID:     parsed.CampaignID,
		Email:          parsed.Email,
		ExpiresAt:      parsed.ExpiresAt.Time.UTC(),
	}
	if parsed.IssuedAt != nil {
		out.IssuedAt = parsed.IssuedAt.Time.UTC()
	}
	if parsed.NotBefore != nil {
		out.NotBefore = parsed.NotBefore.Time.UTC()
	}
	return out, nil
}
