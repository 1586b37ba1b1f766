package reward

import (
	"context"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Presigner issues short-lived GET URLs for reward artifacts.
type Presigner interface {
	RewardURL(ctx context.Context, key string) (string, error)
}

// S3Presigner presigns against any S3-compatible object store.
type S3Presigner struct {
	client *minio.Client
	bucket string
	ttl    time.Duration
}

func NewS3Presigner(endpoint, accessKey, secretKey, bucket string, useSSL bool, ttl time.Duration) (*S3Presigner, error) {
	if ttl <= 0 {
		// Long enough for an immediate redirect, short enough to
		// discourage sharing the link.
		ttl = time.Minute
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, err
	}

	return &S3Presigner{client: client, bucket: bucket, ttl: ttl}, nil
}

var _ Presigner = (*S3Presigner)(nil)

func (p *S3Presigner) RewardURL(ctx context.Context, key string) (string, error) {
	u, err := p.client.PresignedGetObject(ctx, p.bucket, key, p.ttl, url.Values{})
	if err != nil {
		return "", err
	}
	return u.String(), nil
}
