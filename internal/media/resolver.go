// Package media turns stored image references into URLs a client can fetch.
package media

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var (
	// ErrNoImage is returned for an empty reference.
	ErrNoImage = errors.New("no image reference")
	// ErrSigningDisabled is returned when a signed URL is requested without a bucket.
	ErrSigningDisabled = errors.New("signed media urls are not configured")
)

// DefaultTTL is how long a presigned URL stays valid when none is configured.
const DefaultTTL = 15 * time.Minute

// Presigner is the subset of s3.PresignClient used to sign GET requests.
type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Resolver builds URLs for analysis images.
type Resolver struct {
	publicBase string
	bucket     string
	ttl        time.Duration
	presigner  Presigner
}

// NewResolver returns a resolver. presigner may be nil, in which case only public URLs
// are produced.
func NewResolver(publicBase, bucket string, ttl time.Duration, presigner Presigner) *Resolver {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Resolver{
		publicBase: strings.TrimRight(publicBase, "/"),
		bucket:     bucket,
		ttl:        ttl,
		presigner:  presigner,
	}
}

// NewS3Resolver loads the default AWS configuration for region and signs against bucket.
// An empty bucket disables signing.
func NewS3Resolver(ctx context.Context, region, bucket, publicBase string, ttl time.Duration) (*Resolver, error) {
	if bucket == "" {
		return NewResolver(publicBase, "", ttl, nil), nil
	}
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return NewResolver(publicBase, bucket, ttl, s3.NewPresignClient(client)), nil
}

// URL resolves ref. References that are already absolute http(s) URLs are returned as is.
// Otherwise a signed request yields a presigned GET for the object key and an unsigned
// one joins the key onto the public base URL.
func (r *Resolver) URL(ctx context.Context, ref string, signed bool) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", ErrNoImage
	}
	if u, err := url.Parse(ref); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return ref, nil
	}
	key := strings.TrimLeft(ref, "/")

	if !signed {
		if r.publicBase == "" {
			return "", fmt.Errorf("no public media base url for %q", key)
		}
		return r.publicBase + "/" + escapeKey(key), nil
	}

	if r.presigner == nil || r.bucket == "" {
		return "", ErrSigningDisabled
	}
	req, err := r.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(r.ttl))
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return req.URL, nil
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
