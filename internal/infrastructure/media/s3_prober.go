// Package media resolves media object metadata from storage.
package media

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/postpilot/backend/internal/application/publishing"
	"github.com/postpilot/backend/internal/infrastructure/config"
)

// ErrObjectNotFound means the media URL points at nothing in the bucket
var ErrObjectNotFound = errors.New("media: object not found")

// headObjectAPI is the slice of the S3 client the prober needs
type headObjectAPI interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3Prober resolves media sizes with S3 HeadObject calls. Enqueue payloads
// carry media URLs without sizes; the prober fills them in so per-platform
// size limits can be enforced before a slot is reserved.
type S3Prober struct {
	client headObjectAPI
	bucket string
}

// NewS3Prober creates a prober from media configuration
func NewS3Prober(ctx context.Context, cfg *config.MediaConfig) (*S3Prober, error) {
	if cfg.S3Bucket == "" {
		return nil, errors.New("media: s3 bucket is required")
	}

	region := cfg.S3Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("media: failed to create AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Prober{client: client, bucket: cfg.S3Bucket}, nil
}

// NewS3ProberWithClient creates a prober with an existing client, for tests
// or a shared client.
func NewS3ProberWithClient(client headObjectAPI, bucket string) *S3Prober {
	return &S3Prober{client: client, bucket: bucket}
}

// Probe returns the object size in bytes for a media URL
func (p *S3Prober) Probe(ctx context.Context, mediaURL string) (int64, error) {
	key, err := objectKey(mediaURL, p.bucket)
	if err != nil {
		return 0, err
	}

	out, err := p.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if strings.Contains(err.Error(), "NotFound") || strings.Contains(err.Error(), "NoSuchKey") {
			return 0, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return 0, fmt.Errorf("media: head object failed: %w", err)
	}
	if out.ContentLength == nil {
		return 0, fmt.Errorf("media: no content length for %s", key)
	}
	return *out.ContentLength, nil
}

// objectKey extracts the object key from a media URL. Handles both
// virtual-hosted URLs (bucket.s3.region.amazonaws.com/key) and path-style
// URLs (endpoint/bucket/key), where the bucket leads the path.
func objectKey(mediaURL, bucket string) (string, error) {
	u, err := url.Parse(mediaURL)
	if err != nil {
		return "", fmt.Errorf("media: invalid URL %q: %w", mediaURL, err)
	}
	key := strings.TrimPrefix(u.Path, "/")
	key = strings.TrimPrefix(key, bucket+"/")
	if key == "" {
		return "", fmt.Errorf("media: URL %q carries no object key", mediaURL)
	}
	return key, nil
}

var _ publishing.MediaProber = (*S3Prober)(nil)
