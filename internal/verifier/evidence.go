package verifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/totalaud/contact-safety/internal/hashcrypto"
)

// Evidence is a snapshot of a page that verified at least one address.
type Evidence struct {
	SourceURL string
	Body      string
	FetchedAt time.Time
}

// Key is the object key an evidence snapshot is stored under:
// evidence/<sha256(url)>/<RFC3339 timestamp>.html
func (e Evidence) Key(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = "evidence"
	}
	return fmt.Sprintf("%s/%s/%s.html", prefix, hashcrypto.Hash(e.SourceURL), e.FetchedAt.UTC().Format("20060102T150405Z"))
}

// EvidenceStore archives verified pages for later audit.
type EvidenceStore interface {
	Put(ctx context.Context, e Evidence) error
}

// S3PutObjectAPI is the subset of the S3 client the evidence store uses.
type S3PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3EvidenceStore writes evidence snapshots to an S3 bucket.
type S3EvidenceStore struct {
	client S3PutObjectAPI
	bucket string
	prefix string
}

// NewS3EvidenceStore wraps an existing S3 client.
func NewS3EvidenceStore(client S3PutObjectAPI, bucket, prefix string) *S3EvidenceStore {
	return &S3EvidenceStore{client: client, bucket: bucket, prefix: prefix}
}

// NewS3EvidenceStoreFromEnv loads the default AWS credential chain for region.
func NewS3EvidenceStoreFromEnv(ctx context.Context, region, bucket, prefix string) (*S3EvidenceStore, *s3.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, nil, fmt.Errorf("loading AWS config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return NewS3EvidenceStore(client, bucket, prefix), client, nil
}

// Put uploads one snapshot. The object carries the source URL as metadata.
func (s *S3EvidenceStore) Put(ctx context.Context, e Evidence) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(e.Key(s.prefix)),
		Body:        strings.NewReader(e.Body),
		ContentType: aws.String("text/html; charset=utf-8"),
		Metadata: map[string]string{
			"source-url": e.SourceURL,
			"fetched-at": e.FetchedAt.UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return fmt.Errorf("putting evidence to S3: %w", err)
	}
	return nil
}
