package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/sethvargo/go-retry"

	"github.com/studioops/podmirror/internal/secrets"
)

// Retry parameters for transient remote failures. Bounded tightly — the
// replication loop itself retries every tick, so per-call retries only need
// to absorb short blips.
const (
	retryBaseDelay  = 500 * time.Millisecond
	retryMaxAttempt = 3
)

// defaultRegion is used when the bundle does not name one. S3-compatible
// endpoints generally accept any region string but the SDK requires one.
const defaultRegion = "us-east-1"

// s3API is the slice of the SDK client this package calls. Narrowed to an
// interface so tests can substitute a fake.
type s3API interface {
	ListBuckets(ctx context.Context, params *s3.ListBucketsInput, optFns ...func(*s3.Options)) (*s3.ListBucketsOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Client implements Client against S3-compatible storage.
type S3Client struct {
	api    s3API
	logger *slog.Logger
}

// NewS3Client builds a client from a credential bundle. The bundle's
// endpoint override supports MinIO-style gateways as well as AWS proper.
func NewS3Client(ctx context.Context, b *secrets.Bundle, logger *slog.Logger) (*S3Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	region := b.Region
	if region == "" {
		region = defaultRegion
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			b.KeyID,
			b.Secret,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("blob: loading aws config: %w", err)
	}

	api := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if b.Endpoint != "" {
			o.BaseEndpoint = aws.String(b.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Client{api: api, logger: logger}, nil
}

// ListContainers returns all buckets visible to the credential, sorted by
// name so selection downstream is deterministic regardless of API order.
func (c *S3Client) ListContainers(ctx context.Context) ([]Container, error) {
	var out *s3.ListBucketsOutput

	err := c.withRetry(ctx, "list containers", func(ctx context.Context) error {
		var err error
		out, err = c.api.ListBuckets(ctx, &s3.ListBucketsInput{})

		return err
	})
	if err != nil {
		return nil, fmt.Errorf("blob: listing containers: %w", err)
	}

	containers := make([]Container, 0, len(out.Buckets))

	for _, b := range out.Buckets {
		container := Container{Name: aws.ToString(b.Name)}
		if b.CreationDate != nil {
			container.CreatedAt = *b.CreationDate
		}

		containers = append(containers, container)
	}

	sort.Slice(containers, func(i, j int) bool { return containers[i].Name < containers[j].Name })

	return containers, nil
}

// EnsureContainer creates the bucket, tolerating "already exists" answers.
func (c *S3Client) EnsureContainer(ctx context.Context, name string) error {
	_, err := c.api.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(name)})
	if err != nil {
		var owned *s3types.BucketAlreadyOwnedByYou
		var exists *s3types.BucketAlreadyExists

		if errors.As(err, &owned) || errors.As(err, &exists) {
			return nil
		}

		return fmt.Errorf("blob: creating container %s: %w", name, err)
	}

	return nil
}

// Probe lists at most one key from the container root. Cheapest
// authenticated call that still exercises both credentials and the
// container binding.
func (c *S3Client) Probe(ctx context.Context, container string) error {
	err := c.withRetry(ctx, "probe", func(ctx context.Context) error {
		_, err := c.api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:  aws.String(container),
			MaxKeys: aws.Int32(1),
		})

		return err
	})
	if err != nil {
		return fmt.Errorf("blob: probing container %s: %w", container, err)
	}

	return nil
}

// EnsurePrefix writes a zero-byte directory marker under the prefix.
func (c *S3Client) EnsurePrefix(ctx context.Context, container, prefix string) error {
	key := prefix
	if key == "" {
		return nil
	}

	if key[len(key)-1] != '/' {
		key += "/"
	}

	err := c.withRetry(ctx, "ensure prefix", func(ctx context.Context) error {
		_, err := c.api.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(container),
			Key:           aws.String(key),
			Body:          nil,
			ContentLength: aws.Int64(0),
		})

		return err
	})
	if err != nil {
		return fmt.Errorf("blob: ensuring prefix %s/%s: %w", container, prefix, err)
	}

	return nil
}

// Stat returns object metadata, or (nil, nil) when the key does not exist.
// "Not found" is a successful answer, never retried.
func (c *S3Client) Stat(ctx context.Context, container, key string) (*Object, error) {
	var out *s3.HeadObjectOutput

	err := c.withRetry(ctx, "stat", func(ctx context.Context) error {
		var err error
		out, err = c.api.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(container),
			Key:    aws.String(key),
		})

		if err != nil && isNotFound(err) {
			out = nil

			return nil
		}

		return err
	})
	if err != nil {
		return nil, fmt.Errorf("blob: stat %s/%s: %w", container, key, err)
	}

	if out == nil {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	obj := &Object{Key: key, Size: aws.ToInt64(out.ContentLength)}

	if raw, ok := out.Metadata[sourceModTimeKey]; ok {
		if unix, parseErr := strconv.ParseInt(raw, 10, 64); parseErr == nil {
			obj.SourceModTime = time.Unix(unix, 0).UTC()
		}
	}

	return obj, nil
}

// Put uploads the object with the source mtime recorded as metadata.
// Overwrite-on-put is what makes repeated replication safe: re-running a
// copy can only refresh the remote object, never remove it.
//
// No per-call retry: the body is a one-shot rate-limited stream that cannot
// be rewound after a partial send. A failed upload is redone by the next
// tick's copy-if-changed pass instead.
func (c *S3Client) Put(ctx context.Context, container, key string, r io.Reader, size int64, srcModTime time.Time) error {
	_, err := c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(container),
		Key:           aws.String(key),
		Body:          r,
		ContentLength: aws.Int64(size),
		Metadata: map[string]string{
			sourceModTimeKey: strconv.FormatInt(srcModTime.UTC().Unix(), 10),
		},
	})
	if err != nil {
		return fmt.Errorf("blob: putting %s/%s: %w", container, key, err)
	}

	return nil
}

// List returns the objects under the given key prefix.
func (c *S3Client) List(ctx context.Context, container, prefix string) ([]Object, error) {
	var objects []Object

	paginator := s3.NewListObjectsV2Paginator(c.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(container),
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		var page *s3.ListObjectsV2Output

		err := c.withRetry(ctx, "list objects", func(ctx context.Context) error {
			var err error
			page, err = paginator.NextPage(ctx)

			return err
		})
		if err != nil {
			return nil, fmt.Errorf("blob: listing %s/%s: %w", container, prefix, err)
		}

		for _, o := range page.Contents {
			objects = append(objects, Object{
				Key:  aws.ToString(o.Key),
				Size: aws.ToInt64(o.Size),
			})
		}
	}

	return objects, nil
}

// withRetry runs op under fibonacci backoff for a handful of attempts.
// Context cancellation aborts immediately.
func (c *S3Client) withRetry(ctx context.Context, name string, op func(context.Context) error) error {
	backoff := retry.WithMaxRetries(retryMaxAttempt, retry.NewFibonacci(retryBaseDelay))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := op(ctx)
		if err == nil || ctx.Err() != nil {
			return err
		}

		c.logger.Warn("remote operation failed, retrying",
			slog.String("op", name),
			slog.String("error", err.Error()),
		)

		return retry.RetryableError(err)
	})
}

// isNotFound reports whether err is an S3 "no such object" answer. HeadObject
// surfaces 404s as a generic API error with code NotFound rather than a
// typed NoSuchKey.
func isNotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()

		return code == "NotFound" || code == "NoSuchKey"
	}

	return false
}
