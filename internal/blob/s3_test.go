package blob

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3API fails the first failures calls of each method with errs, then
// answers successfully. Call counts let tests assert retry behavior.
type fakeS3API struct {
	failures int
	err      error

	listBucketsCalls int
	headCalls        int
	putCalls         int
	listObjectsCalls int

	headOut *s3.HeadObjectOutput
	headErr error
}

func (f *fakeS3API) transient(calls int) error {
	if calls <= f.failures {
		return f.err
	}

	return nil
}

func (f *fakeS3API) ListBuckets(_ context.Context, _ *s3.ListBucketsInput, _ ...func(*s3.Options)) (*s3.ListBucketsOutput, error) {
	f.listBucketsCalls++
	if err := f.transient(f.listBucketsCalls); err != nil {
		return nil, err
	}

	return &s3.ListBucketsOutput{Buckets: []s3types.Bucket{{Name: aws.String("studio-shared")}}}, nil
}

func (f *fakeS3API) CreateBucket(_ context.Context, _ *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	return &s3.CreateBucketOutput{}, nil
}

func (f *fakeS3API) ListObjectsV2(_ context.Context, _ *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.listObjectsCalls++
	if err := f.transient(f.listObjectsCalls); err != nil {
		return nil, err
	}

	return &s3.ListObjectsV2Output{}, nil
}

func (f *fakeS3API) HeadObject(_ context.Context, _ *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.headCalls++

	if f.headErr != nil {
		return nil, f.headErr
	}

	if err := f.transient(f.headCalls); err != nil {
		return nil, err
	}

	return f.headOut, nil
}

func (f *fakeS3API) PutObject(_ context.Context, _ *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.putCalls++
	if err := f.transient(f.putCalls); err != nil {
		return nil, err
	}

	return &s3.PutObjectOutput{}, nil
}

func newTestS3Client(api s3API) *S3Client {
	return &S3Client{api: api, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func TestProbe_RetriesTransientFailure(t *testing.T) {
	fake := &fakeS3API{failures: 1, err: errors.New("connection reset")}
	c := newTestS3Client(fake)

	err := c.Probe(context.Background(), "studio-shared")
	require.NoError(t, err)
	assert.Equal(t, 2, fake.listObjectsCalls)
}

func TestListContainers_RetriesTransientFailure(t *testing.T) {
	fake := &fakeS3API{failures: 1, err: errors.New("connection reset")}
	c := newTestS3Client(fake)

	containers, err := c.ListContainers(context.Background())
	require.NoError(t, err)
	require.Len(t, containers, 1)
	assert.Equal(t, "studio-shared", containers[0].Name)
	assert.Equal(t, 2, fake.listBucketsCalls)
}

func TestStat_RetriesTransientFailure(t *testing.T) {
	fake := &fakeS3API{
		failures: 1,
		err:      errors.New("connection reset"),
		headOut: &s3.HeadObjectOutput{
			ContentLength: aws.Int64(42),
			Metadata:      map[string]string{"src-mtime": "1700000000"},
		},
	}
	c := newTestS3Client(fake)

	obj, err := c.Stat(context.Background(), "studio-shared", "PodOutput/output/alice/img1.png")
	require.NoError(t, err)
	require.NotNil(t, obj)
	assert.Equal(t, int64(42), obj.Size)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), obj.SourceModTime)
	assert.Equal(t, 2, fake.headCalls)
}

func TestStat_NotFoundIsNotRetried(t *testing.T) {
	fake := &fakeS3API{
		headErr: &smithy.GenericAPIError{Code: "NotFound", Message: "no such key"},
	}
	c := newTestS3Client(fake)

	obj, err := c.Stat(context.Background(), "studio-shared", "PodOutput/missing.png")
	require.NoError(t, err)
	assert.Nil(t, obj)

	// A definitive "not found" answer must come back after one call, not
	// burn through the backoff budget.
	assert.Equal(t, 1, fake.headCalls)
}

func TestPut_FailureIsNotRetried(t *testing.T) {
	// The body reader is one-shot; a failed upload surfaces immediately and
	// the next tick's copy-if-changed pass redoes it.
	fake := &fakeS3API{failures: 1, err: errors.New("connection reset")}
	c := newTestS3Client(fake)

	err := c.Put(context.Background(), "studio-shared", "key", strings.NewReader("data"), 4, time.Now())
	require.Error(t, err)
	assert.Equal(t, 1, fake.putCalls)
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(&s3types.NoSuchKey{}))
	assert.True(t, isNotFound(&smithy.GenericAPIError{Code: "NotFound"}))
	assert.True(t, isNotFound(&smithy.GenericAPIError{Code: "NoSuchKey"}))
	assert.False(t, isNotFound(errors.New("connection reset")))
	assert.False(t, isNotFound(&smithy.GenericAPIError{Code: "AccessDenied"}))
}
