package refreshtokens

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// DefaultS3Key is the object holding the aggregate when no key is configured.
const DefaultS3Key = "auth/refresh_store.json"

const s3MaxRetries = 16

// ObjectAPI is the subset of *s3.Client used by S3Backend.
type ObjectAPI interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Config describes an S3 or S3-compatible endpoint.
type S3Config struct {
	Region       string
	BaseEndpoint string
	AccessKey    string
	SecretKey    string
}

// S3Backend keeps the aggregate in one object and publishes updates with
// conditional writes: If-Match on the ETag that was read, or If-None-Match
// for the first write. A lost race is retried on fresh data. A process-local
// mutex avoids needless conflicts between goroutines.
type S3Backend struct {
	client ObjectAPI
	bucket string
	key    string
	mu     sync.Mutex
}

var _ Backend = (*S3Backend)(nil)

// NewS3Client builds a path-style client with static credentials.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.BaseEndpoint)
		}
		o.UsePathStyle = true
	}), nil
}

func NewS3Backend(client ObjectAPI, bucket, key string) *S3Backend {
	if key == "" {
		key = DefaultS3Key
	}
	return &S3Backend{client: client, bucket: bucket, key: key}
}

func (b *S3Backend) Name() string { return "s3" }

func (b *S3Backend) Read(ctx context.Context) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, _, err := b.get(ctx)
	return data, err
}

func (b *S3Backend) Write(ctx context.Context, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.put(ctx, b.key, data, nil, nil)
}

func (b *S3Backend) Update(ctx context.Context, fn func(current []byte) ([]byte, error)) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for attempt := 0; attempt < s3MaxRetries; attempt++ {
		current, etag, err := b.get(ctx)
		if err != nil {
			return err
		}
		next, err := fn(current)
		if err != nil || next == nil {
			return err
		}

		var ifMatch, ifNoneMatch *string
		if etag != nil {
			ifMatch = etag
		} else {
			ifNoneMatch = aws.String("*")
		}

		err = b.put(ctx, b.key, next, ifMatch, ifNoneMatch)
		if !isPreconditionFailed(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 5 * time.Millisecond):
		}
	}
	return ErrConflict
}

func (b *S3Backend) Preserve(ctx context.Context, data []byte) (string, error) {
	key := fmt.Sprintf("%s.corrupt-%d", b.key, time.Now().UnixNano())
	if err := b.put(ctx, key, data, nil, nil); err != nil {
		return "", err
	}
	return key, nil
}

func (b *S3Backend) Ping(ctx context.Context) error {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(b.bucket)})
	return err
}

// get returns the object body and ETag; a missing object yields (nil, nil, nil).
func (b *S3Backend) get(ctx context.Context) ([]byte, *string, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key),
	})
	if isNotFound(err) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("s3 get %s/%s: %w", b.bucket, b.key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("s3 read %s/%s: %w", b.bucket, b.key, err)
	}
	return data, out.ETag, nil
}

func (b *S3Backend) put(ctx context.Context, key string, data []byte, ifMatch, ifNoneMatch *string) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
		IfMatch:     ifMatch,
		IfNoneMatch: ifNoneMatch,
	})
	if err != nil {
		return fmt.Errorf("s3 put %s/%s: %w", b.bucket, key, err)
	}
	return nil
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && (apiErr.ErrorCode() == "NoSuchKey" || apiErr.ErrorCode() == "NotFound")
}

func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "PreconditionFailed", "ConditionalRequestConflict":
		return true
	default:
		return false
	}
}
