// Package s3 implements objectstore.Store for AWS S3 and S3-compatible
// storage.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/seqora/exportd/pkg/objectstore"
)

// DefaultMaxKeys is the listing page size when none is configured.
const DefaultMaxKeys = 1000

// Config configures an S3-backed store.
type Config struct {
	Bucket string

	// Region, Profile, Endpoint follow the SDK default credential chain
	// resolution; all are optional.
	Region  string
	Profile string

	// Endpoint targets S3-compatible stores. When set, path-style addressing
	// is usually required.
	Endpoint       string
	ForcePathStyle bool

	// AccessKeyID/SecretAccessKey override the default chain when both set.
	AccessKeyID     string
	SecretAccessKey string

	MaxKeys int
}

// Validate checks required fields.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Bucket) == "" {
		return errors.New("s3 bucket is required")
	}
	return nil
}

// Store implements objectstore.Store over an S3 bucket.
type Store struct {
	client  *s3.Client
	bucket  string
	maxKeys int
}

var _ objectstore.Store = (*Store)(nil)

// New creates an S3 store using the SDK default credential chain unless
// explicit credentials are provided.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, &objectstore.StoreError{Op: "New", Bucket: cfg.Bucket, Err: err}
	}

	s3Opts := []func(*s3.Options){
		func(o *s3.Options) {
			if cfg.ForcePathStyle {
				o.UsePathStyle = true
			}
		},
	}
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	maxKeys := cfg.MaxKeys
	if maxKeys <= 0 {
		maxKeys = DefaultMaxKeys
	}

	return &Store{
		client:  s3.NewFromConfig(awsCfg, s3Opts...),
		bucket:  cfg.Bucket,
		maxKeys: maxKeys,
	}, nil
}

// List returns all objects under prefix, following continuation tokens.
func (s *Store) List(ctx context.Context, prefix string) ([]objectstore.Object, error) {
	var out []objectstore.Object
	var token *string

	for {
		input := &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			MaxKeys:           aws.Int32(int32(s.maxKeys)),
			ContinuationToken: token,
		}
		if prefix != "" {
			input.Prefix = aws.String(prefix)
		}

		page, err := s.client.ListObjectsV2(ctx, input)
		if err != nil {
			return nil, s.wrapError("List", prefix, err)
		}

		for _, obj := range page.Contents {
			out = append(out, objectstore.Object{
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				ETag:         strings.Trim(aws.ToString(obj.ETag), `"`),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}

		if !aws.ToBool(page.IsTruncated) || page.NextContinuationToken == nil {
			return out, nil
		}
		token = page.NextContinuationToken
	}
}

// Get reads an object's full body.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, s.wrapError("Get", key, err)
	}
	defer func() { _ = out.Body.Close() }()

	b, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, s.wrapError("Get", key, err)
	}
	return b, nil
}

// Put writes an object. S3 object replacement is atomic per key.
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return s.wrapError("Put", key, err)
	}
	return nil
}

// Download writes an object's body to localPath, creating parent directories.
func (s *Store) Download(ctx context.Context, key, localPath string) error {
	b, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(localPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create download dir: %w", err)
		}
	}
	return os.WriteFile(localPath, b, 0644)
}

// Upload stores the file at localPath under key.
func (s *Store) Upload(ctx context.Context, key, localPath string) error {
	b, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("read upload source: %w", err)
	}
	return s.Put(ctx, key, b)
}

// IsEmpty reports whether the object at key is missing or zero bytes.
func (s *Store) IsEmpty(ctx context.Context, key string) (bool, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		wrapped := s.wrapError("IsEmpty", key, err)
		if objectstore.IsNotFound(wrapped) {
			return true, nil
		}
		return false, wrapped
	}
	return aws.ToInt64(out.ContentLength) == 0, nil
}

// Close satisfies objectstore.Store; the S3 client needs no cleanup.
func (s *Store) Close() error {
	return nil
}

// wrapError converts S3 errors into objectstore sentinel errors.
func (s *Store) wrapError(op, key string, err error) error {
	wrapped := &objectstore.StoreError{Op: op, Bucket: s.bucket, Key: key, Err: err}

	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	var noSuchBucket *types.NoSuchBucket
	switch {
	case errors.As(err, &notFound), errors.As(err, &noSuchKey):
		wrapped.Err = objectstore.ErrNotFound
		return wrapped
	case errors.As(err, &noSuchBucket):
		wrapped.Err = objectstore.ErrBucketNotFound
		return wrapped
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			wrapped.Err = objectstore.ErrNotFound
		case "NoSuchBucket":
			wrapped.Err = objectstore.ErrBucketNotFound
		case "AccessDenied", "Forbidden":
			wrapped.Err = objectstore.ErrAccessDenied
		case "SlowDown", "Throttling", "RequestLimitExceeded":
			wrapped.Err = objectstore.ErrThrottled
		case "ServiceUnavailable", "InternalError":
			wrapped.Err = objectstore.ErrUnavailable
		}
	}

	return wrapped
}
