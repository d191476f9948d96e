package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	skerrors "github.com/skuflow/skuflow/pkg/errors"
)

// S3Config holds S3 client configuration.
type S3Config struct {
	Bucket string
	Prefix string

	// Region is the AWS region (e.g., "us-east-1")
	Region string

	// Endpoint overrides the default S3 endpoint (for MinIO, LocalStack)
	Endpoint     string
	UsePathStyle bool

	// Credentials (optional - uses default chain if not provided)
	AccessKeyID     string
	SecretAccessKey string

	OperationTimeout time.Duration
}

// S3 keeps blobs in a bucket.
type S3 struct {
	cfg    S3Config
	client *s3.Client
}

// NewS3 creates an S3 blob store.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, skerrors.New(skerrors.CodeConfig, "s3 bucket is required")
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 5 * time.Minute
	}

	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, skerrors.Wrap(err, skerrors.CodeBlob, "failed to load AWS config")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &S3{cfg: cfg, client: client}, nil
}

// Scheme returns "s3".
func (s *S3) Scheme() string {
	return "s3"
}

// Put uploads data under key. Upload files are capped in size, so a single
// PutObject is enough.
func (s *S3) Put(ctx context.Context, key string, data io.Reader) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.OperationTimeout)
	defer cancel()

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.key(key)),
		Body:   data,
	})
	if err != nil {
		return skerrors.Wrap(err, skerrors.CodeBlob, "failed to put object").WithContext("key", s.uri(key))
	}
	return nil
}

// Get returns a reader for the object.
func (s *S3) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.OperationTimeout)

	output, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.key(key)),
	})
	if err != nil {
		cancel()
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, skerrors.FileNotFound(s.uri(key))
		}
		return nil, skerrors.Wrap(err, skerrors.CodeBlob, "failed to get object").WithContext("key", s.uri(key))
	}

	return &cancelOnCloseReader{ReadCloser: output.Body, cancel: cancel}, nil
}

// Delete removes an object.
func (s *S3) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.OperationTimeout)
	defer cancel()

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.key(key)),
	})
	if err != nil {
		return skerrors.Wrap(err, skerrors.CodeBlob, "failed to delete object").WithContext("key", s.uri(key))
	}
	return nil
}

// Exists checks if an object exists.
func (s *S3) Exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.OperationTimeout)
	defer cancel()

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.key(key)),
	})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return false, nil
		}
		return false, skerrors.Wrap(err, skerrors.CodeBlob, "failed to stat object").WithContext("key", s.uri(key))
	}
	return true, nil
}

func (s *S3) key(key string) string {
	if s.cfg.Prefix == "" {
		return key
	}
	return path.Join(s.cfg.Prefix, key)
}

func (s *S3) uri(key string) string {
	return fmt.Sprintf("s3://%s/%s", s.cfg.Bucket, s.key(key))
}

type cancelOnCloseReader struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (r *cancelOnCloseReader) Close() error {
	r.cancel()
	return r.ReadCloser.Close()
}
