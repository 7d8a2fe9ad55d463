// Package bucket provisions the submissions bucket and mirrors fallback
// files into it.
package bucket

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	relayerrors "form-relay/internal/common/errors"
	"form-relay/internal/common/logger"
)

// S3Client is the subset of the S3 API used here.
type S3Client interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

var ErrAccessDenied = errors.New("access denied")

type Store struct {
	client S3Client
	bucket string
	region string
	prefix string
	logger logger.Logger
}

func New(client S3Client, bucket, region, prefix string, log logger.Logger) *Store {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Store{
		client: client,
		bucket: bucket,
		region: region,
		prefix: prefix,
		logger: log.WithFields(map[string]interface{}{"bucket": bucket}),
	}
}

func (s *Store) Bucket() string { return s.bucket }

// EnsureBucket creates the bucket unless it already exists. Calling it on an
// existing bucket is a no-op.
func (s *Store) EnsureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		s.logger.Info("Bucket already exists", nil)
		return nil
	}
	if !isNotFound(err) {
		return relayerrors.NewBucketProvisioningError(s.bucket, classify("head bucket", err))
	}

	input := &s3.CreateBucketInput{Bucket: aws.String(s.bucket)}
	// us-east-1 rejects an explicit location constraint
	if s.region != "" && s.region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(s.region),
		}
	}

	if _, err := s.client.CreateBucket(ctx, input); err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &owned) {
			return nil
		}
		return relayerrors.NewBucketProvisioningError(s.bucket, classify("create bucket", err))
	}

	s.logger.Info("Bucket created", map[string]interface{}{"region": s.region})
	return nil
}

// Put stores body under the configured prefix and returns the object key.
func (s *Store) Put(ctx context.Context, name string, body []byte) (string, error) {
	key := s.key(name)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", classify("put object", err)
	}
	return key, nil
}

func (s *Store) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return strings.TrimSuffix(s.prefix, "/") + "/" + name
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var nsb *types.NoSuchBucket
	if errors.As(err, &nsb) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchBucket":
			return true
		}
	}
	return false
}

func classify(operation string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied", "Forbidden":
			return fmt.Errorf("%w: %s", ErrAccessDenied, operation)
		default:
			return fmt.Errorf("%s failed (code: %s): %w", operation, apiErr.ErrorCode(), err)
		}
	}
	return fmt.Errorf("%s failed: %w", operation, err)
}
