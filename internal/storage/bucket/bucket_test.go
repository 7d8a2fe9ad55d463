package bucket

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	relayerrors "form-relay/internal/common/errors"
	"form-relay/internal/common/logger"
)

// ==========================
// Mock S3 Client
// ==========================

type MockS3Client struct {
	mock.Mock
}

func (m *MockS3Client) HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.HeadBucketOutput), args.Error(1)
}

func (m *MockS3Client) CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.CreateBucketOutput), args.Error(1)
}

func (m *MockS3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.PutObjectOutput), args.Error(1)
}

func newStore(t *testing.T, client S3Client, region string) *Store {
	return New(client, "form-submissions", region, "submissions/", logger.NewTestLogger(t))
}

// ==========================
// EnsureBucket
// ==========================

func TestEnsureBucket_Exists(t *testing.T) {
	client := new(MockS3Client)
	client.On("HeadBucket", mock.Anything, mock.MatchedBy(func(in *s3.HeadBucketInput) bool {
		return aws.ToString(in.Bucket) == "form-submissions"
	})).Return(&s3.HeadBucketOutput{}, nil)

	require.NoError(t, newStore(t, client, "eu-central-1").EnsureBucket(context.Background()))
	client.AssertExpectations(t)
	client.AssertNotCalled(t, "CreateBucket", mock.Anything, mock.Anything)
}

func TestEnsureBucket_Creates(t *testing.T) {
	client := new(MockS3Client)
	client.On("HeadBucket", mock.Anything, mock.Anything).
		Return(nil, &types.NotFound{Message: aws.String("not found")})
	client.On("CreateBucket", mock.Anything, mock.MatchedBy(func(in *s3.CreateBucketInput) bool {
		return in.CreateBucketConfiguration != nil &&
			in.CreateBucketConfiguration.LocationConstraint == types.BucketLocationConstraint("eu-central-1")
	})).Return(&s3.CreateBucketOutput{}, nil)

	require.NoError(t, newStore(t, client, "eu-central-1").EnsureBucket(context.Background()))
	client.AssertExpectations(t)
}

func TestEnsureBucket_UsEast1HasNoConstraint(t *testing.T) {
	client := new(MockS3Client)
	client.On("HeadBucket", mock.Anything, mock.Anything).
		Return(nil, &smithy.GenericAPIError{Code: "NotFound"})
	client.On("CreateBucket", mock.Anything, mock.MatchedBy(func(in *s3.CreateBucketInput) bool {
		return in.CreateBucketConfiguration == nil
	})).Return(&s3.CreateBucketOutput{}, nil)

	require.NoError(t, newStore(t, client, "us-east-1").EnsureBucket(context.Background()))
	client.AssertExpectations(t)
}

func TestEnsureBucket_AlreadyOwned(t *testing.T) {
	client := new(MockS3Client)
	client.On("HeadBucket", mock.Anything, mock.Anything).
		Return(nil, &types.NoSuchBucket{})
	client.On("CreateBucket", mock.Anything, mock.Anything).
		Return(nil, &types.BucketAlreadyOwnedByYou{})

	assert.NoError(t, newStore(t, client, "eu-central-1").EnsureBucket(context.Background()))
}

func TestEnsureBucket_Errors(t *testing.T) {
	t.Run("access denied on head", func(t *testing.T) {
		client := new(MockS3Client)
		client.On("HeadBucket", mock.Anything, mock.Anything).
			Return(nil, &smithy.GenericAPIError{Code: "AccessDenied"})

		err := newStore(t, client, "eu-central-1").EnsureBucket(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrAccessDenied)

		stdErr := relayerrors.AsStandardError(err)
		assert.Equal(t, relayerrors.ErrCodeBucketProvisioningFailed, stdErr.Code)
		client.AssertNotCalled(t, "CreateBucket", mock.Anything, mock.Anything)
	})

	t.Run("create fails", func(t *testing.T) {
		client := new(MockS3Client)
		client.On("HeadBucket", mock.Anything, mock.Anything).
			Return(nil, &types.NotFound{})
		client.On("CreateBucket", mock.Anything, mock.Anything).
			Return(nil, errors.New("connection reset"))

		err := newStore(t, client, "eu-central-1").EnsureBucket(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "create bucket failed")
	})
}

// ==========================
// Put
// ==========================

func TestPut(t *testing.T) {
	client := new(MockS3Client)
	client.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		body, _ := io.ReadAll(in.Body)
		return aws.ToString(in.Key) == "submissions/contact-form-1.json" &&
			aws.ToString(in.ContentType) == "application/json" &&
			string(body) == `{"a":1}`
	})).Return(&s3.PutObjectOutput{}, nil)

	key, err := newStore(t, client, "eu-central-1").Put(context.Background(), "contact-form-1.json", []byte(`{"a":1}`))
	require.NoError(t, err)
	assert.Equal(t, "submissions/contact-form-1.json", key)
	client.AssertExpectations(t)
}

func TestPut_NoPrefix(t *testing.T) {
	client := new(MockS3Client)
	client.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		return aws.ToString(in.Key) == "x.json"
	})).Return(&s3.PutObjectOutput{}, nil)

	_, err := New(client, "b", "eu-central-1", "", nil).Put(context.Background(), "x.json", nil)
	require.NoError(t, err)
}
