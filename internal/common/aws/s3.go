// internal/common/aws/s3.go
package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"form-relay/internal/common/config"
)

// NewS3Client builds an S3 client for AWS or an S3-compatible endpoint
// (MinIO, Supabase storage).
func NewS3Client(ctx context.Context, cfg config.S3Config) (*s3.Client, error) {
	awsCfg, err := loadConfig(ctx, cfg.Region, Credentials{
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
	})
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	}), nil
}
