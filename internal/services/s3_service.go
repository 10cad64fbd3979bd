package services

import (
	"bytes"
	"context"
	"fmt"

	"github.com/artcatalog/backend/internal/config"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go/logging"
	"github.com/rs/zerolog/log"
)

// S3Service mirrors the media tree into a bucket. Keys match the paths below
// the media root, e.g. artworks/A0001/A0001_front.jpg.
type S3Service struct {
	client *s3.Client
	bucket string
}

// NewS3Service returns nil without error when no mirror bucket is configured.
func NewS3Service(ctx context.Context, cfg *config.Config) (*S3Service, error) {
	if cfg.MediaS3Bucket == "" {
		return nil, nil
	}
	client, err := buildClient(ctx, cfg.MediaS3Endpoint, cfg.MediaS3Region, cfg.MediaS3AccessKeyID, cfg.MediaS3SecretAccessKey, cfg.MediaS3UsePathStyle)
	if err != nil {
		return nil, fmt.Errorf("failed to build S3 client: %w", err)
	}
	return &S3Service{client: client, bucket: cfg.MediaS3Bucket}, nil
}

func buildClient(ctx context.Context, endpoint, region, key, secret string, pathStyle bool) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
		awsconfig.WithLogger(logging.LoggerFunc(func(classification logging.Classification, format string, v ...interface{}) {
			if classification == logging.Warn {
				log.Warn().Str("component", "s3").Msgf(format, v...)
				return
			}
			log.Debug().Str("component", "s3").Msgf(format, v...)
		})),
	}
	if key != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(key, secret, "")))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = pathStyle
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return client, nil
}

// Put uploads data under key.
func (s *S3Service) Put(ctx context.Context, key string, data []byte, contentType string) error {
	uploader := manager.NewUploader(s.client)
	_, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		ACL:         s3types.ObjectCannedACLPrivate,
	}, func(u *manager.Uploader) { u.PartSize = 10 * 1024 * 1024 })
	return err
}

// Delete removes key. Deleting a missing object succeeds on S3.
func (s *S3Service) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return err
}
