package storage

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/ChaoticEnigma/zfs3backup/internal/config"
	"github.com/ChaoticEnigma/zfs3backup/internal/repository"
	apperrors "github.com/ChaoticEnigma/zfs3backup/pkg/errors"
	"github.com/ChaoticEnigma/zfs3backup/pkg/metrics"
)

// S3Storage implements StorageRepository for any S3-compatible store.
type S3Storage struct {
	client       *s3.Client
	bucket       string
	storageClass string
}

// NewS3Storage creates an S3 storage backend from the resolved
// configuration.
func NewS3Storage(ctx context.Context, cfg *config.Config) (*S3Storage, error) {
	awsCfg, err := resolveAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" && cfg.Endpoint != "aws" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Storage{
		client:       client,
		bucket:       cfg.Bucket,
		storageClass: cfg.StorageClass,
	}, nil
}

func (s *S3Storage) Put(ctx context.Context, key string, data io.Reader, metadata *repository.ObjectMetadata) error {
	start := time.Now()

	input := &s3.PutObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(key),
		Body:         data,
		StorageClass: types.StorageClass(s.storageClass),
	}
	if metadata != nil {
		if metadata.ContentType != "" {
			input.ContentType = aws.String(metadata.ContentType)
		}
		if metadata.Size > 0 {
			input.ContentLength = aws.Int64(metadata.Size)
		}
		if len(metadata.CustomMetadata) > 0 {
			input.Metadata = metadata.CustomMetadata
		}
		if metadata.StorageClass != "" {
			input.StorageClass = types.StorageClass(metadata.StorageClass)
		}
	}

	_, err := s.client.PutObject(ctx, input)
	observe("put", start, err)
	return err
}

func (s *S3Storage) Get(ctx context.Context, key string) (io.ReadCloser, *repository.ObjectMetadata, error) {
	start := time.Now()

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	observe("get", start, err)
	if err != nil {
		if isNotFound(err) {
			return nil, nil, apperrors.Wrapf(err, apperrors.ErrCodeNotFound, "object %s not found", key)
		}
		return nil, nil, err
	}

	metadata := &repository.ObjectMetadata{
		Key:            key,
		Size:           aws.ToInt64(result.ContentLength),
		ETag:           aws.ToString(result.ETag),
		CustomMetadata: result.Metadata,
	}
	return result.Body, metadata, nil
}

func (s *S3Storage) List(ctx context.Context, prefix string) ([]*repository.ObjectInfo, error) {
	start := time.Now()
	var objects []*repository.ObjectInfo

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			observe("list", start, err)
			return nil, err
		}
		for _, obj := range page.Contents {
			objects = append(objects, &repository.ObjectInfo{
				Key:  aws.ToString(obj.Key),
				Size: aws.ToInt64(obj.Size),
			})
		}
	}

	observe("list", start, nil)
	return objects, nil
}

func (s *S3Storage) Delete(ctx context.Context, key string) error {
	start := time.Now()
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	observe("delete", start, err)
	return err
}

func (s *S3Storage) Exists(ctx context.Context, key string) (bool, error) {
	start := time.Now()
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	observe("head", start, err)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *S3Storage) GetMetadata(ctx context.Context, key string) (*repository.ObjectMetadata, error) {
	start := time.Now()
	result, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	observe("head", start, err)
	if err != nil {
		if isNotFound(err) {
			return nil, apperrors.Wrapf(err, apperrors.ErrCodeNotFound, "object %s not found", key)
		}
		return nil, err
	}

	return &repository.ObjectMetadata{
		Key:            key,
		Size:           aws.ToInt64(result.ContentLength),
		StorageClass:   string(result.StorageClass),
		ETag:           aws.ToString(result.ETag),
		CustomMetadata: result.Metadata,
	}, nil
}

func (s *S3Storage) Close() error {
	return nil
}

func (s *S3Storage) HealthCheck(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	return err
}

// isNotFound reports whether err is a missing-key response rather
// than a transport or auth failure.
func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NotFound" || code == "NoSuchKey" || code == "NoSuchBucket"
	}
	return false
}

func observe(op string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.StorageOperations.WithLabelValues(op, status).Inc()
	metrics.StorageLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
