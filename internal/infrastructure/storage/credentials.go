package storage

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"

	"github.com/ChaoticEnigma/zfs3backup/internal/config"
	apperrors "github.com/ChaoticEnigma/zfs3backup/pkg/errors"
)

// resolveAWSConfig evaluates the credential chain once: explicit key
// material from the configuration wins, otherwise the named shared
// profile is used. The result is immutable for the life of the client.
func resolveAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error

	if cfg.S3KeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3KeyID, cfg.S3Secret, ""),
		))
	} else if cfg.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, apperrors.Wrap(err, apperrors.ErrCodeConfig, "failed to load AWS config")
	}
	return awsCfg, nil
}
