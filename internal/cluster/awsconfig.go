package cluster

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/redshift"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"dwh/internal/config"
)

// LoadAWSConfig builds the SDK configuration for the configured region. Static
// user credentials are used when present, otherwise the default chain.
func LoadAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.AWS.Region),
	}
	if cfg.User.Key != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.User.Key, cfg.User.Secret, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return awsCfg, nil
}

// NewAWSManager wires a Manager to real AWS clients.
func NewAWSManager(awsCfg aws.Config, spec Spec, opts ...Option) *Manager {
	return NewManager(
		redshift.NewFromConfig(awsCfg),
		iam.NewFromConfig(awsCfg),
		sts.NewFromConfig(awsCfg),
		spec,
		opts...,
	)
}
