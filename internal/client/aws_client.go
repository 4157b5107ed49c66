package client

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"go.uber.org/zap"

	"chat-assistant/internal/config"
)

// AWSClients shares one credential chain between SES and S3.
type AWSClients struct {
	Config aws.Config
	SES    *sesv2.Client
	S3     *s3.Client
}

// NewAWSClients resolves credentials from the standard AWS chain
// (environment, shared config, instance role).
func NewAWSClients(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*AWSClients, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	logger.Info("AWS clients initialized",
		zap.String("region", awsCfg.Region),
		zap.Bool("s3_bucket_configured", cfg.AWS.S3BucketName != ""),
	)

	return &AWSClients{
		Config: awsCfg,
		SES:    sesv2.NewFromConfig(awsCfg),
		S3:     s3.NewFromConfig(awsCfg),
	}, nil
}
