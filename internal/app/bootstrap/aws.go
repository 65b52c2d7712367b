package bootstrap

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	"github.com/wolfman30/homevisit-booking/internal/archive"
	appconfig "github.com/wolfman30/homevisit-booking/internal/config"
	"github.com/wolfman30/homevisit-booking/internal/notify"
	"github.com/wolfman30/homevisit-booking/pkg/logging"
)

// LoadAWSConfig builds the SDK config, using static credentials when both
// keys are set.
func LoadAWSConfig(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	loaders := []func(*config.LoadOptions) error{config.WithRegion(cfg.AWSRegion)}
	if strings.TrimSpace(cfg.AWSAccessKeyID) != "" && strings.TrimSpace(cfg.AWSSecretAccessKey) != "" {
		loaders = append(loaders, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}
	return config.LoadDefaultConfig(ctx, loaders...)
}

// BuildEmailSender picks the confirmation e-mail transport from
// EMAIL_PROVIDER. Misconfigured providers fall back to the stub sender.
func BuildEmailSender(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) notify.EmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	switch cfg.EmailProvider {
	case "sendgrid":
		if sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
			ReplyTo:   cfg.EmailReplyTo,
		}, logger); sender != nil {
			logger.Info("email provider: sendgrid")
			return sender
		}
		logger.Warn("email provider sendgrid selected but SENDGRID_API_KEY is empty; using stub")
	case "ses":
		awsCfg, err := LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Warn("email provider ses selected but AWS config failed; using stub", "error", err)
			break
		}
		client := sesv2.NewFromConfig(awsCfg, func(o *sesv2.Options) {
			if endpoint := strings.TrimSpace(cfg.AWSEndpointOverride); endpoint != "" {
				o.BaseEndpoint = aws.String(endpoint)
			}
		})
		logger.Info("email provider: ses", "region", cfg.AWSRegion)
		return notify.NewSESSender(client, notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SESFromName,
			ReplyTo:   cfg.EmailReplyTo,
		}, logger)
	case "", "stub":
	default:
		logger.Warn("unknown EMAIL_PROVIDER; using stub", "provider", cfg.EmailProvider)
	}
	return notify.NewStubEmailSender(logger)
}

// BuildArchive returns the paid-booking archive, or nil when ARCHIVE_BUCKET
// is unset.
func BuildArchive(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) *archive.Store {
	if logger == nil {
		logger = logging.Default()
	}
	bucket := strings.TrimSpace(cfg.ArchiveBucket)
	if bucket == "" {
		return nil
	}
	awsCfg, err := LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Warn("archive disabled: AWS config failed", "error", err)
		return nil
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint := strings.TrimSpace(cfg.AWSEndpointOverride); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	logger.Info("paid booking archive enabled", "bucket", bucket)
	return archive.NewStore(client, bucket, logger)
}
