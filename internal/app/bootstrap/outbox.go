package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"

	appconfig "github.com/wolfman30/homevisit-booking/internal/config"
	"github.com/wolfman30/homevisit-booking/internal/events"
	"github.com/wolfman30/homevisit-booking/pkg/logging"
)

// BuildOutbox connects to Postgres and returns the pool, the paid-event
// recorder and, when EVENTS_QUEUE_URL or EVENTS_WEBHOOK_URL is set, a
// deliverer. All are nil when DATABASE_URL is unset.
func BuildOutbox(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*pgxpool.Pool, *events.PaidRecorder, *events.Deliverer, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, nil, nil, nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("bootstrap: connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("bootstrap: ping database: %w", err)
	}

	store := events.NewOutboxStore(pool)
	handler, err := buildDeliveryHandler(ctx, cfg)
	if err != nil {
		pool.Close()
		return nil, nil, nil, err
	}
	var deliverer *events.Deliverer
	if handler != nil {
		deliverer = events.NewDeliverer(store, handler, logger).WithInterval(cfg.OutboxPollInterval)
	} else {
		logger.Info("no event destination configured; outbox events are recorded but not delivered")
	}
	return pool, events.NewPaidRecorder(store), deliverer, nil
}

func buildDeliveryHandler(ctx context.Context, cfg *appconfig.Config) (events.DeliveryHandler, error) {
	if queueURL := strings.TrimSpace(cfg.EventsQueueURL); queueURL != "" {
		awsCfg, err := LoadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: load aws config: %w", err)
		}
		client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
			if endpoint := strings.TrimSpace(cfg.AWSEndpointOverride); endpoint != "" {
				o.BaseEndpoint = aws.String(endpoint)
			}
		})
		return events.NewSQSHandler(client, queueURL), nil
	}
	if url := strings.TrimSpace(cfg.EventsWebhookURL); url != "" {
		return events.NewWebhookHandler(url, cfg.UpstreamTimeout), nil
	}
	return nil, nil
}
