package bootstrap

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/homevisit-booking/internal/api/router"
	appconfig "github.com/wolfman30/homevisit-booking/internal/config"
	"github.com/wolfman30/homevisit-booking/internal/events"
	httpmiddleware "github.com/wolfman30/homevisit-booking/internal/http/middleware"
	"github.com/wolfman30/homevisit-booking/internal/notify"
	"github.com/wolfman30/homevisit-booking/internal/observability/metrics"
	"github.com/wolfman30/homevisit-booking/internal/payments"
	"github.com/wolfman30/homevisit-booking/internal/scheduling"
	"github.com/wolfman30/homevisit-booking/internal/web"
	"github.com/wolfman30/homevisit-booking/pkg/logging"
)

// App is the assembled web service.
type App struct {
	Handler     http.Handler
	Sessions    *web.Registry
	RateLimiter *httpmiddleware.RateLimiter
	Redis       *redis.Client
	DB          *pgxpool.Pool
	// Outbox is nil unless a database and an event destination (SQS or
	// webhook) are configured.
	Outbox *events.Deliverer
}

// Close releases external connections.
func (a *App) Close() error {
	if a.DB != nil {
		a.DB.Close()
	}
	if a.Redis != nil {
		return a.Redis.Close()
	}
	return nil
}

// BuildProcessor returns the card processor. The fake processor is only
// allowed outside production.
func BuildProcessor(cfg *appconfig.Config, logger *logging.Logger, m *metrics.FlowMetrics) (payments.Processor, error) {
	if cfg.AllowFakePayments {
		if cfg.IsProduction() {
			return nil, fmt.Errorf("bootstrap: ALLOW_FAKE_PAYMENTS must not be enabled in production")
		}
		logger.Warn("using fake payment processor")
		return payments.NewFakeProcessor(logger), nil
	}
	if cfg.StripePublishableKey == "" {
		return nil, fmt.Errorf("bootstrap: STRIPE_PUBLISHABLE_KEY is required")
	}
	return payments.NewStripeProcessor(cfg.StripePublishableKey, cfg.StripeAPIBaseURL, cfg.UpstreamTimeout, logger, m), nil
}

// BuildApp wires clients, stores, flows and routes. reg may be nil to use
// the default Prometheus registry.
func BuildApp(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, reg *prometheus.Registry) (*App, error) {
	if logger == nil {
		logger = logging.Default()
	}
	var registerer prometheus.Registerer = prometheus.DefaultRegisterer
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if reg != nil {
		registerer, gatherer = reg, reg
	}
	flowMetrics := metrics.NewFlowMetrics(registerer)

	processor, err := BuildProcessor(cfg, logger, flowMetrics)
	if err != nil {
		return nil, err
	}
	if cfg.SchedulingClientID == "" {
		logger.Warn("SCHEDULING_CLIENT_ID not set; availability searches will fail")
	}

	redisClient := BuildRedisClient(ctx, cfg, logger, true)
	handoffSessions := BuildHandoffSessions(redisClient, cfg, logger)

	sched := scheduling.NewClient(scheduling.Config{
		BaseURL:              cfg.SchedulingBaseURL,
		ClientID:             cfg.SchedulingClientID,
		VisitType:            cfg.VisitType,
		BookingTimeoutPeriod: cfg.BookingTimeoutPeriod,
		Timeout:              cfg.UpstreamTimeout,
	}, logger, flowMetrics)
	intents := payments.NewIntentClient(cfg.PaymentsBaseURL, cfg.UpstreamTimeout, logger, flowMetrics)
	notifiers := payments.PaidNotifiers{notify.NewBookingConfirmations(BuildEmailSender(ctx, cfg, logger), logger)}
	if store := BuildArchive(ctx, cfg, logger); store != nil {
		notifiers = append(notifiers, store)
	}
	db, recorder, deliverer, err := BuildOutbox(ctx, cfg, logger)
	if err != nil {
		if redisClient != nil {
			_ = redisClient.Close()
		}
		return nil, err
	}
	if recorder != nil {
		notifiers = append(notifiers, recorder)
	}

	var attempts payments.AttemptGuard
	if redisClient != nil {
		attempts = payments.NewVelocityChecker(redisClient, payments.VelocityConfig{
			MaxConfirmsPerBooking: cfg.MaxConfirmAttempts,
			Window:                cfg.ConfirmAttemptWindow,
		}, logger)
	}

	sessions := web.NewRegistry(cfg.SessionIdleTimeout)
	pages := web.NewHandler(web.Config{
		Directory:            sched,
		Booker:               sched,
		Intents:              intents,
		Processor:            processor,
		Handoff:              handoffSessions,
		Notifier:             notifiers,
		Attempts:             attempts,
		Sessions:             sessions,
		Metrics:              flowMetrics,
		Logger:               logger,
		CookieName:           cfg.SessionCookieName,
		SecureCookie:         cfg.IsProduction(),
		SearchWindowDays:     cfg.SearchWindowDays,
		ClientRefPrefix:      cfg.ClientRefPrefix,
		StripePublishableKey: cfg.StripePublishableKey,
		FakePayments:         cfg.AllowFakePayments,
	})

	limiter := httpmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	routerCfg := &router.Config{
		Logger:             logger,
		Pages:              pages,
		MetricsHandler:     promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimiter:        limiter,
	}
	if redisClient != nil || db != nil {
		routerCfg.HealthCheck = func(ctx context.Context) error {
			if redisClient != nil {
				if err := redisClient.Ping(ctx).Err(); err != nil {
					return fmt.Errorf("redis: %w", err)
				}
			}
			if db != nil {
				if err := db.Ping(ctx); err != nil {
					return fmt.Errorf("database: %w", err)
				}
			}
			return nil
		}
	}

	return &App{
		Handler:     router.New(routerCfg),
		Sessions:    sessions,
		RateLimiter: limiter,
		Redis:       redisClient,
		DB:          db,
		Outbox:      deliverer,
	}, nil
}
