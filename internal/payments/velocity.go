package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/homevisit-booking/pkg/logging"
)

var velocityTracer = otel.Tracer("homevisit.internal.payments.velocity")

// TooManyAttemptsMessage is shown when a booking exceeds its confirmation
// attempts.
const TooManyAttemptsMessage = "Too many payment attempts for this booking. Please try again later."

// AttemptGuard limits card confirmations per booking reference.
type AttemptGuard interface {
	AllowConfirm(ctx context.Context, reference string) (*VelocityResult, error)
}

// VelocityConfig bounds confirmation attempts per booking.
type VelocityConfig struct {
	MaxConfirmsPerBooking int
	Window                time.Duration
}

// DefaultVelocityConfig returns default velocity limits.
func DefaultVelocityConfig() VelocityConfig {
	return VelocityConfig{
		MaxConfirmsPerBooking: 5,
		Window:                time.Hour,
	}
}

// VelocityResult contains the result of a velocity check.
type VelocityResult struct {
	Allowed      bool
	CurrentCount int
	MaxAllowed   int
	WindowExpiry time.Time
	Message      string
}

// VelocityChecker counts confirmation attempts in Redis.
type VelocityChecker struct {
	redis  *redis.Client
	logger *logging.Logger
	config VelocityConfig
}

// NewVelocityChecker creates a new velocity checker.
func NewVelocityChecker(redisClient *redis.Client, config VelocityConfig, logger *logging.Logger) *VelocityChecker {
	if logger == nil {
		logger = logging.Default()
	}
	defaults := DefaultVelocityConfig()
	if config.MaxConfirmsPerBooking <= 0 {
		config.MaxConfirmsPerBooking = defaults.MaxConfirmsPerBooking
	}
	if config.Window <= 0 {
		config.Window = defaults.Window
	}
	return &VelocityChecker{
		redis:  redisClient,
		logger: logger,
		config: config,
	}
}

// AllowConfirm records one attempt for reference and reports whether it is
// within the limit. Redis failures allow the attempt.
func (v *VelocityChecker) AllowConfirm(ctx context.Context, reference string) (*VelocityResult, error) {
	ctx, span := velocityTracer.Start(ctx, "velocity.check_confirm")
	defer span.End()
	span.SetAttributes(attribute.String("booking.reference", reference))

	key := confirmKey(reference)
	count, expiry, err := v.incrementAndGet(ctx, key, v.config.Window)
	if err != nil {
		v.logger.Error("velocity check failed", "error", err, "key", key)
		return &VelocityResult{Allowed: true, Message: "velocity check unavailable"}, nil
	}

	result := &VelocityResult{
		Allowed:      count <= v.config.MaxConfirmsPerBooking,
		CurrentCount: count,
		MaxAllowed:   v.config.MaxConfirmsPerBooking,
		WindowExpiry: expiry,
	}
	if !result.Allowed {
		result.Message = fmt.Sprintf("exceeded %d confirmation attempts in %s", v.config.MaxConfirmsPerBooking, v.config.Window)
		v.logger.Warn("confirm velocity exceeded",
			"reference", reference,
			"count", count,
			"max", v.config.MaxConfirmsPerBooking,
		)
		span.SetAttributes(attribute.Bool("velocity.exceeded", true))
	}
	return result, nil
}

// Reset clears the attempt counter for reference.
func (v *VelocityChecker) Reset(ctx context.Context, reference string) error {
	return v.redis.Del(ctx, confirmKey(reference)).Err()
}

// incrementAndGet increments a counter and returns the new value with expiry time.
func (v *VelocityChecker) incrementAndGet(ctx context.Context, key string, window time.Duration) (int, time.Time, error) {
	count, err := v.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, time.Time{}, err
	}

	// Set expiry only on first increment
	if count == 1 {
		v.redis.Expire(ctx, key, window)
	}

	ttl, err := v.redis.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		ttl = window
	}
	return int(count), time.Now().Add(ttl), nil
}

// ConfirmKeyPrefix prefixes the per-booking attempt counters.
const ConfirmKeyPrefix = "velocity:confirm:"

func confirmKey(reference string) string {
	return ConfirmKeyPrefix + reference
}
