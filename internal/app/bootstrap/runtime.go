package bootstrap

import (
	"context"
	"crypto/tls"
	"strings"

	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/homevisit-booking/internal/config"
	"github.com/wolfman30/homevisit-booking/internal/handoff"
	"github.com/wolfman30/homevisit-booking/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildHandoffSessions returns the Redis-backed handoff store, or an
// in-memory one when Redis is not configured.
func BuildHandoffSessions(redisClient *redis.Client, cfg *appconfig.Config, logger *logging.Logger) handoff.Sessions {
	if logger == nil {
		logger = logging.Default()
	}
	if redisClient == nil {
		logger.Info("handoff store: in-memory (records are lost on restart)")
		return handoff.NewMemorySessions()
	}
	logger.Info("handoff store: redis", "ttl", cfg.HandoffTTL.String())
	return handoff.NewRedisSessions(redisClient, cfg.HandoffTTL)
}
