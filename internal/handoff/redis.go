package handoff

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const defaultRecordTTL = 12 * time.Hour

// KeyPrefix prefixes every session's record key.
const KeyPrefix = "handoff:booking:"

// RedisSessions stores each session's record as a JSON blob in Redis.
type RedisSessions struct {
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

// NewRedisSessions panics on a nil client. A non-positive ttl falls back to 12h.
func NewRedisSessions(client *redis.Client, ttl time.Duration) *RedisSessions {
	if client == nil {
		panic("handoff: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = defaultRecordTTL
	}
	return &RedisSessions{
		redis:  client,
		ttl:    ttl,
		tracer: otel.Tracer("homevisit.internal.handoff"),
	}
}

func (r *RedisSessions) For(sessionID string) Store {
	return &redisStore{parent: r, sessionID: sessionID}
}

type redisStore struct {
	parent    *RedisSessions
	sessionID string
}

func (s *redisStore) Put(ctx context.Context, record BookingRecord) error {
	ctx, span := s.parent.tracer.Start(ctx, "handoff.put",
		trace.WithAttributes(attribute.String("booking.reference", record.Reference)))
	defer span.End()

	if record.Reference == "" {
		return ErrEmptyReference
	}
	data, err := json.Marshal(record)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("handoff: marshal record: %w", err)
	}
	if err := s.parent.redis.Set(ctx, recordKey(s.sessionID), data, s.parent.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("handoff: persist record: %w", err)
	}
	return nil
}

func (s *redisStore) Get(ctx context.Context) (BookingRecord, bool, error) {
	ctx, span := s.parent.tracer.Start(ctx, "handoff.get")
	defer span.End()

	data, err := s.parent.redis.Get(ctx, recordKey(s.sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return BookingRecord{}, false, nil
		}
		span.RecordError(err)
		return BookingRecord{}, false, fmt.Errorf("handoff: load record: %w", err)
	}
	var record BookingRecord
	if err := json.Unmarshal(data, &record); err != nil {
		span.RecordError(err)
		return BookingRecord{}, false, fmt.Errorf("handoff: decode record: %w", err)
	}
	return record, true, nil
}

func recordKey(sessionID string) string {
	return KeyPrefix + sessionID
}
