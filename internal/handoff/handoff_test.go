package handoff

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord() BookingRecord {
	return BookingRecord{
		Reference:   "REF1",
		FirstName:   "Jo",
		Surname:     "Lee",
		Phone:       "07700900123",
		Email:       "jo@x.io",
		Address:     "1 High St",
		Postcode:    "AB12 3CD",
		VisitDate:   "2024-01-10",
		VisitWindow: "09:00–11:00",
	}
}

func newRedisSessions(t *testing.T, ttl time.Duration) (*RedisSessions, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisSessions(client, ttl), mr
}

func TestStoresRoundTrip(t *testing.T) {
	redisSessions, _ := newRedisSessions(t, time.Hour)
	cases := map[string]Sessions{
		"memory": NewMemorySessions(),
		"redis":  redisSessions,
	}
	for name, sessions := range cases {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := sessions.For("sess-" + name)

			_, ok, err := store.Get(ctx)
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, store.Put(ctx, sampleRecord()))
			got, ok, err := store.Get(ctx)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, sampleRecord(), got)

			// reads do not consume the record
			_, ok, err = sessions.For("sess-"+name).Get(ctx)
			require.NoError(t, err)
			assert.True(t, ok)

			second := sampleRecord()
			second.Reference = "REF2"
			require.NoError(t, store.Put(ctx, second))
			got, _, _ = store.Get(ctx)
			assert.Equal(t, "REF2", got.Reference)

			assert.ErrorIs(t, store.Put(ctx, BookingRecord{}), ErrEmptyReference)
		})
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	sessions := NewMemorySessions()
	ctx := context.Background()
	require.NoError(t, sessions.For("a").Put(ctx, sampleRecord()))

	_, ok, err := sessions.For("b").Get(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	sessions.Forget("a")
	assert.Equal(t, 1, sessions.Len())
	_, ok, _ = sessions.For("a").Get(ctx)
	assert.False(t, ok)
}

func TestRedisStoreAppliesTTL(t *testing.T) {
	sessions, mr := newRedisSessions(t, 30*time.Minute)
	require.NoError(t, sessions.For("s1").Put(context.Background(), sampleRecord()))

	assert.Equal(t, 30*time.Minute, mr.TTL("handoff:booking:s1"))

	mr.FastForward(31 * time.Minute)
	_, ok, err := sessions.For("s1").Get(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStoreDecodeError(t *testing.T) {
	sessions, mr := newRedisSessions(t, time.Hour)
	require.NoError(t, mr.Set("handoff:booking:s1", "{not json"))

	_, _, err := sessions.For("s1").Get(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode record")
}
