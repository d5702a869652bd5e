package redis_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/clara/pkg/adapters/redis"
	"github.com/aretw0/clara/pkg/domain"
	"github.com/aretw0/clara/pkg/ports"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStore_Contract(t *testing.T) {
	_, client := setup(t)
	ports.RunStateStoreContract(t, redis.NewFromClient(client))
}

func TestRedisStore_TTL_Expiration(t *testing.T) {
	mr, client := setup(t)

	var mu sync.Mutex
	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	store := redis.NewFromClient(client, redis.WithTTL(time.Second), redis.WithClock(clock))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "req-ttl", domain.NewState("req-ttl", map[string]any{"foo": "bar"})))

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Contains(t, ids, "req-ttl")

	mr.FastForward(2 * time.Second)
	mu.Lock()
	now = now.Add(2 * time.Second)
	mu.Unlock()

	_, err = store.Load(ctx, "req-ttl")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	ids, err = store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids, "expired entries are pruned from the index")
}

func TestRedisStore_Prefix(t *testing.T) {
	mr, client := setup(t)
	store := redis.NewFromClient(client, redis.WithPrefix("custom:app:"))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "req-1", domain.NewState("req-1", nil)))

	assert.True(t, mr.Exists("custom:app:req-1"))
	assert.True(t, mr.Exists("custom:app:index"))
	assert.False(t, mr.Exists(redis.DefaultPrefix+"req-1"))

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"req-1"}, ids)
}

func TestRedisStore_AuditRoundTrip(t *testing.T) {
	_, client := setup(t)
	store := redis.NewFromClient(client)
	ctx := context.Background()

	state := domain.NewState("req-1", nil)
	at := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	state.Audit.Append(domain.AuditEntry{StageID: domain.StageIntake, EventType: domain.EventStageEnter, Timestamp: at})
	state.Audit.Append(domain.AuditEntry{StageID: domain.StageIntake, EventType: domain.EventStageExit, Timestamp: at.Add(time.Millisecond), DurationMicros: 1000})
	require.NoError(t, store.Save(ctx, "req-1", state))

	loaded, err := store.Load(ctx, "req-1")
	require.NoError(t, err)
	entries := loaded.Audit.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, 2, entries[1].Sequence)
	assert.Equal(t, int64(1000), entries[1].DurationMicros)
	assert.True(t, entries[1].Timestamp.Equal(at.Add(time.Millisecond)))

	// Appending after a reload continues the sequence.
	next := loaded.Audit.Append(domain.AuditEntry{StageID: domain.StageUnderstand, EventType: domain.EventStageEnter})
	assert.Equal(t, 3, next.Sequence)
}

func TestRedisStore_Ping(t *testing.T) {
	mr, client := setup(t)
	store := redis.NewFromClient(client)
	require.NoError(t, store.Ping(context.Background()))

	mr.Close()
	assert.Error(t, store.Ping(context.Background()))
}
