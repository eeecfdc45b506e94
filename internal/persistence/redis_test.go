package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return &Redis{Client: client, Prefix: "arcadia:"}, mr
}

func TestActorLockerSerializesPerActor(t *testing.T) {
	r, mr := newTestRedis(t)
	locker := NewActorLocker(r, 30*time.Second)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "42")
	require.NoError(t, err)
	assert.True(t, mr.Exists("arcadia:actor-lock:42"))

	_, err = locker.Acquire(ctx, "42")
	assert.ErrorIs(t, err, ErrActorBusy)

	other, err := locker.Acquire(ctx, "43")
	require.NoError(t, err)
	other()

	release()
	assert.False(t, mr.Exists("arcadia:actor-lock:42"))

	again, err := locker.Acquire(ctx, "42")
	require.NoError(t, err)
	again()
}

func TestActorLockerExpires(t *testing.T) {
	r, mr := newTestRedis(t)
	locker := NewActorLocker(r, time.Second)
	ctx := context.Background()

	_, err := locker.Acquire(ctx, "42")
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	release, err := locker.Acquire(ctx, "42")
	require.NoError(t, err)
	release()
}

func TestActorLockerReleaseKeepsForeignLock(t *testing.T) {
	r, mr := newTestRedis(t)
	locker := NewActorLocker(r, time.Second)
	ctx := context.Background()

	stale, err := locker.Acquire(ctx, "42")
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	fresh, err := locker.Acquire(ctx, "42")
	require.NoError(t, err)

	stale()
	assert.True(t, mr.Exists("arcadia:actor-lock:42"))
	fresh()
	assert.False(t, mr.Exists("arcadia:actor-lock:42"))
}

type pendingSurvey struct {
	ActorID string `json:"actor_id"`
	BotID   string `json:"bot_id"`
}

func TestInteractionStoreIsSingleUse(t *testing.T) {
	r, _ := newTestRedis(t)
	store := NewInteractionStore(r)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "int-1", pendingSurvey{ActorID: "42", BotID: "7"}, time.Minute))

	var got pendingSurvey
	require.NoError(t, store.Take(ctx, "int-1", &got))
	assert.Equal(t, pendingSurvey{ActorID: "42", BotID: "7"}, got)

	err := store.Take(ctx, "int-1", &got)
	assert.ErrorIs(t, err, ErrInteractionExpired)
}

func TestInteractionStoreExpiry(t *testing.T) {
	r, mr := newTestRedis(t)
	store := NewInteractionStore(r)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "int-2", pendingSurvey{ActorID: "42"}, time.Minute))
	mr.FastForward(2 * time.Minute)

	var got pendingSurvey
	assert.ErrorIs(t, store.Take(ctx, "int-2", &got), ErrInteractionExpired)
}

func TestRedisPingWithoutClient(t *testing.T) {
	var r *Redis
	assert.ErrorIs(t, r.Ping(context.Background()), ErrNotConfigured)
}

func TestMigrateURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@db:5432/arcadia", MigrateURL("postgres://u:p@db:5432/arcadia"))
	assert.Equal(t, "pgx5://u:p@db/arcadia", MigrateURL("postgresql://u:p@db/arcadia"))
	assert.Equal(t, "pgx5://already", MigrateURL("pgx5://already"))
}
