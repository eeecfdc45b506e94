package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrActorBusy is returned when another invocation already holds the actor's lock.
var ErrActorBusy = errors.New("actor has an invocation in flight")

// releaseScript deletes the lock only if the caller still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0`)

// ActorLocker serializes invocations per actor with a SET NX PX lock.
type ActorLocker struct {
	redis *Redis
	ttl   time.Duration
}

// NewActorLocker builds a locker whose locks expire after ttl.
func NewActorLocker(r *Redis, ttl time.Duration) *ActorLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &ActorLocker{redis: r, ttl: ttl}
}

// Acquire takes the lock for actorID and returns its release func.
func (l *ActorLocker) Acquire(ctx context.Context, actorID string) (func(), error) {
	key := l.redis.key("actor-lock", actorID)
	token := uuid.NewString()

	ok, err := l.redis.Client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrActorBusy
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, l.redis.Client, []string{key}, token).Err()
	}
	return release, nil
}
