package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrInteractionExpired means the pending interaction was never stored, already
// consumed, or outlived its TTL.
var ErrInteractionExpired = errors.New("interaction expired or unknown")

// InteractionStore keeps short-lived pending interactions (survey, confirmation)
// keyed by interaction id. Entries are single-use.
type InteractionStore struct {
	redis *Redis
}

// NewInteractionStore builds the store.
func NewInteractionStore(r *Redis) *InteractionStore {
	return &InteractionStore{redis: r}
}

// Put stores v as JSON under id for ttl.
func (s *InteractionStore) Put(ctx context.Context, id string, v any, ttl time.Duration) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode interaction: %w", err)
	}
	return s.redis.Client.Set(ctx, s.redis.key("interaction", id), payload, ttl).Err()
}

// Take atomically reads and deletes the interaction, decoding it into v.
func (s *InteractionStore) Take(ctx context.Context, id string, v any) error {
	payload, err := s.redis.Client.GetDel(ctx, s.redis.key("interaction", id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrInteractionExpired
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("decode interaction: %w", err)
	}
	return nil
}
