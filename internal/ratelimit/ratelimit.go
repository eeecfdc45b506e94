// Package ratelimit bounds how often a single actor may invoke RPC methods.
package ratelimit

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"github.com/botlist/arcadia/internal/config"
)

// Limiter is a process-wide token bucket per actor. Idle buckets fall out of
// the LRU after one window, so counts do not survive restarts or eviction.
type Limiter struct {
	mu      sync.Mutex
	buckets *expirable.LRU[string, *rate.Limiter]
	every   rate.Limit
	burst   int
	now     func() time.Time
}

// New builds a limiter allowing cfg.Requests per cfg.Window for each actor.
func New(cfg config.RateLimitConfig) *Limiter {
	requests := cfg.Requests
	if requests <= 0 {
		requests = 5
	}
	window := cfg.Window
	if window <= 0 {
		window = time.Minute
	}
	size := cfg.CacheSize
	if size <= 0 {
		size = 10000
	}
	return &Limiter{
		buckets: expirable.NewLRU[string, *rate.Limiter](size, nil, window),
		every:   rate.Every(window / time.Duration(requests)),
		burst:   requests,
		now:     time.Now,
	}
}

// Allow consumes one token for actorID and reports whether the call may proceed.
func (l *Limiter) Allow(actorID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	bucket, ok := l.buckets.Get(actorID)
	if !ok {
		bucket = rate.NewLimiter(l.every, l.burst)
	}
	// re-adding refreshes the idle TTL
	l.buckets.Add(actorID, bucket)
	return bucket.AllowN(l.now(), 1)
}

// Len reports how many actors currently hold a bucket.
func (l *Limiter) Len() int {
	return l.buckets.Len()
}
