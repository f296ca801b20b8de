package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/cloudemu/cloudemu/internal/cluster"
	"github.com/cloudemu/cloudemu/internal/cmn"
)

// counterStore is the pluggable backend behind the fixed window: a
// process-local striped map by default, or a remote Redis INCR/EXPIRE
// pair when a counter store address is configured.
type counterStore interface {
	// incr bumps the counter for key within window and returns the new
	// count and the remaining time until the window resets.
	incr(ctx context.Context, key string, window time.Duration) (count int, resetIn time.Duration, err error)
}

// Limiter keeps fixed-window per-client (by principal or source
// address) per-endpoint counters: a window opens at a key's first request
// and its count resets only when the window ends; it is not a sliding
// window. Exceeding the window yields "resource exhausted" with a
// Retry-After.
type Limiter struct {
	enabled bool
	window  time.Duration
	max     int
	store   counterStore
}

func NewLimiter(enabled bool, window time.Duration, max int, redisAddr string) *Limiter {
	var store counterStore
	if redisAddr != "" {
		store = &redisCounterStore{client: redis.NewClient(&redis.Options{Addr: redisAddr})}
	} else {
		store = newLocalCounterStore()
	}
	return &Limiter{enabled: enabled, window: window, max: max, store: store}
}

// Allow reports whether the (principal,endpoint) pair is still within its
// window; on rejection it also returns the Retry-After duration.
func (l *Limiter) Allow(principal, endpoint string) (bool, time.Duration, error) {
	if !l.enabled {
		return true, 0, nil
	}
	key := principal + "\x1f" + endpoint
	count, resetIn, err := l.store.incr(context.Background(), key, l.window)
	if err != nil {
		return false, 0, cmn.WrapInternal(err, "rate limit counter for %s", key)
	}
	if count > l.max {
		return false, resetIn, nil
	}
	return true, 0, nil
}

// --- process-local backend ---

type localCounterStore struct {
	locks   *cluster.KeyLock
	mu      sync.Mutex
	buckets map[string]*localBucket
}

type localBucket struct {
	count     int
	expiresAt time.Time
}

func newLocalCounterStore() *localCounterStore {
	return &localCounterStore{locks: cluster.NewKeyLock(64), buckets: map[string]*localBucket{}}
}

func (s *localCounterStore) incr(_ context.Context, key string, window time.Duration) (int, time.Duration, error) {
	var count int
	var resetIn time.Duration
	s.locks.WithLock(key, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		now := time.Now()
		b, ok := s.buckets[key]
		if !ok || now.After(b.expiresAt) {
			b = &localBucket{count: 0, expiresAt: now.Add(window)}
			s.buckets[key] = b
		}
		b.count++
		count = b.count
		resetIn = b.expiresAt.Sub(now)
		return nil
	})
	return count, resetIn, nil
}

// --- redis backend ---

type redisCounterStore struct {
	client *redis.Client
}

func (s *redisCounterStore) incr(ctx context.Context, key string, window time.Duration) (int, time.Duration, error) {
	rkey := fmt.Sprintf("cloudemu:ratelimit:%s", key)
	n, err := s.client.Incr(ctx, rkey).Result()
	if err != nil {
		return 0, 0, err
	}
	if n == 1 {
		s.client.Expire(ctx, rkey, window)
	}
	ttl, err := s.client.TTL(ctx, rkey).Result()
	if err != nil || ttl < 0 {
		ttl = window
	}
	return int(n), ttl, nil
}
