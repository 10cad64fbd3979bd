package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/artcatalog/backend/internal/config"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ErrLockTimeout is returned when a distributed lock could not be acquired in time.
var ErrLockTimeout = errors.New("timed out waiting for lock")

// Locker serializes work per key. The returned unlock func is safe to call more than once.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// NewLocker picks the lock backend from config. Falls back to the in-process
// locker when Redis is requested but unavailable.
func NewLocker(cfg *config.Config, rdb *redis.Client) Locker {
	if cfg.LockBackend == "redis" {
		if rdb != nil {
			return NewRedisLocker(rdb, cfg.LockTTL)
		}
		log.Warn().Msg("LOCK_BACKEND=redis but Redis is disabled, using in-process locks")
	}
	return NewLocalLocker()
}

func allocLockKey(mediaRoot string) string { return "alloc:" + mediaRoot }
func artworkLockKey(id string) string      { return "artwork:" + id }

// LocalLocker is an in-process keyed mutex.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*keyedLock)}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyedLock{ch: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, kl)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-kl.ch
			l.release(key, kl)
		})
	}, nil
}

func (l *LocalLocker) release(key string, kl *keyedLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}

// NoopLocker never blocks. Concurrent allocations and attaches can race under it.
type NoopLocker struct{}

func (NoopLocker) Lock(context.Context, string) (func(), error) { return func() {}, nil }

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker holds locks as Redis keys set with NX and a TTL, so a crashed
// holder cannot block others longer than the TTL.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
}

func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{client: client, ttl: ttl, retry: 25 * time.Millisecond}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := "lock:" + key
	token := uuid.NewString()
	deadline := time.Now().Add(l.ttl)
	wait := l.retry

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		if wait < 500*time.Millisecond {
			wait *= 2
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// the request context may already be cancelled at this point
			if err := releaseScript.Run(context.Background(), l.client, []string{redisKey}, token).Err(); err != nil {
				log.Warn().Err(err).Str("key", key).Msg("failed to release lock")
			}
		})
	}, nil
}
