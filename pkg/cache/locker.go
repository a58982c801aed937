package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const DefaultLockTTL = 5 * time.Second

// Locker serializes a critical section by key. The returned func releases.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// RedisLocker spans every replica of the service. While held, the key is
// re-armed every half TTL so a slow holder does not lose it.
type RedisLocker struct {
	cache        *CacheService
	ttl          time.Duration
	maxWait      time.Duration
	pollInterval time.Duration
}

func (c *CacheService) NewLocker(ttl, maxWait time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &RedisLocker{cache: c, ttl: ttl, maxWait: maxWait, pollInterval: 25 * time.Millisecond}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	lock, err := l.cache.WaitForLock(ctx, key, l.ttl, l.maxWait, l.pollInterval)
	if err != nil {
		return nil, err
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(lock, key, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			// release on a fresh context so a cancelled request still frees the key
			rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := lock.Release(rctx); err != nil {
				l.cache.logger.Warn("failed to release lock", zap.String("key", key), zap.Error(err))
			}
		})
	}, nil
}

func (l *RedisLocker) keepAlive(lock *Lock, key string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	interval := l.ttl / 2
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			err := lock.Extend(ctx, l.ttl)
			cancel()
			if err != nil {
				l.cache.logger.Warn("failed to extend lock", zap.String("key", key), zap.Error(err))
				return
			}
		}
	}
}

// LocalLocker only serializes within this process. It backs single-node
// runs without redis. Each key is a one-slot semaphore so a waiter can give
// up when its context ends.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]chan struct{})}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	sem, ok := l.locks[key]
	if !ok {
		sem = make(chan struct{}, 1)
		l.locks[key] = sem
	}
	l.mu.Unlock()

	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() { once.Do(func() { <-sem }) }, nil
}
