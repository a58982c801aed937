package cache

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"wallet-topup-service/pkg/id"
	"wallet-topup-service/pkg/xerrors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

//go:embed lua/release.lua
var luaRelease string

//go:embed lua/extend.lua
var luaExtend string

//go:embed lua/rate_limit.lua
var luaRateLimit string

var (
	releaseScript   = redis.NewScript(luaRelease)
	extendScript    = redis.NewScript(luaExtend)
	rateLimitScript = redis.NewScript(luaRateLimit)
)

var ErrLockNotOwned = errors.New("lock not owned by this token")

// CacheService wraps the redis client used for allocation locks and
// webhook rate limiting.
type CacheService struct {
	client *redis.Client
	logger *zap.Logger
}

// NewCacheService connects and pings redis.
func NewCacheService(addr, password string, db int, logger *zap.Logger) (*CacheService, error) {
	client := redis.NewClient(&redis.Options{
		Addr:            addr,
		Password:        password,
		DB:              db,
		PoolSize:        50,
		MinIdleConns:    5,
		PoolTimeout:     4 * time.Second,
		ConnMaxIdleTime: 5 * time.Minute,
		ConnMaxLifetime: 30 * time.Minute,

		MaxRetries:      3,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	logger.Info("redis connected", zap.String("addr", addr))
	return NewCacheServiceFromClient(client, logger), nil
}

func NewCacheServiceFromClient(client *redis.Client, logger *zap.Logger) *CacheService {
	return &CacheService{client: client, logger: logger}
}

// ===============================
// Distributed Locking
// ===============================

type Lock struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

func LockKey(resource string) string {
	return fmt.Sprintf("lock:%s", resource)
}

// AcquireLock makes one SET NX attempt. It returns ErrLockBusy when another
// holder owns the key.
func (c *CacheService) AcquireLock(ctx context.Context, resource string, ttl time.Duration) (*Lock, error) {
	key := LockKey(resource)
	token := id.GenerateUUID("lk")

	ok, err := c.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, xerrors.ErrLockBusy
	}

	c.logger.Debug("lock acquired", zap.String("resource", resource), zap.Duration("ttl", ttl))
	return &Lock{client: c.client, key: key, token: token, ttl: ttl}, nil
}

// WaitForLock polls AcquireLock until it succeeds, maxWait elapses or ctx
// is done.
func (c *CacheService) WaitForLock(ctx context.Context, resource string, ttl, maxWait, pollInterval time.Duration) (*Lock, error) {
	deadline := time.Now().Add(maxWait)
	for {
		lock, err := c.AcquireLock(ctx, resource, ttl)
		if err == nil {
			return lock, nil
		}
		if !errors.Is(err, xerrors.ErrLockBusy) {
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: waited %s for %s", xerrors.ErrLockBusy, maxWait, resource)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// Release deletes the key only if this lock still owns it.
func (l *Lock) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Int()
	if err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	if n == 0 {
		return ErrLockNotOwned
	}
	return nil
}

func (l *Lock) Extend(ctx context.Context, ttl time.Duration) error {
	n, err := extendScript.Run(ctx, l.client, []string{l.key}, l.token, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("extend lock: %w", err)
	}
	if n == 0 {
		return ErrLockNotOwned
	}
	l.ttl = ttl
	return nil
}

// ===============================
// Rate Limiting (fixed window)
// ===============================

// RateLimit reports whether one more request under key fits in the window.
func (c *CacheService) RateLimit(ctx context.Context, key string, maxRequests int, window time.Duration) (bool, error) {
	res, err := rateLimitScript.Run(ctx, c.client,
		[]string{fmt.Sprintf("ratelimit:%s", key)}, maxRequests, window.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("rate limit check: %w", err)
	}
	return res == 1, nil
}

// Health checks redis connectivity and latency.
func (c *CacheService) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	start := time.Now()
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	if latency := time.Since(start); latency > 100*time.Millisecond {
		c.logger.Warn("redis high latency", zap.Duration("latency", latency))
	}
	return nil
}

func (c *CacheService) Close() error {
	return c.client.Close()
}
