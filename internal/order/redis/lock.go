package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"ms-fulfillment/internal/logger"
)

const defaultLockTTL = 30 * time.Second

// unlockScript deletes the key only while it still holds the caller's token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis provides short-lived advisory locks with owner tokens.
type Redis struct {
	Client *redis.Client
	TTL    time.Duration
	Logger *logger.Logger

	pollInterval time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration, log *logger.Logger) *Redis {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &Redis{
		Client:       client,
		TTL:          ttl,
		Logger:       log,
		pollInterval: 50 * time.Millisecond,
	}
}

// Lock tries once to take key. The returned token is needed to unlock.
func (r *Redis) Lock(ctx context.Context, key string) (string, bool, error) {
	token := uuid.NewString()
	ok, err := r.Client.SetNX(ctx, key, token, r.TTL).Result()
	if err != nil {
		return "", false, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// LockWait polls for key until it is taken, wait elapses or ctx is done.
func (r *Redis) LockWait(ctx context.Context, key string, wait time.Duration) (string, bool, error) {
	deadline := time.Now().Add(wait)
	for {
		token, ok, err := r.Lock(ctx, key)
		if err != nil || ok {
			return token, ok, err
		}
		if time.Now().After(deadline) {
			return "", false, nil
		}
		select {
		case <-ctx.Done():
			return "", false, ctx.Err()
		case <-time.After(r.pollInterval):
		}
	}
}

// Unlock releases key if token still owns it; a foreign or expired lock is left alone.
func (r *Redis) Unlock(ctx context.Context, key, token string) error {
	res, err := unlockScript.Run(ctx, r.Client, []string{key}, token).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis unlock %s: %w", key, err)
	}
	if res == 0 && r.Logger != nil {
		r.Logger.Debug("REDIS", fmt.Sprintf("lock %s no longer owned by caller", key))
	}
	return nil
}

// IsLocked reports whether key is currently held by anyone.
func (r *Redis) IsLocked(ctx context.Context, key string) (bool, error) {
	n, err := r.Client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
