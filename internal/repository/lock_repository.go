package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only when it still holds the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// LockRepository implements short-lived mutual exclusion on Redis keys.
type LockRepository struct {
	client *redis.Client
	prefix string
}

// NewLockRepository constructs a lock repository. Keys are namespaced by prefix.
func NewLockRepository(client *redis.Client, prefix string) *LockRepository {
	if prefix == "" {
		prefix = "lock:"
	}
	return &LockRepository{client: client, prefix: prefix}
}

// Acquire sets the key if absent. The returned token must be passed to Release.
func (r *LockRepository) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, r.prefix+key, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release frees the key if it is still held by token.
func (r *LockRepository) Release(ctx context.Context, key, token string) error {
	if err := releaseScript.Run(ctx, r.client, []string{r.prefix + key}, token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("release lock %s: %w", key, err)
	}
	return nil
}
