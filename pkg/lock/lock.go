package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/scholaris-dev/scheduling-core/pkg/config"
)

// NewRedis returns a configured Redis client for build coordination.
func NewRedis(cfg config.RedisConfig) (*redis.Client, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return client, nil
}

// TermLock serialises schedule builds per term. The core assumes a single
// admin-triggered batch; the lock closes the check-then-commit race when
// that assumption is violated.
type TermLock struct {
	client *redis.Client
	ttl    time.Duration
}

// NewTermLock wraps a Redis client into a per-term mutex.
func NewTermLock(client *redis.Client, ttl time.Duration) *TermLock {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &TermLock{client: client, ttl: ttl}
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Acquire takes the build lock for a term. It returns a release func on
// success and false when another build holds the lock. A nil lock grants
// immediately, for deployments that run without Redis.
func (l *TermLock) Acquire(ctx context.Context, termID string) (func(), bool, error) {
	if l == nil {
		return func() {}, true, nil
	}
	key := "schedule:build:" + termID
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire term lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, l.client, []string{key}, token).Err()
	}
	return release, true, nil
}
