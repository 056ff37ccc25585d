package lock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hazyhaar/newsnexus/idgen"
)

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker shared across processes. Keys expire after ttl so a
// crashed holder cannot block a signature forever.
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
	newID  idgen.Generator
	logger *slog.Logger
}

// NewRedis creates a Redis locker. ttl defaults to 10 minutes.
func NewRedis(client redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *Redis {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{client: client, ttl: ttl, newID: idgen.Default, logger: logger}
}

// Acquire sets key with SET NX PX and a random token.
func (r *Redis) Acquire(ctx context.Context, key string) (func(), error) {
	token := r.newID()
	ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("lock: redis setnx: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(ctx, r.client, []string{key}, token).Err(); err != nil {
				r.logger.Warn("lock: redis release failed", "key", key, "error", err)
			}
		})
	}, nil
}
