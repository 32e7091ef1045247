package limiter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

var ErrLimitExceeded = errors.New("concurrency limit exceeded")

// Redis caps how many calls may run at once across all server processes.
// Slots carry a TTL so a crashed holder cannot wedge the counter forever.
type Redis struct {
	client *redis.Client
	max    int
	prefix string
	ttl    time.Duration
}

func NewRedis(client *redis.Client, max int, prefix string, ttl time.Duration) *Redis {
	return &Redis{
		client: client,
		max:    max,
		prefix: prefix,
		ttl:    ttl,
	}
}

var acquireScript = redis.NewScript(
	`local current = redis.call('GET', KEYS[1])
	if current == false then
		current = 0
	else
		current = tonumber(current)
	end

	if current >= tonumber(ARGV[1]) then
		return -1
	end

	local newCount = redis.call('INCR', KEYS[1])
	redis.call('EXPIRE', KEYS[1], tonumber(ARGV[2]))
	return newCount`,
)

var releaseScript = redis.NewScript(
	`local current = redis.call('GET', KEYS[1])
	if current == false or tonumber(current) <= 0 then
		return 0
	end
	return redis.call('DECR', KEYS[1])`,
)

// Acquire takes one slot under key or fails with ErrLimitExceeded.
func (r *Redis) Acquire(ctx context.Context, key string) error {
	result, err := acquireScript.Run(ctx, r.client, []string{r.prefix + key}, r.max, int(r.ttl.Seconds())).Result()
	if err != nil {
		return fmt.Errorf("acquire slot: %w", err)
	}
	if result.(int64) < 0 {
		return ErrLimitExceeded
	}
	return nil
}

func (r *Redis) Release(ctx context.Context, key string) {
	_, _ = releaseScript.Run(ctx, r.client, []string{r.prefix + key}).Result()
}
