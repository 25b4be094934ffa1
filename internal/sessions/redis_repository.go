package sessions

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisPresenceRepository stores per-instance room sizes in one hash per document:
// key "<prefix><documentID>", field = instance id, value = member count.
// The hash expires after ttl unless refreshed, so a crashed instance's members
// eventually stop counting.
type RedisPresenceRepository struct {
	client   *redis.Client
	prefix   string
	instance string
	ttl      time.Duration
}

// NewRedisPresenceRepository creates a Redis-based presence mirror. Prefix may be empty.
func NewRedisPresenceRepository(client *redis.Client, prefix, instance string, ttl time.Duration) *RedisPresenceRepository {
	if prefix == "" {
		prefix = "presence:"
	}
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisPresenceRepository{client: client, prefix: prefix, instance: instance, ttl: ttl}
}

func (r *RedisPresenceRepository) key(documentID string) string {
	return r.prefix + documentID
}

func (r *RedisPresenceRepository) SetCount(ctx context.Context, documentID string, n int) error {
	k := r.key(documentID)
	if n <= 0 {
		return r.client.HDel(ctx, k, r.instance).Err()
	}
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, k, r.instance, n)
	pipe.Expire(ctx, k, r.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// Count sums the member counts reported by every instance.
func (r *RedisPresenceRepository) Count(ctx context.Context, documentID string) (int, error) {
	vals, err := r.client.HVals(ctx, r.key(documentID)).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, err
	}
	total := 0
	for _, v := range vals {
		n, err := strconv.Atoi(v)
		if err != nil {
			continue
		}
		total += n
	}
	return total, nil
}
