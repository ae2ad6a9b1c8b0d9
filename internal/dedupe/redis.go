package dedupe

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultRedisPrefix = "swapwatch:dedupe:"

// RedisDedupe uses SETNX with a TTL, so the seen set survives restarts and
// can be shared between instances watching the same pool.
type RedisDedupe struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	prefix string
}

func NewRedisDedupe(rdb redis.Cmdable, prefix string, ttl time.Duration) (*RedisDedupe, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisDedupe{rdb: rdb, ttl: ttl, prefix: prefix}, nil
}

func (d *RedisDedupe) Seen(ctx context.Context, id string) (bool, error) {
	ok, err := d.rdb.SetNX(ctx, d.prefix+id, 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	// ok=true means the key was new.
	return !ok, nil
}
