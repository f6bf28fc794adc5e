package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis shares leases between replicas with SET NX
type Redis struct {
	cli    *redis.Client
	prefix string
	owner  string
}

func NewRedis(cli *redis.Client, prefix, owner string) *Redis {
	return &Redis{cli: cli, prefix: prefix, owner: owner}
}

func (r *Redis) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	ok, err := r.cli.SetNX(ctx, r.prefix+key, r.owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lease %s: %w", key, err)
	}
	return ok, nil
}
