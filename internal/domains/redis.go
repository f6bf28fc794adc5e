package domains

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
)

// Redis reads domains from a Redis set
type Redis struct {
	cli *redis.Client
	key string
}

// Connect opens a client for addr, retrying the initial ping with
// exponential backoff for up to maxWait
func Connect(ctx context.Context, addr string, maxWait time.Duration) (*redis.Client, error) {
	cli := redis.NewClient(&redis.Options{Addr: addr})
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = maxWait
	op := func() error {
		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return cli.Ping(pctx).Err()
	}
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		cli.Close()
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	return cli, nil
}

// NewRedis uses the set stored at key
func NewRedis(cli *redis.Client, key string) *Redis {
	return &Redis{cli: cli, key: key}
}

// Domains returns the set members in sorted order
func (r *Redis) Domains(ctx context.Context) ([]string, error) {
	members, err := r.cli.SMembers(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("load domains from redis: %w", err)
	}
	sort.Strings(members)
	return members, nil
}

// Add seeds domains into the set, returning how many were new
func (r *Redis) Add(ctx context.Context, domains ...string) (int64, error) {
	members := make([]interface{}, 0, len(domains))
	for _, d := range domains {
		d = strings.TrimSpace(d)
		if d != "" {
			members = append(members, d)
		}
	}
	if len(members) == 0 {
		return 0, nil
	}
	return r.cli.SAdd(ctx, r.key, members...).Result()
}

// Remove deletes domains from the set
func (r *Redis) Remove(ctx context.Context, domains ...string) (int64, error) {
	if len(domains) == 0 {
		return 0, nil
	}
	members := make([]interface{}, len(domains))
	for i, d := range domains {
		members[i] = d
	}
	return r.cli.SRem(ctx, r.key, members...).Result()
}
