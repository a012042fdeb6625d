package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// New connects to Redis and pings it. The client is closed again when the
// ping fails.
func New(ctx context.Context, opts *redis.Options) (*redis.Client, error) {
	if opts == nil || opts.Addr == "" {
		return nil, fmt.Errorf("platform/cache: redis address required")
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("platform/cache: ping %s: %w", opts.Addr, err)
	}
	return client, nil
}
