package database

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/ekaya-inc/factgraph/pkg/config"
)

// NewRedisClient connects the shared id cache level. It returns nil, nil when no host is
// configured, which disables that level.
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	if cfg.Host == "" {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:       cfg.Addr(),
		Password:   cfg.Password,
		DB:         cfg.DB,
		ClientName: "factgraph",
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, Wrap(err, "connect to redis at "+cfg.Addr())
	}
	return client, nil
}
