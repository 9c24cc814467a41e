package db

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/notifyhub/pantry-pipeline/internal/config"
)

// ConnectRedis opens the client used by the event stream and the expiration
// index and verifies the server answers PING.
func ConnectRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", cfg.RedisAddr, err)
	}

	return client, nil
}
