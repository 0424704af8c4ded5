package db

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// NewRedisClient creates a client for addr and pings it.
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	// Ping the server to ensure the connection is established.
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return client, nil
}
