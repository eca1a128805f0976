package database

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	"docuquery-go/pkg/log"
)

// NewRedis opens and pings a Redis client.
func NewRedis(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	log.Info("Redis client connected successfully")
	return client, nil
}
