package database

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

type RedisClient struct {
	RDB *goredis.Client
}

func NewRedisDB(addr string) (*RedisClient, error) {
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisClient{RDB: rdb}, nil
}

func (c *RedisClient) Close() error {
	if c.RDB != nil {
		return c.RDB.Close()
	}
	return nil
}
