package redis

import (
	"context"
	"fmt"
	"time"

	"clinic-roomsync/common/config"

	"github.com/go-redis/redis/v8"
)

// Client Redis客户端类型别名
type Client = redis.Client

// NewRedisClient 按配置创建客户端，不建立连接
func NewRedisClient(cfg *config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		DialTimeout: cfg.DialTimeout,
	})
}

// Ping 测试Redis连接；失败时按 100ms、200ms、400ms... 重试 attempts 次
func Ping(ctx context.Context, client *redis.Client, attempts int) error {
	if attempts < 1 {
		attempts = 1
	}
	delay := 100 * time.Millisecond
	var err error
	for i := 0; i < attempts; i++ {
		if err = client.Ping(ctx).Err(); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("ping redis %s: %w", client.Options().Addr, ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}
	return fmt.Errorf("ping redis %s after %d attempts: %w", client.Options().Addr, attempts, err)
}

// Close 关闭Redis连接
func Close(client *redis.Client) error {
	return client.Close()
}
