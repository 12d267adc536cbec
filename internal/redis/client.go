// Package redis 封装 go-redis 客户端的创建以及基于 Redis 的令牌吊销列表。
package redis

import (
	"context"
	"fmt"
	"time"

	"social-go/internal/config"

	"github.com/redis/go-redis/v9"
)

// NewClient 创建客户端并 Ping 一次，连不上时直接返回错误。
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("连接 Redis %s 失败: %w", cfg.Addr, err)
	}
	return client, nil
}
