package redis

import (
	"context"
	"fmt"
	"time"

	"social-go/internal/auth"

	"github.com/redis/go-redis/v9"
)

const blacklistKeyPrefix = "bl:jti:"

type tokenBlacklist struct {
	client redis.Cmdable
}

// NewTokenBlacklist 返回基于 Redis 的吊销列表，键在令牌过期后自动消失。
func NewTokenBlacklist(client redis.Cmdable) auth.TokenBlacklist {
	return &tokenBlacklist{client: client}
}

func (b *tokenBlacklist) Add(ctx context.Context, jti string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil // 已过期的令牌会被签名校验拒绝
	}
	if err := b.client.Set(ctx, blacklistKeyPrefix+jti, 1, ttl).Err(); err != nil {
		return fmt.Errorf("吊销令牌 %s 失败: %w", jti, err)
	}
	return nil
}

func (b *tokenBlacklist) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	n, err := b.client.Exists(ctx, blacklistKeyPrefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("查询令牌黑名单失败 (jti %s): %w", jti, err)
	}
	return n > 0, nil
}
