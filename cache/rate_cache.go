package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	// 用户最近一次回帖的占位键，TTL即回帖间隔
	rateKeyPrefix = "reply_rate:"
)

// RateCache 基于Redis的回帖频率记录
// 同一用户的读-比较-写通过 SET NX PX 在Redis侧原子完成，
// 并发双击不可能同时通过检查。
type RateCache struct {
	client *redis.Client
}

// NewRateCache 创建频率缓存
func NewRateCache() *RateCache {
	return &RateCache{client: RedisClient}
}

func rateKey(userID int64) string {
	return fmt.Sprintf("%s%d", rateKeyPrefix, userID)
}

// Claim 尝试占用用户的回帖名额
// 成功时写入占位键并返回 true；间隔未到时返回 false 与剩余等待时长。
func (c *RateCache) Claim(ctx context.Context, userID int64, interval time.Duration) (bool, time.Duration, error) {
	if c.client == nil {
		return false, 0, fmt.Errorf("Redis client not initialized")
	}

	key := rateKey(userID)
	ok, err := c.client.SetNX(ctx, key, time.Now().UnixMilli(), interval).Result()
	if err != nil {
		return false, 0, fmt.Errorf("failed to claim reply slot: %w", err)
	}
	if ok {
		return true, 0, nil
	}

	ttl, err := c.client.PTTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		// 键恰好在两次调用之间过期，按最坏情况让调用方稍后重试
		return false, interval, nil
	}
	return false, ttl, nil
}
