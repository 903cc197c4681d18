package moderation

import (
	"context"
	"sync"
	"time"

	apperrors "EbbFM/pkg/errors"
)

// RateStore 每用户最近回帖时间的存储
// Claim 必须是原子操作：同一用户的两次并发请求不允许都通过。
// 生产环境由 cache.RateCache（Redis SET NX PX）实现。
type RateStore interface {
	Claim(ctx context.Context, userID int64, interval time.Duration) (ok bool, retryAfter time.Duration, err error)
}

// RateGate 回帖频率检查：每用户每interval至多一次
type RateGate struct {
	store    RateStore
	interval time.Duration
}

// NewRateGate 创建频率门
func NewRateGate(store RateStore, interval time.Duration) *RateGate {
	return &RateGate{store: store, interval: interval}
}

// Check 尝试占用本次回帖名额
// 间隔未到返回POLICY_REJECTED（原因码rate_limited，带建议等待时长）。
func (g *RateGate) Check(ctx context.Context, userID int64) error {
	ok, retryAfter, err := g.store.Claim(ctx, userID, g.interval)
	if err != nil {
		return apperrors.StoreUnavailable(err)
	}
	if !ok {
		return apperrors.RateRejected(retryAfter)
	}
	return nil
}

// MemoryRateStore 进程内实现，供测试与单机开发使用
type MemoryRateStore struct {
	mu    sync.Mutex
	last  map[int64]time.Time
	nowFn func() time.Time
}

// NewMemoryRateStore 创建内存频率存储
func NewMemoryRateStore() *MemoryRateStore {
	return &MemoryRateStore{
		last:  make(map[int64]time.Time),
		nowFn: time.Now,
	}
}

// Claim 读-比较-写在同一把锁内完成
func (s *MemoryRateStore) Claim(_ context.Context, userID int64, interval time.Duration) (bool, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFn()
	if last, ok := s.last[userID]; ok {
		elapsed := now.Sub(last)
		if elapsed < interval {
			return false, interval - elapsed, nil
		}
	}
	s.last[userID] = now
	return true, 0, nil
}
