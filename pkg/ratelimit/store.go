// Package ratelimit 提供按键计数的请求限流：
// 单实例使用内存中的令牌桶，多实例共享时使用Redis有序集合实现的滑动窗口。
package ratelimit

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

// Limiter 判断某个键的这次请求是否放行
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// PerMinute 构造"每分钟 n 次"的令牌桶参数，突发容量等于 n
func PerMinute(n int) (rate.Limit, int) {
	if n <= 0 {
		return rate.Inf, 0
	}
	return rate.Every(time.Minute / time.Duration(n)), n
}

// Store 为每个键维护一个令牌桶。长时间未出现的键由 Sweep 清理，调用方负责定期执行。
type Store struct {
	mu       sync.Mutex
	limiters map[string]*keyLimiter
	r        rate.Limit
	b        int
	ttl      time.Duration
	clock    clockwork.Clock
}

type keyLimiter struct {
	lim     *rate.Limiter
	lastHit time.Time
}

func NewStore(r rate.Limit, burst int, ttl time.Duration, clock clockwork.Clock) *Store {
	return &Store{
		limiters: make(map[string]*keyLimiter),
		r:        r,
		b:        burst,
		ttl:      ttl,
		clock:    clock,
	}
}

// NewPerMinuteStore 是每分钟 n 次的内存限流器
func NewPerMinuteStore(n int, clock clockwork.Clock) *Store {
	r, b := PerMinute(n)
	return NewStore(r, b, 10*time.Minute, clock)
}

// Allow 实现 Limiter，内存实现永远不会返回错误
func (s *Store) Allow(_ context.Context, key string) (bool, error) {
	return s.AllowKey(key), nil
}

// AllowKey 消耗一个令牌
func (s *Store) AllowKey(key string) bool {
	key = strings.TrimSpace(key)
	if key == "" {
		key = "unknown"
	}
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	kl, ok := s.limiters[key]
	if !ok {
		kl = &keyLimiter{lim: rate.NewLimiter(s.r, s.b)}
		s.limiters[key] = kl
	}
	kl.lastHit = now
	return kl.lim.AllowN(now, 1)
}

// Sweep 清理过期的键，返回剩余键数
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked(s.clock.Now())
	return len(s.limiters)
}

func (s *Store) sweepLocked(now time.Time) {
	for k, v := range s.limiters {
		if now.Sub(v.lastHit) > s.ttl {
			delete(s.limiters, k)
		}
	}
}
