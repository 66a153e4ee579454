package ratelimit

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// HealthReporter 报告Redis当前是否可用
type HealthReporter interface {
	IsRedisHealthy() bool
}

// RedisWindow 是基于Redis有序集合的滑动窗口限流器，多个实例共享同一份计数。
// 每次请求以时间戳为分数写入一个成员，窗口外的成员在同一个事务里被移除。
// Redis不可用时退化为本地的 Store。
type RedisWindow struct {
	rdb    *redis.Client
	health HealthReporter
	prefix string
	limit  int64
	window time.Duration
	ttl    time.Duration
	clock  clockwork.Clock
	local  *Store
	log    *zap.Logger
}

func NewRedisWindow(rdb *redis.Client, health HealthReporter, prefix string, limit int, window time.Duration, clock clockwork.Clock, log *zap.Logger) *RedisWindow {
	if limit <= 0 {
		limit = 1
	}
	return &RedisWindow{
		rdb:    rdb,
		health: health,
		prefix: prefix,
		limit:  int64(limit),
		window: window,
		ttl:    window + time.Minute,
		clock:  clock,
		local:  NewStore(rate.Every(window/time.Duration(limit)), limit, window+time.Minute, clock),
		log:    log,
	}
}

// memberID 生成一个16字节的抗冲突成员ID：8字节纳秒时间戳加8字节随机数
func memberID(t time.Time) (string, error) {
	b := make([]byte, 16)
	binary.BigEndian.PutUint64(b[0:8], uint64(t.UnixNano()))
	if _, err := rand.Read(b[8:16]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Allow 记录一次请求并判断窗口内的计数是否超限。
// 超限的请求不计入窗口，它对应的成员会被立即补偿删除。
func (w *RedisWindow) Allow(ctx context.Context, key string) (bool, error) {
	if w.rdb == nil || w.health == nil || !w.health.IsRedisHealthy() {
		return w.local.AllowKey(key), nil
	}

	ok, err := w.allowShared(ctx, key)
	if err != nil {
		w.log.Warn("共享限流失败，退化为本地限流", zap.Error(err))
		return w.local.AllowKey(key), nil
	}
	return ok, nil
}

func (w *RedisWindow) allowShared(ctx context.Context, key string) (bool, error) {
	now := w.clock.Now()
	zkey := w.prefix + key
	minScore := now.Add(-w.window).UnixMicro()

	member, err := memberID(now)
	if err != nil {
		return false, fmt.Errorf("生成 memberID 失败: %w", err)
	}

	pipe := w.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, zkey, "-inf", fmt.Sprintf("(%d", minScore))
	pipe.ZAdd(ctx, zkey, redis.Z{Score: float64(now.UnixMicro()), Member: member})
	pipe.Expire(ctx, zkey, w.ttl)
	countCmd := pipe.ZCard(ctx, zkey)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("执行限流计数事务失败: %w", err)
	}

	count, err := countCmd.Result()
	if err != nil {
		w.compensate(ctx, zkey, member)
		return false, fmt.Errorf("获取限流计数结果失败: %w", err)
	}
	if count > w.limit {
		w.compensate(ctx, zkey, member)
		return false, nil
	}
	return true, nil
}

// Sweep 清理本地退化限流器中过期的键，返回剩余键数
func (w *RedisWindow) Sweep() int {
	return w.local.Sweep()
}

// compensate 撤销一次没有被放行的计数
func (w *RedisWindow) compensate(ctx context.Context, zkey, member string) {
	if err := w.rdb.ZRem(ctx, zkey, member).Err(); err != nil {
		w.log.Warn("限流计数补偿失败", zap.String("key", zkey), zap.Error(err))
	}
}
