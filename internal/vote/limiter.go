package vote

import (
	"fmt"
	"math"
	"time"

	"gorm.io/gorm"
)

const (
	DefaultVotesPerWindow = 2
	DefaultVoteWindow     = time.Hour
)

// Verdict 是一次限流判断的结果
type Verdict struct {
	Limited           bool
	Count             int
	RetryAfterSeconds int
}

// RateLimiter 是按 (投票, 设备指纹) 计数的滑动窗口。
// 它不保存任何状态：窗口内的投票时间就是账本中 created_at > now-window 的记录，
// 一次成功提交的投票本身就是一次"观测"。
type RateLimiter struct {
	limit  int
	window time.Duration
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = DefaultVotesPerWindow
	}
	if window <= 0 {
		window = DefaultVoteWindow
	}
	return &RateLimiter{limit: limit, window: window}
}

// CheckAndObserve 在投票事务内评估限流，tx 必须是即将写入投票的同一个事务
func (l *RateLimiter) CheckAndObserve(tx *gorm.DB, pollID, fingerprint string, now time.Time) (Verdict, error) {
	return l.evaluate(tx, pollID, fingerprint, now)
}

// Peek 只读地评估限流，供状态查询使用
func (l *RateLimiter) Peek(db *gorm.DB, pollID, fingerprint string, now time.Time) (Verdict, error) {
	return l.evaluate(db, pollID, fingerprint, now)
}

func (l *RateLimiter) evaluate(db *gorm.DB, pollID, fingerprint string, now time.Time) (Verdict, error) {
	var stamps []time.Time
	err := db.Model(&Vote{}).
		Where("poll_id = ? AND device_fingerprint = ? AND created_at > ?", pollID, fingerprint, now.Add(-l.window)).
		Order("created_at ASC").
		Pluck("created_at", &stamps).Error
	if err != nil {
		return Verdict{}, fmt.Errorf("无法读取设备的近期投票: %w", err)
	}

	v := Verdict{Count: len(stamps)}
	if v.Count < l.limit {
		return v, nil
	}

	// 计数回落到上限以下的时刻。恰好达到上限时就是最早那一票离开窗口的时刻。
	exit := stamps[v.Count-l.limit].Add(l.window)
	v.Limited = true
	v.RetryAfterSeconds = retryAfter(exit.Sub(now))
	return v, nil
}

func retryAfter(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
