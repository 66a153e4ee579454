package database

import (
	"sync"

	"go.uber.org/zap"
)

// Status 负责线程安全地管理Redis的健康状态。
// 广播中继和连接限流在Redis不可用时会据此退化为本地实现。
type Status struct {
	mu             sync.RWMutex
	isRedisHealthy bool
	lastKnownRunID string
	log            *zap.Logger
}

// NewStatus 创建一个状态管理器，默认启动时是健康的
func NewStatus(log *zap.Logger) *Status {
	return &Status{isRedisHealthy: true, log: log}
}

// IsRedisHealthy 返回当前Redis的健康状态。
// 对 nil 接收者返回 false，方便在未启用Redis时直接传 nil。
func (s *Status) IsRedisHealthy() bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRedisHealthy
}

// Update 用于线程安全地更新健康状态，返回Redis是否在此期间重启过
func (s *Status) Update(isHealthy bool, runID string) (restarted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// 只有当状态发生变化时才打印日志
	if s.isRedisHealthy != isHealthy {
		s.isRedisHealthy = isHealthy
		if isHealthy {
			s.log.Info("健康检查: Redis服务状态已更新为 [可用]")
		} else {
			s.log.Warn("健康检查警告: Redis服务状态已更新为 [不可用]")
		}
	}

	if isHealthy {
		restarted = s.lastKnownRunID != "" && s.lastKnownRunID != runID
		s.lastKnownRunID = runID
	}
	return restarted
}

// LastKnownRunID 用于线程安全地获取已知的run_id。
func (s *Status) LastKnownRunID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastKnownRunID
}
