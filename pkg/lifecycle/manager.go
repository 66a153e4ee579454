package lifecycle

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Manager 向后台服务分发句柄，并在停机时广播信号、等待它们退出。
// 停机协调器通常持有两个管理器：一个用于优雅停机，一个用于强制停机。
type Manager struct {
	name string
	log  *zap.Logger

	wg       sync.WaitGroup
	mu       sync.Mutex
	services map[string]bool

	ctx    context.Context
	cancel context.CancelFunc
}

func NewManager(name string, log *zap.Logger) *Manager {
	m := &Manager{
		name:     name,
		log:      log.With(zap.String("manager", name)),
		services: make(map[string]bool),
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	return m
}

// NewServiceHandle 注册一个服务并返回它的句柄，同名服务只能注册一次
func (m *Manager) NewServiceHandle(name string) (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.services[name] {
		return nil, fmt.Errorf("生命周期管理器 %s: 服务 '%s' 已被注册", m.name, name)
	}
	m.services[name] = true
	m.wg.Add(1)
	m.log.Debug("服务已注册", zap.String("service", name))

	var once sync.Once
	return &Handle{
		name: name,
		ctx:  m.ctx,
		close: func() {
			once.Do(func() {
				m.mu.Lock()
				delete(m.services, name)
				m.mu.Unlock()
				m.wg.Done()
			})
		},
	}, nil
}

// Go 注册服务并在新的goroutine中运行它，函数返回时自动调用 Close
func (m *Manager) Go(name string, run func(h *Handle)) error {
	h, err := m.NewServiceHandle(name)
	if err != nil {
		return err
	}
	go func() {
		defer h.Close()
		run(h)
	}()
	return nil
}

// Shutdown 广播停机信号
func (m *Manager) Shutdown() {
	m.log.Info("广播停机信号")
	m.cancel()
}

// WaitWithTimeout 等待所有已注册服务退出，超时则返回仍未退出的服务名
func (m *Manager) WaitWithTimeout(timeout time.Duration) []string {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		m.mu.Lock()
		defer m.mu.Unlock()
		remaining := make([]string, 0, len(m.services))
		for name := range m.services {
			remaining = append(remaining, name)
		}
		sort.Strings(remaining)
		return remaining
	}
}
