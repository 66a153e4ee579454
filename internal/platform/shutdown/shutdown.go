package shutdown

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/SlpAus/pollsafe-backend/pkg/lifecycle"
)

const (
	httpTimeout     = 15 * time.Second
	gracefulTimeout = 30 * time.Second
	forcefulTimeout = 1 * time.Second
)

// Coordinator 负责编排两阶段停机：
// 先关闭HTTP服务器，再通知后台服务优雅退出，超时后发出强制信号，最后按顺序释放资源。
type Coordinator struct {
	GracefulManager *lifecycle.Manager
	ForcefulManager *lifecycle.Manager
	log             *zap.Logger
	finalizers      []finalizer
}

type finalizer struct {
	name string
	fn   func() error
}

func NewCoordinator(gracefulMgr, forcefulMgr *lifecycle.Manager, log *zap.Logger) *Coordinator {
	return &Coordinator{
		GracefulManager: gracefulMgr,
		ForcefulManager: forcefulMgr,
		log:             log,
	}
}

// OnShutdown 注册一个在后台服务退出后执行的清理步骤，按注册顺序执行
func (c *Coordinator) OnShutdown(name string, fn func() error) {
	c.finalizers = append(c.finalizers, finalizer{name: name, fn: fn})
}

// ListenForSignalsAndShutdown 阻塞直到收到中断信号，然后执行停机流程
func (c *Coordinator) ListenForSignalsAndShutdown(server *http.Server) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	sig := <-sigChan
	c.log.Info("收到关闭信号，开始优雅停机", zap.String("signal", sig.String()))
	c.Shutdown(server)
}

// Shutdown 执行完整的停机流程
func (c *Coordinator) Shutdown(server *http.Server) {
	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), httpTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			c.log.Error("HTTP服务器关闭错误", zap.Error(err))
		} else {
			c.log.Info("HTTP服务器已关闭")
		}
	}

	// 第一阶段
	c.log.Info("第一阶段停机：等待后台服务完成", zap.Duration("timeout", gracefulTimeout))
	c.GracefulManager.Shutdown()
	if remaining := c.GracefulManager.WaitWithTimeout(gracefulTimeout); len(remaining) > 0 {
		// 第二阶段
		c.log.Warn("第一阶段超时，发送强制停机信号", zap.Strings("remaining", remaining))
		c.ForcefulManager.Shutdown()
		if stuck := c.ForcefulManager.WaitWithTimeout(forcefulTimeout); len(stuck) > 0 {
			c.log.Error("强制停机后仍有服务未退出", zap.Strings("services", stuck))
		}
	} else {
		c.log.Info("所有服务已在第一阶段优雅关闭")
		c.ForcefulManager.Shutdown()
	}

	for _, f := range c.finalizers {
		if err := f.fn(); err != nil {
			c.log.Error("清理步骤失败", zap.String("step", f.name), zap.Error(err))
		}
	}
	c.log.Info("优雅停机完成")
}
