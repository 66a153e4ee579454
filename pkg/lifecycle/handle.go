package lifecycle

import (
	"context"
	"time"
)

// Handle 是分发给每个后台服务的生命周期句柄。
// 服务在退出前必须调用一次 Close，管理器据此判断停机是否完成。
type Handle struct {
	name  string
	ctx   context.Context
	close func()
}

// Name 返回服务注册时的名字
func (h *Handle) Name() string {
	return h.name
}

// Ctx 返回随停机信号取消的上下文
func (h *Handle) Ctx() context.Context {
	return h.ctx
}

// Done 在管理器发出停机信号时关闭
func (h *Handle) Done() <-chan struct{} {
	return h.ctx.Done()
}

// Err 在 Done 关闭后返回取消原因
func (h *Handle) Err() error {
	return h.ctx.Err()
}

// Close 通知管理器服务已经退出，重复调用无副作用
func (h *Handle) Close() {
	h.close()
}

// Sleep 休眠指定时长，收到停机信号时提前返回错误。
// 后台重试循环都应该用它代替 time.Sleep。
func (h *Handle) Sleep(duration time.Duration) error {
	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-h.Done():
		return h.Err()
	case <-timer.C:
		return nil
	}
}
